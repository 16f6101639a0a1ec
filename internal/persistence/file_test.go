package persistence

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"mibagent/internal/agent"
	"mibagent/internal/mib"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "state", "mib_state.json"), nil)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs := newTestFileStore(t)
	store := mib.NewDefaultStore()
	require.NoError(t, store.Set(mib.ManagerNameOID, mib.TextValue("Ops Team")))
	require.NoError(t, store.Set(mib.ManagerEmailOID, mib.TextValue("ops@example.com")))
	require.NoError(t, store.Set(mib.CPUUsageOID, mib.IntegerValue(37)))
	require.NoError(t, store.Set(mib.CPUThresholdOID, mib.IntegerValue(80)))
	require.NoError(t, store.Set(mib.EventTimeOID, mib.TimestampValue("2025-03-04,05:06:07")))

	require.NoError(t, fs.Save(store))
	loaded := fs.Load()
	assert.Equal(t, store.Walk(), loaded.Walk())
}

func TestLoadMissingWritesDefaults(t *testing.T) {
	fs := newTestFileStore(t)
	loaded := fs.Load()
	assert.Equal(t, mib.NewDefaultStore().Walk(), loaded.Walk())

	data, err := os.ReadFile(fs.Path())
	require.NoError(t, err, "defaults must be persisted immediately")
	objects, err := Decode(data)
	require.NoError(t, err)
	assert.Len(t, objects, len(mib.DefaultObjects()))
}

func TestLoadCorruptFallsBackToDefaults(t *testing.T) {
	cases := map[string]string{
		"garbage":      "{not json",
		"empty":        "",
		"unknown tag":  `{"1.3.6.1.4.1.28308.1.1.0": ["Counter64", 1]}`,
		"wrong kind":   `{"1.3.6.1.4.1.28308.1.1.0": ["Integer32", 1], "1.3.6.1.4.1.28308.1.2.0": ["DisplayString", "a"], "1.3.6.1.4.1.28308.1.3.0": ["Integer32", 0], "1.3.6.1.4.1.28308.1.4.0": ["Integer32", 20], "1.3.6.1.4.1.28308.1.5.0": ["DateAndTime", ""]}`,
		"missing oid":  `{"1.3.6.1.4.1.28308.1.1.0": ["DisplayString", "a"]}`,
		"unknown oid":  `{"1.3.6.1.4.1.28308.9.9.0": ["DisplayString", "a"], "1.3.6.1.4.1.28308.1.2.0": ["DisplayString", "a"], "1.3.6.1.4.1.28308.1.3.0": ["Integer32", 0], "1.3.6.1.4.1.28308.1.4.0": ["Integer32", 20], "1.3.6.1.4.1.28308.1.5.0": ["DateAndTime", ""]}`,
		"short pair":   `{"1.3.6.1.4.1.28308.1.1.0": ["DisplayString"]}`,
		"int overflow": `{"1.3.6.1.4.1.28308.1.3.0": ["Integer32", 4294967296]}`,
		"threshold out of range": validDoc(`"1.3.6.1.4.1.28308.1.4.0": ["Integer32", 500]`),
		"negative cpu usage":     validDoc(`"1.3.6.1.4.1.28308.1.3.0": ["Integer32", -7]`),
		"name too long":          validDoc(`"1.3.6.1.4.1.28308.1.1.0": ["DisplayString", "` + strings.Repeat("n", 200) + `"]`),
		"trailing data":          validDoc("") + ` {"extra": true}`,
		"trailing garbage":       validDoc("") + "\n]]garbage",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			fs := newTestFileStore(t)
			require.NoError(t, os.MkdirAll(filepath.Dir(fs.Path()), 0o755))
			require.NoError(t, os.WriteFile(fs.Path(), []byte(content), 0o644))

			loaded := fs.Load()
			assert.Equal(t, mib.NewDefaultStore().Walk(), loaded.Walk())

			data, err := os.ReadFile(fs.Path())
			require.NoError(t, err)
			objects, err := Decode(data)
			require.NoError(t, err, "corrupt file must be replaced by a valid snapshot")
			assert.Len(t, objects, len(mib.DefaultObjects()))
		})
	}
}

// validDoc returns a complete snapshot document, with override replacing
// the entry for the same OID when given.
func validDoc(override string) string {
	entries := []string{
		`"1.3.6.1.4.1.28308.1.1.0": ["DisplayString", "Admin"]`,
		`"1.3.6.1.4.1.28308.1.2.0": ["DisplayString", "admin@example.com"]`,
		`"1.3.6.1.4.1.28308.1.3.0": ["Integer32", 12]`,
		`"1.3.6.1.4.1.28308.1.4.0": ["Integer32", 20]`,
		`"1.3.6.1.4.1.28308.1.5.0": ["DateAndTime", ""]`,
	}
	if override != "" {
		key := override[:strings.Index(override, ":")]
		for i, e := range entries {
			if strings.HasPrefix(e, key) {
				entries[i] = override
			}
		}
	}
	return "{" + strings.Join(entries, ", ") + "}"
}

func TestLoadAcceptsValidDocument(t *testing.T) {
	fs := newTestFileStore(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(fs.Path()), 0o755))
	require.NoError(t, os.WriteFile(fs.Path(), []byte(validDoc("")+"\n"), 0o644))

	loaded := fs.Load()
	th, err := loaded.Get(mib.CPUThresholdOID)
	require.NoError(t, err)
	assert.Equal(t, int32(20), th.Value.Int)
	name, err := loaded.Get(mib.ManagerNameOID)
	require.NoError(t, err)
	assert.Equal(t, "Admin", name.Value.Text)
}

func TestWrittenTextSurvivesReload(t *testing.T) {
	fs := newTestFileStore(t)
	d := agent.NewDispatcher(fs.Load(), fs, nil)
	rw := agent.Principal{Name: "private", Class: agent.ReadWrite}

	_, err := d.Write(rw, []agent.Input{agent.OctetsInput(mib.ManagerNameOID, []byte{'A', 0xff, 0xfe, 'B'})})
	status, _ := agent.StatusOf(err)
	assert.Equal(t, agent.StatusWrongValue, status)

	_, err = d.Write(rw, []agent.Input{agent.OctetsInput(mib.ManagerNameOID, []byte("Équipe réseau"))})
	require.NoError(t, err)
	assert.Equal(t, d.Store().Walk(), fs.Load().Walk())
}

func TestDecodeAcceptsOriginalLayout(t *testing.T) {
	doc := `{
  "1.3.6.1.4.1.28308.1.1.0": ["DisplayString", "Admin"],
  "1.3.6.1.4.1.28308.1.2.0": ["DisplayString", "admin@example.com"],
  "1.3.6.1.4.1.28308.1.3.0": ["Integer32", 12],
  "1.3.6.1.4.1.28308.1.4.0": ["Integer32", 20],
  "1.3.6.1.4.1.28308.1.5.0": ["DateAndTime", "2025-01-01,00:00:00"]
}`
	objects, err := Decode([]byte(doc))
	require.NoError(t, err)

	store := mib.NewDefaultStore()
	require.NoError(t, store.Restore(mib.Snapshot{Objects: objects}))
	cpu, err := store.Get(mib.CPUUsageOID)
	require.NoError(t, err)
	assert.Equal(t, int32(12), cpu.Value.Int)
	ev, err := store.Get(mib.EventTimeOID)
	require.NoError(t, err)
	assert.Equal(t, mib.TimestampValue("2025-01-01,00:00:00"), ev.Value)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	fs := newTestFileStore(t)
	store := mib.NewDefaultStore()
	for i := 0; i < 5; i++ {
		require.NoError(t, store.Set(mib.CPUUsageOID, mib.IntegerValue(int32(i))))
		require.NoError(t, fs.Save(store))
	}
	entries, err := os.ReadDir(filepath.Dir(fs.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "mib_state.json", entries[0].Name())
}

func TestSaveFailureKeepsPreviousSnapshot(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStore(filepath.Join(dir, "mib_state.json"), nil)
	store := mib.NewDefaultStore()
	require.NoError(t, fs.Save(store))
	before, err := os.ReadFile(fs.Path())
	require.NoError(t, err)

	require.NoError(t, os.Chmod(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}

	require.NoError(t, store.Set(mib.CPUUsageOID, mib.IntegerValue(99)))
	assert.Error(t, fs.Save(store))
	after, err := os.ReadFile(fs.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
