// Package persistence saves and restores the Object Store as a JSON
// snapshot file. Writes go through a temp file and rename so a crash never
// leaves a half-written snapshot behind.
package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"mibagent/internal/mib"
	"mibagent/internal/utils"
)

// FileStore persists snapshots at a fixed path.
type FileStore struct {
	path string
	log  *utils.Logger
	mu   sync.Mutex
}

// NewFileStore returns a FileStore writing to path.
func NewFileStore(path string, logger *utils.Logger) *FileStore {
	return &FileStore{path: path, log: logger}
}

// Path returns the snapshot file path.
func (f *FileStore) Path() string {
	return f.path
}

// Save writes the current contents of store. Saves are serialized, and the
// snapshot is taken after acquiring the file lock so the newest state
// always lands last.
func (f *FileStore) Save(store *mib.Store) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := store.Snapshot()
	data, err := Encode(snap.Objects)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("write snapshot %s: %w", f.path, err)
	}
	return nil
}

// SaveLogged calls Save and logs any failure. Persistence is best-effort:
// the in-memory store stays authoritative.
func (f *FileStore) SaveLogged(store *mib.Store) {
	if err := f.Save(store); err != nil {
		f.log.Writef("Error saving MIB state: %v", err)
	}
}

// Load returns a store restored from disk. A missing or corrupt snapshot
// yields the compiled-in defaults, which are written back immediately.
func (f *FileStore) Load() *mib.Store {
	store := mib.NewDefaultStore()
	err := f.restore(store)
	if err == nil {
		f.log.Writef("Loaded MIB state from %s", f.path)
		return store
	}
	if errors.Is(err, os.ErrNotExist) {
		f.log.Writef("No MIB state at %s; creating defaults", f.path)
	} else {
		f.log.Writef("MIB state at %s unusable (%v); restoring defaults", f.path, err)
		store = mib.NewDefaultStore()
	}
	f.SaveLogged(store)
	return store
}

func (f *FileStore) restore(store *mib.Store) error {
	f.mu.Lock()
	data, err := os.ReadFile(f.path)
	f.mu.Unlock()
	if err != nil {
		return err
	}
	objects, err := Decode(data)
	if err != nil {
		return err
	}
	if err := store.Restore(mib.Snapshot{Objects: objects}); err != nil {
		return fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
