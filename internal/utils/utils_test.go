package utils

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecureJoin(t *testing.T) {
	root := t.TempDir()

	got, err := SecureJoin(root, "mib_state.json")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "mib_state.json"), got)

	got, err = SecureJoin(root, "/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "etc", "passwd"), got)

	_, err = SecureJoin(root, "../outside.json")
	assert.Error(t, err)

	_, err = SecureJoin("", "x")
	assert.Error(t, err)
}

func TestPathsStateFile(t *testing.T) {
	p := NewPaths(t.TempDir())
	got, err := p.StateFile("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(p.StateDir(), "mib_state.json"), got)

	p.DeployRoot(nil)
	for _, dir := range []string{p.LogsDir(), p.StateDir()} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestLoggerWritesTimestampedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "agent.log")
	l := NewLogger(path)
	l.Writef("threshold %d", 20)
	l.Close()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.True(t, strings.HasSuffix(line, ": threshold 20"), line)
	_, err = time.Parse(logTimeLayout, line[:len(logTimeLayout)])
	assert.NoError(t, err)
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Write("hello")
		l.Writef("%s", "x")
		l.Close()
		_ = l.Read()
	})
}

func TestListenUDP(t *testing.T) {
	conn, err := ListenUDP(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	_, ok := conn.LocalAddr().(*net.UDPAddr)
	assert.True(t, ok)
}

func TestPortMapperDiscoveryFailure(t *testing.T) {
	calls := 0
	p := NewPortMapper("udp", 1161, "test", nil)
	p.Discover = func(ctx context.Context) (NAT, error) {
		calls++
		return nil, errors.New("no gateway")
	}
	_, err := p.Refresh(context.Background())
	assert.Error(t, err)
	_, err = p.Refresh(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "discovery result is cached")
	assert.Equal(t, 0, p.ExternalPort())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
