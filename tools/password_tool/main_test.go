package main

import (
	"testing"

	"mibagent/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAccount(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, setAccount(cfg, "admin", "", "hash-a"))
	assert.Equal(t, "admin", cfg.Admin.Username)
	assert.Equal(t, "hash-a", cfg.Admin.PasswordHash)

	assert.Error(t, setAccount(cfg, "viewer", "", "hash-v"))
	require.NoError(t, setAccount(cfg, "Viewer", "noc", "hash-v"))
	assert.Equal(t, "noc", cfg.Viewer.Username)

	assert.Error(t, setAccount(cfg, "root", "x", "h"))
}

func TestResolvePasswordFlag(t *testing.T) {
	_, err := resolvePassword("short")
	assert.Error(t, err)
	pwd, err := resolvePassword("  long-enough  ")
	require.NoError(t, err)
	assert.Equal(t, "long-enough", pwd)
}
