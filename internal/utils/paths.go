// Package utils contains utility types for logging, socket options, NAT
// traversal and filesystem path management used throughout the agent.
package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths resolves and manages filesystem locations used by the agent.
type Paths struct {
	RootPath string `json:"root_path"`
}

// NewPaths constructs Paths rooted at the specified directory.
func NewPaths(rootPath string) *Paths {
	return &Paths{RootPath: rootPath}
}

// LogsDir returns the logs directory.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.RootPath, "logs")
}

// StateDir returns the directory holding the persisted MIB snapshot.
func (p *Paths) StateDir() string {
	return filepath.Join(p.RootPath, "state")
}

// LogFile returns the main agent log file path.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogsDir(), "mibagent.log")
}

// StateFile resolves name inside StateDir, refusing paths that escape it.
func (p *Paths) StateFile(name string) (string, error) {
	if name == "" {
		name = "mib_state.json"
	}
	return SecureJoin(p.StateDir(), name)
}

// DeployRoot creates the root directory structure (idempotent).
func (p *Paths) DeployRoot(logger *Logger) {
	mkdirLog := func(path, label string) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		_ = os.MkdirAll(path, 0o755)
		logger.Write(fmt.Sprintf("Creating %s path: %s", label, path))
	}

	mkdirLog(p.RootPath, "root")
	mkdirLog(p.LogsDir(), "logs")
	mkdirLog(p.StateDir(), "state")
}

// SecureJoin joins root and userPath, rejecting results outside root.
// Absolute userPath values are re-rooted under root.
func SecureJoin(root, userPath string) (string, error) {
	if strings.TrimSpace(root) == "" {
		return "", errors.New("root required")
	}
	cleanRoot := filepath.Clean(root)
	if strings.TrimSpace(userPath) == "" {
		return cleanRoot, nil
	}
	up := strings.TrimPrefix(filepath.Clean(userPath), string(filepath.Separator))
	candidate := filepath.Join(cleanRoot, up)
	rel, err := filepath.Rel(cleanRoot, candidate)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.New("path escapes root")
	}
	return candidate, nil
}
