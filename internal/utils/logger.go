package utils

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const logTimeLayout = "2006-01-02 15:04:05"

// Logger writes timestamped lines to a log file (and allows reading recent data).
// A nil *Logger is valid and forwards to the standard library logger.
type Logger struct {
	mu        sync.Mutex
	writeFile *os.File
	readFile  *os.File
}

// defaultLogPath returns the agent log path rooted next to the running
// executable, using the same naming as Paths.LogFile().
func defaultLogPath() string {
	exe, err := os.Executable()
	if err == nil {
		if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && resolved != "" {
			exe = resolved
		}
		return NewPaths(filepath.Dir(exe)).LogFile()
	}
	return NewPaths(filepath.Join(os.TempDir(), "mibagent")).LogFile()
}

// NewLogger opens the given log file for appending and a parallel read handle.
// If the file cannot be opened, logs will be written to stdout.
func NewLogger(logFile string) *Logger {
	logger := &Logger{}
	if logFile == "" {
		logFile = defaultLogPath()
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)

	var err error
	logger.writeFile, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: Error opening log file (%s): %v\n", time.Now().Format(logTimeLayout), logFile, err)
		return logger
	}
	logger.readFile, err = os.Open(logFile)
	if err != nil {
		logger.Write(fmt.Sprintf("Error opening log file for reading (%s): %v", logFile, err))
	}
	return logger
}

// Write appends a timestamped message to the log (or stdout when no file).
func (l *Logger) Write(message string) {
	if l == nil {
		log.Println(message)
		return
	}
	line := fmt.Sprintf("%s: %s\n", time.Now().Format(logTimeLayout), message)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeFile != nil {
		_, _ = l.writeFile.WriteString(line)
		_ = l.writeFile.Sync()
		return
	}
	fmt.Print(line)
}

// Writef formats and writes a message.
func (l *Logger) Writef(format string, args ...any) {
	l.Write(fmt.Sprintf(format, args...))
}

// Read reads up to 1 KiB from the current read handle for quick previews.
func (l *Logger) Read() string {
	if l == nil || l.readFile == nil {
		return ""
	}
	buf := make([]byte, 1024)
	n, _ := l.readFile.Read(buf)
	return string(buf[:n])
}

// Close flushes and closes underlying file handles.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeFile != nil {
		l.writeFile.Close()
		l.writeFile = nil
	}
	if l.readFile != nil {
		l.readFile.Close()
		l.readFile = nil
	}
}
