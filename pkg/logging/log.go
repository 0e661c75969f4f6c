package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	logger   = slog.New(slog.NewTextHandler(io.Discard, nil))
	logFile  *os.File
	logMutex sync.Mutex
)

// Init opens the application log file and routes all Log* calls to it.
// Until Init is called, messages are discarded so the TUI screen stays clean.
func Init(path string, debug bool) error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if logFile != nil {
		_ = logFile.Close()
	}
	logFile = f

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	return nil
}

// SetOutput routes log output to w. Used by the headless commands and tests.
func SetOutput(w io.Writer, debug bool) {
	logMutex.Lock()
	defer logMutex.Unlock()
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Close flushes and closes the log file, if one was opened.
func Close() error {
	logMutex.Lock()
	defer logMutex.Unlock()
	if logFile == nil {
		return nil
	}
	_ = logFile.Sync()
	err := logFile.Close()
	logFile = nil
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return err
}

func log(level slog.Level, msg string) {
	logMutex.Lock()
	l := logger
	logMutex.Unlock()
	l.Log(context.Background(), level, msg)
}

func LogDebug(format string, args ...interface{}) {
	log(slog.LevelDebug, fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	log(slog.LevelInfo, fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	log(slog.LevelError, fmt.Sprintf(format, args...))
}
