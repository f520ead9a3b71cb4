package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	debugFile *os.File
	logger    = zerolog.Nop()
	logsDir   string
	mu        sync.RWMutex
)

// ConfigureDebug opens a timestamped debug log in dir and routes all loader
// logging there. Until it is called nothing is logged.
func ConfigureDebug(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(dir, fmt.Sprintf("debug-%s.log", time.Now().Format("20060102-150405")))
	f, err := os.Create(name)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if debugFile != nil {
		_ = debugFile.Close()
	}
	debugFile = f
	logsDir = dir
	logger = zerolog.New(f).With().Timestamp().Logger().Level(zerolog.DebugLevel)
	return nil
}

// SetLogOutput routes logging to w (console-formatted), e.g. stderr for --verbose.
func SetLogOutput(w io.Writer, level zerolog.Level) {
	mu.Lock()
	defer mu.Unlock()
	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.DateTime}
	logger = zerolog.New(output).With().Timestamp().Logger().Level(level)
}

// CloseDebug flushes and closes the debug log, if any.
func CloseDebug() {
	mu.Lock()
	defer mu.Unlock()
	if debugFile != nil {
		_ = debugFile.Close()
		debugFile = nil
	}
	logger = zerolog.Nop()
}

// Debug writes a message to the debug log
func Debug(format string, args ...any) {
	mu.RLock()
	l := logger
	mu.RUnlock()
	l.Debug().Msgf(format, args...)
}

// Logger returns a logger tagged with the component name.
func Logger(component string) zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.With().Str("component", component).Logger()
}

// CleanupLogs keeps the newest keep debug logs in the configured directory.
func CleanupLogs(keep int) {
	mu.RLock()
	dir := logsDir
	mu.RUnlock()
	if dir == "" || keep <= 0 {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	var logs []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "debug-") && strings.HasSuffix(e.Name(), ".log") {
			logs = append(logs, e.Name())
		}
	}
	if len(logs) <= keep {
		return
	}
	// Names embed the creation timestamp, so lexical order is chronological.
	sort.Strings(logs)
	for _, name := range logs[:len(logs)-keep] {
		_ = os.Remove(filepath.Join(dir, name))
	}
}
