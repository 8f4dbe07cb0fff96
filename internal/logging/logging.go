package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

const (
	DiagnosticsFile = "diagnostics_log.txt"
	timeFormat      = "2006-01-02 15:04:05"
)

// Logger is the diagnostics logger plus the file it writes to.
type Logger struct {
	zerolog.Logger
	file *os.File
}

// New appends human-readable lines to <dir>/diagnostics_log.txt. Development
// mode also writes to stderr and lowers the level to debug.
func New(dir string, development bool) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, DiagnosticsFile)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open diagnostics log: %w", err)
	}

	var out io.Writer = zerolog.ConsoleWriter{Out: file, TimeFormat: timeFormat, NoColor: true}
	level := zerolog.InfoLevel
	if development {
		out = zerolog.MultiLevelWriter(out, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: timeFormat})
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Int("pid", os.Getpid()).Logger()
	return &Logger{Logger: logger, file: file}, nil
}

func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
