// Package logger configures the global zerolog logger. Output goes to
// stderr (and optionally a file) so stdout stays free for the stdio
// protocol.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json or console
	File   string // optional log file, appended to
}

// Logger owns the configured zerolog logger and its file.
type Logger struct {
	logger zerolog.Logger
	file   *os.File
}

// New builds a logger writing to out (os.Stderr when nil) and installs it
// as the global log.Logger.
func New(cfg Config, out io.Writer) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	var file *os.File
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, errors.Wrap(err, "create log directory")
		}
		file, err = os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Wrap(err, "open log file")
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = logger

	return &Logger{logger: logger, file: file}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Zerolog returns the underlying logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.logger
}
