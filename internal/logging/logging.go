package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	// Level accepts slog names as well as WARNING and CRITICAL.
	Level string
	// Debug switches to the human readable text handler.
	Debug bool
	// File additionally writes to a size-rotated log file when set.
	File string
	// Output defaults to stderr.
	Output io.Writer
}

// New builds the process logger. The returned closer flushes and closes the
// log file and must be called on shutdown.
func New(c Config) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(c.Level)
	if err != nil {
		return nil, nil, err
	}

	handlerOpts := &slog.HandlerOptions{
		Level: level,
		// https://opentelemetry.io/docs/specs/otel/logs/data-model/
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case slog.LevelKey:
				a.Key = "severitytext"
			case slog.MessageKey:
				a.Key = "body"
			}
			return a
		},
	}

	var w io.Writer = os.Stderr
	if c.Output != nil {
		w = c.Output
	}
	var closer io.Closer = nopCloser{}
	if c.File != "" {
		if err := os.MkdirAll(filepath.Dir(c.File), 0o755); err != nil {
			return nil, nil, xerrors.Errorf("failed to create log directory: %w", err)
		}
		file := &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    25,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		w = io.MultiWriter(w, file)
		closer = file
	}

	logger := slog.New(slog.NewJSONHandler(w, handlerOpts))
	if c.Debug {
		logger = slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return logger, closer, nil
}

func ParseLevel(s string) (slog.Level, error) {
	level := slog.LevelInfo
	if s == "" {
		return level, nil
	}
	switch strings.ToUpper(s) {
	case "WARNING":
		s = "WARN"
	case "CRITICAL", "FATAL":
		s = "ERROR+4"
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return level, xerrors.Errorf("failed to parse log level: %w", err)
	}
	return level, nil
}

type nopCloser struct{}

func (nopCloser) Close() error {
	return nil
}
