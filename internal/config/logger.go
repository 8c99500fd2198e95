package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the root logger from the logging section. The returned
// close function releases the log file, if any.
func NewLogger(cfg LoggingConfig) (zerolog.Logger, func() error, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = l
	}

	var out io.Writer = os.Stdout
	closeFn := func() error { return nil }
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = f
		closeFn = f.Close
	}

	switch cfg.Format {
	case "", "json":
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: cfg.FilePath != ""}
	default:
		closeFn()
		return zerolog.Nop(), nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closeFn, nil
}
