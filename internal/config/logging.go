package config

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
)

// LoggingConfig contains logging settings shared by both binaries
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

func (l *LoggingConfig) applyDefaults() {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
}

func (l *LoggingConfig) validate() error {
	if _, err := zerolog.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("invalid log level %q", l.Level)
	}
	if l.Format != "json" && l.Format != "console" {
		return fmt.Errorf("log format must be json or console")
	}
	return nil
}

// NewLogger builds the root logger writing to w
func (l LoggingConfig) NewLogger(w io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(l.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if l.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
