// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/phuslu/log"
	"github.com/trogers1052/bwibbu-backfill/internal/config"
)

// New creates a logger from config. Format "json" writes one JSON object per
// line; anything else writes human-readable console output.
func New(cfg config.LogConfig) *log.Logger {
	return NewWithOutput(cfg, os.Stderr)
}

// NewWithOutput creates a logger writing to w.
func NewWithOutput(cfg config.LogConfig, w io.Writer) *log.Logger {
	var writer log.Writer
	if cfg.Format == "json" {
		writer = log.IOWriter{Writer: w}
	} else {
		writer = &log.ConsoleWriter{
			Writer:         w,
			EndWithMessage: true,
		}
	}

	level := log.InfoLevel
	if cfg.Level != "" {
		level = log.ParseLevel(cfg.Level)
	}

	return &log.Logger{
		Level:      level,
		TimeFormat: time.RFC3339,
		Writer:     writer,
	}
}

// Nop returns a logger that discards everything.
func Nop() *log.Logger {
	return &log.Logger{
		Level:  log.PanicLevel,
		Writer: log.IOWriter{Writer: io.Discard},
	}
}
