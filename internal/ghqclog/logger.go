// Package ghqclog configures the structured logger shared by every ghqc
// package. It follows the same construction pattern throughout: a small
// config struct, a constructor that switches on level/format, and
// logrus.Fields-based call sites rather than a package-level implicit
// singleton (each component is handed a *logrus.Logger so tests can inject
// a discard logger).
package ghqclog

import (
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls how a logger is constructed.
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "json" or "text"
	AddCaller bool
	Output    io.Writer // defaults to os.Stderr
}

// DefaultConfig returns sensible defaults for local/CLI use.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
	}
}

// New builds a *logrus.Logger from the given config.
func New(cfg Config) *logrus.Logger {
	logger := logrus.New()

	switch cfg.Level {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetReportCaller(cfg.AddCaller)

	if cfg.Output != nil {
		logger.SetOutput(cfg.Output)
	} else {
		logger.SetOutput(os.Stderr)
	}

	return logger
}

// Discard returns a logger that writes nowhere, for use in tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
