// Package telemetry holds the global zerolog logger used across every
// component.
//
// Grounded on BullionBear/sequex's pkg/logger/logger.go: a package-level
// Log variable starting disabled, initialized once from main via Init, with
// a console writer for human-readable local runs and a JSON writer for
// production, matching the logging.format config field.
package telemetry

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/orderflow/futures-core/internal/config"
)

// Log is the global logger. Safe to use before Init (writes are discarded
// until configured), but every binary entrypoint should call Init early.
var Log zerolog.Logger = zerolog.New(nil).Level(zerolog.Disabled)

// Init configures the global Log from cfg's logging section. Should be
// called exactly once, from main().
func Init(cfg config.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "json" {
		Log = zerolog.New(os.Stdout).With().Timestamp().Caller().Logger()
		return
	}

	outputWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "15:04:05.000000",
	}
	Log = zerolog.New(outputWriter).With().Timestamp().Caller().Logger()
}

// Get returns the global logger, useful for passing to collaborators that
// take a *zerolog.Logger rather than importing this package.
func Get() *zerolog.Logger {
	return &Log
}
