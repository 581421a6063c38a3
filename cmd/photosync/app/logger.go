package app

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/photokeep/photosync/pkg/logging"
)

// NewLogger creates a configured logger for the CLI.
// Log level precedence (highest to lowest):
//  1. --log-level flag
//  2. -v/--verbose flag (debug)
//  3. -q/--quiet flag (warn)
//  4. LOG_LEVEL environment variable
//  5. Default (info)
func NewLogger(config *Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(determineLogLevel(config))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if config.LogFormat == "json" {
		logger = logging.NewJSON(os.Stderr)
	} else {
		logger = logging.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    config.NoColor || os.Getenv("NO_COLOR") != "",
		})
	}
	logger = logger.Level(level)

	logging.SetDefault(logger)
	return logger
}

// determineLogLevel resolves the log level from flags and the environment.
func determineLogLevel(config *Config) string {
	if config.LogLevel != "" {
		return validateLogLevel(config.LogLevel)
	}
	if config.Verbose && config.Quiet {
		fmt.Fprintf(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet\n")
		return "warn"
	}
	if config.Verbose {
		return "debug"
	}
	if config.Quiet {
		return "warn"
	}
	return "info"
}

// validateLogLevel returns the level if valid, otherwise "info".
func validateLogLevel(level string) string {
	switch level {
	case "trace", "debug", "info", "warn", "error":
		return level
	}
	fmt.Fprintf(os.Stderr, "Warning: invalid log level %q, using \"info\"\n", level)
	return "info"
}
