package logger

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	globalLogger zerolog.Logger
	once         sync.Once
)

// GetLogger returns the process-wide logger. Before New has run it falls
// back to console output at info level.
func GetLogger() zerolog.Logger {
	once.Do(func() {
		globalLogger = zerolog.New(consoleWriter()).With().Timestamp().Logger().Level(zerolog.InfoLevel)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})
	return globalLogger
}

// New reconfigures the process-wide logger from the LOG_LEVEL and LOG_FORMAT
// settings and tags every entry with the service name. Components built
// afterwards inherit the configured logger through GetLogger.
func New(level, format, service string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Logger{}, err
	}

	var base zerolog.Logger
	switch strings.ToLower(format) {
	case "json":
		base = zerolog.New(os.Stdout)
	case "console":
		base = zerolog.New(consoleWriter())
	default:
		return zerolog.Logger{}, errors.New("unsupported log format")
	}

	zerolog.SetGlobalLevel(lvl)

	// Consume the once so a later GetLogger keeps this configuration.
	once.Do(func() {})
	globalLogger = base.With().Timestamp().Str("service", service).Logger().Level(lvl)

	return globalLogger, nil
}

// Component returns the global logger tagged with a component field.
func Component(name string) zerolog.Logger {
	return GetLogger().With().Str("component", name).Logger()
}

func consoleWriter() zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
}
