package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// EnvLogLevel names the variable that selects the log level.
const EnvLogLevel = "DOCFLOW_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// DOCFLOW_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	InitWithLevel(os.Getenv(EnvLogLevel))
}

// InitWithLevel is Init with an explicit level, e.g. from a --log-level flag.
// Unknown or empty levels select info.
func InitWithLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// InitJSON writes plain JSON lines to w instead of the console format.
func InitJSON(w io.Writer, level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
