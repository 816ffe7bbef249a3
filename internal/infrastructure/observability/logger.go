package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// InitLogger builds the service logger. Unknown levels fall back to info.
func InitLogger(level string, output io.Writer) zerolog.Logger {
	if output == nil {
		output = os.Stdout
	}
	return zerolog.New(output).
		Level(parseLogLevel(level)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// LogOutput wraps w for the configured log format: "console" gives
// human-readable lines for local runs, anything else keeps JSON.
func LogOutput(format string, w io.Writer) io.Writer {
	if strings.EqualFold(format, "console") {
		return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return w
}

func parseLogLevel(level string) zerolog.Level {
	if strings.EqualFold(level, "warning") {
		return zerolog.WarnLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// WithFields returns a child logger carrying the given fields.
func WithFields(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	return logger.With().Fields(fields).Logger()
}

// Component tags a logger with the emitting component.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str("component", name).Logger()
}
