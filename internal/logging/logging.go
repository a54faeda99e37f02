package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures zerolog for the process.
func Setup(environment, level string) zerolog.Logger {
	return SetupWithWriter(environment, level, nil)
}

// SetupWithWriter configures zerolog and writes to out, or stderr when out is
// nil. Stdout stays free for command output such as downloaded blobs.
func SetupWithWriter(environment, level string, out io.Writer) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var writer io.Writer = os.Stderr
	if out != nil {
		writer = out
	}
	// Human-readable output for local work, JSON everywhere else.
	if strings.EqualFold(environment, "development") {
		writer = zerolog.ConsoleWriter{Out: writer, NoColor: out != nil}
	}

	SetLevel(level)
	logger := zerolog.New(writer).With().Timestamp().Logger()
	log.Logger = logger
	return logger
}

// SetLevel changes the level for every logger derived from Setup. It is safe
// to call while the process is serving.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
