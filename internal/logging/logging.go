// Package logging configures zerolog for cutdeck and derives the tagged
// child loggers the other packages use.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options selects where the global logger writes.
type Options struct {
	Verbose bool
	// File, when set, receives JSON lines next to the console output.
	File string
	// Console defaults to stderr.
	Console io.Writer
}

// Init installs the global logger and returns a function that closes the
// log file, if one was opened.
func Init(opts Options) (func() error, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        opts.Console,
		TimeFormat: "15:04:05",
	}}

	closeFn := func() error { return nil }
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return closeFn, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, f)
		closeFn = f.Close
	}

	log.Logger = NewLogger(writers...)
	return closeFn, nil
}

// NewLogger creates a timestamped logger writing to every writer.
// Without writers the global logger is returned.
func NewLogger(writers ...io.Writer) zerolog.Logger {
	switch len(writers) {
	case 0:
		return log.Logger
	case 1:
		return zerolog.New(writers[0]).With().Timestamp().Logger()
	default:
		return zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()
	}
}

// WithComponent derives a logger from the global one with a component field.
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}

// WithSession tags a logger with the edit session and the video it edits.
func WithSession(logger zerolog.Logger, sessionID, video string) zerolog.Logger {
	return logger.With().
		Str("session", sessionID).
		Str("video", video).
		Logger()
}
