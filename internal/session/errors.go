package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoActiveSession is returned by operations that need a loaded video.
	ErrNoActiveSession = errors.New("no video loaded")

	// ErrExportInProgress is returned when an export is requested while the
	// previous one is still running.
	ErrExportInProgress = errors.New("export already in progress")
)

// ValidationError reports user input that could not be used.
type ValidationError struct {
	Field  string
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Input, e.Reason)
}
