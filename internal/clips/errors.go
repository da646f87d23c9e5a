package clips

import (
	"errors"
	"fmt"
)

// ErrInvalidTime is returned when a cut is marked at a time that is not a
// finite number.
var ErrInvalidTime = errors.New("cut time must be a finite number")

// ErrInvalidDuration matches any *InvalidDurationError via errors.Is.
var ErrInvalidDuration = errors.New("invalid duration")

// InvalidDurationError is returned when a plan is requested for a video
// whose total duration is not positive.
type InvalidDurationError struct {
	Seconds float64
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("invalid duration %.3fs: must be positive", e.Seconds)
}

func (e *InvalidDurationError) Is(target error) bool {
	return target == ErrInvalidDuration
}
