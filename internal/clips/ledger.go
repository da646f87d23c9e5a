package clips

import (
	"fmt"
	"math"
	"sort"
)

// DefaultFPS is used for frame indices when the frame rate is unknown.
const DefaultFPS = 30.0

// CutPoint is a user-marked split position in the source video.
type CutPoint struct {
	Time  float64 // seconds from the start of the source
	Frame int     // floor(Time * fps) when marked
}

// FrameAt converts a position in seconds to a frame index.
func FrameAt(seconds, fps float64) int {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}
	return int(math.Floor(seconds * fps))
}

// Ledger holds the cut points of one loaded video, ordered by time with no
// two points at exactly the same time.
type Ledger struct {
	points []CutPoint
}

// NewLedger creates an empty ledger
func NewLedger() *Ledger {
	return &Ledger{
		points: make([]CutPoint, 0),
	}
}

// Mark records a cut at timeSeconds. A previous cut at the exact same time
// is replaced. Negative times are clamped to 0; NaN and infinities are
// rejected with ErrInvalidTime and leave the ledger unchanged.
func (l *Ledger) Mark(timeSeconds, fps float64) (CutPoint, error) {
	if math.IsNaN(timeSeconds) || math.IsInf(timeSeconds, 0) {
		return CutPoint{}, fmt.Errorf("%w: %v", ErrInvalidTime, timeSeconds)
	}
	if timeSeconds < 0 {
		timeSeconds = 0
	}
	p := CutPoint{Time: timeSeconds, Frame: FrameAt(timeSeconds, fps)}

	i := sort.Search(len(l.points), func(i int) bool {
		return l.points[i].Time >= timeSeconds
	})
	if i < len(l.points) && l.points[i].Time == timeSeconds {
		l.points[i] = p
		return p, nil
	}

	l.points = append(l.points, CutPoint{})
	copy(l.points[i+1:], l.points[i:])
	l.points[i] = p
	return p, nil
}

// Clear removes all cut points
func (l *Ledger) Clear() {
	l.points = l.points[:0]
}

// Snapshot returns a copy of the cut points in ascending time order
func (l *Ledger) Snapshot() []CutPoint {
	out := make([]CutPoint, len(l.points))
	copy(out, l.points)
	return out
}

// Times returns just the cut times
func (l *Ledger) Times() []float64 {
	out := make([]float64, len(l.points))
	for i, p := range l.points {
		out[i] = p.Time
	}
	return out
}

// Len returns the number of cut points
func (l *Ledger) Len() int {
	return len(l.points)
}
