package clips

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// MinSegmentSeconds is the length at or below which a segment is not exported.
const MinSegmentSeconds = 0.1

// Segment is the half-open range [Start, End) of the source, in seconds,
// that becomes one output file. Number is 1-based among exported segments.
type Segment struct {
	Number int
	Start  float64
	End    float64
}

// Duration returns the segment length
func (s Segment) Duration() time.Duration {
	return time.Duration(math.Round((s.End - s.Start) * float64(time.Second)))
}

// OutputName returns "{base}_{Number}.{ext}".
func (s Segment) OutputName(base, ext string) string {
	return fmt.Sprintf("%s_%d.%s", base, s.Number, ext)
}

func (s Segment) String() string {
	return fmt.Sprintf("#%d [%.3f, %.3f)", s.Number, s.Start, s.End)
}

// Plan splits [0, totalSeconds) at the given cut points using the default
// minimum segment length.
func Plan(cuts []CutPoint, totalSeconds float64) ([]Segment, error) {
	return PlanWithMin(cuts, totalSeconds, MinSegmentSeconds)
}

// PlanWithMin splits [0, totalSeconds) at the cut points. Ranges no longer
// than minSeconds are dropped and the survivors are numbered 1..N in time
// order.
func PlanWithMin(cuts []CutPoint, totalSeconds, minSeconds float64) ([]Segment, error) {
	if !(totalSeconds > 0) {
		return nil, &InvalidDurationError{Seconds: totalSeconds}
	}

	bounds := make([]float64, 0, len(cuts)+2)
	bounds = append(bounds, 0)
	for _, c := range cuts {
		bounds = append(bounds, math.Min(c.Time, totalSeconds))
	}
	sort.Float64s(bounds[1:])
	bounds = append(bounds, totalSeconds)

	segments := make([]Segment, 0, len(bounds)-1)
	for i := 0; i+1 < len(bounds); i++ {
		start, end := bounds[i], bounds[i+1]
		if end-start <= minSeconds {
			continue
		}
		segments = append(segments, Segment{
			Number: len(segments) + 1,
			Start:  start,
			End:    end,
		})
	}

	return segments, nil
}
