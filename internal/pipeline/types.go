package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kikiluvv/cutdeck/internal/clips"
	"github.com/kikiluvv/cutdeck/internal/ffmpeg"
)

// ExportService materializes one time range of a source video as a file.
type ExportService interface {
	ExportRange(ctx context.Context, input string, opts ffmpeg.RangeOptions) error
}

// Config holds pipeline-specific configuration
type Config struct {
	Encoding ffmpeg.EncodingOptions
	// OutputExt is the extension of exported files, without the dot.
	OutputExt string
}

// ExportedFile is one segment written to disk.
type ExportedFile struct {
	Segment clips.Segment
	Path    string
	Size    int64
	Elapsed time.Duration
}

// ExportReport summarizes a finished export.
type ExportReport struct {
	Source    string
	OutputDir string
	Outputs   []ExportedFile
	Elapsed   time.Duration
}

// TotalSize returns the combined size of all written files
func (r *ExportReport) TotalSize() int64 {
	var n int64
	for _, f := range r.Outputs {
		n += f.Size
	}
	return n
}

// ProgressEvent reports export progress of one segment.
type ProgressEvent struct {
	Segment clips.Segment
	Total   int
	Percent float64
}

// ErrExportFailed matches any *ExportFailedError via errors.Is.
var ErrExportFailed = errors.New("export failed")

// ExportFailedError aborts an export. Files written before the failure are
// left in place.
type ExportFailedError struct {
	// Segment is the segment being exported when the failure happened; zero
	// when the export failed before the first segment.
	Segment clips.Segment
	// Completed lists the files written before the failure.
	Completed []ExportedFile
	Cause     error
}

func (e *ExportFailedError) Error() string {
	if e.Segment.Number == 0 {
		return fmt.Sprintf("export failed: %v", e.Cause)
	}
	return fmt.Sprintf("export failed at segment %d: %v", e.Segment.Number, e.Cause)
}

func (e *ExportFailedError) Unwrap() error {
	return e.Cause
}

func (e *ExportFailedError) Is(target error) bool {
	return target == ErrExportFailed
}
