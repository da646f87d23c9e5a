package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/cutdeck/pkg/util"
)

// ExtractFrame decodes the frame shown at position and returns it as PNG,
// scaled to width when width is positive.
func (e *Executor) ExtractFrame(ctx context.Context, input string, at time.Duration, width int) ([]byte, error) {
	if at < 0 {
		at = 0
	}

	args := []string{
		"-ss", util.FormatDuration(at),
		"-i", input,
		"-frames:v", "1",
		"-an",
	}
	if vf := NewFilterBuilder().ScaleWidth(width).Build(); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-f", "image2pipe", "-c:v", "png", "pipe:1")

	data, err := e.Capture(ctx, args...)
	if err != nil {
		return nil, fmt.Errorf("frame extraction at %v failed: %w", at, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no frame at %v", at)
	}
	return data, nil
}
