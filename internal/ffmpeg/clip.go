package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/kikiluvv/cutdeck/pkg/util"
)

// RangeOptions defines a range export
type RangeOptions struct {
	Start        time.Duration
	End          time.Duration
	Output       string
	Encoding     EncodingOptions
	ProgressFunc ProgressFunc
}

// ExportRange re-encodes [Start, End) of input into Output.
func (e *Executor) ExportRange(ctx context.Context, input string, opts RangeOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid range duration: end must be after start")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	codec := opts.Encoding.VideoCodec
	if codec == "" {
		codec = DefaultVideoCodec
	}
	preset := opts.Encoding.Preset
	if preset == "" {
		preset = DefaultPreset
	}

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Str("codec", codec).
		Str("preset", preset).
		Msg("exporting range")

	args := buildRangeArgs(input, opts.Start, duration, opts.Output, codec, preset, opts.Encoding.KeepAudio)

	runOpts := RunOptions{
		Args: args,
		ProgressHandler: func(p *Progress) {
			if opts.ProgressFunc == nil {
				return
			}
			if p.Done {
				p.Percentage = 100
			} else {
				p.Percentage = min(100, 100*p.OutTime.Seconds()/duration.Seconds())
			}
			opts.ProgressFunc(p)
		},
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("range export")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("range export failed: %w", err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("range export complete")
	return nil
}

// buildRangeArgs seeks on the input side and re-encodes, so the cut lands on
// the requested time instead of the nearest keyframe.
func buildRangeArgs(input string, start, duration time.Duration, output, codec, preset string, keepAudio bool) []string {
	args := []string{
		"-ss", util.FormatDuration(start),
		"-i", input,
		"-t", util.FormatDuration(duration),
		"-map", "0:v:0",
		"-c:v", codec,
		"-preset", preset,
		"-pix_fmt", DefaultPixFmt,
	}

	if keepAudio {
		args = append(args, "-map", "0:a?", "-c:a", "copy")
	} else {
		args = append(args, "-an")
	}

	return append(args, "-movflags", "+faststart", output)
}
