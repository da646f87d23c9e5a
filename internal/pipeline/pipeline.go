package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kikiluvv/cutdeck/internal/clips"
	"github.com/kikiluvv/cutdeck/internal/ffmpeg"
	"github.com/kikiluvv/cutdeck/pkg/util"
	"github.com/rs/zerolog"
)

// Exporter writes planned segments of a source video to numbered files
type Exporter struct {
	logger  zerolog.Logger
	config  *Config
	service ExportService
}

// New creates a new exporter
func New(logger zerolog.Logger, cfg *Config, service ExportService) *Exporter {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.OutputExt == "" {
		cfg.OutputExt = "mp4"
	}

	return &Exporter{
		logger:  logger.With().Str("component", "exporter").Logger(),
		config:  cfg,
		service: service,
	}
}

// Execute exports each segment of source into outputDir as
// {base}_{number}.{ext}, one after another. The first failure aborts the
// remaining segments.
func (x *Exporter) Execute(ctx context.Context, source string, segments []clips.Segment, outputDir string, progress func(ProgressEvent)) (*ExportReport, error) {
	if source == "" {
		return nil, &ExportFailedError{Cause: fmt.Errorf("source path cannot be empty")}
	}

	begin := time.Now()
	base, _ := util.SplitName(source)

	x.logger.Info().
		Str("source", source).
		Str("output_dir", outputDir).
		Int("segments", len(segments)).
		Msg("starting export")

	if err := util.EnsureDir(outputDir); err != nil {
		x.logger.Error().Err(err).Str("output_dir", outputDir).Msg("export failed")
		return nil, &ExportFailedError{Cause: fmt.Errorf("failed to create output dir: %w", err)}
	}

	report := &ExportReport{
		Source:    source,
		OutputDir: outputDir,
		Outputs:   make([]ExportedFile, 0, len(segments)),
	}

	for _, seg := range segments {
		if err := ctx.Err(); err != nil {
			return report, x.fail(seg, report, err)
		}

		out := filepath.Join(outputDir, seg.OutputName(base, x.config.OutputExt))
		started := time.Now()

		err := x.service.ExportRange(ctx, source, ffmpeg.RangeOptions{
			Start:        util.Seconds(seg.Start),
			End:          util.Seconds(seg.End),
			Output:       out,
			Encoding:     x.config.Encoding,
			ProgressFunc: segmentProgress(seg, len(segments), progress),
		})
		if err != nil {
			return report, x.fail(seg, report, err)
		}

		file := ExportedFile{
			Segment: seg,
			Path:    out,
			Elapsed: time.Since(started),
		}
		if st, err := os.Stat(out); err == nil {
			file.Size = st.Size()
		}
		report.Outputs = append(report.Outputs, file)

		x.logger.Info().
			Int("segment", seg.Number).
			Str("output", out).
			Dur("elapsed", file.Elapsed).
			Msg("segment exported")
	}

	report.Elapsed = time.Since(begin)

	x.logger.Info().
		Int("files", len(report.Outputs)).
		Dur("elapsed", report.Elapsed).
		Msg("export complete")

	return report, nil
}

func (x *Exporter) fail(seg clips.Segment, report *ExportReport, cause error) error {
	x.logger.Error().
		Err(cause).
		Int("segment", seg.Number).
		Int("completed", len(report.Outputs)).
		Msg("export failed")

	return &ExportFailedError{
		Segment:   seg,
		Completed: report.Outputs,
		Cause:     cause,
	}
}

func segmentProgress(seg clips.Segment, total int, fn func(ProgressEvent)) ffmpeg.ProgressFunc {
	if fn == nil {
		return nil
	}
	return func(p *ffmpeg.Progress) {
		fn(ProgressEvent{Segment: seg, Total: total, Percent: p.Percentage})
	}
}
