// Package session holds the editing state of the one video being cut:
// its source, frame rate, duration and cut points.
package session

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/cutdeck/internal/clips"
	"github.com/kikiluvv/cutdeck/internal/ffmpeg"
	"github.com/kikiluvv/cutdeck/internal/logging"
	"github.com/kikiluvv/cutdeck/internal/pipeline"
)

// State is the session state
type State int

const (
	NoVideoLoaded State = iota
	VideoLoaded
	Exporting
)

func (s State) String() string {
	switch s {
	case VideoLoaded:
		return "video loaded"
	case Exporting:
		return "exporting"
	default:
		return "no video loaded"
	}
}

// MetadataService probes a source video.
type MetadataService interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
}

// DurationService measures the duration of a video by decoding it. It is
// used at export time when probing did not report a duration.
type DurationService interface {
	DecodeDuration(ctx context.Context, path string) (time.Duration, error)
}

// Exporter writes planned segments to disk.
type Exporter interface {
	Execute(ctx context.Context, source string, segments []clips.Segment, outputDir string, progress func(pipeline.ProgressEvent)) (*pipeline.ExportReport, error)
}

// Options configures a session
type Options struct {
	DefaultFPS        float64
	MinSegmentSeconds float64
	OutputDir         string
}

// Info is a read-only view of the session.
type Info struct {
	ID        string
	Path      string
	FPS       float64
	FPSProbed bool // false when FPS is the default
	Duration  time.Duration
	Cuts      []clips.CutPoint
	State     State
}

// EditSession owns the loaded video and its cut ledger. All methods are safe
// for concurrent use; at most one export runs at a time.
type EditSession struct {
	mu sync.Mutex

	logger   zerolog.Logger
	base     zerolog.Logger
	probe    MetadataService
	exporter Exporter
	opts     Options

	id        string
	path      string
	fps       float64
	fpsProbed bool
	duration  time.Duration
	ledger    *clips.Ledger
	exporting bool
}

// New creates a session with no video loaded
func New(logger zerolog.Logger, probe MetadataService, exporter Exporter, opts Options) *EditSession {
	if opts.DefaultFPS <= 0 {
		opts.DefaultFPS = clips.DefaultFPS
	}
	if opts.MinSegmentSeconds <= 0 {
		opts.MinSegmentSeconds = clips.MinSegmentSeconds
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "output"
	}

	base := logger.With().Str("component", "session").Logger()
	return &EditSession{
		logger:   base,
		base:     base,
		probe:    probe,
		exporter: exporter,
		opts:     opts,
		fps:      opts.DefaultFPS,
		ledger:   clips.NewLedger(),
	}
}

// Load makes path the active video. Previous cuts are discarded. A failed
// probe is not an error: the default frame rate is used and the duration
// stays unknown until SetDuration reports it. The video cannot be switched
// while an export is running.
func (s *EditSession) Load(ctx context.Context, path string) (Info, error) {
	if strings.TrimSpace(path) == "" {
		return Info{}, &ValidationError{Field: "video path", Input: path, Reason: "must not be empty"}
	}

	if s.State() == Exporting {
		return Info{}, ErrExportInProgress
	}

	var meta *ffmpeg.VideoInfo
	var probeErr error
	if s.probe != nil {
		meta, probeErr = s.probe.ProbeVideo(ctx, path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// an export may have started while probing
	if s.exporting {
		return Info{}, ErrExportInProgress
	}

	s.id = uuid.NewString()
	s.path = path
	s.ledger.Clear()
	s.fps = s.opts.DefaultFPS
	s.fpsProbed = false
	s.duration = 0
	s.logger = logging.WithSession(s.base, s.id, path)

	switch {
	case probeErr != nil:
		s.logger.Warn().Err(probeErr).Float64("fps", s.fps).Msg("probe failed, using default frame rate")
	case meta != nil:
		if validFPS(meta.FPS) {
			s.fps = meta.FPS
			s.fpsProbed = true
		} else {
			s.logger.Warn().Float64("probed_fps", meta.FPS).Float64("fps", s.fps).Msg("invalid frame rate, using default")
		}
		s.duration = max(meta.Duration, 0)
	}

	s.logger.Info().
		Float64("fps", s.fps).
		Dur("duration", s.duration).
		Msg("video loaded")

	return s.infoLocked(), nil
}

// SetDuration records the duration reported by the player. It only fills
// in a duration the probe could not provide.
func (s *EditSession) SetDuration(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" || s.duration > 0 || d <= 0 {
		return
	}
	s.duration = d
	s.logger.Debug().Dur("duration", d).Msg("duration from player")
}

// MeasureDuration decodes the loaded video to find its duration when the
// probe reported none, and keeps the result for planning.
func (s *EditSession) MeasureDuration(ctx context.Context) (time.Duration, error) {
	s.mu.Lock()
	path, known := s.path, s.duration
	s.mu.Unlock()

	switch {
	case path == "":
		return 0, ErrNoActiveSession
	case known > 0:
		return known, nil
	}

	m, ok := s.probe.(DurationService)
	if !ok {
		return 0, &clips.InvalidDurationError{}
	}
	d, err := m.DecodeDuration(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", &clips.InvalidDurationError{}, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != path {
		return 0, fmt.Errorf("video changed while measuring %s", path)
	}
	if s.duration <= 0 {
		s.duration = d
		s.logger.Info().Dur("duration", d).Msg("duration measured")
	}
	return s.duration, nil
}

// Mark records a cut at seconds into the loaded video.
func (s *EditSession) Mark(seconds float64) (clips.CutPoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return clips.CutPoint{}, ErrNoActiveSession
	}

	cut, err := s.ledger.Mark(seconds, s.fps)
	if err != nil {
		return clips.CutPoint{}, &ValidationError{Field: "cut time", Input: fmt.Sprint(seconds), Reason: err.Error()}
	}
	s.logger.Debug().
		Float64("time", cut.Time).
		Int("frame", cut.Frame).
		Floats64("cuts", s.ledger.Times()).
		Msg("cut marked")

	return cut, nil
}

// ClearCuts removes all cut points of the loaded video
func (s *EditSession) ClearCuts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Clear()
}

// FrameAt returns the frame index shown at seconds.
func (s *EditSession) FrameAt(seconds float64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clips.FrameAt(seconds, s.fps)
}

// FrameToMs converts a typed frame number to a seek position in
// milliseconds.
func (s *EditSession) FrameToMs(input string) (int64, error) {
	frame, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil {
		return 0, &ValidationError{Field: "frame number", Input: input, Reason: "not a whole number"}
	}
	if frame < 0 {
		return 0, &ValidationError{Field: "frame number", Input: input, Reason: "must not be negative"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return 0, ErrNoActiveSession
	}

	seconds := float64(frame) / s.fps
	return int64(seconds * 1000), nil
}

// Plan returns the segments an export would write right now.
func (s *EditSession) Plan() ([]clips.Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil, ErrNoActiveSession
	}
	return clips.PlanWithMin(s.ledger.Snapshot(), s.duration.Seconds(), s.opts.MinSegmentSeconds)
}

// Export plans the segments and writes them, blocking until done. The cut
// points are left as they are.
func (s *EditSession) Export(ctx context.Context, progress func(pipeline.ProgressEvent)) (*pipeline.ExportReport, error) {
	job, err := s.beginExport()
	if err != nil {
		return nil, err
	}
	defer s.endExport()

	return job.run(ctx, progress)
}

// ExportAsync starts the export on its own goroutine and calls done with the
// result. Errors that prevent the export from starting are returned directly
// and done is not called.
func (s *EditSession) ExportAsync(ctx context.Context, progress func(pipeline.ProgressEvent), done func(*pipeline.ExportReport, error)) error {
	job, err := s.beginExport()
	if err != nil {
		return err
	}

	go func() {
		report, err := job.run(ctx, progress)
		s.endExport()
		if done != nil {
			done(report, err)
		}
	}()
	return nil
}

// Info returns a snapshot of the session
func (s *EditSession) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.infoLocked()
}

// State returns the current session state
func (s *EditSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

type exportJob struct {
	logger    zerolog.Logger
	exporter  Exporter
	source    string
	outputDir string

	// with measure set, segments are planned once the duration is decoded
	segments   []clips.Segment
	cuts       []clips.CutPoint
	minSeconds float64
	measure    DurationService
	onDuration func(time.Duration)
}

func (j *exportJob) run(ctx context.Context, progress func(pipeline.ProgressEvent)) (*pipeline.ExportReport, error) {
	if j.measure != nil {
		j.logger.Info().Msg("duration unknown, decoding to measure it")
		d, err := j.measure.DecodeDuration(ctx, j.source)
		if err != nil {
			j.logger.Error().Err(err).Msg("could not measure duration")
			return nil, fmt.Errorf("%w: %w", &clips.InvalidDurationError{}, err)
		}
		j.onDuration(d)

		j.segments, err = clips.PlanWithMin(j.cuts, d.Seconds(), j.minSeconds)
		if err != nil {
			return nil, err
		}
		j.logger.Info().Dur("duration", d).Int("segments", len(j.segments)).Msg("export planned")
	}

	report, err := j.exporter.Execute(ctx, j.source, j.segments, j.outputDir, progress)
	if err != nil {
		j.logger.Error().Err(err).Msg("export aborted")
		return report, err
	}
	return report, nil
}

func (s *EditSession) beginExport() (*exportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil, ErrNoActiveSession
	}
	if s.exporting {
		return nil, ErrExportInProgress
	}
	if s.exporter == nil {
		return nil, fmt.Errorf("no exporter configured")
	}

	job := &exportJob{
		logger:     s.logger,
		exporter:   s.exporter,
		source:     s.path,
		outputDir:  s.opts.OutputDir,
		cuts:       s.ledger.Snapshot(),
		minSeconds: s.opts.MinSegmentSeconds,
		onDuration: s.SetDuration,
	}

	measure, canMeasure := s.probe.(DurationService)
	if s.duration > 0 || !canMeasure {
		segments, err := clips.PlanWithMin(job.cuts, s.duration.Seconds(), s.opts.MinSegmentSeconds)
		if err != nil {
			return nil, err
		}
		job.segments = segments
	} else {
		job.measure = measure
	}

	s.exporting = true
	s.logger.Info().
		Int("cuts", s.ledger.Len()).
		Int("segments", len(job.segments)).
		Msg("export requested")

	return job, nil
}

func (s *EditSession) endExport() {
	s.mu.Lock()
	s.exporting = false
	s.mu.Unlock()
}

func (s *EditSession) infoLocked() Info {
	return Info{
		ID:        s.id,
		Path:      s.path,
		FPS:       s.fps,
		FPSProbed: s.fpsProbed,
		Duration:  s.duration,
		Cuts:      s.ledger.Snapshot(),
		State:     s.stateLocked(),
	}
}

func (s *EditSession) stateLocked() State {
	switch {
	case s.exporting:
		return Exporting
	case s.path == "":
		return NoVideoLoaded
	default:
		return VideoLoaded
	}
}

func validFPS(fps float64) bool {
	return fps > 0 && !math.IsNaN(fps) && !math.IsInf(fps, 0)
}
