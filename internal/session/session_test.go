package session

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/cutdeck/internal/clips"
	"github.com/kikiluvv/cutdeck/internal/ffmpeg"
	"github.com/kikiluvv/cutdeck/internal/pipeline"
)

type fakeProbe struct {
	infos map[string]*ffmpeg.VideoInfo
}

func (f *fakeProbe) ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	info, ok := f.infos[path]
	if !ok {
		return nil, errors.New("ffprobe failed: exit status 1")
	}
	return info, nil
}

// recordingService stands in for ffmpeg and writes placeholder files.
type recordingService struct {
	mu      sync.Mutex
	outputs []string
	release chan struct{} // when set, each export waits for it
	fail    error
}

func (r *recordingService) ExportRange(ctx context.Context, input string, opts ffmpeg.RangeOptions) error {
	if r.release != nil {
		<-r.release
	}
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	r.outputs = append(r.outputs, filepath.Base(opts.Output))
	r.mu.Unlock()
	return os.WriteFile(opts.Output, []byte("x"), 0644)
}

func newTestSession(t *testing.T, svc *recordingService) (*EditSession, string) {
	t.Helper()
	probe := &fakeProbe{infos: map[string]*ffmpeg.VideoInfo{
		"a.mp4":   {FilePath: "a.mp4", Duration: 10 * time.Second, FPS: 25},
		"b.mp4":   {FilePath: "b.mp4", Duration: 4 * time.Second, FPS: 60},
		"vfr.mp4": {FilePath: "vfr.mp4", Duration: 5 * time.Second, FPS: 0},
	}}
	outDir := filepath.Join(t.TempDir(), "output")
	exporter := pipeline.New(zerolog.Nop(), nil, svc)
	s := New(zerolog.Nop(), probe, exporter, Options{OutputDir: outDir})
	return s, outDir
}

func TestNewSessionHasNoVideo(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	assert.Equal(t, NoVideoLoaded, s.State())

	_, err := s.Mark(1)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = s.Export(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = s.Plan()
	assert.ErrorIs(t, err, ErrNoActiveSession)
}

func TestLoadUsesProbedMetadata(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})

	info, err := s.Load(context.Background(), "a.mp4")
	require.NoError(t, err)

	assert.Equal(t, VideoLoaded, info.State)
	assert.Equal(t, 25.0, info.FPS)
	assert.True(t, info.FPSProbed)
	assert.Equal(t, 10*time.Second, info.Duration)
	assert.NotEmpty(t, info.ID)
	assert.Empty(t, info.Cuts)
}

func TestLoadFallsBackToDefaultFPS(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})

	info, err := s.Load(context.Background(), "missing.mp4")
	require.NoError(t, err)
	assert.Equal(t, 30.0, info.FPS)
	assert.False(t, info.FPSProbed)
	assert.Zero(t, info.Duration)

	info, err = s.Load(context.Background(), "vfr.mp4")
	require.NoError(t, err)
	assert.Equal(t, 30.0, info.FPS)
	assert.Equal(t, 5*time.Second, info.Duration)

	cut, err := s.Mark(2)
	require.NoError(t, err)
	assert.Equal(t, 60, cut.Frame)
}

func TestLoadRejectsEmptyPath(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "  ")

	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, NoVideoLoaded, s.State())
}

func TestSwitchingVideosDiscardsCuts(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	ctx := context.Background()

	first, err := s.Load(ctx, "a.mp4")
	require.NoError(t, err)
	_, err = s.Mark(5)
	require.NoError(t, err)
	assert.Len(t, s.Info().Cuts, 1)

	second, err := s.Load(ctx, "b.mp4")
	require.NoError(t, err)
	assert.Empty(t, second.Cuts)
	assert.Empty(t, s.Info().Cuts)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestMarkUsesSessionFPS(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "b.mp4")
	require.NoError(t, err)

	cut, err := s.Mark(1.5)
	require.NoError(t, err)
	assert.Equal(t, clips.CutPoint{Time: 1.5, Frame: 90}, cut)
	assert.Equal(t, 90, s.FrameAt(1.5))
}

func TestMarkRejectsNonFiniteTime(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "a.mp4")
	require.NoError(t, err)

	_, err = s.Mark(math.Inf(1))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "cut time", ve.Field)
	assert.Empty(t, s.Info().Cuts)
}

func TestFrameToMs(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})

	_, err := s.FrameToMs("10")
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = s.Load(context.Background(), "a.mp4")
	require.NoError(t, err)

	ms, err := s.FrameToMs(" 50 ")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), ms)

	for _, bad := range []string{"", "abc", "1.5", "-3"} {
		_, err := s.FrameToMs(bad)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "input %q", bad)
		assert.Equal(t, "frame number", ve.Field)
	}
}

func TestExportScenario(t *testing.T) {
	svc := &recordingService{}
	s, outDir := newTestSession(t, svc)
	ctx := context.Background()

	_, err := s.Load(ctx, "a.mp4")
	require.NoError(t, err)
	_, err = s.Mark(3.0)
	require.NoError(t, err)
	_, err = s.Mark(3.05)
	require.NoError(t, err)

	// both marks are kept, dedup is by exact time
	assert.Len(t, s.Info().Cuts, 2)

	report, err := s.Export(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 2)

	assert.Equal(t, []string{"a_1.mp4", "a_2.mp4"}, svc.outputs)
	assert.FileExists(t, filepath.Join(outDir, "a_1.mp4"))
	assert.Equal(t, 3.05, report.Outputs[1].Segment.Start)

	// export leaves the ledger as it was
	assert.Len(t, s.Info().Cuts, 2)
	assert.Equal(t, VideoLoaded, s.State())
}

func TestExportWithoutDuration(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "missing.mp4")
	require.NoError(t, err)

	_, err = s.Export(context.Background(), nil)
	assert.ErrorIs(t, err, clips.ErrInvalidDuration)
	assert.Equal(t, VideoLoaded, s.State())

	// the player can supply the duration later
	s.SetDuration(8 * time.Second)
	segs, err := s.Plan()
	require.NoError(t, err)
	assert.Equal(t, []clips.Segment{{Number: 1, Start: 0, End: 8}}, segs)
}

// measuringProbe reports no duration but can decode one.
type measuringProbe struct {
	fakeProbe
	decoded time.Duration
	err     error
	calls   int
}

func (m *measuringProbe) DecodeDuration(ctx context.Context, path string) (time.Duration, error) {
	m.calls++
	return m.decoded, m.err
}

func TestExportMeasuresMissingDuration(t *testing.T) {
	svc := &recordingService{}
	probe := &measuringProbe{
		fakeProbe: fakeProbe{infos: map[string]*ffmpeg.VideoInfo{
			"live.mp4": {FilePath: "live.mp4", FPS: 25},
		}},
		decoded: 6 * time.Second,
	}
	outDir := filepath.Join(t.TempDir(), "output")
	s := New(zerolog.Nop(), probe, pipeline.New(zerolog.Nop(), nil, svc), Options{OutputDir: outDir})
	ctx := context.Background()

	info, err := s.Load(ctx, "live.mp4")
	require.NoError(t, err)
	assert.Zero(t, info.Duration)
	_, err = s.Mark(2)
	require.NoError(t, err)

	report, err := s.Export(ctx, nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 2)
	assert.Equal(t, 6.0, report.Outputs[1].Segment.End)
	assert.Equal(t, []string{"live_1.mp4", "live_2.mp4"}, svc.outputs)

	// the measured duration is kept for later exports
	assert.Equal(t, 6*time.Second, s.Info().Duration)
	_, err = s.Export(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, probe.calls)
}

func TestExportMeasureFailure(t *testing.T) {
	svc := &recordingService{}
	probe := &measuringProbe{
		fakeProbe: fakeProbe{infos: map[string]*ffmpeg.VideoInfo{}},
		err:       errors.New("ffmpeg execution failed: exit status 1"),
	}
	s := New(zerolog.Nop(), probe, pipeline.New(zerolog.Nop(), nil, svc), Options{OutputDir: t.TempDir()})
	ctx := context.Background()

	_, err := s.Load(ctx, "broken.mp4")
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, s.ExportAsync(ctx, nil, func(r *pipeline.ExportReport, err error) {
		done <- err
	}))
	select {
	case err := <-done:
		assert.ErrorIs(t, err, clips.ErrInvalidDuration)
		assert.ErrorIs(t, err, probe.err)
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
	}
	assert.Empty(t, svc.outputs)
	assert.Equal(t, VideoLoaded, s.State())
}

func TestMeasureDuration(t *testing.T) {
	probe := &measuringProbe{
		fakeProbe: fakeProbe{infos: map[string]*ffmpeg.VideoInfo{
			"a.mp4": {FilePath: "a.mp4", Duration: 10 * time.Second, FPS: 25},
		}},
		decoded: 7 * time.Second,
	}
	s := New(zerolog.Nop(), probe, nil, Options{})
	ctx := context.Background()

	_, err := s.MeasureDuration(ctx)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = s.Load(ctx, "a.mp4")
	require.NoError(t, err)
	d, err := s.MeasureDuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, d)
	assert.Zero(t, probe.calls, "probed duration needs no decoding")

	_, err = s.Load(ctx, "stream.ts")
	require.NoError(t, err)
	d, err = s.MeasureDuration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, d)
	assert.Equal(t, 7*time.Second, s.Info().Duration)
}

func TestMeasureDurationWithoutDecoder(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "missing.mp4")
	require.NoError(t, err)

	_, err = s.MeasureDuration(context.Background())
	assert.ErrorIs(t, err, clips.ErrInvalidDuration)
}

func TestSetDurationDoesNotOverrideProbe(t *testing.T) {
	s, _ := newTestSession(t, &recordingService{})
	_, err := s.Load(context.Background(), "a.mp4")
	require.NoError(t, err)

	s.SetDuration(3 * time.Second)
	assert.Equal(t, 10*time.Second, s.Info().Duration)
}

func TestExportFailureIsReported(t *testing.T) {
	cause := errors.New("disk full")
	s, _ := newTestSession(t, &recordingService{fail: cause})

	_, err := s.Load(context.Background(), "a.mp4")
	require.NoError(t, err)

	_, err = s.Export(context.Background(), nil)
	assert.ErrorIs(t, err, pipeline.ErrExportFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, VideoLoaded, s.State())
}

func TestOnlyOneExportAtATime(t *testing.T) {
	svc := &recordingService{release: make(chan struct{})}
	s, _ := newTestSession(t, svc)
	ctx := context.Background()

	_, err := s.Load(ctx, "b.mp4")
	require.NoError(t, err)
	_, err = s.Mark(2)
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, s.ExportAsync(ctx, nil, func(r *pipeline.ExportReport, err error) {
		done <- err
	}))
	assert.Equal(t, Exporting, s.State())

	_, err = s.Export(ctx, nil)
	assert.ErrorIs(t, err, ErrExportInProgress)
	err = s.ExportAsync(ctx, nil, nil)
	assert.ErrorIs(t, err, ErrExportInProgress)

	close(svc.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
	}

	assert.Equal(t, VideoLoaded, s.State())
	assert.Equal(t, []string{"b_1.mp4", "b_2.mp4"}, svc.outputs)
}

func TestLoadDuringExportKeepsVideo(t *testing.T) {
	svc := &recordingService{release: make(chan struct{})}
	s, _ := newTestSession(t, svc)
	ctx := context.Background()

	_, err := s.Load(ctx, "a.mp4")
	require.NoError(t, err)
	_, err = s.Mark(4)
	require.NoError(t, err)

	done := make(chan error, 1)
	require.NoError(t, s.ExportAsync(ctx, nil, func(r *pipeline.ExportReport, err error) {
		done <- err
	}))

	_, err = s.Load(ctx, "b.mp4")
	assert.ErrorIs(t, err, ErrExportInProgress)
	_, err = s.Handle(ctx, VideoSelected{Path: "b.mp4"})
	assert.ErrorIs(t, err, ErrExportInProgress)

	info := s.Info()
	assert.Equal(t, "a.mp4", info.Path)
	assert.Len(t, info.Cuts, 1)

	close(svc.release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("export did not finish")
	}

	assert.Equal(t, "a.mp4", s.Info().Path)
	_, err = s.Load(ctx, "b.mp4")
	require.NoError(t, err)
	assert.Equal(t, "b.mp4", s.Info().Path)
}

func TestHandleEvents(t *testing.T) {
	svc := &recordingService{}
	s, _ := newTestSession(t, svc)
	ctx := context.Background()

	res, err := s.Handle(ctx, VideoSelected{Path: "a.mp4"})
	require.NoError(t, err)
	require.NotNil(t, res.Info)
	assert.Equal(t, "a.mp4", res.Info.Path)

	res, err = s.Handle(ctx, MarkRequested{Seconds: 4})
	require.NoError(t, err)
	require.NotNil(t, res.Cut)
	assert.Equal(t, 100, res.Cut.Frame)

	res, err = s.Handle(ctx, GoToFrameRequested{Input: "25"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.SeekMs)

	_, err = s.Handle(ctx, GoToFrameRequested{Input: "x"})
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)

	var events []pipeline.ProgressEvent
	res, err = s.Handle(ctx, ExportRequested{Progress: func(e pipeline.ProgressEvent) {
		events = append(events, e)
	}})
	require.NoError(t, err)
	require.NotNil(t, res.Report)
	assert.Len(t, res.Report.Outputs, 2)
	assert.Len(t, events, 0, "placeholder service reports no progress")

	_, err = s.Handle(ctx, nil)
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "no video loaded", NoVideoLoaded.String())
	assert.Equal(t, "video loaded", VideoLoaded.String())
	assert.Equal(t, "exporting", Exporting.String())
}
