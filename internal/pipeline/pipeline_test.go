package pipeline

import (
	"context"
	"errors"
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
)

type call struct {
	input string
	opts  ffmpeg.RangeOptions
}

// fakeService writes a small file per call and can fail on a given call.
type fakeService struct {
	mu     sync.Mutex
	calls  []call
	failAt int // 1-based call index, 0 never fails
	err    error
	active int
	maxPar int
}

func (f *fakeService) ExportRange(ctx context.Context, input string, opts ffmpeg.RangeOptions) error {
	f.mu.Lock()
	f.calls = append(f.calls, call{input: input, opts: opts})
	n := len(f.calls)
	f.active++
	f.maxPar = max(f.maxPar, f.active)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.failAt == n {
		return f.err
	}
	if opts.ProgressFunc != nil {
		opts.ProgressFunc(&ffmpeg.Progress{Percentage: 100, Done: true})
	}
	return os.WriteFile(opts.Output, []byte("segment"), 0644)
}

func testSegments(t *testing.T) []clips.Segment {
	t.Helper()
	l := clips.NewLedger()
	l.Mark(3.0, 30)
	l.Mark(3.05, 30)
	segs, err := clips.Plan(l.Snapshot(), 10)
	require.NoError(t, err)
	return segs
}

func TestExecuteWritesNumberedFiles(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "output")
	svc := &fakeService{}
	x := New(zerolog.Nop(), &Config{
		Encoding: ffmpeg.EncodingOptions{VideoCodec: "libx264", Preset: "ultrafast"},
	}, svc)

	var events []ProgressEvent
	report, err := x.Execute(context.Background(), "/videos/holiday.mov", testSegments(t), outDir, func(e ProgressEvent) {
		events = append(events, e)
	})
	require.NoError(t, err)

	require.Len(t, report.Outputs, 2)
	assert.Equal(t, filepath.Join(outDir, "holiday_1.mp4"), report.Outputs[0].Path)
	assert.Equal(t, filepath.Join(outDir, "holiday_2.mp4"), report.Outputs[1].Path)
	assert.Equal(t, int64(len("segment")), report.Outputs[0].Size)
	assert.Equal(t, int64(2*len("segment")), report.TotalSize())
	assert.FileExists(t, report.Outputs[1].Path)

	require.Len(t, svc.calls, 2)
	first := svc.calls[0].opts
	assert.Equal(t, "/videos/holiday.mov", svc.calls[0].input)
	assert.Equal(t, time.Duration(0), first.Start)
	assert.Equal(t, 3*time.Second, first.End)
	assert.Equal(t, "ultrafast", first.Encoding.Preset)
	assert.False(t, first.Encoding.KeepAudio)

	second := svc.calls[1].opts
	assert.Equal(t, 3050*time.Millisecond, second.Start)
	assert.Equal(t, 10*time.Second, second.End)

	require.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Segment.Number)
	assert.Equal(t, 2, events[1].Total)
	assert.Equal(t, 1, svc.maxPar, "segments must be exported one at a time")
}

func TestExecuteCreatesOutputDir(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "nested", "output")
	x := New(zerolog.Nop(), nil, &fakeService{})

	_, err := x.Execute(context.Background(), "clip.mp4", []clips.Segment{{Number: 1, Start: 0, End: 2}}, outDir, nil)
	require.NoError(t, err)
	assert.DirExists(t, outDir)
	assert.FileExists(t, filepath.Join(outDir, "clip_1.mp4"))
}

func TestExecuteAbortsOnFailure(t *testing.T) {
	outDir := t.TempDir()
	cause := errors.New("encoder exploded")
	svc := &fakeService{failAt: 2, err: cause}
	x := New(zerolog.Nop(), nil, svc)

	segs := []clips.Segment{
		{Number: 1, Start: 0, End: 1},
		{Number: 2, Start: 1, End: 2},
		{Number: 3, Start: 2, End: 3},
	}
	report, err := x.Execute(context.Background(), "a.mp4", segs, outDir, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrExportFailed))
	assert.True(t, errors.Is(err, cause))

	var efe *ExportFailedError
	require.ErrorAs(t, err, &efe)
	assert.Equal(t, 2, efe.Segment.Number)
	require.Len(t, efe.Completed, 1)
	assert.Contains(t, efe.Error(), "segment 2")

	// no further calls after the failure, and the partial output stays
	assert.Len(t, svc.calls, 2)
	assert.Len(t, report.Outputs, 1)
	assert.FileExists(t, filepath.Join(outDir, "a_1.mp4"))
	assert.NoFileExists(t, filepath.Join(outDir, "a_3.mp4"))
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := &fakeService{}
	x := New(zerolog.Nop(), nil, svc)

	_, err := x.Execute(ctx, "a.mp4", []clips.Segment{{Number: 1, Start: 0, End: 1}}, t.TempDir(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, svc.calls)
}

func TestExecuteOutputDirIsAFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "output")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))

	x := New(zerolog.Nop(), nil, &fakeService{})
	_, err := x.Execute(context.Background(), "a.mp4", []clips.Segment{{Number: 1, Start: 0, End: 1}}, blocker, nil)

	var efe *ExportFailedError
	require.ErrorAs(t, err, &efe)
	assert.Equal(t, 0, efe.Segment.Number)
}

func TestExecuteEmptySource(t *testing.T) {
	x := New(zerolog.Nop(), nil, &fakeService{})
	_, err := x.Execute(context.Background(), "", nil, t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrExportFailed)
}

func TestExecuteNoSegments(t *testing.T) {
	svc := &fakeService{}
	x := New(zerolog.Nop(), nil, svc)

	report, err := x.Execute(context.Background(), "a.mp4", nil, t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, report.Outputs)
	assert.Empty(t, svc.calls)
}
