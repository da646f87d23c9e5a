package session

import (
	"context"
	"fmt"

	"github.com/kikiluvv/cutdeck/internal/clips"
	"github.com/kikiluvv/cutdeck/internal/pipeline"
)

// Event is a user action delivered to the session by the UI layer.
type Event interface {
	event()
}

// VideoSelected loads a new source video, discarding the current cuts.
type VideoSelected struct {
	Path string
}

// MarkRequested marks a cut at the current playback position.
type MarkRequested struct {
	Seconds float64
}

// ExportRequested exports the planned segments.
type ExportRequested struct {
	Progress func(pipeline.ProgressEvent)
}

// GoToFrameRequested asks where to seek for a typed frame number.
type GoToFrameRequested struct {
	Input string
}

func (VideoSelected) event()      {}
func (MarkRequested) event()      {}
func (ExportRequested) event()    {}
func (GoToFrameRequested) event() {}

// Result carries what an event produced. Only the field matching the event
// is set.
type Result struct {
	Info   *Info
	Cut    *clips.CutPoint
	Report *pipeline.ExportReport
	SeekMs int64
}

// Handle dispatches ev to the matching session operation.
func (s *EditSession) Handle(ctx context.Context, ev Event) (Result, error) {
	switch ev := ev.(type) {
	case VideoSelected:
		info, err := s.Load(ctx, ev.Path)
		if err != nil {
			return Result{}, err
		}
		return Result{Info: &info}, nil
	case MarkRequested:
		cut, err := s.Mark(ev.Seconds)
		if err != nil {
			return Result{}, err
		}
		return Result{Cut: &cut}, nil
	case ExportRequested:
		report, err := s.Export(ctx, ev.Progress)
		return Result{Report: report}, err
	case GoToFrameRequested:
		ms, err := s.FrameToMs(ev.Input)
		if err != nil {
			return Result{}, err
		}
		return Result{SeekMs: ms}, nil
	default:
		return Result{}, fmt.Errorf("unknown event %T", ev)
	}
}
