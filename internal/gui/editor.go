package gui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/cutdeck/internal/library"
	"github.com/kikiluvv/cutdeck/internal/pipeline"
	"github.com/kikiluvv/cutdeck/internal/playback"
	"github.com/kikiluvv/cutdeck/internal/session"
	"github.com/kikiluvv/cutdeck/pkg/util"
)

// FrameSource renders the frame at a position of a video as PNG.
type FrameSource interface {
	ExtractFrame(ctx context.Context, input string, at time.Duration, width int) ([]byte, error)
}

// Deps are the collaborators of the editor window
type Deps struct {
	Logger       zerolog.Logger
	Session      *session.EditSession
	Player       *playback.Transport
	Library      *library.Scanner
	Frames       FrameSource // optional
	PollInterval time.Duration
}

const previewWidth = 640

type editor struct {
	deps   Deps
	logger zerolog.Logger
	window fyne.Window

	videos []library.Video

	list        *widget.List
	preview     *canvas.Image
	slider      *widget.Slider
	info        *widget.Label
	cutsLabel   *widget.Label
	status      *widget.Label
	frameEntry  *widget.Entry
	progress    *widget.ProgressBar
	exportBtn   *widget.Button
	syncSlider  bool
	previewReqs chan int64
}

// RunGUI opens the editor window and blocks until it is closed.
func RunGUI(ctx context.Context, deps Deps) {
	if deps.PollInterval <= 0 {
		deps.PollInterval = 200 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	myApp := app.NewWithID("cutdeck")
	w := myApp.NewWindow("cutdeck")
	w.Resize(fyne.NewSize(1280, 720))

	ed := &editor{
		deps:        deps,
		logger:      deps.Logger,
		window:      w,
		previewReqs: make(chan int64, 1),
	}
	w.SetContent(ed.build())

	ed.reloadVideos()
	if err := deps.Library.Watch(ctx, deps.Logger, 250*time.Millisecond, func() {
		fyne.Do(ed.reloadVideos)
	}); err != nil {
		ed.logger.Warn().Err(err).Msg("library watch disabled")
	}

	deps.Player.OnDurationChanged(func(ms int64) {
		fyne.Do(func() { ed.durationChanged(ms) })
	})
	deps.Player.OnPositionChanged(func(ms int64) {
		fyne.Do(func() { ed.positionChanged(ms) })
	})

	go ed.pollLoop(ctx)
	go ed.previewLoop(ctx)

	w.ShowAndRun()
}

func (ed *editor) build() fyne.CanvasObject {
	ed.list = widget.NewList(
		func() int { return len(ed.videos) },
		func() fyne.CanvasObject { return widget.NewLabel("video.mp4") },
		func(id widget.ListItemID, obj fyne.CanvasObject) {
			obj.(*widget.Label).SetText(ed.videos[id].Name)
		},
	)
	ed.list.OnSelected = func(id widget.ListItemID) {
		if ed.deps.Session.State() == session.Exporting {
			ed.list.UnselectAll()
			ed.showError(session.ErrExportInProgress)
			return
		}
		if id < len(ed.videos) {
			ed.loadVideo(ed.videos[id])
		}
	}

	ed.preview = canvas.NewImageFromResource(nil)
	ed.preview.FillMode = canvas.ImageFillContain
	ed.preview.SetMinSize(fyne.NewSize(previewWidth, 360))

	ed.slider = widget.NewSlider(0, 1)
	ed.slider.Step = 1
	ed.slider.OnChanged = func(v float64) {
		if ed.syncSlider {
			return
		}
		ed.deps.Player.Seek(int64(v))
	}

	playBtn := widget.NewButtonWithIcon("Play", theme.MediaPlayIcon(), func() {
		ed.deps.Player.Play()
	})
	pauseBtn := widget.NewButtonWithIcon("Pause", theme.MediaPauseIcon(), func() {
		ed.deps.Player.Pause()
		ed.requestPreview(ed.deps.Player.PositionMs())
	})

	ed.info = widget.NewLabel("Time: 00:00:00 | Frame: 0")
	ed.info.TextStyle = fyne.TextStyle{Monospace: true}

	ed.frameEntry = widget.NewEntry()
	ed.frameEntry.SetPlaceHolder("Enter frame number")
	ed.frameEntry.OnSubmitted = func(string) { ed.goToFrame() }
	goBtn := widget.NewButton("Go to Frame", ed.goToFrame)

	markBtn := widget.NewButtonWithIcon("Mark Cut", theme.ContentCutIcon(), ed.markCut)
	ed.exportBtn = widget.NewButtonWithIcon("Export Segments", theme.DocumentSaveIcon(), ed.exportSegments)
	ed.exportBtn.Importance = widget.HighImportance
	clearBtn := widget.NewButtonWithIcon("Clear Cuts", theme.ContentClearIcon(), func() {
		ed.deps.Session.ClearCuts()
		ed.refreshCuts()
	})

	ed.cutsLabel = widget.NewLabel("Cuts: none")
	ed.cutsLabel.Wrapping = fyne.TextWrapWord
	ed.status = widget.NewLabel("No video loaded")
	ed.progress = widget.NewProgressBar()
	ed.progress.Hide()

	left := container.NewBorder(widget.NewLabel("Available Videos:"), nil, nil, nil, ed.list)

	right := container.NewBorder(
		nil,
		container.NewVBox(
			ed.slider,
			container.NewHBox(playBtn, pauseBtn, layout.NewSpacer(), ed.info),
			container.NewBorder(nil, nil, nil, goBtn, ed.frameEntry),
			container.NewHBox(markBtn, clearBtn, ed.exportBtn),
			ed.cutsLabel,
			ed.progress,
			ed.status,
		),
		nil, nil,
		ed.preview,
	)

	split := container.NewHSplit(left, right)
	split.Offset = 0.25
	return split
}

func (ed *editor) reloadVideos() {
	videos, err := ed.deps.Library.Scan()
	if err != nil {
		ed.logger.Error().Err(err).Msg("failed to list videos")
		ed.status.SetText("Cannot list videos: " + err.Error())
		return
	}
	ed.videos = videos
	ed.list.Refresh()
}

func (ed *editor) loadVideo(v library.Video) {
	ed.status.SetText("Loading " + v.Name + "...")

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		info, err := ed.deps.Session.Load(ctx, v.Path)
		if err == nil && info.Duration <= 0 {
			fyne.Do(func() { ed.status.SetText("Measuring " + v.Name + "...") })
			mctx, mcancel := context.WithTimeout(context.Background(), 10*time.Minute)
			if d, merr := ed.deps.Session.MeasureDuration(mctx); merr != nil {
				ed.logger.Warn().Err(merr).Str("video", v.Name).Msg("duration unknown")
			} else {
				info.Duration = d
			}
			mcancel()
		}

		fyne.Do(func() {
			if err != nil {
				ed.showError(err)
				return
			}
			if ed.deps.Session.Info().ID != info.ID {
				// another video was selected meanwhile
				return
			}
			ed.deps.Player.Open(info.Path, info.Duration)
			ed.deps.Player.Play()

			msg := fmt.Sprintf("%s | %.3f fps | %s", v.Name, info.FPS, util.FormatClock(info.Duration.Seconds()))
			if !info.FPSProbed {
				msg += " (frame rate unknown, assuming default)"
			}
			ed.status.SetText(msg)
			ed.refreshCuts()
			ed.requestPreview(0)
		})
	}()
}

func (ed *editor) durationChanged(ms int64) {
	ed.syncSlider = true
	ed.slider.Max = float64(max(ms, 1))
	ed.slider.SetValue(0)
	ed.syncSlider = false
	ed.deps.Session.SetDuration(time.Duration(ms) * time.Millisecond)
}

func (ed *editor) positionChanged(ms int64) {
	ed.syncSlider = true
	ed.slider.SetValue(float64(ms))
	ed.syncSlider = false

	seconds := float64(ms) / 1000
	frame := ed.deps.Session.FrameAt(seconds)
	ed.info.SetText(fmt.Sprintf("Time: %s | Frame: %d", util.FormatClock(seconds), frame))

	if ed.deps.Player.State() != playback.Playing {
		ed.requestPreview(ms)
	}
}

func (ed *editor) goToFrame() {
	ms, err := ed.deps.Session.FrameToMs(ed.frameEntry.Text)
	if err != nil {
		ed.showError(err)
		return
	}
	ed.deps.Player.Seek(ms)
}

func (ed *editor) markCut() {
	seconds := float64(ed.deps.Player.PositionMs()) / 1000
	cut, err := ed.deps.Session.Mark(seconds)
	if err != nil {
		ed.showError(err)
		return
	}
	ed.status.SetText(fmt.Sprintf("Cut marked at %.3fs (frame %d)", cut.Time, cut.Frame))
	ed.refreshCuts()
}

func (ed *editor) refreshCuts() {
	cuts := ed.deps.Session.Info().Cuts
	if len(cuts) == 0 {
		ed.cutsLabel.SetText("Cuts: none")
		return
	}
	parts := make([]string, len(cuts))
	for i, c := range cuts {
		parts[i] = fmt.Sprintf("%.3fs (f%d)", c.Time, c.Frame)
	}
	ed.cutsLabel.SetText("Cuts: " + strings.Join(parts, ", "))
}

func (ed *editor) exportSegments() {
	info := ed.deps.Session.Info()

	// the player lets go of the file while it is being read for export
	ed.deps.Player.Stop()
	ed.deps.Player.Release()

	// the session may have measured the duration during the export
	reopen := func() {
		now := ed.deps.Session.Info()
		if now.Path == "" || now.Path != info.Path {
			return
		}
		ed.deps.Player.Open(now.Path, now.Duration)
	}

	ed.progress.SetValue(0)
	ed.progress.Show()
	ed.exportBtn.Disable()
	ed.status.SetText("Exporting...")

	err := ed.deps.Session.ExportAsync(context.Background(),
		func(ev pipeline.ProgressEvent) {
			fyne.Do(func() {
				done := float64(ev.Segment.Number-1) + ev.Percent/100
				ed.progress.SetValue(done / float64(max(ev.Total, 1)))
				ed.status.SetText(fmt.Sprintf("Exporting segment %d of %d", ev.Segment.Number, ev.Total))
			})
		},
		func(report *pipeline.ExportReport, err error) {
			fyne.Do(func() {
				ed.progress.Hide()
				ed.exportBtn.Enable()
				reopen()
				if err != nil {
					ed.showError(err)
					return
				}
				msg := fmt.Sprintf("Exported %d segment(s) to %s in %s",
					len(report.Outputs), report.OutputDir, report.Elapsed.Round(time.Millisecond))
				ed.status.SetText(msg)
				dialog.ShowInformation("Export complete", msg, ed.window)
			})
		},
	)
	if err != nil {
		ed.progress.Hide()
		ed.exportBtn.Enable()
		reopen()
		ed.showError(err)
	}
}

func (ed *editor) showError(err error) {
	ed.logger.Warn().Err(err).Msg("action failed")

	var ve *session.ValidationError
	switch {
	case errors.Is(err, session.ErrNoActiveSession):
		ed.status.SetText("Select a video first")
	case errors.Is(err, session.ErrExportInProgress):
		ed.status.SetText("Wait for the export to finish")
	case errors.As(err, &ve):
		ed.status.SetText(ve.Error())
	default:
		ed.status.SetText("Error: " + err.Error())
		dialog.ShowError(err, ed.window)
	}
}

func (ed *editor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(ed.deps.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ed.deps.Player.Poll()
		}
	}
}

// requestPreview queues a still for ms, replacing any request not yet served.
func (ed *editor) requestPreview(ms int64) {
	if ed.deps.Frames == nil {
		return
	}
	select {
	case <-ed.previewReqs:
	default:
	}
	select {
	case ed.previewReqs <- ms:
	default:
	}
}

func (ed *editor) previewLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ms := <-ed.previewReqs:
			path := ed.deps.Player.Path()
			if path == "" {
				continue
			}
			fctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			data, err := ed.deps.Frames.ExtractFrame(fctx, path, time.Duration(ms)*time.Millisecond, previewWidth)
			cancel()
			if err != nil {
				ed.logger.Debug().Err(err).Int64("ms", ms).Msg("preview unavailable")
				continue
			}
			res := fyne.NewStaticResource(fmt.Sprintf("frame-%d.png", ms), data)
			fyne.Do(func() {
				ed.preview.Resource = res
				ed.preview.Refresh()
			})
		}
	}
}
