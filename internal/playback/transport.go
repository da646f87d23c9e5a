// Package playback keeps the playhead of the loaded video.
//
// Transport is a clock: while playing, the position advances with wall time
// and stops at the end of the media. Rendering is left to the caller, which
// polls the position and draws whatever it needs for it.
package playback

import (
	"sync"
	"time"
)

// State is the transport state
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Transport is a thread-safe media clock.
type Transport struct {
	mu sync.Mutex

	now func() time.Time

	path     string
	duration time.Duration
	state    State

	// position at the moment anchor was taken
	base   time.Duration
	anchor time.Time

	lastReported time.Duration

	onPosition func(ms int64)
	onDuration func(ms int64)
}

// NewTransport creates an empty transport
func NewTransport() *Transport {
	return &Transport{now: time.Now}
}

// OnPositionChanged registers a callback invoked from Poll and Seek when the
// position changed. Callbacks run without the lock held.
func (t *Transport) OnPositionChanged(fn func(ms int64)) {
	t.mu.Lock()
	t.onPosition = fn
	t.mu.Unlock()
}

// OnDurationChanged registers a callback invoked when media is opened or
// released.
func (t *Transport) OnDurationChanged(fn func(ms int64)) {
	t.mu.Lock()
	t.onDuration = fn
	t.mu.Unlock()
}

// Open loads media and starts from the beginning, paused.
func (t *Transport) Open(path string, duration time.Duration) {
	t.mu.Lock()
	t.path = path
	t.duration = max(duration, 0)
	t.state = Stopped
	t.base = 0
	t.lastReported = 0
	durCb, posCb := t.onDuration, t.onPosition
	t.mu.Unlock()

	if durCb != nil {
		durCb(duration.Milliseconds())
	}
	if posCb != nil {
		posCb(0)
	}
}

// Release unloads the media, e.g. so an export can read the file undisturbed.
func (t *Transport) Release() {
	t.Open("", 0)
}

// Path returns the loaded media path, empty if none
func (t *Transport) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

// Play starts or resumes playback. Playing at the end restarts from zero.
func (t *Transport) Play() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.path == "" || t.state == Playing {
		return
	}
	if t.base >= t.duration {
		t.base = 0
	}
	t.anchor = t.now()
	t.state = Playing
}

// Pause freezes the position
func (t *Transport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != Playing {
		return
	}
	t.base = t.positionLocked()
	t.state = Paused
}

// Stop halts playback and rewinds to zero
func (t *Transport) Stop() {
	t.mu.Lock()
	t.state = Stopped
	t.base = 0
	t.mu.Unlock()
	t.Poll()
}

// Seek moves the playhead to ms, clamped to the media.
func (t *Transport) Seek(ms int64) {
	t.mu.Lock()
	pos := time.Duration(ms) * time.Millisecond
	t.base = min(max(pos, 0), t.duration)
	t.anchor = t.now()
	t.mu.Unlock()
	t.Poll()
}

// PositionMs returns the current position in milliseconds
func (t *Transport) PositionMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.positionLocked().Milliseconds()
}

// DurationMs returns the media duration in milliseconds
func (t *Transport) DurationMs() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration.Milliseconds()
}

// State returns the transport state
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.positionLocked()
	return t.state
}

// Poll advances the clock and fires the position callback if the position
// moved since the last report.
func (t *Transport) Poll() int64 {
	t.mu.Lock()
	pos := t.positionLocked()
	changed := pos != t.lastReported
	t.lastReported = pos
	cb := t.onPosition
	t.mu.Unlock()

	if changed && cb != nil {
		cb(pos.Milliseconds())
	}
	return pos.Milliseconds()
}

// positionLocked returns the playhead and pauses at the end of the media.
func (t *Transport) positionLocked() time.Duration {
	if t.state != Playing {
		return t.base
	}
	pos := t.base + t.now().Sub(t.anchor)
	if pos >= t.duration {
		t.base = t.duration
		t.state = Paused
		return t.duration
	}
	return pos
}
