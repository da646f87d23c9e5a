// Package library lists the videos available for editing in a directory.
package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Video is a selectable source file
type Video struct {
	Name string // file name inside the directory
	Path string // absolute path
	Size int64
}

// Scanner finds video files directly inside a directory.
type Scanner struct {
	dir  string
	exts map[string]struct{}
}

// NewScanner creates a scanner for dir matching the given extensions
// (with leading dot, compared case-insensitively).
func NewScanner(dir string, extensions []string) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	return &Scanner{dir: dir, exts: exts}
}

// Dir returns the scanned directory
func (s *Scanner) Dir() string {
	return s.dir
}

// Matches reports whether name has one of the video extensions.
func (s *Scanner) Matches(name string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Scan lists regular files with a video extension, sorted by name.
// Symlinks are followed; subdirectories are not descended into.
func (s *Scanner) Scan() ([]Video, error) {
	abs, err := filepath.Abs(s.dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, err
	}

	videos := make([]Video, 0, len(entries))
	for _, e := range entries {
		if !s.Matches(e.Name()) {
			continue
		}
		path := filepath.Join(abs, e.Name())

		info, err := e.Info()
		if err == nil && e.Type()&fs.ModeSymlink != 0 {
			// links count when they resolve to a regular file
			info, err = os.Stat(path)
		}
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		videos = append(videos, Video{
			Name: e.Name(),
			Path: path,
			Size: info.Size(),
		})
	}

	sort.Slice(videos, func(i, j int) bool { return videos[i].Name < videos[j].Name })
	return videos, nil
}

// Watch calls onChange whenever a video file in the directory is created,
// removed or renamed, until ctx is done. Bursts of events are coalesced
// into one call per debounce interval.
func (s *Scanner) Watch(ctx context.Context, logger zerolog.Logger, debounce time.Duration, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(s.dir); err != nil {
		w.Close()
		return err
	}

	logger = logger.With().Str("component", "library").Str("dir", s.dir).Logger()

	go func() {
		defer w.Close()

		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !s.Matches(ev.Name) || !ev.Has(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) {
					continue
				}
				logger.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("library changed")
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				onChange()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("watch error")
			}
		}
	}()

	return nil
}
