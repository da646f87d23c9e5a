package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kikiluvv/cutdeck/internal/session"
	"github.com/kikiluvv/cutdeck/pkg/util"
)

// parseCut reads a cut given as a timestamp (45.5, 01:30, 00:01:30.250) or
// as a frame index prefixed with "f" (f1200).
func parseCut(spec string, fps float64) (float64, error) {
	spec = strings.TrimSpace(spec)

	if rest, ok := strings.CutPrefix(strings.ToLower(spec), "f"); ok {
		frame, err := strconv.Atoi(rest)
		if err != nil || frame < 0 {
			return 0, &session.ValidationError{Field: "cut frame", Input: spec, Reason: "expected f<non-negative integer>"}
		}
		return float64(frame) / fps, nil
	}

	d, err := util.ParseTimestamp(spec)
	if err != nil {
		return 0, &session.ValidationError{Field: "cut time", Input: spec, Reason: err.Error()}
	}
	return d.Seconds(), nil
}

// markCuts loads every --cut value into the session ledger.
func markCuts(sess *session.EditSession, specs []string) error {
	fps := sess.Info().FPS
	for _, spec := range specs {
		// allow --cut 10,20,30 as well as repeated flags
		for _, part := range strings.Split(spec, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			seconds, err := parseCut(part, fps)
			if err != nil {
				return err
			}
			if _, err := sess.Mark(seconds); err != nil {
				return fmt.Errorf("mark %s: %w", part, err)
			}
		}
	}
	return nil
}
