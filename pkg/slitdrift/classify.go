package slitdrift

import (
	"fmt"
	"math"
	"strings"
)

// NodSplit is the mask frames of one observation grouped by nod, each group
// in acquisition order.
type NodSplit struct {
	A []FrameInfo
	B []FrameInfo
	// Order is every classified frame in acquisition order.
	Order []FrameInfo
	// Skipped holds frames not taken in spectroscopy mode.
	Skipped []FrameInfo
}

// Nod returns the frames of nod n.
func (s NodSplit) Nod(n Nod) []FrameInfo {
	if n == NodB {
		return s.B
	}
	return s.A
}

// Len is the number of classified frames.
func (s NodSplit) Len() int { return len(s.A) + len(s.B) }

// SplitNods assigns every spectroscopy frame to nod A (offset +Dither) or
// nod B (offset -Dither). A frame matching neither, or a run of two frames
// on the same nod, fails the whole split with a *ClassificationError.
func SplitNods(infos []FrameInfo, obs Observation, cfg Config) (NodSplit, error) {
	var split NodSplit
	last := Nod(-1)
	for _, fi := range infos {
		if !strings.EqualFold(strings.TrimSpace(fi.GratingMode), cfg.GratingMode) {
			split.Skipped = append(split.Skipped, fi)
			continue
		}
		if !fi.HasYOffset {
			return NodSplit{}, &ClassificationError{
				Frame:  fi.Name,
				Dither: obs.Dither,
				Err:    fmt.Errorf("missing %s header", cfg.Headers.YOffset),
			}
		}

		var nod Nod
		switch {
		case math.Abs(fi.YOffset-obs.Dither) <= cfg.DitherTolerance:
			nod = NodA
		case math.Abs(fi.YOffset+obs.Dither) <= cfg.DitherTolerance:
			nod = NodB
		default:
			return NodSplit{}, &ClassificationError{Frame: fi.Name, Offset: fi.YOffset, Dither: obs.Dither}
		}
		if nod == last {
			return NodSplit{}, &ClassificationError{
				Frame:  fi.Name,
				Offset: fi.YOffset,
				Dither: obs.Dither,
				Err:    fmt.Errorf("second consecutive frame on nod %s: %w", nod, ErrNotAlternating),
			}
		}
		last = nod

		if nod == NodA {
			split.A = append(split.A, fi)
		} else {
			split.B = append(split.B, fi)
		}
		split.Order = append(split.Order, fi)
	}
	if split.Len() == 0 {
		return NodSplit{}, fmt.Errorf("mask %s: no %s frames: %w", obs.Mask, cfg.GratingMode, ErrNoFrames)
	}
	return split, nil
}
