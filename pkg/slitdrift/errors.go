package slitdrift

import (
	"errors"
	"fmt"
)

var (
	// ErrStarNotFound means no profile sample rose above the high clip threshold.
	ErrStarNotFound = errors.New("star not found")
	// ErrOverMasked means clipping left no finite sample to work with.
	ErrOverMasked = errors.New("profile fully masked")
	// ErrFitNotConverged means the least-squares solver gave up.
	ErrFitNotConverged = errors.New("gaussian fit did not converge")
	// ErrFitUnphysical means the fit converged to a width that cannot describe a star.
	ErrFitUnphysical = errors.New("gaussian fit converged to an unphysical width")
	// ErrShapeMismatch means two images that must align have different sizes.
	ErrShapeMismatch = errors.New("image shapes differ")
	// ErrNoCorrelationSignal means the cross correlation has no positive peak.
	ErrNoCorrelationSignal = errors.New("no correlation signal")
	// ErrNotAlternating means the retained frames do not follow the ABAB pattern.
	ErrNotAlternating = errors.New("frames do not alternate between nods")
	// ErrNoFrames means nothing was selected for the observation.
	ErrNoFrames = errors.New("no frames")
	// ErrObservationNotFound means the catalog has no entry for a mask.
	ErrObservationNotFound = errors.New("observation not in config")
)

// ClassificationError reports a frame that cannot be assigned to a nod.
type ClassificationError struct {
	Frame  string
	Offset float64
	Dither float64
	Err    error
}

func (e *ClassificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("classifying %s: %v", e.Frame, e.Err)
	}
	return fmt.Sprintf("classifying %s: dither offset %g matches neither +%g nor -%g", e.Frame, e.Offset, e.Dither, e.Dither)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// FrameError wraps a failure while measuring one frame.
type FrameError struct {
	Frame string
	Stage string
	Err   error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Stage, e.Frame, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }
