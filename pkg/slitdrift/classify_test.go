package slitdrift

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func names(infos []FrameInfo) []string {
	out := make([]string, len(infos))
	for i, fi := range infos {
		out[i] = fi.Name
	}
	return out
}

func TestSplitNods(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	obs := testObservation()

	t.Run("alternating nods", func(t *testing.T) {
		t.Parallel()
		imaging := frameInfo(3, 0)
		imaging.GratingMode = "imaging"
		upper := frameInfo(4, testDither+1e-9)
		upper.GratingMode = "Spectroscopy"
		infos := []FrameInfo{frameInfo(1, testDither), frameInfo(2, -testDither), imaging, upper, frameInfo(5, -testDither)}

		split, err := SplitNods(infos, obs, cfg)
		require.NoError(t, err)
		assert.Equal(t, []string{"m181125_0001.fits", "m181125_0004.fits"}, names(split.A))
		assert.Equal(t, []string{"m181125_0002.fits", "m181125_0005.fits"}, names(split.B))
		assert.Equal(t, []string{"m181125_0003.fits"}, names(split.Skipped))
		assert.Equal(t, []string{"m181125_0001.fits", "m181125_0002.fits", "m181125_0004.fits", "m181125_0005.fits"}, names(split.Order))
		assert.Equal(t, 4, split.Len())
		assert.Equal(t, split.B, split.Nod(NodB))
	})

	t.Run("offset matching neither nod", func(t *testing.T) {
		t.Parallel()
		_, err := SplitNods([]FrameInfo{frameInfo(1, testDither), frameInfo(2, 0.7)}, obs, cfg)
		var ce *ClassificationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "m181125_0002.fits", ce.Frame)
		assert.Equal(t, 0.7, ce.Offset)
		assert.Equal(t, testDither, ce.Dither)
	})

	t.Run("missing offset header", func(t *testing.T) {
		t.Parallel()
		fi := frameInfo(1, 0)
		fi.HasYOffset = false
		_, err := SplitNods([]FrameInfo{fi}, obs, cfg)
		var ce *ClassificationError
		require.True(t, errors.As(err, &ce))
		assert.Contains(t, err.Error(), "missing YOFFSET header")
	})

	t.Run("two frames on the same nod", func(t *testing.T) {
		t.Parallel()
		_, err := SplitNods([]FrameInfo{frameInfo(1, testDither), frameInfo(2, -testDither), frameInfo(3, -testDither)}, obs, cfg)
		assert.True(t, errors.Is(err, ErrNotAlternating))
		var ce *ClassificationError
		require.True(t, errors.As(err, &ce))
		assert.Equal(t, "m181125_0003.fits", ce.Frame)
	})

	t.Run("nothing in spectroscopy mode", func(t *testing.T) {
		t.Parallel()
		fi := frameInfo(1, testDither)
		fi.GratingMode = "mirror"
		_, err := SplitNods([]FrameInfo{fi}, obs, cfg)
		assert.True(t, errors.Is(err, ErrNoFrames))
	})
}
