package slitdrift

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisyProfile(n int, seed int64) Profile {
	rng := rand.New(rand.NewSource(seed))
	p := make(Profile, n)
	for i := range p {
		p[i] = 100 + (rng.Float64()*2 - 1)
	}
	return p
}

func TestLocateStar(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	t.Run("window around the peak", func(t *testing.T) {
		t.Parallel()
		p := noisyProfile(200, 1)
		for i := range p {
			p[i] += gaussian(float64(i), 60, 1000, 3, 0)
		}
		// slit gaps read low and must not be taken for the star
		for i := 150; i < 155; i++ {
			p[i] = 0
		}

		region, err := LocateStar(p, cfg)
		require.NoError(t, err)
		assert.Equal(t, StarRegion{Start: 33, End: 88, Peak: 60}, region)
		assert.Equal(t, 2*cfg.StarHalfWidth+1, region.Len())
	})

	t.Run("window is clamped at the edges", func(t *testing.T) {
		t.Parallel()
		p := noisyProfile(100, 2)
		for i := range p {
			p[i] += gaussian(float64(i), 5, 1000, 2, 0)
		}
		region, err := LocateStar(p, cfg)
		require.NoError(t, err)
		assert.Equal(t, 0, region.Start)
		assert.Equal(t, 5+cfg.StarHalfWidth+1, region.End)
		assert.Equal(t, 5, region.Peak)
	})

	t.Run("flat profile has no star", func(t *testing.T) {
		t.Parallel()
		_, err := LocateStar(noisyProfile(200, 3), cfg)
		assert.True(t, errors.Is(err, ErrStarNotFound))
	})

	t.Run("all NaN profile", func(t *testing.T) {
		t.Parallel()
		_, err := LocateStar(Profile{math.NaN(), math.NaN()}, cfg)
		assert.True(t, errors.Is(err, ErrOverMasked))
	})
}

func TestSignalMask(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MaskMargin = 2

	p := make(Profile, 30)
	for i := range p {
		p[i] = 50
	}
	p[15] = 5000

	mask := SignalMask(p, cfg.SignalLowerSigma, cfg.SignalUpperSigma, cfg)
	for i, m := range mask {
		assert.Equal(t, i >= 13 && i <= 17, m, "row %d", i)
	}

	masked := MaskSignal(p, cfg.SignalLowerSigma, cfg.SignalUpperSigma, cfg)
	assert.True(t, math.IsNaN(masked[15]))
	assert.Equal(t, 50.0, masked[0])
	assert.Equal(t, 5000.0, p[15], "input must not change")
}
