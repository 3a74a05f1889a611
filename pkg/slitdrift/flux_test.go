package slitdrift

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fluxCutout is a rows x cols cutout of background 10 with a star on row peak
// and half as much on the rows either side.
func fluxCutout(t *testing.T, rows, cols, peak int) *Frame {
	t.Helper()
	data := make([][]float64, rows)
	for r := range data {
		data[r] = make([]float64, cols)
		for c := range data[r] {
			v := 10.0
			switch r {
			case peak:
				v += 100
			case peak - 1, peak + 1:
				v += 50
			}
			data[r][c] = v
		}
	}
	return mustFrame(t, frameInfo(1, testDither), data)
}

func TestStarFlux(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	t.Run("sky subtracted integral", func(t *testing.T) {
		t.Parallel()
		cut := fluxCutout(t, 20, 50, 5)
		defer cut.Close()

		res, err := StarFlux(cut, cfg)
		require.NoError(t, err)
		assert.Equal(t, 5, res.Peak)
		require.Len(t, res.Spectrum, 50)
		for c := range res.Spectrum {
			assert.InDelta(t, 200, res.Spectrum[c], 1e-6)
			assert.InDelta(t, 200, res.Smoothed[c], 1e-3)
		}
		// 49 column intervals of 200
		assert.InDelta(t, 9800, res.Total, 1e-2)
	})

	t.Run("cosmic ray in the star rows is replaced", func(t *testing.T) {
		t.Parallel()
		cut := fluxCutout(t, 20, 50, 5)
		defer cut.Close()
		hit := fluxCutout(t, 20, 50, 5)
		defer hit.Close()
		hit.mat.DataFloat32()[5*50+20] = 1e6

		clean, err := StarFlux(cut, cfg)
		require.NoError(t, err)
		res, err := StarFlux(hit, cfg)
		require.NoError(t, err)
		assert.Less(t, res.Total, 1.1*clean.Total)
	})

	t.Run("sky rows outside the cutout", func(t *testing.T) {
		t.Parallel()
		cut := fluxCutout(t, 20, 50, 15)
		defer cut.Close()
		_, err := StarFlux(cut, cfg)
		assert.Error(t, err)
	})

	t.Run("single column", func(t *testing.T) {
		t.Parallel()
		cut := fluxCutout(t, 20, 1, 5)
		defer cut.Close()
		_, err := StarFlux(cut, cfg)
		assert.Error(t, err)
	})
}
