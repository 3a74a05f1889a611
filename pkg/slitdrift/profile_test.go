package slitdrift

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseRows(t *testing.T) {
	t.Parallel()

	t.Run("cosmic ray is clipped from its row", func(t *testing.T) {
		t.Parallel()
		row := make([]float64, 20)
		for i := range row {
			row[i] = 10
		}
		hit := make([]float64, 21)
		copy(hit, row)
		hit[20] = 1000

		p := CollapseRows([][]float64{row, hit}, 2, 5)
		assert.Equal(t, Profile{200, 200}, p)
	})

	t.Run("fully NaN row collapses to NaN", func(t *testing.T) {
		t.Parallel()
		p := CollapseRows([][]float64{{math.NaN(), math.NaN()}, {1, 1}}, 2, 5)
		assert.True(t, math.IsNaN(p[0]))
		assert.Equal(t, 2.0, p[1])
		assert.Equal(t, 1, p.Finite())
	})
}

func TestCollapse(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	t.Run("sums rows of a frame", func(t *testing.T) {
		t.Parallel()
		f := mustFrame(t, frameInfo(1, testDither), [][]float64{{1, 1, 1}, {2, 2, 2}})
		defer f.Close()
		p, err := Collapse(f, cfg)
		require.NoError(t, err)
		assert.Equal(t, Profile{3, 6}, p)
	})

	t.Run("fully masked frame", func(t *testing.T) {
		t.Parallel()
		nan := math.NaN()
		f := mustFrame(t, frameInfo(1, testDither), [][]float64{{nan, nan}, {nan, nan}})
		defer f.Close()
		_, err := Collapse(f, cfg)
		assert.True(t, errors.Is(err, ErrOverMasked))
	})
}
