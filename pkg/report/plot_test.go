package report

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slitdrift/pkg/slitdrift"
)

func TestSavePlots(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		save func(res slitdrift.Result, title, path string) error
		res  slitdrift.Result
		file string
	}{
		{"star drift", SaveStarDriftPlot, starResult(), "star.png"},
		{"seeing", SaveSeeingPlot, starResult(), "seeing.png"},
		{"slit drift", SaveSlitDriftPlot, slitResult(), "slit.svg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, tt.save(tt.res, "MASK_A1 2018nov25", path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Positive(t, info.Size())
		})
	}
}

func TestSeriesXYs(t *testing.T) {
	t.Parallel()

	res := starResult()
	pts := seriesXYs(res.A, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Offset })
	require.Len(t, pts, 1)
	assert.Equal(t, 1.0, pts[0].X)

	assert.Equal(t, float64(night.Unix()), utcSeconds(res.A.Points[0]))
	assert.True(t, math.IsNaN(utcSeconds(slitdrift.DriftPoint{})))
}
