package main

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sd "slitdrift/pkg/slitdrift"
)

func TestIntPair(t *testing.T) {
	t.Parallel()

	got, err := intPair("star-rows", []int{80, 120})
	require.NoError(t, err)
	assert.Equal(t, [2]int{80, 120}, got)

	_, err = intPair("star-rows", []int{80})
	assert.ErrorContains(t, err, "--star-rows")
}

func TestMedianMAD(t *testing.T) {
	t.Parallel()

	median, mad := medianMAD([]float64{1, 2, math.NaN(), 3, 4, 100})
	assert.Equal(t, 3.0, median)
	assert.InDelta(t, 1.4826, mad, 1e-12)

	median, mad = medianMAD([]float64{math.NaN()})
	assert.True(t, math.IsNaN(median))
	assert.True(t, math.IsNaN(mad))
}

func TestFiniteRange(t *testing.T) {
	t.Parallel()

	lo, hi := finiteRange([]float64{0.2, math.NaN(), -0.4, 0.1})
	assert.Equal(t, -0.4, lo)
	assert.Equal(t, 0.2, hi)

	lo, hi = finiteRange(nil)
	assert.True(t, math.IsNaN(lo))
	assert.True(t, math.IsNaN(hi))
}

// executeRoot runs the root command with args. The flag targets are package
// globals, so these tests do not run in parallel.
func executeRoot(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	return cmd.Execute()
}

func TestRootCmdErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"frames without mask", []string{"frames"}, "--mask is required"},
		{"bad log level", []string{"--log-level", "loud", "frames", "--mask", "M"}, "invalid log level"},
		{"bad log format", []string{"--log-format", "xml", "frames", "--mask", "M"}, "invalid log format"},
		{"export without db", []string{"export"}, "--db is required"},
		{"bad policy", []string{"star-drift", "--mask", "M", "--date", "2018nov25", "--dither", "1.25", "--policy", "retry"}, "unknown failure policy"},
		{"missing config", []string{"--config", "/nonexistent/slitdrift.yaml", "frames", "--mask", "M"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executeRoot(t, tt.args...)
			if tt.want == "" {
				// a missing config file falls back to defaults; the empty
				// night then fails observation validation
				assert.ErrorContains(t, err, "observation date")
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestMaskCommand(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "m181125_0001.fits")
	out := filepath.Join(dir, "m181125_0001_masked.fits")

	rows := make([][]float64, 60)
	for r := range rows {
		rows[r] = make([]float64, 40)
		for c := range rows[r] {
			rows[r][c] = 100 + math.Sin(float64(c))
			if r >= 30 && r < 34 {
				rows[r][c] += 1000
			}
		}
	}
	info := sd.FrameInfo{Name: "m181125_0001.fits", Object: "MASK_A1", GratingMode: "spectroscopy",
		Airmass: math.NaN(), Elevation: math.NaN(), PositionAngle: math.NaN()}
	f, err := sd.FrameFromRows(info, rows)
	require.NoError(t, err)
	defer f.Close()
	cfg := sd.DefaultConfig()
	require.NoError(t, sd.WriteFrame(in, f, cfg.Headers))

	require.NoError(t, executeRoot(t, "mask", in, out))

	masked, err := sd.ReadFrame(out, cfg)
	require.NoError(t, err)
	defer masked.Close()
	assert.Equal(t, 60, masked.Rows())
	assert.Equal(t, 40, masked.Cols())
	assert.Positive(t, sd.MaskedRows(masked))
	assert.True(t, math.IsNaN(masked.At(31, 0)))
	assert.Equal(t, f.At(0, 3), masked.At(0, 3))

	assert.Error(t, executeRoot(t, "mask", in))
}

func parsedPipelineFlags(t *testing.T, args ...string) (*pipelineFlags, *cobra.Command) {
	t.Helper()
	f := &pipelineFlags{}
	cmd := &cobra.Command{Use: "test"}
	f.register(cmd, true)
	require.NoError(t, cmd.ParseFlags(args))
	return f, cmd
}

func TestPipelineFlagsObservation(t *testing.T) {
	t.Parallel()

	catalog := sd.FileConfig{Observations: []sd.ObservationFileConfig{
		{Path: "/data", Date: "2018nov25", Mask: "M1", Dither: 1.25, Band: "K", StarSlit: []int{80, 120}},
		{Path: "/data", Date: "2018nov25", Mask: "M2", Dither: 1.25, StarSlit: []int{120, 80}},
	}}

	t.Run("catalog entry", func(t *testing.T) {
		t.Parallel()
		f, cmd := parsedPipelineFlags(t, "--mask", "M1", "--date", "2018nov25", "--dither", "1.5")
		obs, err := f.observation(cmd, catalog)
		require.NoError(t, err)
		assert.Equal(t, "/data", obs.Home)
		assert.Equal(t, "K", obs.Band)
		assert.Equal(t, [2]int{80, 120}, obs.StarRows)
		assert.Equal(t, 1.5, obs.Dither, "flag overrides the catalog")
	})

	t.Run("invalid catalog entry is an error", func(t *testing.T) {
		t.Parallel()
		f, cmd := parsedPipelineFlags(t, "--mask", "M2", "--date", "2018nov25", "--dither", "1.25")
		_, err := f.observation(cmd, catalog)
		assert.ErrorContains(t, err, "invalid star rows")
	})

	t.Run("mask missing from catalog uses flags", func(t *testing.T) {
		t.Parallel()
		f, cmd := parsedPipelineFlags(t, "--mask", "M3", "--date", "2018nov25", "--dither", "1.25", "--home", "/other")
		obs, err := f.observation(cmd, catalog)
		require.NoError(t, err)
		assert.Equal(t, sd.Observation{Home: "/other", Date: "2018nov25", Mask: "M3", Dither: 1.25}, obs)
	})
}

func TestInvalidCatalogEntryFailsCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slitdrift.yaml")
	catalog := "observations:\n  - mask: M1\n    path: /data\n    date: 2018nov25\n    dither: 1.25\n    star_slit: [120, 80]\n"
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o644))

	err := executeRoot(t, "--config", path, "frames", "--mask", "M1", "--date", "2018nov25", "--dither", "1.25")
	assert.ErrorContains(t, err, "invalid star rows")
}
