package report

import (
	"bytes"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSummaryBytes(t *testing.T) {
	t.Parallel()

	star, slit := starResult(), slitResult()
	tests := []struct {
		name string
		s    Summary
	}{
		{"star and slit", Summary{Title: "MASK_A1 2018nov25", Star: &star, Slit: &slit}},
		{"slit only", Summary{Title: "MASK_A1 2018nov25", Slit: &slit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, err := RenderSummaryBytes(tt.s)
			require.NoError(t, err)
			require.Greater(t, len(data), 2)
			assert.Equal(t, []byte{0xFF, 0xD8}, data[:2])

			img, err := jpeg.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, 800, img.Bounds().Dx())
			assert.Equal(t, 380, img.Bounds().Dy())
		})
	}
}

func TestRenderSummaryEmpty(t *testing.T) {
	t.Parallel()

	_, err := RenderSummaryBytes(Summary{Title: "empty"})
	assert.Error(t, err)
}

func TestRenderSummary(t *testing.T) {
	t.Parallel()

	star := starResult()
	path := filepath.Join(t.TempDir(), "summary.jpg")
	require.NoError(t, RenderSummary(Summary{Title: "MASK_A1", Star: &star}, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = jpeg.Decode(f)
	require.NoError(t, err)
}
