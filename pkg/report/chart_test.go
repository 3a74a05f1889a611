package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slitdrift/pkg/slitdrift"
)

func TestWriteHTML(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteHTML(&buf, "MASK_A1 2018nov25", starResult(), slitResult()))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "MASK_A1 2018nov25 star drift")
	assert.Contains(t, html, "MASK_A1 2018nov25 seeing")
	assert.Contains(t, html, "MASK_A1 2018nov25 slit drift")
	assert.Contains(t, html, "m181125_0004.fits")
}

func TestLineDataSkipsNaN(t *testing.T) {
	t.Parallel()

	res := starResult()
	data := lineData(res.A, frameNumber, func(p slitdrift.DriftPoint) float64 { return p.Offset })
	require.Len(t, data, 1)
	assert.Equal(t, "m181125_0001.fits", data[0].Name)
}
