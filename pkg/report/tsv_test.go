package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDriftTSV(t *testing.T) {
	t.Parallel()

	t.Run("star", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteDriftTSV(&buf, starResult()))

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 5)
		assert.Equal(t, "frame\tfile\tnod\tutc\tairmass\tcenter\toffset\tseeing\terror", lines[0])
		assert.Equal(t, "1\tm181125_0001.fits\tA\t06:30:00.000\t1.200000\t18.500000\t0.000000\t1.057500\t", lines[1])
		assert.Equal(t, "3\tm181125_0003.fits\tA\t06:40:00.000\t1.220000\tnan\tnan\tnan\tgaussian fit did not converge", lines[2])
		assert.Equal(t, "4\tm181125_0004.fits\tB\t06:45:00.000\t1.230000\t21.500000\t0.090000\t0.950000\t", lines[4])
	})

	t.Run("slit", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		require.NoError(t, WriteDriftTSV(&buf, slitResult()))

		lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
		require.Len(t, lines, 5)
		assert.Equal(t, "frame\tfile\tnod\tutc\tairmass\txshift\tyshift\terror", lines[0])
		assert.Equal(t, "3\tm181125_0003.fits\tA\t06:40:00.000\t1.220000\t0.250000\t-0.500000\t", lines[2])
		assert.Equal(t, "4\tm181125_0004.fits\tB\t06:45:00.000\t1.230000\t-1.500000\t0.125000\t", lines[4])
	})
}

func TestWriteSeeingTSV(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, WriteSeeingTSV(&buf, starResult()))

	want := "frame\tutc\tseeing\tairmass\tnod\n" +
		"1\t06:30:00.000\t1.057500\t1.200000\tA\n" +
		"3\t06:40:00.000\tnan\t1.220000\tA\n" +
		"2\t06:35:00.000\t1.100000\t1.210000\tB\n" +
		"4\t06:45:00.000\t0.950000\t1.230000\tB\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteMeasurementsTSV(t *testing.T) {
	t.Parallel()

	res := starResult()
	ms := []Measurement{
		MeasurementFromPoint("run-1", res.Kind, res.A.Points[0]),
		MeasurementFromPoint("run-1", res.Kind, res.A.Points[1]),
	}
	var buf bytes.Buffer
	require.NoError(t, WriteMeasurementsTSV(&buf, ms))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	for _, l := range lines {
		assert.Len(t, strings.Split(l, "\t"), 18)
	}
	assert.True(t, strings.HasPrefix(lines[1], "run-1\tstar\tA\tm181125_0001.fits\t1\t06:30:00.000\t"))
	assert.True(t, strings.HasSuffix(lines[2], "\tnan\tnan\tgaussian fit did not converge"))
}

func TestFormatFloat(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "nan", formatFloat(math.NaN()))
	assert.Equal(t, "-0.180000", formatFloat(-0.18))
	assert.Equal(t, "06:30:00.000", formatUTC(night))
	assert.Equal(t, "", formatUTC(time.Time{}))
}
