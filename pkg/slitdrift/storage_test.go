package slitdrift

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemStore()

	s.Add(mustFrame(t, frameInfo(2, -testDither), [][]float64{{1, 2}}))
	s.Add(mustFrame(t, frameInfo(1, testDither), [][]float64{{3, 4}}))

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m181125_0001.fits", "m181125_0002.fits"}, ids)

	info, err := s.Header(ctx, "m181125_0002.fits")
	require.NoError(t, err)
	assert.Equal(t, -testDither, info.YOffset)

	loaded, err := s.Load(ctx, "m181125_0001.fits")
	require.NoError(t, err)
	loaded.Close()
	again, err := s.Load(ctx, "m181125_0001.fits")
	require.NoError(t, err)
	defer again.Close()
	assert.Equal(t, 4.0, again.At(0, 1), "closing a loaded frame must not touch the stored one")

	_, err = s.Load(ctx, "absent.fits")
	assert.True(t, errors.Is(err, os.ErrNotExist))
	_, err = s.Header(ctx, "absent.fits")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestSelectMaskFrames(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	obs := testObservation()
	s := NewMemStore()

	other := frameInfo(3, testDither)
	other.Object = "OTHER"
	unnamed := frameInfo(4, testDither)
	unnamed.Object = ""
	nextNight := frameInfo(1, testDither)
	nextNight.Name = "m181126_0001.fits"

	for _, fi := range []FrameInfo{frameInfo(2, -testDither), frameInfo(1, testDither), other, unnamed, nextNight} {
		s.Add(mustFrame(t, fi, [][]float64{{0}}))
	}

	infos, err := SelectMaskFrames(ctx, s, obs, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"m181125_0001.fits", "m181125_0002.fits"}, names(infos))

	obs.Mask = "NOBODY"
	_, err = SelectMaskFrames(ctx, s, obs, nil)
	assert.True(t, errors.Is(err, ErrNoFrames))
}

func TestDirStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	cfg := DefaultConfig()
	obs := testObservation()
	obs.Home = t.TempDir()

	night := filepath.Join(obs.Home, obs.Date)
	require.NoError(t, os.MkdirAll(night, 0o755))
	for _, fi := range []FrameInfo{frameInfo(1, testDither), frameInfo(2, -testDither)} {
		f := mustFrame(t, fi, [][]float64{{1, 2, 3}, {4, 5, 6}})
		require.NoError(t, WriteFrame(filepath.Join(night, fi.Name), f, cfg.Headers))
		f.Close()
	}
	require.NoError(t, os.WriteFile(filepath.Join(night, "notes.txt"), []byte("cloudy"), 0o644))

	s := NewDirStore(obs, cfg)
	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"m181125_0001.fits", "m181125_0002.fits"}, ids)

	infos, err := SelectMaskFrames(ctx, s, obs, nil)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.InDelta(t, -testDither, infos[1].YOffset, 1e-9)

	f, err := s.Load(ctx, ids[0])
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, 6.0, f.At(1, 2))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = s.Load(cancelled, ids[0])
	assert.True(t, errors.Is(err, context.Canceled))
}
