package slitdrift

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
pipeline:
  plate_scale: 0.2
  workers: 4
  failure_policy: skip
  max_shift: 20
headers:
  y_offset: YOFF
observations:
  - path: /data/mosfire
    date: 2018nov25
    mask: MASK_A1
    dither: 1.25
    band: H
    star_slit: [400, 470]
  - path: /data/mosfire
    date: 2018nov26
    mask: MASK_A1
    dither: 1.5
`

const tomlConfig = `
[pipeline]
plate_scale = 0.2
fit_max_iter = 50

[[observations]]
path = "/data"
date = "2018nov25"
mask = "MASK_B"
dither = 2.0
star_cols = [10, 900]
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFileYAML(t *testing.T) {
	t.Parallel()

	fc, err := LoadConfigFile(writeConfig(t, "slitdrift.yaml", yamlConfig))
	require.NoError(t, err)

	cfg, err := fc.Apply(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.PlateScale)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, PolicySkip, cfg.FailurePolicy)
	assert.Equal(t, 20, cfg.MaxShift)
	assert.Equal(t, "YOFF", cfg.Headers.YOffset)
	assert.Equal(t, "OBJECT", cfg.Headers.Object)
	assert.Equal(t, DefaultConfig().CollapseSigma, cfg.CollapseSigma)

	obs, err := fc.FindObservation("MASK_A1", "2018NOV25")
	require.NoError(t, err)
	assert.Equal(t, Observation{
		Home:     "/data/mosfire",
		Date:     "2018nov25",
		Mask:     "MASK_A1",
		Dither:   1.25,
		Band:     "H",
		StarRows: [2]int{400, 470},
	}, obs)

	latest, err := fc.FindObservation("MASK_A1", "")
	require.NoError(t, err)
	assert.Equal(t, "2018nov26", latest.Date)
	assert.Equal(t, 1.5, latest.Dither)

	_, err = fc.FindObservation("MASK_Z", "")
	assert.ErrorIs(t, err, ErrObservationNotFound)

	_, err = fc.FindObservation("MASK_A1", "2019jan01")
	assert.ErrorIs(t, err, ErrObservationNotFound)
}

func TestLoadConfigFileTOML(t *testing.T) {
	t.Parallel()

	fc, err := LoadConfigFile(writeConfig(t, "slitdrift.toml", tomlConfig))
	require.NoError(t, err)

	cfg, err := fc.Apply(DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 0.2, cfg.PlateScale)
	assert.Equal(t, 50, cfg.FitMaxIter)

	obs, err := fc.FindObservation("MASK_B", "")
	require.NoError(t, err)
	assert.Equal(t, [2]int{10, 900}, obs.StarCols)
	assert.Equal(t, [2]int{}, obs.StarRows)
	assert.Equal(t, 2.0, obs.Dither)
}

func TestLoadConfigFileErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing file is empty", func(t *testing.T) {
		t.Parallel()
		fc, err := LoadConfigFile(filepath.Join(t.TempDir(), "absent.yaml"))
		require.NoError(t, err)
		cfg, err := fc.Apply(DefaultConfig())
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("unknown yaml key", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(writeConfig(t, "bad.yaml", "pipeline:\n  plate_scal: 0.2\n"))
		assert.Error(t, err)
	})

	t.Run("unknown toml key", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(writeConfig(t, "bad.toml", "[pipeline]\nplate_scal = 0.2\n"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(writeConfig(t, "config.json", "{}"))
		assert.Error(t, err)
	})

	t.Run("invalid value", func(t *testing.T) {
		t.Parallel()
		fc, err := LoadConfigFile(writeConfig(t, "zero.yaml", "pipeline:\n  workers: 0\n"))
		require.NoError(t, err)
		_, err = fc.Apply(DefaultConfig())
		assert.Error(t, err)
	})

	t.Run("unknown failure policy", func(t *testing.T) {
		t.Parallel()
		fc, err := LoadConfigFile(writeConfig(t, "policy.yaml", "pipeline:\n  failure_policy: retry\n"))
		require.NoError(t, err)
		_, err = fc.Apply(DefaultConfig())
		assert.Error(t, err)
	})

	t.Run("star rows need two entries", func(t *testing.T) {
		t.Parallel()
		fc := FileConfig{Observations: []ObservationFileConfig{
			{Date: "2018nov25", Mask: "M", Dither: 1, StarSlit: []int{1, 2, 3}},
		}}
		_, err := fc.FindObservation("M", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrObservationNotFound)
	})

	t.Run("reversed star rows are invalid, not missing", func(t *testing.T) {
		t.Parallel()
		fc := FileConfig{Observations: []ObservationFileConfig{
			{Path: "/data", Date: "2018nov25", Mask: "M1", Dither: 1.25, StarSlit: []int{120, 80}},
		}}
		_, err := fc.FindObservation("M1", "2018nov25")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrObservationNotFound)
		assert.ErrorContains(t, err, "invalid star rows")
	})

	t.Run("bad catalog date is invalid, not missing", func(t *testing.T) {
		t.Parallel()
		fc := FileConfig{Observations: []ObservationFileConfig{
			{Date: "25/11/2018", Mask: "M1", Dither: 1.25},
		}}
		_, err := fc.FindObservation("M1", "")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrObservationNotFound)
	})

	t.Run("fit min sigma must stay below fit sigma0", func(t *testing.T) {
		t.Parallel()
		fc, err := LoadConfigFile(writeConfig(t, "minsigma.yaml", "pipeline:\n  fit_min_sigma: 5\n"))
		require.NoError(t, err)
		_, err = fc.Apply(DefaultConfig())
		assert.ErrorContains(t, err, "fit min sigma")
	})
}

func TestObservation(t *testing.T) {
	t.Parallel()

	obs := testObservation()
	require.NoError(t, obs.Validate())
	prefix, err := obs.FilePrefix()
	require.NoError(t, err)
	assert.Equal(t, "m181125", prefix)

	bad := obs
	bad.Date = "25/11/2018"
	assert.Error(t, bad.Validate())

	bad = obs
	bad.Dither = 0
	assert.Error(t, bad.Validate())

	bad = obs
	bad.StarRows = [2]int{50, 10}
	assert.Error(t, bad.Validate())
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.SmoothWindow = 180
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SkyOffset = cfg.FluxHalfRows
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PlateScale = -1
	assert.Error(t, cfg.Validate())
}
