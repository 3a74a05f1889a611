// Package main provides the slitdrift command line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	sd "slitdrift/pkg/slitdrift"
)

var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "slitdrift",
		Short:         "Measure star drift, seeing and slit drift in multi-slit spectroscopy frames",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (.yaml, .yml or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	rootCmd.AddCommand(newFramesCmd())
	rootCmd.AddCommand(newAggregateCmd(sd.KindStar, "star-drift", "Fit the star on every frame and report its drift per nod"))
	rootCmd.AddCommand(newAggregateCmd(sd.KindStar, "seeing", "Report the seeing FWHM of every frame"))
	rootCmd.AddCommand(newAggregateCmd(sd.KindSlit, "slit-drift", "Cross-correlate masked frames and report the slit drift per nod"))
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newMaskCmd())
	rootCmd.AddCommand(newFluxCmd())
	rootCmd.AddCommand(newExportCmd())

	return rootCmd
}

func setupLogger() error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", logFormat)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// pipelineFlags are the Config and Observation settings a command may take
// from its flags. Flags override the config file.
type pipelineFlags struct {
	mask     string
	date     string
	home     string
	band     string
	dither   float64
	starRows []int
	starCols []int

	policy   string
	workers  int
	maxShift int
}

func (f *pipelineFlags) register(cmd *cobra.Command, withObservation bool) {
	if withObservation {
		cmd.Flags().StringVar(&f.mask, "mask", "", "mask name (OBJECT header)")
		cmd.Flags().StringVar(&f.date, "date", "", "night, e.g. 2018nov25")
		cmd.Flags().StringVar(&f.home, "home", "", "directory holding one sub-directory per night")
		cmd.Flags().StringVar(&f.band, "band", "", "filter band")
		cmd.Flags().Float64Var(&f.dither, "dither", 0, "nod offset in arcsec")
		cmd.Flags().IntSliceVar(&f.starCols, "star-cols", nil, "star columns start,end")
	}
	cmd.Flags().IntSliceVar(&f.starRows, "star-rows", nil, "star rows start,end")
	cmd.Flags().StringVar(&f.policy, "policy", "abort", "frame failure policy (abort, skip)")
	cmd.Flags().IntVar(&f.workers, "workers", 1, "frames measured in parallel")
	cmd.Flags().IntVar(&f.maxShift, "max-shift", 0, "cross correlation search radius in pixels, 0 for unbounded")
}

// loadFileConfig reads --config, if given.
func loadFileConfig() (sd.FileConfig, error) {
	if configPath == "" {
		return sd.FileConfig{}, nil
	}
	fc, err := sd.LoadConfigFile(configPath)
	if err != nil {
		return sd.FileConfig{}, fmt.Errorf("failed to load config: %w", err)
	}
	return fc, nil
}

// config builds the pipeline configuration from defaults, the config file
// and the flags set on cmd.
func (f *pipelineFlags) config(cmd *cobra.Command, fc sd.FileConfig) (sd.Config, error) {
	cfg, err := fc.Apply(sd.DefaultConfig())
	if err != nil {
		return sd.Config{}, err
	}
	if cmd.Flags().Changed("policy") {
		policy, err := sd.ParseFailurePolicy(f.policy)
		if err != nil {
			return sd.Config{}, err
		}
		cfg.FailurePolicy = policy
	}
	applyIntFlag(cmd, "workers", &cfg.Workers, f.workers)
	applyIntFlag(cmd, "max-shift", &cfg.MaxShift, f.maxShift)
	if err := cfg.Validate(); err != nil {
		return sd.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// observation resolves the observation from the catalog and the flags.
func (f *pipelineFlags) observation(cmd *cobra.Command, fc sd.FileConfig) (sd.Observation, error) {
	if f.mask == "" {
		return sd.Observation{}, fmt.Errorf("--mask is required")
	}
	obs, err := fc.FindObservation(f.mask, f.date)
	if errors.Is(err, sd.ErrObservationNotFound) {
		obs = sd.Observation{Mask: f.mask}
	} else if err != nil {
		return sd.Observation{}, err
	}
	applyStringFlag(cmd, "date", &obs.Date, f.date)
	applyStringFlag(cmd, "home", &obs.Home, f.home)
	applyStringFlag(cmd, "band", &obs.Band, f.band)
	applyFloatFlag(cmd, "dither", &obs.Dither, f.dither)
	if cmd.Flags().Changed("star-rows") {
		if obs.StarRows, err = intPair("star-rows", f.starRows); err != nil {
			return sd.Observation{}, err
		}
	}
	if cmd.Flags().Changed("star-cols") {
		if obs.StarCols, err = intPair("star-cols", f.starCols); err != nil {
			return sd.Observation{}, err
		}
	}
	if err := obs.Validate(); err != nil {
		return sd.Observation{}, err
	}
	return obs, nil
}

func intPair(name string, v []int) ([2]int, error) {
	if len(v) != 2 {
		return [2]int{}, fmt.Errorf("--%s takes start,end", name)
	}
	return [2]int{v[0], v[1]}, nil
}

func applyStringFlag(cmd *cobra.Command, name string, target *string, value string) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func applyIntFlag(cmd *cobra.Command, name string, target *int, value int) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func applyFloatFlag(cmd *cobra.Command, name string, target *float64, value float64) {
	if cmd.Flags().Changed(name) {
		*target = value
	}
}

func logErrf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format, args...)
}

// medianMAD returns the median and the normal-scaled median absolute
// deviation of the finite values.
func medianMAD(values []float64) (float64, float64) {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			sorted = append(sorted, v)
		}
	}
	if len(sorted) == 0 {
		return math.NaN(), math.NaN()
	}
	sort.Float64s(sorted)

	n := len(sorted)
	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2.0
	} else {
		median = sorted[n/2]
	}

	deviations := make([]float64, n)
	for i := range sorted {
		deviations[i] = math.Abs(sorted[i] - median)
	}
	sort.Float64s(deviations)

	var madMedian float64
	if n%2 == 0 {
		madMedian = (deviations[n/2-1] + deviations[n/2]) / 2.0
	} else {
		madMedian = deviations[n/2]
	}

	return median, 1.4826 * madMedian
}
