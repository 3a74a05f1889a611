package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"slitdrift/pkg/report"
	sd "slitdrift/pkg/slitdrift"
)

// outputFlags are the optional artifacts of an aggregation command.
type outputFlags struct {
	dbPath          string
	tsvPath         string
	plotPath        string
	htmlPath        string
	summaryPath     string
	metricsTextfile string
}

func (o *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.dbPath, "db", "", "sqlite database to record the run in")
	cmd.Flags().StringVar(&o.tsvPath, "tsv", "", "write the table as TSV to this file")
	cmd.Flags().StringVar(&o.plotPath, "plot", "", "write the plot (.png, .svg or .pdf) to this file")
	cmd.Flags().StringVar(&o.htmlPath, "html", "", "write an interactive HTML report to this file")
	cmd.Flags().StringVar(&o.summaryPath, "summary", "", "write a JPEG summary card to this file")
	cmd.Flags().StringVar(&o.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")
}

func newFramesCmd() *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "frames",
		Short: "List the mask frames of an observation and their nod",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd, fc)
			if err != nil {
				return err
			}
			obs, err := flags.observation(cmd, fc)
			if err != nil {
				return err
			}
			agg := sd.NewAggregator(cfg, obs, sd.NewDirStore(obs, cfg), slog.Default())
			split, err := agg.Classify(cmd.Context())
			if err != nil {
				return err
			}
			printFrames(split)
			return nil
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newAggregateCmd(kind sd.Kind, use, short string) *cobra.Command {
	var (
		flags pipelineFlags
		out   outputFlags
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd, fc)
			if err != nil {
				return err
			}
			obs, err := flags.observation(cmd, fc)
			if err != nil {
				return err
			}
			defer writeMetrics(out.metricsTextfile)

			agg := sd.NewAggregator(cfg, obs, sd.NewDirStore(obs, cfg), slog.Default())
			store, err := attachStore(cmd.Context(), agg, out.dbPath)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			start := time.Now()
			split, err := agg.Classify(cmd.Context())
			if err != nil {
				return err
			}
			res, err := agg.Aggregate(cmd.Context(), kind, split)
			if err != nil {
				return err
			}
			elapsed := time.Since(start)

			title := fmt.Sprintf("%s %s", obs.Mask, obs.Date)
			switch {
			case use == "seeing":
				printSeeing(res, elapsed)
				return writeSeeingOutputs(res, title, out)
			case kind == sd.KindStar:
				printStarDrift(res, elapsed)
			default:
				printSlitDrift(res, elapsed)
			}
			return writeDriftOutputs(res, title, out)
		},
	}
	flags.register(cmd, true)
	out.register(cmd)
	return cmd
}

func newRunCmd() *cobra.Command {
	var (
		flags           pipelineFlags
		dbPath          string
		outDir          string
		metricsTextfile string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Classify once, measure star and slit drift and write every report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd, fc)
			if err != nil {
				return err
			}
			obs, err := flags.observation(cmd, fc)
			if err != nil {
				return err
			}
			defer writeMetrics(metricsTextfile)

			agg := sd.NewAggregator(cfg, obs, sd.NewDirStore(obs, cfg), slog.Default())
			store, err := attachStore(cmd.Context(), agg, dbPath)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			start := time.Now()
			run, err := agg.Run(cmd.Context())
			if err != nil {
				return err
			}
			elapsed := time.Since(start)
			printStarDrift(run.Star, elapsed)
			printSeeing(run.Star, elapsed)
			printSlitDrift(run.Slit, elapsed)

			if outDir == "" {
				return nil
			}
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			title := fmt.Sprintf("%s %s", obs.Mask, obs.Date)
			prefix := filepath.Join(outDir, obs.Mask+"_"+obs.Date)
			if err := writeDriftOutputs(run.Star, title, outputFlags{
				tsvPath:  prefix + "_star_drift.tsv",
				plotPath: prefix + "_star_drift.png",
			}); err != nil {
				return err
			}
			if err := writeSeeingOutputs(run.Star, title, outputFlags{
				tsvPath:  prefix + "_seeing.tsv",
				plotPath: prefix + "_seeing.png",
			}); err != nil {
				return err
			}
			if err := writeDriftOutputs(run.Slit, title, outputFlags{
				tsvPath:  prefix + "_slit_drift.tsv",
				plotPath: prefix + "_slit_drift.png",
			}); err != nil {
				return err
			}
			if err := writeFile(prefix+"_report.html", func(f *os.File) error {
				return report.WriteHTML(f, title, run.Star, run.Slit)
			}); err != nil {
				return err
			}
			if err := report.RenderSummary(report.Summary{Title: title, Star: &run.Star, Slit: &run.Slit}, prefix+"_summary.jpg"); err != nil {
				return err
			}
			slog.Info("wrote reports", "dir", outDir)
			return nil
		},
	}
	flags.register(cmd, true)
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database to record the run in")
	cmd.Flags().StringVar(&outDir, "out", "", "directory for TSV tables, plots, HTML report and summary card")
	cmd.Flags().StringVar(&metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file on exit")
	return cmd
}

func newMaskCmd() *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "mask <in.fits> <out.fits>",
		Short: "Blank the signal rows of a frame and write the background-only frame",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd, fc)
			if err != nil {
				return err
			}
			f, err := sd.ReadFrame(args[0], cfg)
			if err != nil {
				return err
			}
			defer f.Close()
			masked, err := sd.MaskFrame(f, cfg)
			if err != nil {
				return err
			}
			defer masked.Close()
			if err := sd.WriteFrame(args[1], masked, cfg.Headers); err != nil {
				return err
			}
			fmt.Printf("Masked %d of %d rows of %s -> %s\n", sd.MaskedRows(masked), masked.Rows(), f.Info.Name, args[1])
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newFluxCmd() *cobra.Command {
	var flags pipelineFlags
	cmd := &cobra.Command{
		Use:   "flux <frame.fits>",
		Short: "Fit the star and integrate its sky-subtracted spectrum on one frame",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fc, err := loadFileConfig()
			if err != nil {
				return err
			}
			cfg, err := flags.config(cmd, fc)
			if err != nil {
				return err
			}
			f, err := sd.ReadFrame(args[0], cfg)
			if err != nil {
				return err
			}
			defer f.Close()

			rows, err := starRows(cmd, f, cfg, flags.starRows)
			if err != nil {
				return err
			}
			cut, err := f.Cutout(image.Rect(0, rows[0], f.Cols(), rows[1]))
			if err != nil {
				return err
			}
			defer cut.Close()

			fit, err := sd.FitCutout(cut, cfg)
			if err != nil {
				return err
			}
			flux, err := sd.StarFlux(cut, cfg)
			if err != nil {
				return err
			}

			fmt.Printf("\n=== Star Flux: %s ===\n", f.Info.Name)
			fmt.Printf("  Star rows:       [%d,%d)\n", rows[0], rows[1])
			fmt.Printf("  Center:          %.2f +/- %.2f px\n", fit.Center+float64(rows[0]), fit.CenterErr)
			fmt.Printf("  Seeing (FWHM):   %.3f\"\n", fit.Width*cfg.FWHMFactor*cfg.PlateScale)
			fmt.Printf("  R^2:             %.4f\n", fit.RSquared)
			fmt.Printf("  Peak row:        %d\n", flux.Peak+rows[0])
			fmt.Printf("  Total flux:      %.1f\n", flux.Total)
			fmt.Printf("==============================\n")
			return nil
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newExportCmd() *cobra.Command {
	var (
		dbPath  string
		runID   string
		kind    string
		tsvPath string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "List stored runs, or export the measurements of one run as TSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if dbPath == "" {
				return errors.New("--db is required")
			}
			store, err := report.Open(dbPath, slog.Default())
			if err != nil {
				return err
			}
			defer store.Close()

			if runID == "" {
				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				for _, r := range runs {
					fmt.Printf("%s  %-20s %-10s %-4s dither=%.2f  %s\n",
						r.ID, r.Mask, r.Night, r.Band, r.Dither, r.CreatedAt.Format(time.RFC3339))
				}
				return nil
			}

			ms, err := store.Measurements(cmd.Context(), runID, kind)
			if err != nil {
				return err
			}
			if tsvPath == "" {
				return report.WriteMeasurementsTSV(os.Stdout, ms)
			}
			return writeFile(tsvPath, func(f *os.File) error {
				return report.WriteMeasurementsTSV(f, ms)
			})
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite database")
	cmd.Flags().StringVar(&runID, "run", "", "run id; lists runs when empty")
	cmd.Flags().StringVar(&kind, "kind", "", "star or slit; both when empty")
	cmd.Flags().StringVar(&tsvPath, "tsv", "", "output file; stdout when empty")
	return cmd
}

// attachStore opens the database, creates a run and points the aggregator's
// table at it. It returns nil when path is empty.
func attachStore(ctx context.Context, agg *sd.Aggregator, path string) (*report.Store, error) {
	if path == "" {
		return nil, nil
	}
	store, err := report.Open(path, slog.Default())
	if err != nil {
		return nil, err
	}
	run, err := store.CreateRun(ctx, agg.Observation, agg.Config)
	if err != nil {
		store.Close()
		return nil, err
	}
	slog.Info("recording run", "db", path, "run", run.ID)
	agg.Table = store.Recorder(ctx, run.ID)
	return store, nil
}

// starRows returns the star rows from --star-rows, or locates the star.
func starRows(cmd *cobra.Command, f *sd.Frame, cfg sd.Config, flagRows []int) ([2]int, error) {
	if cmd.Flags().Changed("star-rows") {
		rows, err := intPair("star-rows", flagRows)
		if err != nil {
			return rows, err
		}
		if rows[0] < 0 || rows[1] > f.Rows() || rows[1] <= rows[0] {
			return rows, fmt.Errorf("star rows %v outside %d rows", rows, f.Rows())
		}
		return rows, nil
	}
	profile, err := sd.Collapse(f, cfg)
	if err != nil {
		return [2]int{}, err
	}
	region, err := sd.LocateStar(profile, cfg)
	if err != nil {
		return [2]int{}, err
	}
	return [2]int{region.Start, region.End}, nil
}

func writeDriftOutputs(res sd.Result, title string, out outputFlags) error {
	if out.tsvPath != "" {
		if err := writeFile(out.tsvPath, func(f *os.File) error { return report.WriteDriftTSV(f, res) }); err != nil {
			return err
		}
	}
	if out.plotPath != "" {
		save := report.SaveStarDriftPlot
		if res.Kind == sd.KindSlit {
			save = report.SaveSlitDriftPlot
		}
		if err := save(res, title, out.plotPath); err != nil {
			return err
		}
	}
	return writeSharedOutputs(res, title, out)
}

func writeSeeingOutputs(res sd.Result, title string, out outputFlags) error {
	if out.tsvPath != "" {
		if err := writeFile(out.tsvPath, func(f *os.File) error { return report.WriteSeeingTSV(f, res) }); err != nil {
			return err
		}
	}
	if out.plotPath != "" {
		if err := report.SaveSeeingPlot(res, title, out.plotPath); err != nil {
			return err
		}
	}
	return writeSharedOutputs(res, title, out)
}

func writeSharedOutputs(res sd.Result, title string, out outputFlags) error {
	if out.htmlPath != "" {
		if err := writeFile(out.htmlPath, func(f *os.File) error { return report.WriteHTML(f, title, res) }); err != nil {
			return err
		}
	}
	if out.summaryPath != "" {
		s := report.Summary{Title: title}
		if res.Kind == sd.KindSlit {
			s.Slit = &res
		} else {
			s.Star = &res
		}
		if err := report.RenderSummary(s, out.summaryPath); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeMetrics(path string) {
	if path == "" {
		return
	}
	if err := sd.WriteMetricsTextfile(path); err != nil {
		logErrf("Error writing metrics: %v\n", err)
	}
}
