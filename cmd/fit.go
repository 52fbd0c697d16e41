package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitk/internal/config"
	"github.com/sells-group/fitk/internal/estimate"
	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/report"
	"github.com/sells-group/fitk/internal/trialio"
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit k and m for one subject",
	Long:  "Loads a subject's trial table, runs the multi-start maximum-likelihood fit and writes the \"k\",\"m\",\"ll\" params record.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		applyFitFlags(cmd, &cfg.Fit)
		if err := cfg.Validate("fit"); err != nil {
			return err
		}

		opts := fitOptions{ParamsDir: cfg.Data.ParamsDir}
		opts.Subject, _ = cmd.Flags().GetString("subject")
		opts.File, _ = cmd.Flags().GetString("file")
		format, _ := cmd.Flags().GetString("format")
		if dir, _ := cmd.Flags().GetString("params-dir"); dir != "" {
			opts.ParamsDir = dir
		}

		f, err := trialio.ParseFormat(format)
		if err != nil {
			return err
		}
		opts.Format = f

		if opts.File == "" {
			path, err := trialio.FindSubjectFile(cfg.Data.Dir, opts.Subject)
			if err != nil {
				return err
			}
			opts.File = path
		}

		result, trials, err := runFit(ctx, cmd.OutOrStdout(), estimate.NewFitter(fitSettings(cfg.Fit)), opts)
		if err != nil {
			return err
		}

		if save, _ := cmd.Flags().GetBool("save"); save {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.SaveFit(ctx, result, trials); err != nil {
				return eris.Wrap(err, "save fit")
			}
			zap.L().Info("saved fit", zap.String("id", result.ID))
		}
		return nil
	},
}

type fitOptions struct {
	Subject   string
	File      string
	Format    trialio.Format
	ParamsDir string
}

// runFit loads the trial table, fits it, prints the summary line and
// writes the params record.
func runFit(ctx context.Context, out io.Writer, fitter *estimate.Fitter, opts fitOptions) (*model.FitResult, model.Trials, error) {
	trials, err := trialio.Load(ctx, opts.File, opts.Format)
	if err != nil {
		return nil, nil, err
	}

	result, err := fitter.Fit(ctx, model.SubjectKey(opts.Subject), trials)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "fit subject %s", opts.Subject)
	}

	_, _ = fmt.Fprintf(out, "k = %.5f, m = %.3f, likelihood = %.5f\n",
		result.Params.K, result.Params.M, result.LogLikelihood)

	path, err := report.Save(opts.ParamsDir, result.Record())
	if err != nil {
		return nil, nil, err
	}
	zap.L().Info("wrote params record",
		zap.String("subject", result.Subject),
		zap.String("path", path),
	)
	return result, trials, nil
}

// fitSettings maps the fit config section onto estimator settings.
func fitSettings(fc config.FitConfig) estimate.Settings {
	return estimate.Settings{
		Restarts:          fc.Restarts,
		Workers:           fc.Workers,
		Seed:              fc.Seed,
		KStartMax:         fc.KStartMax,
		MStartMax:         fc.MStartMax,
		Bounds:            model.Bounds{KMax: fc.KMax, MMax: fc.MMax},
		DegenerateEpsilon: fc.DegenerateEpsilon,
		Local:             estimate.LocalSettings{MaxIterations: fc.MaxIter},
	}
}

// applyFitFlags copies explicitly set estimator flags over the config.
func applyFitFlags(cmd *cobra.Command, fc *config.FitConfig) {
	flags := cmd.Flags()
	if flags.Changed("restarts") {
		fc.Restarts, _ = flags.GetInt("restarts")
	}
	if flags.Changed("seed") {
		fc.Seed, _ = flags.GetUint64("seed")
	}
	if flags.Changed("workers") {
		fc.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("epsilon") {
		fc.DegenerateEpsilon, _ = flags.GetFloat64("epsilon")
	}
}

func addFitFlags(cmd *cobra.Command) {
	cmd.Flags().Int("restarts", 0, "number of random restarts (default from config)")
	cmd.Flags().Uint64("seed", 0, "random seed for start points (0 = time-based)")
	cmd.Flags().Int("workers", 0, "parallel restarts (default GOMAXPROCS)")
	cmd.Flags().Float64("epsilon", 0, "degenerate-probability guard threshold")
}

func init() {
	fitCmd.Flags().String("subject", "", "subject identifier")
	fitCmd.Flags().String("file", "", "trial table (default: staircase file for the subject in data.dir)")
	fitCmd.Flags().String("format", "auto", "input format: auto, csv, xlsx, staircase")
	fitCmd.Flags().String("params-dir", "", "directory for the params record (default from config)")
	fitCmd.Flags().Bool("save", false, "record the fit in the store")
	addFitFlags(fitCmd)
	_ = fitCmd.MarkFlagRequired("subject")
	rootCmd.AddCommand(fitCmd)
}
