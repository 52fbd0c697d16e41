package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/simulate"
	"github.com/sells-group/fitk/internal/trialio"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Generate a synthetic trial set from known (k, m)",
	Long:  "Draws offers around the subject's indifference points and samples choices from the softmax model. Output is CSV, or XLSX when --out ends in .xlsx.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		k, _ := cmd.Flags().GetFloat64("k")
		m, _ := cmd.Flags().GetFloat64("m")
		n, _ := cmd.Flags().GetInt("n")
		seed, _ := cmd.Flags().GetUint64("seed")
		out, _ := cmd.Flags().GetString("out")

		gen := simulate.NewGenerator(seed, simulate.DefaultDesign())
		trials, err := gen.Trials(model.Params{K: k, M: m}, n)
		if err != nil {
			return err
		}

		zap.L().Info("simulated trials",
			zap.Float64("k", k),
			zap.Float64("m", m),
			zap.Int("trials", len(trials)),
			zap.Int("ll_choices", trials.CountLL()),
			zap.Uint64("seed", gen.Seed()),
		)

		return writeTrials(cmd.OutOrStdout(), out, trials)
	},
}

// writeTrials writes trials to path, or to stdout when path is empty or "-".
func writeTrials(stdout io.Writer, path string, trials model.Trials) error {
	switch {
	case path == "" || path == "-":
		return trialio.WriteCSV(stdout, trials)
	case strings.EqualFold(filepath.Ext(path), ".xlsx"):
		return trialio.WriteXLSX(path, trials)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "simulate: create %s", path)
	}
	if err := trialio.WriteCSV(f, trials); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrap(f.Close(), "simulate: close output")
}

func init() {
	simulateCmd.Flags().Float64("k", 0.02, "discounting rate")
	simulateCmd.Flags().Float64("m", 5, "choice sensitivity")
	simulateCmd.Flags().Int("n", 200, "number of trials")
	simulateCmd.Flags().Uint64("seed", 0, "random seed (0 = time-based)")
	simulateCmd.Flags().String("out", "", "output path (default stdout)")
	rootCmd.AddCommand(simulateCmd)
}
