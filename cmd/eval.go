package main

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/sells-group/fitk/internal/estimate"
	"github.com/sells-group/fitk/internal/model"
	"github.com/sells-group/fitk/internal/trialio"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Evaluate the negative log-likelihood at a given (k, m)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		k, _ := cmd.Flags().GetFloat64("k")
		m, _ := cmd.Flags().GetFloat64("m")
		file, _ := cmd.Flags().GetString("file")
		format, _ := cmd.Flags().GetString("format")

		eps := cfg.Fit.DegenerateEpsilon
		if cmd.Flags().Changed("epsilon") {
			eps, _ = cmd.Flags().GetFloat64("epsilon")
		}

		f, err := trialio.ParseFormat(format)
		if err != nil {
			return err
		}
		trials, err := trialio.Load(cmd.Context(), file, f)
		if err != nil {
			return err
		}
		if err := trials.Validate(); err != nil {
			return err
		}

		eval := estimate.NewEvaluator(trials, estimate.WithDegenerateEpsilon(eps))
		printEval(cmd.OutOrStdout(), eval, model.Params{K: k, M: m})
		return nil
	},
}

// printEval writes the cost and log-likelihood at p.
func printEval(out io.Writer, eval *estimate.Evaluator, p model.Params) {
	cost := eval.Cost(p)
	_, _ = fmt.Fprintf(out, "k = %g, m = %g, cost = %g, likelihood = %g\n", p.K, p.M, cost, -cost)
	if math.IsInf(cost, 1) {
		_, _ = fmt.Fprintln(out, "degenerate: an observed choice has zero probability at these parameters")
	}
}

func init() {
	evalCmd.Flags().Float64("k", 0, "discounting rate")
	evalCmd.Flags().Float64("m", 0, "choice sensitivity")
	evalCmd.Flags().String("file", "", "trial table")
	evalCmd.Flags().String("format", "auto", "input format: auto, csv, xlsx, staircase")
	evalCmd.Flags().Float64("epsilon", 0, "degenerate-probability guard threshold (default from config)")
	_ = evalCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(evalCmd)
}
