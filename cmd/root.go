package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fitk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "fitk",
	Short: "Hyperbolic discounting model estimator",
	Long:  "Fits the discounting rate k and choice sensitivity m of a hyperbolic softmax choice model to intertemporal choice data by multi-start maximum likelihood.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
