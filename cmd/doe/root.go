package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ohowland/doe_core/internal/pkg/config"
)

var (
	cfg     *config.Config
	cfgPath string
)

var rootCmd = &cobra.Command{
	Use:   "doe",
	Short: "Dynamic operating envelope engine for radial LV networks",
	Long: "Computes per-customer export and import power limits that keep every node voltage\n" +
		"and branch loading of a radial low voltage network within its operating limits,\n" +
		"under forecast uncertainty.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		cfg = c
		return config.InitLogger(cfg.Log)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "engine config file (default ./doe.yaml)")
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
