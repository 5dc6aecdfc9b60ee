package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "painel",
	Short: "Municipal indicator acquisition pipeline",
	Long:  "Fetches socioeconomic indicators from official sources through priority-ordered fallback chains, normalizes them, and reconciles them into a versioned local store.",
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
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
