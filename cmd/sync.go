package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	syncIndicators []string
	syncWorkers    int
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch and reconcile indicators through their fallback chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if syncWorkers > 0 {
			cfg.Sync.Workers = syncWorkers
		}

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		for _, key := range syncIndicators {
			if _, ok := env.Catalog.Get(key); !ok {
				return eris.Errorf("unknown indicator: %s", key)
			}
		}

		run, err := env.Pipeline.Sync(ctx, syncIndicators)
		if err != nil {
			return err
		}

		zap.L().Info("sync complete",
			zap.String("run_id", run.ID),
			zap.Int("served", run.Report.Served),
			zap.Int("gaps", run.Report.Gaps),
			zap.Int("failed", run.Report.Failed),
		)
		return nil
	},
}

func init() {
	syncCmd.Flags().StringSliceVar(&syncIndicators, "indicator", nil, "indicator keys to sync (default: all)")
	syncCmd.Flags().IntVar(&syncWorkers, "workers", 0, "concurrent indicator workers (default from config)")
	rootCmd.AddCommand(syncCmd)
}
