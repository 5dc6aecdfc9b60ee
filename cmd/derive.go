package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/painel-gv/indicadores/internal/derive"
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Compute calculated indicators from stored series",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}

		result, err := derive.New(catalog, st, cfg.Municipality.Code).Run(cmd.Context())
		if err != nil {
			return err
		}

		zap.L().Info("derive complete",
			zap.Int("inserted", result.Inserted),
			zap.Int("updated", result.Updated),
			zap.Int("rejected", result.Rejected),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deriveCmd)
}
