package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/painel-gv/indicadores/internal/audit"
	"github.com/painel-gv/indicadores/internal/model"
)

var auditJSON bool

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Report freshness of every stored indicator",
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

		report, err := audit.New(st, catalog, cfg.Freshness).Report(cmd.Context())
		if err != nil {
			return err
		}

		if auditJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "INDICATOR\tLAST PERIOD\tSOURCE\tTHRESHOLD\tSTATUS")
		stale := 0
		for _, f := range report {
			if f.Status == model.FreshnessStale {
				stale++
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%dy\t%s\n",
				f.IndicatorKey, f.LastPeriod, f.Source, f.ThresholdYears, f.Status)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Printf("\n%d indicators, %d stale\n", len(report), stale)
		return nil
	},
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(auditCmd)
}
