package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var (
	seriesSource string
	seriesJSON   bool
)

var seriesCmd = &cobra.Command{
	Use:   "series <indicator-key>",
	Short: "Print the stored series for an indicator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := args[0]

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		catalog, err := loadCatalog()
		if err != nil {
			return err
		}
		ind, ok := catalog.Get(key)
		if !ok {
			return eris.Errorf("unknown indicator: %s", key)
		}

		series, err := st.GetSeries(cmd.Context(), key, seriesSource)
		if err != nil {
			return err
		}

		if seriesJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(series)
		}

		fmt.Printf("%s (%s)\n", ind.Name, ind.Unit)
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "PERIOD\tVALUE\tSOURCE\tRANK")
		for _, rec := range series {
			value := "(unavailable)"
			if rec.Value != nil {
				value = fmt.Sprintf("%.2f", *rec.Value)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", rec.Period, value, rec.Source, rec.PriorityRank)
		}
		return w.Flush()
	},
}

func init() {
	seriesCmd.Flags().StringVar(&seriesSource, "source", "", "restrict to one source (default: best per period)")
	seriesCmd.Flags().BoolVar(&seriesJSON, "json", false, "emit JSON")
	rootCmd.AddCommand(seriesCmd)
}
