package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/models"
)

var (
	filterMap    string
	filterStatus string
	filterUnit   string
	recordsJSON  bool
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "List the map records",
	Long: `Records loads the control sheet and lists the records visible to the
viewer, optionally filtered by map id, status and unit. Filters are
case-insensitive substrings.

Examples:
  mapas records
  mapas records --status autorizado --om OM-A
  mapas records --as-om OM-B --json`,
	RunE: runRecords,
}

func init() {
	rootCmd.AddCommand(recordsCmd)
	addFilterFlags(recordsCmd)
	recordsCmd.Flags().BoolVar(&recordsJSON, "json", false, "print records as JSON")
}

func addFilterFlags(c *cobra.Command) {
	c.Flags().StringVar(&filterMap, "mapa", "", "filter by map id")
	c.Flags().StringVar(&filterStatus, "status", "", "filter by status")
	c.Flags().StringVar(&filterUnit, "om", "", "filter by unit")
}

func currentFilters() dashboard.Filters {
	return dashboard.Filters{Map: filterMap, Status: filterStatus, Unit: filterUnit}
}

func runRecords(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.state(ctx)
	if err != nil {
		return err
	}
	st = st.WithFilter(currentFilters())

	if recordsJSON {
		return writeRecordsJSON(cmd.OutOrStdout(), st)
	}
	return writeRecordsTable(cmd.OutOrStdout(), st.Visible(), st.Summary())
}

func writeRecordsJSON(w io.Writer, st dashboard.State) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"records": st.Visible(),
		"summary": st.Summary(),
	})
}

func writeRecordsTable(w io.Writer, records []*models.Record, summary models.Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINHA\tMAPA\tEVENTO\tVALOR\tSITUAÇÃO\tOM")
	for _, rec := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			rec.Ref.RowNumber, rec.ID, rec.Evento, rec.Valor, rec.Situacao, rec.OM)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d mapas (%d autorizados, %d devolvidos, %d cancelados)\n",
		summary.Total, summary.Approved, summary.Returned, summary.Canceled)
	return err
}
