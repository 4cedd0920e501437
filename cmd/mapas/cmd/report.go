package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/reporter"
	"gratuity-map-service/pkg/errors"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Aggregate the visible records by event or unit",
	Long: `Report groups the visible records by event or by unit and sums count and
value of authorized, pending and canceled maps, with percentages of the
active total.

Examples:
  mapas report
  mapas report --group-by unit --format csv
  mapas report --format xlsx --output relatorio.xlsx`,
	PreRunE: validateReportFlags,
	RunE:    runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	addFilterFlags(reportCmd)

	reportCmd.Flags().StringP("group-by", "g", "event", "group by: event, unit")
	reportCmd.Flags().StringP("format", "f", "console", "output format: console, json, csv, xlsx")
	reportCmd.Flags().StringP("output", "o", "", "output file path (default: stdout)")

	viper.BindPFlag("report.group_by", reportCmd.Flags().Lookup("group-by"))
	viper.BindPFlag("report.format", reportCmd.Flags().Lookup("format"))
	viper.BindPFlag("report.output", reportCmd.Flags().Lookup("output"))
}

func validateReportFlags(cmd *cobra.Command, args []string) error {
	if _, err := models.ParseGroupBy(viper.GetString("report.group_by")); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "group-by", viper.GetString("report.group_by"), err)
	}

	format := reporter.OutputFormat(strings.ToLower(viper.GetString("report.format")))
	if !format.IsValid() {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "format", format, nil).
			WithSuggestion("use console, json, csv or xlsx")
	}

	out := viper.GetString("report.output")
	if out != "" {
		dir := filepath.Dir(out)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err)
			}
		}
	}
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	groupBy, _ := models.ParseGroupBy(a.cfg.Report.GroupBy)
	format := reporter.OutputFormat(strings.ToLower(string(a.cfg.Report.Format)))

	st, err := a.state(ctx)
	if err != nil {
		return err
	}
	st = st.WithFilter(currentFilters()).WithGroupBy(groupBy)
	report := a.service.Report(st)

	gen, err := reporter.NewSafeReportGenerator(a.cfg.ReportConfig(format), a.log)
	if err != nil {
		return err
	}

	var w = cmd.OutOrStdout()
	if a.cfg.Report.Output != "" {
		f, err := output(a.cfg.Report.Output)
		if err != nil {
			return errors.FileError(errors.CodeFilePermission, a.cfg.Report.Output, err)
		}
		defer f.Close()
		w = f
	}

	if err := gen.GenerateReportSafely(report, w); err != nil {
		return err
	}
	if a.cfg.Report.Output != "" && viper.GetBool("verbose") {
		fmt.Fprintf(os.Stderr, "Report written to %s\n", a.cfg.Report.Output)
	}
	return nil
}
