// Package reporter aggregates map records into gratuity reports and renders
// them.
//
// Records are classified by their status text into authorized, pending and
// canceled buckets; every record that is not canceled also counts toward the
// active total. Each bucket carries a count and a money sum, per group and
// for the grand total.
//
// Supported output formats:
//   - Console: fixed-width table for terminal display
//   - JSON: structured data for programmatic consumption
//   - CSV: one line per group for spreadsheet applications
//   - XLSX: a workbook with money as numbers
//
// Example usage:
//
//	report := reporter.Aggregate(records, models.GroupByUnit, reporter.DefaultClassifier())
//	generator, err := reporter.NewReportGenerator(&reporter.ReportConfig{Format: reporter.FormatJSON})
//	err = generator.GenerateReport(report, os.Stdout)
package reporter

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"gratuity-map-service/internal/models"
)

// OutputFormat represents the supported report output formats.
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatXLSX    OutputFormat = "xlsx"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatXLSX:
		return true
	default:
		return false
	}
}

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format" toml:"format"`

	// Console formatting options
	LabelWidth   int  `json:"label_width" mapstructure:"label_width" toml:"label_width"`
	ShowPercents bool `json:"show_percents" mapstructure:"show_percents" toml:"show_percents"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"-" toml:"-"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers" toml:"csv_headers"`

	// XLSX options
	SheetName string `json:"sheet_name" mapstructure:"sheet_name" toml:"sheet_name"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:       FormatConsole,
		LabelWidth:   32,
		ShowPercents: true,
		CSVDelimiter: ',',
		CSVHeaders:   true,
		SheetName:    "Relatório",
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}

	if c.LabelWidth < 10 {
		return fmt.Errorf("label width must be at least 10 characters, got %d", c.LabelWidth)
	}

	if c.Format == FormatXLSX && strings.TrimSpace(c.SheetName) == "" {
		return fmt.Errorf("sheet name is required for xlsx output")
	}

	return nil
}

// ReportGenerator renders reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}
	if config.CSVDelimiter == 0 {
		config.CSVDelimiter = ','
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport renders report and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(report *models.Report, writer io.Writer) error {
	if report == nil {
		return fmt.Errorf("report cannot be nil")
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(report, writer)
	case FormatJSON:
		return rg.generateJSONReport(report, writer)
	case FormatCSV:
		return rg.generateCSVReport(report, writer)
	case FormatXLSX:
		return rg.generateXLSXReport(report, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

var bucketTitles = []struct {
	status models.Status
	title  string
}{
	{models.StatusAuthorized, "Autorizado"},
	{models.StatusPending, "Pendente"},
	{models.StatusCanceled, "Cancelado"},
	{models.StatusActive, "Total Ativo"},
}

// generateConsoleReport writes a fixed-width table, group rows first and
// the grand total as the footer.
func (rg *ReportGenerator) generateConsoleReport(report *models.Report, writer io.Writer) error {
	w := &errWriter{w: writer}

	w.printf("RELATÓRIO DE GRATIFICAÇÕES POR %s\n", report.GroupBy)
	if !report.GeneratedAt.IsZero() {
		w.printf("Gerado em: %s\n", report.GeneratedAt.Format(time.RFC3339))
	}
	w.printf("Registros: %d\n\n", report.Records)

	width := rg.config.LabelWidth
	w.printf("%-*s", width, string(report.GroupBy))
	for _, b := range bucketTitles {
		w.printf(" | %-26s", b.title)
	}
	w.printf("\n")
	rule := strings.Repeat("-", width+len(bucketTitles)*29)
	w.printf("%s\n", rule)

	for _, row := range report.Rows {
		rg.printRow(w, row)
	}
	if len(report.Rows) > 0 {
		w.printf("%s\n", rule)
	}
	rg.printRow(w, report.GrandTotal)

	return w.err
}

func (rg *ReportGenerator) printRow(w *errWriter, row models.ReportRow) {
	w.printf("%-*s", rg.config.LabelWidth, truncate(row.Label, rg.config.LabelWidth))
	for _, b := range bucketTitles {
		bucket := row.Bucket(b.status)
		cell := fmt.Sprintf("%4d  R$ %s", bucket.Count, formatMoney(bucket.Value.StringFixed(2)))
		if rg.config.ShowPercents && b.status != models.StatusActive {
			cell += " " + row.PercentString(b.status)
		}
		w.printf(" | %-26s", cell)
	}
	w.printf("\n")
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(report *models.Report, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(rg.filterReportForOutput(report))
}

// generateCSVReport writes the grand total first, then one line per group.
func (rg *ReportGenerator) generateCSVReport(report *models.Report, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(rg.columnTitles(report.GroupBy)); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	rows := append([]models.ReportRow{report.GrandTotal}, report.Rows...)
	for _, row := range rows {
		record := []string{row.Label}
		for _, b := range bucketTitles {
			bucket := row.Bucket(b.status)
			record = append(record, strconv.Itoa(bucket.Count), bucket.Value.StringFixed(2))
			if b.status != models.StatusActive {
				record = append(record, row.Percent(b.status).StringFixed(2))
			}
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write report row %q: %w", row.Label, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// columnTitles is the header line shared by the CSV and XLSX outputs.
func (rg *ReportGenerator) columnTitles(groupBy models.GroupBy) []string {
	titles := []string{string(groupBy)}
	for _, b := range bucketTitles {
		titles = append(titles, b.title+" Qtd", b.title+" Valor")
		if b.status != models.StatusActive {
			titles = append(titles, b.title+" %")
		}
	}
	return titles
}

func (rg *ReportGenerator) filterReportForOutput(report *models.Report) map[string]interface{} {
	rows := make([]map[string]interface{}, 0, len(report.Rows))
	for _, row := range report.Rows {
		rows = append(rows, rowForOutput(row))
	}

	output := map[string]interface{}{
		"groupBy":    report.GroupBy,
		"records":    report.Records,
		"rows":       rows,
		"grandTotal": rowForOutput(report.GrandTotal),
	}
	if !report.GeneratedAt.IsZero() {
		output["generatedAt"] = report.GeneratedAt
	}
	return output
}

func rowForOutput(row models.ReportRow) map[string]interface{} {
	return map[string]interface{}{
		"label":       row.Label,
		"authorized":  row.Authorized,
		"pending":     row.Pending,
		"canceled":    row.Canceled,
		"activeTotal": row.ActiveTotal,
		"percent": map[string]string{
			"authorized": row.PercentString(models.StatusAuthorized),
			"pending":    row.PercentString(models.StatusPending),
			"canceled":   row.PercentString(models.StatusCanceled),
		},
	}
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}

// formatMoney renders a plain decimal string ("1500.00") the Brazilian way
// ("1.500,00").
func formatMoney(plain string) string {
	sign := ""
	if strings.HasPrefix(plain, "-") {
		sign, plain = "-", plain[1:]
	}
	whole, frac, _ := strings.Cut(plain, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte(',')
		b.WriteString(frac)
	}
	return sign + b.String()
}

func truncate(s string, width int) string {
	if utf8.RuneCountInString(s) <= width {
		return s
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

// errWriter keeps the first write error so the console renderer can print
// freely and check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
