package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/logger"
)

func rec(evento, om, valor, situacao string) *models.Record {
	return &models.Record{ID: evento + "/" + om, Evento: evento, OM: om, Valor: valor, Situacao: situacao}
}

func sampleRecords() []*models.Record {
	return []*models.Record{
		rec("Curso", "OM-A", "R$ 1.500,00", "Pagamento autorizado"),
		rec("Curso", "OM-B", "2.000,00", "Aguardando autorização CML"),
		rec("Estágio", "OM-A", "750,50", "Processo devolvido"),
		rec("Estágio", "OM-C", "R$ 300,00", "Cancelado (DEA)"),
		rec("Missão", "OM-B", "1.000,00", "Não encaminhado à Bda"),
		rec("", "", "abc", "Encaminhado a 4ª Bda"),
		rec("Missão", "OM-C", "", ""),
		rec("Curso", "OM-A", "10,00", "PAGAMENTO AUTORIZADO - processo devolvido"),
	}
}

func TestNewReportGenerator(t *testing.T) {
	tests := []struct {
		name        string
		config      *ReportConfig
		expectError bool
	}{
		{
			name:        "default config",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      DefaultReportConfig(),
			expectError: false,
		},
		{
			name:        "invalid format",
			config:      &ReportConfig{Format: "pdf", LabelWidth: 32},
			expectError: true,
		},
		{
			name:        "label width too small",
			config:      &ReportConfig{Format: FormatConsole, LabelWidth: 4},
			expectError: true,
		},
		{
			name:        "xlsx without sheet name",
			config:      &ReportConfig{Format: FormatXLSX, LabelWidth: 32},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			generator, err := NewReportGenerator(tt.config)

			if tt.expectError {
				if err == nil {
					t.Errorf("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if generator.GetConfiguration().CSVDelimiter != ',' {
				t.Errorf("expected default CSV delimiter")
			}
		})
	}
}

func TestOutputFormatValidation(t *testing.T) {
	tests := []struct {
		format OutputFormat
		valid  bool
	}{
		{FormatConsole, true},
		{FormatJSON, true},
		{FormatCSV, true},
		{FormatXLSX, true},
		{OutputFormat("pdf"), false},
		{OutputFormat(""), false},
	}

	for _, tt := range tests {
		if got := tt.format.IsValid(); got != tt.valid {
			t.Errorf("IsValid(%q) = %v, want %v", tt.format, got, tt.valid)
		}
	}
}

func TestParseMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"R$ 1.500,00", "1500"},
		{"1.234.567,89", "1234567.89"},
		{"2000", "2000"},
		{" R$\u00a0 12,5 ", "12.5"},
		{"-30,00", "-30"},
		{"", "0"},
		{"abc", "0"},
		{"R$", "0"},
		{"1,2,3", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := ParseMoney(tt.in)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("ParseMoney(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	c := DefaultClassifier()

	tests := []struct {
		status string
		want   Classification
	}{
		{"Pagamento autorizado", Classification{Authorized: true}},
		{"  pagamento AUTORIZADO em 10/02 ", Classification{Authorized: true}},
		{"Aguardando autorizacao CML", Classification{Pending: true}},
		{"Processo encaminhado Esc Sp", Classification{Pending: true}},
		{"Encaminhado à 4ª Bda", Classification{Pending: true}},
		{"encaminhado a 4ª bda", Classification{Pending: true}},
		{"Cancelado (DEA)", Classification{Canceled: true}},
		{"Processo devolvido", Classification{Canceled: true}},
		{"Pagamento autorizado - processo devolvido", Classification{Canceled: true}},
		{"Não encaminhado à Bda", Classification{}},
		{"Encaminhado para a 4ª Bda", Classification{}},
		{"", Classification{}},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			got := c.Classify(tt.status)
			if got != tt.want {
				t.Errorf("Classify(%q) = %+v, want %+v", tt.status, got, tt.want)
			}
			if got.Active() == got.Canceled {
				t.Errorf("Active() must be the complement of Canceled")
			}
		})
	}
}

func TestParseClassifier(t *testing.T) {
	c, err := ParseClassifier([]byte("pending:\n  - encaminhado\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Pending) != 1 || c.Authorized[0] != "pagamento autorizado" {
		t.Errorf("unexpected classifier %+v", c)
	}
	if !c.Classify("Encaminhado para a 4ª Bda").Pending {
		t.Errorf("configured phrase should classify as pending")
	}

	if _, err := ParseClassifier([]byte("pending: [unterminated")); err == nil {
		t.Errorf("expected error for malformed YAML")
	}

	path := filepath.Join(t.TempDir(), "status.yaml")
	if err := os.WriteFile(path, []byte("canceled: [anulado]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadClassifier(path)
	if err != nil || !loaded.Classify("ANULADO").Canceled {
		t.Errorf("LoadClassifier() = %+v, %v", loaded, err)
	}
	if _, err := LoadClassifier(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
	if c, err := LoadClassifier(""); err != nil || len(c.Pending) != 4 {
		t.Errorf("empty path should give the defaults")
	}
}

func TestAggregateScenario(t *testing.T) {
	classifier := DefaultClassifier()
	classifier.Pending = append(classifier.Pending, "encaminhado para a 4ª bda")

	records := []*models.Record{
		{ID: "3", Evento: "Curso", Valor: "1.500,00", Situacao: "Não encaminhado à Bda", OM: "OM-A"},
		{ID: "4", Evento: "Curso", Valor: "2.000,00", NrDiex: "77", Situacao: "Encaminhado para a 4ª Bda", OM: "OM-A"},
	}

	report := Aggregate(records, models.GroupByUnit, classifier)
	if len(report.Rows) != 1 || report.Rows[0].Label != "OM-A" {
		t.Fatalf("unexpected rows %+v", report.Rows)
	}
	row := report.Rows[0]
	if row.Pending.Count != 1 || row.Canceled.Count != 0 || row.ActiveTotal.Count != 2 {
		t.Errorf("unexpected buckets %+v", row)
	}
	if row.ActiveTotal.Value.StringFixed(2) != "3500.00" {
		t.Errorf("active total value = %s, want 3500.00", row.ActiveTotal.Value.StringFixed(2))
	}
	if row.PercentString(models.StatusPending) != "57.14%" {
		t.Errorf("pending percent = %s", row.PercentString(models.StatusPending))
	}
	if report.GrandTotal.Label != "OM/TOTAIS" || report.GrandTotal.ActiveTotal.Count != 2 {
		t.Errorf("unexpected grand total %+v", report.GrandTotal)
	}
}

func TestAggregateProperties(t *testing.T) {
	classifier := DefaultClassifier()
	records := sampleRecords()

	for _, groupBy := range []models.GroupBy{models.GroupByEvent, models.GroupByUnit} {
		t.Run(string(groupBy), func(t *testing.T) {
			report := Aggregate(records, groupBy, classifier)
			total := report.GrandTotal

			// closure
			var neither int
			for _, r := range records {
				c := classifier.Classify(r.Situacao)
				if !c.Authorized && !c.Pending && !c.Canceled {
					neither++
				}
				if (c.Authorized && c.Pending) || (c.Authorized && c.Canceled) || (c.Pending && c.Canceled) {
					t.Errorf("status %q falls in more than one bucket", r.Situacao)
				}
			}
			if total.ActiveTotal.Count != total.Authorized.Count+total.Pending.Count+neither {
				t.Errorf("active count %d != %d + %d + %d",
					total.ActiveTotal.Count, total.Authorized.Count, total.Pending.Count, neither)
			}
			if total.ActiveTotal.Count+total.Canceled.Count != len(records) {
				t.Errorf("active + canceled = %d, want %d", total.ActiveTotal.Count+total.Canceled.Count, len(records))
			}

			// grand-total consistency
			for _, s := range []models.Status{models.StatusAuthorized, models.StatusPending, models.StatusCanceled, models.StatusActive} {
				sum := decimal.Zero
				count := 0
				for _, row := range report.Rows {
					sum = sum.Add(row.Bucket(s).Value)
					count += row.Bucket(s).Count
				}
				if !sum.Equal(total.Bucket(s).Value) || count != total.Bucket(s).Count {
					t.Errorf("%s: rows sum to %s/%d, grand total %s/%d",
						s, sum, count, total.Bucket(s).Value, total.Bucket(s).Count)
				}
			}

			// percentage bound
			for _, row := range append(report.Rows, total) {
				for _, s := range []models.Status{models.StatusAuthorized, models.StatusPending, models.StatusCanceled} {
					pct := row.Percent(s)
					if pct.IsNegative() || pct.GreaterThan(decimal.NewFromInt(100)) {
						t.Errorf("%s %s percent %s out of range", row.Label, s, pct)
					}
					if row.ActiveTotal.Value.IsZero() && !pct.IsZero() {
						t.Errorf("%s %s percent %s with zero active total", row.Label, s, pct)
					}
				}
			}

			// sorted labels
			for i := 1; i < len(report.Rows); i++ {
				if report.Rows[i-1].Label >= report.Rows[i].Label {
					t.Errorf("rows not sorted: %q before %q", report.Rows[i-1].Label, report.Rows[i].Label)
				}
			}
		})
	}
}

func TestAggregatePlaceholdersAndLabels(t *testing.T) {
	records := sampleRecords()

	byEvent := Aggregate(records, models.GroupByEvent, nil)
	labels := make([]string, len(byEvent.Rows))
	for i, r := range byEvent.Rows {
		labels[i] = r.Label
	}
	if strings.Join(labels, ",") != "Curso,Estágio,Missão,Sem Evento" {
		t.Errorf("event labels = %v", labels)
	}
	if byEvent.GrandTotal.Label != "EVENTO/TOTAIS" || byEvent.Records != len(records) {
		t.Errorf("unexpected grand total %+v", byEvent.GrandTotal)
	}

	byUnit := Aggregate(records, models.GroupByUnit, nil)
	if byUnit.Rows[len(byUnit.Rows)-1].Label != "Sem OM" {
		t.Errorf("expected placeholder group, got %+v", byUnit.Rows)
	}

	empty := Aggregate(nil, models.GroupByUnit, nil)
	if len(empty.Rows) != 0 || !empty.GrandTotal.Percent(models.StatusAuthorized).IsZero() {
		t.Errorf("unexpected empty report %+v", empty)
	}
}

func TestAggregateCanceledExceedingActive(t *testing.T) {
	records := []*models.Record{
		rec("Curso", "OM-A", "1.000,00", "Processo devolvido"),
		rec("Curso", "OM-A", "10,00", "Pagamento autorizado"),
	}
	row := Aggregate(records, models.GroupByEvent, nil).Rows[0]
	if row.PercentString(models.StatusCanceled) != "100.00%" {
		t.Errorf("canceled percent = %s, want clamp to 100.00%%", row.PercentString(models.StatusCanceled))
	}
	if row.PercentString(models.StatusAuthorized) != "100.00%" {
		t.Errorf("authorized percent = %s", row.PercentString(models.StatusAuthorized))
	}
}

func TestSummarize(t *testing.T) {
	records := []*models.Record{
		{Situacao: "Aprovado"},
		{Situacao: "Processo devolvido"},
		{Situacao: "Cancelado (DEA)"},
		{Situacao: "aprovado e cancelado"},
		{Situacao: ""},
	}
	got := Summarize(records)
	want := models.Summary{Total: 5, Approved: 2, Returned: 1, Canceled: 2}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func sampleReport() *models.Report {
	report := Aggregate(sampleRecords(), models.GroupByUnit, nil)
	report.GeneratedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return report
}

func TestGenerateReport(t *testing.T) {
	report := sampleReport()

	tests := []struct {
		name   string
		format OutputFormat
		check  func(t *testing.T, out []byte)
	}{
		{
			name:   "console",
			format: FormatConsole,
			check: func(t *testing.T, out []byte) {
				s := string(out)
				for _, want := range []string{"RELATÓRIO DE GRATIFICAÇÕES POR OM", "OM/TOTAIS", "OM-A", "Sem OM", "Total Ativo", "1.500,00"} {
					if !strings.Contains(s, want) {
						t.Errorf("console output missing %q:\n%s", want, s)
					}
				}
				if strings.Index(s, "OM/TOTAIS") < strings.Index(s, "OM-C") {
					t.Errorf("grand total should be the footer")
				}
			},
		},
		{
			name:   "json",
			format: FormatJSON,
			check: func(t *testing.T, out []byte) {
				var decoded struct {
					GroupBy    string `json:"groupBy"`
					Records    int    `json:"records"`
					GrandTotal struct {
						Label      string            `json:"label"`
						Authorized map[string]any    `json:"authorized"`
						Percent    map[string]string `json:"percent"`
					} `json:"grandTotal"`
					Rows []map[string]any `json:"rows"`
				}
				if err := json.Unmarshal(out, &decoded); err != nil {
					t.Fatalf("invalid JSON: %v", err)
				}
				if decoded.GroupBy != "OM" || decoded.Records != 8 || len(decoded.Rows) != 4 {
					t.Errorf("unexpected JSON %+v", decoded)
				}
				if decoded.GrandTotal.Authorized["value"] != "1500.00" {
					t.Errorf("authorized value = %v", decoded.GrandTotal.Authorized["value"])
				}
				if !strings.HasSuffix(decoded.GrandTotal.Percent["authorized"], "%") {
					t.Errorf("percent = %v", decoded.GrandTotal.Percent)
				}
			},
		},
		{
			name:   "csv",
			format: FormatCSV,
			check: func(t *testing.T, out []byte) {
				lines, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
				if err != nil {
					t.Fatalf("invalid CSV: %v", err)
				}
				if len(lines) != 1+1+len(report.Rows) {
					t.Fatalf("got %d lines", len(lines))
				}
				if len(lines[0]) != 12 || lines[0][0] != "OM" || lines[1][0] != "OM/TOTAIS" {
					t.Errorf("unexpected header/total lines %v / %v", lines[0], lines[1])
				}
				if lines[1][2] != "1500.00" {
					t.Errorf("authorized value = %s", lines[1][2])
				}
			},
		},
		{
			name:   "xlsx",
			format: FormatXLSX,
			check: func(t *testing.T, out []byte) {
				f, err := excelize.OpenReader(bytes.NewReader(out))
				if err != nil {
					t.Fatalf("invalid workbook: %v", err)
				}
				defer f.Close()

				raw := excelize.Options{RawCellValue: true}
				label, _ := f.GetCellValue("Relatório", "A4")
				count, _ := f.GetCellValue("Relatório", "K4", raw)
				value, _ := f.GetCellValue("Relatório", "C4", raw)
				group, _ := f.GetCellValue("Relatório", "A5")
				if label != "OM/TOTAIS" || count != "5" || value != "1500" || group != "OM-A" {
					t.Errorf("unexpected cells: %q %q %q %q", label, count, value, group)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultReportConfig()
			config.Format = tt.format
			generator, err := NewReportGenerator(config)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var buf bytes.Buffer
			if err := generator.GenerateReport(report, &buf); err != nil {
				t.Fatalf("GenerateReport() error = %v", err)
			}
			tt.check(t, buf.Bytes())
		})
	}
}

func TestGenerateReportNil(t *testing.T) {
	generator, _ := NewReportGenerator(nil)
	if err := generator.GenerateReport(nil, &bytes.Buffer{}); err == nil {
		t.Errorf("expected error for nil report")
	}
}

func TestFormatMoney(t *testing.T) {
	tests := map[string]string{
		"0.00":       "0,00",
		"999.99":     "999,99",
		"1500.00":    "1.500,00",
		"1234567.89": "1.234.567,89",
		"-1500.50":   "-1.500,50",
	}
	for in, want := range tests {
		if got := formatMoney(in); got != want {
			t.Errorf("formatMoney(%q) = %q, want %q", in, got, want)
		}
	}
}

// failOnce rejects its first write.
type failOnce struct {
	bytes.Buffer
	failed bool
}

func (f *failOnce) Write(p []byte) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("broken pipe")
	}
	return f.Buffer.Write(p)
}

func TestSafeReportGenerator(t *testing.T) {
	report := sampleReport()

	t.Run("format fallback", func(t *testing.T) {
		config := DefaultReportConfig()
		config.Format = FormatJSON
		srg, err := NewSafeReportGenerator(config, logger.Discard())
		if err != nil {
			t.Fatal(err)
		}

		w := &failOnce{}
		if err := srg.GenerateReportSafely(report, w); err != nil {
			t.Fatalf("expected fallback to succeed, got %v", err)
		}
		if !strings.Contains(w.String(), "NOTE: json output failed") || !strings.Contains(w.String(), "OM/TOTAIS") {
			t.Errorf("unexpected fallback output:\n%s", w.String())
		}
	})

	t.Run("output fallback", func(t *testing.T) {
		config := DefaultReportConfig()
		config.Format = FormatCSV
		srg, _ := NewSafeReportGenerator(config, logger.Discard())

		path := filepath.Join(t.TempDir(), "report.csv")
		file, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		file.Close()

		if err := srg.GenerateReportSafely(report, file); err != nil {
			t.Fatalf("expected output fallback to succeed, got %v", err)
		}
		data, err := os.ReadFile(backupPathFor(path))
		if err != nil {
			t.Fatalf("backup not written: %v", err)
		}
		if !strings.Contains(string(data), "OM/TOTAIS") {
			t.Errorf("unexpected backup content: %s", data)
		}
	})

	t.Run("validation", func(t *testing.T) {
		srg, _ := NewSafeReportGenerator(nil, logger.Discard())
		if err := srg.GenerateReportSafely(nil, &bytes.Buffer{}); err == nil {
			t.Errorf("expected error for nil report")
		}
		if err := srg.GenerateReportSafely(&models.Report{GroupBy: "MES"}, &bytes.Buffer{}); err == nil {
			t.Errorf("expected error for unknown grouping")
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		if _, err := NewSafeReportGenerator(&ReportConfig{Format: "pdf"}, logger.Discard()); err == nil {
			t.Errorf("expected configuration error")
		}
	})
}

func TestBackupPathFor(t *testing.T) {
	if got := backupPathFor(filepath.Join("out", "report.csv")); got != filepath.Join("out", "report_backup.csv") {
		t.Errorf("backupPathFor() = %q", got)
	}
}

func BenchmarkAggregate(b *testing.B) {
	records := make([]*models.Record, 0, 2000)
	for i := 0; i < 250; i++ {
		records = append(records, sampleRecords()...)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Aggregate(records, models.GroupByUnit, nil)
	}
}
