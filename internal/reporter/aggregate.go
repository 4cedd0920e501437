package reporter

import (
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
)

// ParseMoney reads display-formatted currency such as "R$ 1.500,00". The
// currency symbol, whitespace and thousands dots are dropped and the decimal
// comma becomes a point. Anything that still does not parse is zero.
func ParseMoney(s string) decimal.Decimal {
	s = strings.ReplaceAll(s, "R$", "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '.' {
			return -1
		}
		if r == ',' {
			return '.'
		}
		return r
	}, s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Aggregate groups records by event or unit and fills the four buckets of
// every group and of the grand total. Rows are sorted by label. The caller
// stamps GeneratedAt.
func Aggregate(records []*models.Record, groupBy models.GroupBy, classifier *Classifier) *models.Report {
	if classifier == nil {
		classifier = DefaultClassifier()
	}
	if groupBy != models.GroupByUnit {
		groupBy = models.GroupByEvent
	}

	groups := make(map[string]*models.ReportRow)
	total := models.ReportRow{Label: groupBy.TotalLabel()}

	for _, rec := range records {
		label := groupLabel(rec, groupBy)
		row, ok := groups[label]
		if !ok {
			row = &models.ReportRow{Label: label}
			groups[label] = row
		}

		value := ParseMoney(rec.Valor)
		class := classifier.Classify(rec.Situacao)
		accumulate(row, class, value)
		accumulate(&total, class, value)
	}

	rows := make([]models.ReportRow, 0, len(groups))
	for _, row := range groups {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Label < rows[j].Label })

	return &models.Report{
		GroupBy:    groupBy,
		Rows:       rows,
		GrandTotal: total,
		Records:    len(records),
	}
}

func groupLabel(rec *models.Record, groupBy models.GroupBy) string {
	label := rec.Evento
	if groupBy == models.GroupByUnit {
		label = rec.OM
	}
	if strings.TrimSpace(label) == "" {
		return groupBy.Placeholder()
	}
	return label
}

func accumulate(row *models.ReportRow, class Classification, value decimal.Decimal) {
	switch {
	case class.Canceled:
		row.Canceled.Add(value)
	case class.Authorized:
		row.Authorized.Add(value)
	case class.Pending:
		row.Pending.Add(value)
	}
	if class.Active() {
		row.ActiveTotal.Add(value)
	}
}

// Summarize counts the dashboard headline numbers from the status texts.
// Each counter is an independent substring test.
func Summarize(records []*models.Record) models.Summary {
	s := models.Summary{Total: len(records)}
	for _, rec := range records {
		status := matcher.Fold(rec.Situacao)
		if strings.Contains(status, "aprovado") {
			s.Approved++
		}
		if strings.Contains(status, "devolvido") {
			s.Returned++
		}
		if strings.Contains(status, "cancelado") {
			s.Canceled++
		}
	}
	return s
}
