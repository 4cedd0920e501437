package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GroupBy selects the report dimension.
type GroupBy string

const (
	GroupByEvent GroupBy = "EVENTO"
	GroupByUnit  GroupBy = "OM"
)

// ParseGroupBy accepts EVENTO/event and OM/unit in any case.
func ParseGroupBy(s string) (GroupBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "evento", "event", "events":
		return GroupByEvent, nil
	case "om", "unit", "units":
		return GroupByUnit, nil
	default:
		return "", fmt.Errorf("invalid group: %q (use event or unit)", s)
	}
}

// Placeholder is the label of records with no value in the grouping field.
func (g GroupBy) Placeholder() string {
	if g == GroupByUnit {
		return "Sem OM"
	}
	return "Sem Evento"
}

// TotalLabel is the label of the grand-total row.
func (g GroupBy) TotalLabel() string {
	if g == GroupByUnit {
		return "OM/TOTAIS"
	}
	return "EVENTO/TOTAIS"
}

// Status is a report classification bucket.
type Status string

const (
	StatusAuthorized Status = "authorized"
	StatusPending    Status = "pending"
	StatusCanceled   Status = "canceled"
	StatusActive     Status = "active"
)

// Bucket accumulates a count and a money sum.
type Bucket struct {
	Count int             `json:"count"`
	Value decimal.Decimal `json:"value"`
}

// Add counts one record worth v.
func (b *Bucket) Add(v decimal.Decimal) {
	b.Count++
	b.Value = b.Value.Add(v)
}

// MarshalJSON renders the value with two decimal places.
func (b Bucket) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count int    `json:"count"`
		Value string `json:"value"`
	}{b.Count, b.Value.StringFixed(2)})
}

var hundred = decimal.NewFromInt(100)

// ReportRow holds the four buckets of one group.
type ReportRow struct {
	Label       string `json:"label"`
	Authorized  Bucket `json:"authorized"`
	Pending     Bucket `json:"pending"`
	Canceled    Bucket `json:"canceled"`
	ActiveTotal Bucket `json:"activeTotal"`
}

// Bucket returns the bucket for s.
func (r ReportRow) Bucket(s Status) Bucket {
	switch s {
	case StatusAuthorized:
		return r.Authorized
	case StatusPending:
		return r.Pending
	case StatusCanceled:
		return r.Canceled
	default:
		return r.ActiveTotal
	}
}

// Percent returns bucket value / active-total value * 100, rounded to two
// places and clamped to [0, 100]. It is zero when the active total is zero.
func (r ReportRow) Percent(s Status) decimal.Decimal {
	total := r.ActiveTotal.Value
	if total.IsZero() {
		return decimal.Zero
	}
	pct := r.Bucket(s).Value.Div(total).Mul(hundred).Round(2)
	if pct.IsNegative() {
		return decimal.Zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}

// PercentString renders Percent with two decimals and a percent sign.
func (r ReportRow) PercentString(s Status) string {
	return r.Percent(s).StringFixed(2) + "%"
}

// Report is the grouped aggregation of a record set. It is rebuilt, never
// updated in place.
type Report struct {
	GroupBy     GroupBy     `json:"groupBy"`
	Rows        []ReportRow `json:"rows"`
	GrandTotal  ReportRow   `json:"grandTotal"`
	Records     int         `json:"records"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// Summary holds the dashboard counters.
type Summary struct {
	Total    int `json:"total"`
	Approved int `json:"approved"`
	Returned int `json:"returned"`
	Canceled int `json:"canceled"`
}
