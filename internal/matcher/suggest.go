package matcher

import (
	"github.com/schollz/closestmatch"

	"gratuity-map-service/internal/models"
)

// Diagnostic describes a field that did not resolve, with the header closest
// to its first candidate so the operator can fix the table or the sheet.
type Diagnostic struct {
	Field      models.Field `json:"field"`
	Candidates []string     `json:"candidates"`
	Suggestion string       `json:"suggestion,omitempty"`
}

// Suggest returns the clean header closest to candidate, or "" when the
// header row is empty.
func Suggest(headers *models.HeaderSet, candidate string) string {
	folded := make([]string, 0, headers.Width())
	original := make(map[string]string, headers.Width())
	for _, h := range headers.Clean() {
		if h == "" {
			continue
		}
		f := Fold(h)
		if _, seen := original[f]; !seen {
			original[f] = h
			folded = append(folded, f)
		}
	}
	if len(folded) == 0 {
		return ""
	}

	cm := closestmatch.New(folded, []int{2, 3})
	return original[cm.Closest(Fold(candidate))]
}

// Diagnose reports every field of table that resolved to NotFound.
func Diagnose(headers *models.HeaderSet, table *FieldTable, cols Columns) []Diagnostic {
	if table == nil {
		table = DefaultFieldTable()
	}
	var out []Diagnostic
	for _, field := range cols.Unresolved(table) {
		rule, _ := table.Rule(field)
		d := Diagnostic{Field: field, Candidates: rule.Candidates()}
		if len(d.Candidates) > 0 {
			d.Suggestion = Suggest(headers, d.Candidates[0])
		}
		out = append(out, d)
	}
	return out
}
