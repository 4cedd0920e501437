package matcher

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
)

// Fold lower-cases s and strips diacritics, so "Situação" and "situacao"
// compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(folded)
}

// LocateHeaderRow returns the index of the header row. The default row is
// kept when its start-column cell contains the anchor; otherwise the first
// row within the scan window whose start-column cell equals the anchor is
// used. found is false when the scan fell back to the default row.
func LocateHeaderRow(grid parsers.Grid, cfg *LocatorConfig) (row int, found bool) {
	if cfg == nil {
		cfg = DefaultLocatorConfig()
	}
	anchor := Fold(strings.TrimSpace(cfg.Anchor))

	if strings.Contains(Fold(grid.Cell(cfg.DefaultRow, cfg.StartColumn)), anchor) {
		return cfg.DefaultRow, true
	}

	limit := cfg.ScanWindow
	if len(grid) < limit {
		limit = len(grid)
	}
	for i := 0; i < limit; i++ {
		if Fold(strings.TrimSpace(grid.Cell(i, cfg.StartColumn))) == anchor {
			return i, true
		}
	}

	return cfg.DefaultRow, false
}

// Resolve locates the header row and builds its HeaderSet. A header row past
// the end of the grid yields an empty set rather than an error.
func Resolve(grid parsers.Grid, cfg *LocatorConfig) *models.HeaderSet {
	row, _ := LocateHeaderRow(grid, cfg)
	return models.NewHeaderSet(row, grid.Row(row))
}

// Columns maps resolved fields to column indices.
type Columns map[models.Field]int

// Index returns the column of f, or NotFound.
func (c Columns) Index(f models.Field) int {
	if idx, ok := c[f]; ok {
		return idx
	}
	return models.NotFound
}

// Unresolved lists the fields of table that resolved to NotFound, in table order.
func (c Columns) Unresolved(table *FieldTable) []models.Field {
	var missing []models.Field
	for _, r := range table.Rules {
		if c.Index(r.Field) == models.NotFound {
			missing = append(missing, r.Field)
		}
	}
	return missing
}

// FindColumn returns the index of the first clean header matching rule, or
// NotFound. Fallbacks are not applied here.
func FindColumn(clean []string, rule FieldRule) int {
	anyOf := prepare(rule.Any, rule.CaseSensitive)
	allOf := prepare(rule.All, rule.CaseSensitive)

	for i, header := range clean {
		h := header
		if !rule.CaseSensitive {
			h = Fold(header)
		}
		if matches(h, anyOf, allOf, rule.Exact) {
			return i
		}
	}
	return models.NotFound
}

func prepare(candidates []string, caseSensitive bool) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		if caseSensitive {
			out[i] = c
		} else {
			out[i] = Fold(c)
		}
	}
	return out
}

func matches(header string, anyOf, allOf []string, exact bool) bool {
	if header == "" {
		return false
	}
	test := strings.Contains
	if exact {
		test = func(h, c string) bool { return h == c }
	}

	if len(anyOf) > 0 {
		ok := false
		for _, c := range anyOf {
			if test(header, c) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, c := range allOf {
		if !test(header, c) {
			return false
		}
	}
	return true
}

// ResolveColumns resolves every field of table against headers. A field with
// no matching header takes its fallback column when the header row is wider
// than that index, and NotFound otherwise.
func ResolveColumns(headers *models.HeaderSet, table *FieldTable) Columns {
	if table == nil {
		table = DefaultFieldTable()
	}
	clean := headers.Clean()
	cols := make(Columns, len(table.Rules))

	for _, rule := range table.Rules {
		idx := FindColumn(clean, rule)
		if idx == models.NotFound && !table.NoFallbacks && rule.Fallback != nil && headers.Width() > *rule.Fallback {
			idx = *rule.Fallback
		}
		cols[rule.Field] = idx
	}
	return cols
}
