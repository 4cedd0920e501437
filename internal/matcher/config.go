// Package matcher locates the header row of a records sheet and resolves
// semantic fields to columns by matching header text.
//
// The sheet carries no schema contract: columns move, get renamed and pick up
// line breaks. Matching is therefore done on cleaned header text, by
// case-insensitive and accent-insensitive substring, driven by an explicit
// FieldTable rather than by patterns scattered through the code.
//
//  1. LocateHeaderRow finds the header row (default row, anchor check, bounded scan)
//  2. Resolve builds the shared HeaderSet for that row
//  3. ResolveColumns maps every Field of the table to a column index or NotFound
//
// Example usage:
//
//	headers := matcher.Resolve(grid, matcher.DefaultLocatorConfig())
//	cols := matcher.ResolveColumns(headers, matcher.DefaultFieldTable())
//	idx := cols.Index(models.FieldSituacao)
//
// Ambiguity policy: the first matching header wins. There is no scoring, so
// candidates must be distinctive enough for the sheets in use.
package matcher

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
)

// LocatorConfig controls how the header row is found.
type LocatorConfig struct {
	// DefaultRow is the 0-based row tried first and used when the scan fails.
	DefaultRow int `mapstructure:"default_row" yaml:"default_row" toml:"default_row"`
	// ScanWindow bounds the forward scan for the anchor cell.
	ScanWindow int `mapstructure:"scan_window" yaml:"scan_window" toml:"scan_window"`
	// Anchor is the header text of the identifier column.
	Anchor string `mapstructure:"anchor" yaml:"anchor" toml:"anchor"`
	// StartColumn is the column holding the anchor.
	StartColumn int `mapstructure:"start_column" yaml:"start_column" toml:"start_column"`
}

// DefaultLocatorConfig returns the layout of the records sheet: headers on the
// fourth row, identifier in the first column.
func DefaultLocatorConfig() *LocatorConfig {
	return &LocatorConfig{
		DefaultRow:  3,
		ScanWindow:  15,
		Anchor:      "mapa",
		StartColumn: 0,
	}
}

// Validate checks the locator settings.
func (c *LocatorConfig) Validate() error {
	if c.DefaultRow < 0 {
		return fmt.Errorf("default header row cannot be negative")
	}
	if c.ScanWindow < 0 {
		return fmt.Errorf("scan window cannot be negative")
	}
	if c.StartColumn < 0 {
		return fmt.Errorf("start column cannot be negative")
	}
	if strings.TrimSpace(c.Anchor) == "" {
		return fmt.Errorf("anchor cannot be empty")
	}
	return nil
}

// FieldRule says how one semantic field is found among the clean headers.
type FieldRule struct {
	Field models.Field `yaml:"field"`
	// Any matches a header containing at least one candidate.
	Any []string `yaml:"any,omitempty"`
	// All matches a header containing every candidate. Used together with Any,
	// both must hold.
	All []string `yaml:"all,omitempty"`
	// Exact compares the whole header instead of searching a substring.
	Exact bool `yaml:"exact,omitempty"`
	// CaseSensitive disables case and accent folding.
	CaseSensitive bool `yaml:"case_sensitive,omitempty"`
	// Fallback is a fixed column used when nothing matches and the header row
	// is wider than the index.
	Fallback *int `yaml:"fallback,omitempty"`
}

// Candidates returns every candidate text of the rule.
func (r FieldRule) Candidates() []string {
	out := make([]string, 0, len(r.Any)+len(r.All))
	out = append(out, r.Any...)
	return append(out, r.All...)
}

// FieldTable is the complete field -> candidates policy.
type FieldTable struct {
	Rules []FieldRule `yaml:"fields"`
	// NoFallbacks ignores every rule's Fallback, for sheets with stable headers.
	NoFallbacks bool `yaml:"no_fallbacks,omitempty"`
}

func column(i int) *int { return &i }

// DefaultFieldTable returns the candidates used for the records sheet. Status
// and unit carry fixed fallback columns for the historical sheet whose
// headers in those positions are unreliable.
func DefaultFieldTable() *FieldTable {
	return &FieldTable{Rules: []FieldRule{
		{Field: models.FieldID, Any: []string{"mapa"}},
		{Field: models.FieldEvento, Any: []string{"evento"}},
		{Field: models.FieldUltDiaEvento, Any: []string{"ult dia"}},
		{Field: models.FieldValor, Any: []string{"valor"}},
		{Field: models.FieldDocAutoriza, All: []string{"doc", "autoriza", "evento"}},
		{Field: models.FieldNrDiex, Any: []string{"nr diex remessa"}},
		{Field: models.FieldDataDiex, Any: []string{"data diex remessa"}},
		{Field: models.FieldObservacao, Any: []string{"observ"}},
		{Field: models.FieldSituacao, Any: []string{"situação", "situacao"}, Exact: true, Fallback: column(27)},
		{Field: models.FieldOM, Any: []string{"OM"}, Exact: true, CaseSensitive: true, Fallback: column(28)},
		{Field: models.FieldAno, Any: []string{"ano"}, Exact: true},
	}}
}

// Rule returns the rule for f.
func (t *FieldTable) Rule(f models.Field) (FieldRule, bool) {
	for _, r := range t.Rules {
		if r.Field == f {
			return r, true
		}
	}
	return FieldRule{}, false
}

// Validate requires a rule for the identifier field and candidates on every rule.
func (t *FieldTable) Validate() error {
	seen := make(map[models.Field]bool)
	for _, r := range t.Rules {
		if r.Field == "" {
			return fmt.Errorf("field rule without a field name")
		}
		if seen[r.Field] {
			return fmt.Errorf("field %s declared twice", r.Field)
		}
		seen[r.Field] = true
		if len(r.Any) == 0 && len(r.All) == 0 {
			return fmt.Errorf("field %s has no candidates", r.Field)
		}
		for _, c := range r.Candidates() {
			if strings.TrimSpace(c) == "" {
				return fmt.Errorf("field %s has an empty candidate", r.Field)
			}
		}
		if r.Fallback != nil && *r.Fallback < 0 {
			return fmt.Errorf("field %s has a negative fallback column", r.Field)
		}
	}
	if !seen[models.FieldID] {
		return fmt.Errorf("field table must declare %s", models.FieldID)
	}
	return nil
}

// ParseFieldTable reads a field table from YAML.
func ParseFieldTable(data []byte) (*FieldTable, error) {
	var table FieldTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &table, nil
}

// LoadFieldTable reads a field table file. An empty path yields the default table.
func LoadFieldTable(path string) (*FieldTable, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultFieldTable(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, path, err)
		}
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	}
	table, err := ParseFieldTable(data)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "fields", path, err)
	}
	return table, nil
}
