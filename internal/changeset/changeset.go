// Package changeset computes the minimal partial update for an edited record.
//
// Values are keyed by clean header while editing and by sanitized raw header
// on the way out, because the backing store identifies columns by their
// original text. Dates are compared in one representation so that a date
// round-tripped through a date picker is not reported as changed.
package changeset

import (
	"strings"

	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
)

// Build returns the entries of edited whose normalized value differs from
// initial, keyed by the sanitized raw header that mapping gives for each
// clean header. The edited value is sent as typed. Keys with no raw header
// are dropped. An empty result means there is nothing to update.
func Build(initial, edited, mapping map[string]string) models.ChangeSet {
	cs := make(models.ChangeSet)
	for clean, value := range edited {
		if NormalizeForCompare(initial[clean]) == NormalizeForCompare(value) {
			continue
		}
		raw, ok := mapping[clean]
		if !ok {
			continue
		}
		key := models.SanitizeHeader(raw)
		if key == "" {
			continue
		}
		cs[key] = value
	}
	return cs
}

// ForRecord builds the change-set of edited against the record's own cells.
func ForRecord(rec *models.Record, edited map[string]string) models.ChangeSet {
	return Build(rec.Values(), edited, rec.Headers.Mapping())
}

// LockPolicy names the columns the backing store computes itself: day counts
// between milestones, status, year and owning unit. Editing surfaces must
// not offer them.
type LockPolicy struct {
	Contains []string `mapstructure:"contains" yaml:"contains" toml:"contains"`
	Exact    []string `mapstructure:"exact" yaml:"exact" toml:"exact"`
}

// DefaultLockPolicy returns the locked columns of the records sheet.
func DefaultLockPolicy() *LockPolicy {
	return &LockPolicy{
		Contains: []string{"dias"},
		Exact:    []string{"situação", "ano", "om"},
	}
}

// IsLocked reports whether header (clean or raw) names a locked column.
func (p *LockPolicy) IsLocked(header string) bool {
	h := matcher.Fold(models.CleanHeader(header))
	if h == "" {
		return false
	}
	for _, c := range p.Contains {
		if strings.Contains(h, matcher.Fold(c)) {
			return true
		}
	}
	for _, e := range p.Exact {
		if h == matcher.Fold(e) {
			return true
		}
	}
	return false
}

// EditableColumns returns the non-empty, unlocked columns of headers.
func (p *LockPolicy) EditableColumns(headers *models.HeaderSet) []models.Column {
	var out []models.Column
	if headers == nil {
		return out
	}
	for _, col := range headers.Columns {
		if col.Clean == "" || p.IsLocked(col.Clean) {
			continue
		}
		out = append(out, col)
	}
	return out
}

// Check returns a validation error naming the first locked key in cs. The
// builder itself accepts such keys; callers run Check before submitting.
func (p *LockPolicy) Check(cs models.ChangeSet) error {
	for _, key := range cs.Keys() {
		if p.IsLocked(key) {
			return errors.ValidationError(errors.CodeLockedField, key, cs[key], nil)
		}
	}
	return nil
}
