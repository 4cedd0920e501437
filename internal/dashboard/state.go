// Package dashboard holds the application state of the records dashboard and
// the service that loads, edits and reports on it.
//
// State is a plain value. Every transition returns a new State and leaves the
// receiver untouched, so a caller may keep the previous state around (for a
// diff, an undo or a concurrent request) without copying. The record slice
// and the header sets behind it are shared between states and are never
// modified after a load.
//
// Example usage:
//
//	st := dashboard.NewState(viewer).Loaded(records)
//	st = st.WithFilter(dashboard.Filters{Status: "autorizado"})
//	report := st.Report()
package dashboard

import (
	"sort"
	"strings"

	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/reporter"
)

// Filters narrows the visible records. Empty filters match everything.
type Filters struct {
	Map    string `json:"mapa" form:"mapa"`
	Status string `json:"status" form:"status"`
	Unit   string `json:"om" form:"om"`
}

// IsEmpty reports whether no filter is set.
func (f Filters) IsEmpty() bool {
	return f.Map == "" && f.Status == "" && f.Unit == ""
}

// State is the dashboard as one viewer sees it.
type State struct {
	Records    []*models.Record
	Filters    Filters
	Viewer     directory.Identity
	GroupBy    models.GroupBy
	Classifier *reporter.Classifier
}

// NewState returns an empty state for viewer, grouped by event. The status
// rules are left unset: the service fills in its configured rules, and
// Report falls back to the default phrases.
func NewState(viewer directory.Identity) State {
	return State{
		Viewer:  viewer,
		GroupBy: models.GroupByEvent,
	}
}

// Loaded replaces the record set. Filters and grouping are kept.
func (s State) Loaded(records []*models.Record) State {
	s.Records = records
	return s
}

// WithFilter replaces the filters.
func (s State) WithFilter(f Filters) State {
	s.Filters = Filters{
		Map:    strings.TrimSpace(f.Map),
		Status: strings.TrimSpace(f.Status),
		Unit:   strings.TrimSpace(f.Unit),
	}
	return s
}

// WithGroupBy selects the report dimension.
func (s State) WithGroupBy(g models.GroupBy) State {
	s.GroupBy = g
	return s
}

// WithClassifier replaces the status rules used by Report.
func (s State) WithClassifier(c *reporter.Classifier) State {
	s.Classifier = c
	return s
}

// CanSee reports whether the viewer may see rec. Unit viewers see only the
// records whose trimmed unit equals their own.
func (s State) CanSee(rec *models.Record) bool {
	if s.Viewer.Role == directory.RoleOM {
		return strings.TrimSpace(rec.OM) == s.Viewer.OM
	}
	return true
}

// Scoped returns the records the viewer may see, ignoring the filters.
func (s State) Scoped() []*models.Record {
	out := make([]*models.Record, 0, len(s.Records))
	for _, rec := range s.Records {
		if s.CanSee(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Visible returns the scoped records that pass every filter. Filters are
// case-insensitive substring matches.
func (s State) Visible() []*models.Record {
	unit := strings.ToLower(s.Filters.Unit)
	id := strings.ToLower(s.Filters.Map)
	status := strings.ToLower(s.Filters.Status)

	out := make([]*models.Record, 0, len(s.Records))
	for _, rec := range s.Records {
		if !s.CanSee(rec) {
			continue
		}
		if unit != "" && !strings.Contains(strings.ToLower(rec.OM), unit) {
			continue
		}
		if id != "" && !strings.Contains(strings.ToLower(rec.ID), id) {
			continue
		}
		if status != "" && !strings.Contains(strings.ToLower(rec.Situacao), status) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Find returns the scoped record with the given identifier.
func (s State) Find(id string) (*models.Record, bool) {
	id = strings.TrimSpace(id)
	for _, rec := range s.Records {
		if strings.TrimSpace(rec.ID) == id && s.CanSee(rec) {
			return rec, true
		}
	}
	return nil, false
}

// Report aggregates the visible records. GeneratedAt is left to the caller.
func (s State) Report() *models.Report {
	return reporter.Aggregate(s.Visible(), s.GroupBy, s.Classifier)
}

// Summary counts the headline numbers of the visible records.
func (s State) Summary() models.Summary {
	return reporter.Summarize(s.Visible())
}

// Units returns the distinct trimmed units of the scoped records, sorted.
func (s State) Units() []string {
	return distinct(s.Scoped(), func(r *models.Record) string { return r.OM })
}

// Events returns the distinct trimmed events of the scoped records, sorted.
func (s State) Events() []string {
	return distinct(s.Scoped(), func(r *models.Record) string { return r.Evento })
}

// Statuses returns the distinct trimmed statuses of the scoped records, sorted.
func (s State) Statuses() []string {
	return distinct(s.Scoped(), func(r *models.Record) string { return r.Situacao })
}

// IDs returns the identifiers of every loaded record, visible or not.
func (s State) IDs() []string {
	ids := make([]string, 0, len(s.Records))
	for _, rec := range s.Records {
		ids = append(ids, rec.ID)
	}
	return ids
}

func distinct(records []*models.Record, value func(*models.Record) string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, rec := range records {
		v := strings.TrimSpace(value(rec))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
