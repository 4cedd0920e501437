package models

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// NotFound is the column index of a field that could not be resolved.
const NotFound = -1

// Field names a well-known semantic field of a map record.
type Field string

const (
	FieldID           Field = "id"
	FieldEvento       Field = "evento"
	FieldUltDiaEvento Field = "ultDiaEvento"
	FieldValor        Field = "valor"
	FieldDocAutoriza  Field = "docAutoriza"
	FieldNrDiex       Field = "nrDiex"
	FieldDataDiex     Field = "dataDiex"
	FieldObservacao   Field = "observacao"
	FieldSituacao     Field = "situacao"
	FieldOM           Field = "om"
	FieldAno          Field = "ano"
)

// RecordFields lists the fields a Record carries, in display order.
var RecordFields = []Field{
	FieldID, FieldEvento, FieldUltDiaEvento, FieldValor, FieldDocAutoriza,
	FieldNrDiex, FieldDataDiex, FieldObservacao, FieldSituacao, FieldOM, FieldAno,
}

// String returns the string representation of Field
func (f Field) String() string {
	return string(f)
}

var (
	lineBreaks = regexp.MustCompile(`[\r\n]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// CleanHeader normalizes a raw header for lookups: line breaks become a space,
// whitespace runs collapse to one space and the result is trimmed.
func CleanHeader(raw string) string {
	s := lineBreaks.ReplaceAllString(raw, " ")
	s = spaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// SanitizeHeader turns a raw header into the key the backing store expects:
// line breaks removed and surrounding whitespace trimmed.
func SanitizeHeader(raw string) string {
	return strings.TrimSpace(lineBreaks.ReplaceAllString(raw, ""))
}

// Column ties the raw and clean names of one header cell to its position.
type Column struct {
	Index int    `json:"index"`
	Raw   string `json:"raw"`
	Clean string `json:"clean"`
}

// Key returns the sanitized raw header used in outbound payloads.
func (c Column) Key() string {
	return SanitizeHeader(c.Raw)
}

// HeaderSet is the header row of one parse. It is shared by every record of
// that parse and must not be modified once built.
type HeaderSet struct {
	Row     int      `json:"row"`
	Columns []Column `json:"columns"`

	raw   []string
	clean []string
}

// NewHeaderSet builds the header set for the cells of row headerRow.
func NewHeaderSet(headerRow int, cells []string) *HeaderSet {
	h := &HeaderSet{
		Row:     headerRow,
		Columns: make([]Column, len(cells)),
		raw:     make([]string, len(cells)),
		clean:   make([]string, len(cells)),
	}
	for i, cell := range cells {
		col := Column{Index: i, Raw: cell, Clean: CleanHeader(cell)}
		h.Columns[i] = col
		h.raw[i] = col.Raw
		h.clean[i] = col.Clean
	}
	return h
}

// Width returns the number of header columns.
func (h *HeaderSet) Width() int {
	if h == nil {
		return 0
	}
	return len(h.Columns)
}

// Raw returns the raw header texts. The slice is shared; do not modify it.
func (h *HeaderSet) Raw() []string {
	if h == nil {
		return nil
	}
	return h.raw
}

// Clean returns the clean header texts. The slice is shared; do not modify it.
func (h *HeaderSet) Clean() []string {
	if h == nil {
		return nil
	}
	return h.clean
}

// Column returns the column at index i.
func (h *HeaderSet) Column(i int) (Column, bool) {
	if h == nil || i < 0 || i >= len(h.Columns) {
		return Column{}, false
	}
	return h.Columns[i], true
}

// ByClean returns the first column whose clean header equals name.
func (h *HeaderSet) ByClean(name string) (Column, bool) {
	if h == nil {
		return Column{}, false
	}
	for _, col := range h.Columns {
		if col.Clean == name {
			return col, true
		}
	}
	return Column{}, false
}

// Mapping returns clean header -> raw header. Empty clean headers are left
// out and the first of several equal clean headers wins.
func (h *HeaderSet) Mapping() map[string]string {
	mapping := make(map[string]string)
	if h == nil {
		return mapping
	}
	for _, col := range h.Columns {
		if col.Clean == "" {
			continue
		}
		if _, exists := mapping[col.Clean]; !exists {
			mapping[col.Clean] = col.Raw
		}
	}
	return mapping
}

// RowRef locates a record in its backing store: a 1-based physical row for
// positional stores, a unique key for keyed ones, or both.
type RowRef struct {
	RowNumber int    `json:"rowIndex"`
	Key       string `json:"key,omitempty"`
}

// IsPositional reports whether the reference carries a physical row number.
func (r RowRef) IsPositional() bool {
	return r.RowNumber > 0
}

// Record is one map process read from a data row.
type Record struct {
	ID           string `json:"id"`
	Evento       string `json:"evento"`
	UltDiaEvento string `json:"ultDiaEvento"`
	Valor        string `json:"valor"`
	DocAutoriza  string `json:"docAutoriza"`
	NrDiex       string `json:"nrDiex"`
	DataDiex     string `json:"dataDiex"`
	Observacao   string `json:"observacao"`
	Situacao     string `json:"situacao"`
	OM           string `json:"om"`
	Ano          string `json:"ano,omitempty"`

	// Raw holds the row's cells padded or cut to the header width.
	Raw       []string   `json:"rawData"`
	Headers   *HeaderSet `json:"-"`
	Ref       RowRef     `json:"ref"`
	KeyColumn string     `json:"mapColumnTitle"`
}

// Get returns the value of a semantic field.
func (r *Record) Get(f Field) string {
	switch f {
	case FieldID:
		return r.ID
	case FieldEvento:
		return r.Evento
	case FieldUltDiaEvento:
		return r.UltDiaEvento
	case FieldValor:
		return r.Valor
	case FieldDocAutoriza:
		return r.DocAutoriza
	case FieldNrDiex:
		return r.NrDiex
	case FieldDataDiex:
		return r.DataDiex
	case FieldObservacao:
		return r.Observacao
	case FieldSituacao:
		return r.Situacao
	case FieldOM:
		return r.OM
	case FieldAno:
		return r.Ano
	default:
		return ""
	}
}

// Set assigns the value of a semantic field. Unknown fields are ignored.
func (r *Record) Set(f Field, value string) {
	switch f {
	case FieldID:
		r.ID = value
	case FieldEvento:
		r.Evento = value
	case FieldUltDiaEvento:
		r.UltDiaEvento = value
	case FieldValor:
		r.Valor = value
	case FieldDocAutoriza:
		r.DocAutoriza = value
	case FieldNrDiex:
		r.NrDiex = value
	case FieldDataDiex:
		r.DataDiex = value
	case FieldObservacao:
		r.Observacao = value
	case FieldSituacao:
		r.Situacao = value
	case FieldOM:
		r.OM = value
	case FieldAno:
		r.Ano = value
	}
}

// Values returns clean header -> cell, the snapshot an edit is diffed against.
func (r *Record) Values() map[string]string {
	values := make(map[string]string)
	if r.Headers == nil {
		return values
	}
	for _, col := range r.Headers.Columns {
		if col.Clean == "" {
			continue
		}
		if _, exists := values[col.Clean]; exists {
			continue
		}
		if col.Index < len(r.Raw) {
			values[col.Clean] = r.Raw[col.Index]
		} else {
			values[col.Clean] = ""
		}
	}
	return values
}

// Cell returns the raw cell under the given column.
func (r *Record) Cell(col Column) string {
	if col.Index < 0 || col.Index >= len(r.Raw) {
		return ""
	}
	return r.Raw[col.Index]
}

// String returns a short representation of the Record
func (r *Record) String() string {
	return fmt.Sprintf("Record{ID: %s, OM: %s, Situacao: %s, Row: %d}", r.ID, r.OM, r.Situacao, r.Ref.RowNumber)
}

// ChangeSet maps sanitized raw headers to new cell values.
type ChangeSet map[string]string

// IsEmpty reports whether there is nothing to send.
func (c ChangeSet) IsEmpty() bool {
	return len(c) == 0
}

// Keys returns the headers in the change-set, sorted.
func (c ChangeSet) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
