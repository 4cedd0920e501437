package changeset

import (
	"reflect"
	"testing"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
)

var mapping = map[string]string{
	"Mapa":                    "Mapa",
	"Ult Dia Evento":          "Ult Dia\nEvento",
	"Valor":                   " Valor ",
	"Nr DIEx Remessa 4 Bda":   "Nr DIEx Remessa\r\n4 Bda",
	"Data DIEx Remessa 4 Bda": "Data DIEx Remessa 4 Bda",
	"Observação":              "Observação",
}

func TestBuild(t *testing.T) {
	initial := map[string]string{
		"Mapa":                    "3/2026 - 4 Bda/OM-A",
		"Ult Dia Evento":          "10/01/2026",
		"Valor":                   "1.500,00",
		"Nr DIEx Remessa 4 Bda":   "",
		"Data DIEx Remessa 4 Bda": "05/01/2026",
		"Observação":              "",
	}

	tests := []struct {
		name   string
		edited map[string]string
		want   models.ChangeSet
	}{
		{
			name:   "identical values give an empty change-set",
			edited: copyMap(initial),
			want:   models.ChangeSet{},
		},
		{
			name:   "one changed field gives one sanitized key",
			edited: with(initial, "Nr DIEx Remessa 4 Bda", "77"),
			want:   models.ChangeSet{"Nr DIEx Remessa4 Bda": "77"},
		},
		{
			name:   "ISO date equal to display date is not a change",
			edited: with(initial, "Data DIEx Remessa 4 Bda", "2026-01-05"),
			want:   models.ChangeSet{},
		},
		{
			name:   "changed ISO date is sent as typed",
			edited: with(initial, "Ult Dia Evento", "2026-01-11"),
			want:   models.ChangeSet{"Ult DiaEvento": "2026-01-11"},
		},
		{
			name:   "raw header is trimmed",
			edited: with(initial, "Valor", "2.000,00"),
			want:   models.ChangeSet{"Valor": "2.000,00"},
		},
		{
			name:   "key without raw header is skipped",
			edited: map[string]string{"Coluna Fantasma": "x"},
			want:   models.ChangeSet{},
		},
		{
			name:   "key absent from the snapshot compares against empty",
			edited: map[string]string{"Observação": "urgente"},
			want:   models.ChangeSet{"Observação": "urgente"},
		},
		{
			name:   "only edited keys are considered",
			edited: map[string]string{},
			want:   models.ChangeSet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Build(initial, tt.edited, mapping)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Build() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildDateBothWays(t *testing.T) {
	m := map[string]string{"Data": "Data"}
	if cs := Build(map[string]string{"Data": "2026-01-05"}, map[string]string{"Data": "05/01/2026"}, m); !cs.IsEmpty() {
		t.Errorf("expected no change, got %v", cs)
	}
	if cs := Build(map[string]string{"Data": "05/01/2026"}, map[string]string{"Data": "2026-01-05"}, m); !cs.IsEmpty() {
		t.Errorf("expected no change, got %v", cs)
	}
}

func TestForRecord(t *testing.T) {
	headers := models.NewHeaderSet(3, []string{"Mapa", "Valor\n(R$)", "Situação"})
	rec := &models.Record{ID: "1/2026", Raw: []string{"1/2026", "10,00", "Pendente"}, Headers: headers}

	cs := ForRecord(rec, map[string]string{"Mapa": "1/2026", "Valor (R$)": "12,00"})
	want := models.ChangeSet{"Valor(R$)": "12,00"}
	if !reflect.DeepEqual(cs, want) {
		t.Errorf("ForRecord() = %v, want %v", cs, want)
	}
}

func TestLockPolicy(t *testing.T) {
	p := DefaultLockPolicy()

	tests := []struct {
		header string
		locked bool
	}{
		{"Dias Corridos", true},
		{"Qtd Dias\nCML", true},
		{"Situação", true},
		{"SITUACAO", true},
		{"Ano", true},
		{"OM", true},
		{"Ult Dia Evento", false},
		{"Anotações", false},
		{"Valor", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := p.IsLocked(tt.header); got != tt.locked {
			t.Errorf("IsLocked(%q) = %v, want %v", tt.header, got, tt.locked)
		}
	}

	headers := models.NewHeaderSet(0, []string{"Mapa", "Valor", "", "Situação", "Dias Corridos", "OM"})
	editable := p.EditableColumns(headers)
	if len(editable) != 2 || editable[0].Clean != "Mapa" || editable[1].Clean != "Valor" {
		t.Errorf("EditableColumns() = %+v", editable)
	}

	err := p.Check(models.ChangeSet{"Valor": "1", "Situação": "Pagamento autorizado"})
	appErr, ok := errors.AsAppError(err)
	if !ok || appErr.Code != errors.CodeLockedField {
		t.Errorf("Check() = %v, want locked_field error", err)
	}
	if err := p.Check(models.ChangeSet{"Valor": "1"}); err != nil {
		t.Errorf("Check() = %v, want nil", err)
	}
}

func TestDateHelpers(t *testing.T) {
	tests := []struct {
		in      string
		display string
		iso     string
		year    string
	}{
		{"2026-01-05", "05/01/2026", "2026-01-05", "2026"},
		{"05/01/2026", "05/01/2026", "2026-01-05", "2026"},
		{"5/1/26", "5/1/26", "2026-01-05", "2026"},
		{"2026-01-05T00:00:00Z", "05/01/2026", "2026-01-05T00:00:00Z", "2026"},
		{"", "", "", ""},
		{"amanhã", "amanhã", "amanhã", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ToDisplayDate(tt.in); got != tt.display {
				t.Errorf("ToDisplayDate() = %q, want %q", got, tt.display)
			}
			if got := ToISODate(tt.in); got != tt.iso {
				t.Errorf("ToISODate() = %q, want %q", got, tt.iso)
			}
			if got := YearOf(tt.in); got != tt.year {
				t.Errorf("YearOf() = %q, want %q", got, tt.year)
			}
		})
	}

	if NormalizeForCompare("2026-01-05") != "05/01/2026" || NormalizeForCompare("2026-1-5") != "2026-1-5" {
		t.Error("NormalizeForCompare only rewrites strict ISO dates")
	}
}

func copyMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func with(m map[string]string, key, value string) map[string]string {
	out := copyMap(m)
	out[key] = value
	return out
}
