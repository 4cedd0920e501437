package matcher

import (
	"os"
	"path/filepath"
	"testing"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
)

var sheetHeaders = []string{
	"Mapa", "Evento", "Ult Dia\nEvento", "Valor", "Doc que autoriza\n o Evento",
	"Nr DIEx Remessa 4 Bda", "Data DIEx  Remessa 4 Bda", "Nr DIEx Saída", "Data DIEx Saída",
	"Destino DIEx Saída", "DIEx da 1ª DE ao CML", "Data DIEx da 1ª DE ao CML",
	"Nr DIEx Devol", "Data DIEx Devol", "Destino DIEx Devolução", "Motivo",
	"Doc Autorização de Pagamento", "Data Doc Autz Pg", "Observação", "Situação", "OM", "Ano",
}

func gridWithHeaderAt(row int, header []string) parsers.Grid {
	grid := make(parsers.Grid, 0, row+2)
	for i := 0; i < row; i++ {
		grid = append(grid, []string{"4ª Bda Inf L Mth - Gratificação", "", ""})
	}
	grid = append(grid, header)
	grid = append(grid, []string{"1/2026 - 4 Bda/OM-A", "Curso"})
	return grid
}

func TestLocateHeaderRow(t *testing.T) {
	tests := []struct {
		name      string
		grid      parsers.Grid
		wantRow   int
		wantFound bool
	}{
		{
			name:      "default row contains anchor",
			grid:      gridWithHeaderAt(3, []string{"Nº do Mapa", "Evento"}),
			wantRow:   3,
			wantFound: true,
		},
		{
			name:      "scan finds exact anchor above default",
			grid:      gridWithHeaderAt(1, []string{" MAPA ", "Evento"}),
			wantRow:   1,
			wantFound: true,
		},
		{
			name:      "scan finds exact anchor below default",
			grid:      gridWithHeaderAt(6, []string{"Mapa", "Evento"}),
			wantRow:   6,
			wantFound: true,
		},
		{
			name:      "scan ignores partial anchor outside default row",
			grid:      gridWithHeaderAt(6, []string{"Nº do Mapa", "Evento"}),
			wantRow:   3,
			wantFound: false,
		},
		{
			name:      "anchor beyond scan window falls back",
			grid:      gridWithHeaderAt(20, []string{"Mapa"}),
			wantRow:   3,
			wantFound: false,
		},
		{
			name:      "empty grid falls back",
			grid:      nil,
			wantRow:   3,
			wantFound: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, found := LocateHeaderRow(tt.grid, DefaultLocatorConfig())
			if row != tt.wantRow || found != tt.wantFound {
				t.Errorf("LocateHeaderRow() = (%d, %v), want (%d, %v)", row, found, tt.wantRow, tt.wantFound)
			}
		})
	}
}

func TestResolveBuildsCleanHeaders(t *testing.T) {
	headers := Resolve(gridWithHeaderAt(3, sheetHeaders), nil)

	if headers.Row != 3 {
		t.Fatalf("Row = %d, want 3", headers.Row)
	}
	if got := headers.Clean()[2]; got != "Ult Dia Evento" {
		t.Errorf("clean header = %q, want %q", got, "Ult Dia Evento")
	}
	if got := headers.Raw()[2]; got != "Ult Dia\nEvento" {
		t.Errorf("raw header = %q, want the original text", got)
	}

	empty := Resolve(parsers.Grid{{"x"}}, nil)
	if empty.Width() != 0 || empty.Row != 3 {
		t.Errorf("missing header row should give an empty set at the default row, got %+v", empty)
	}
}

func TestResolveColumnsDefaultTable(t *testing.T) {
	headers := models.NewHeaderSet(3, sheetHeaders)
	cols := ResolveColumns(headers, DefaultFieldTable())

	want := map[models.Field]int{
		models.FieldID:           0,
		models.FieldEvento:       1,
		models.FieldUltDiaEvento: 2,
		models.FieldValor:        3,
		models.FieldDocAutoriza:  4,
		models.FieldNrDiex:       5,
		models.FieldDataDiex:     6,
		models.FieldObservacao:   18,
		models.FieldSituacao:     19,
		models.FieldOM:           20,
		models.FieldAno:          21,
	}
	for field, idx := range want {
		if got := cols.Index(field); got != idx {
			t.Errorf("Index(%s) = %d, want %d", field, got, idx)
		}
	}
	if missing := cols.Unresolved(DefaultFieldTable()); len(missing) != 0 {
		t.Errorf("Unresolved() = %v, want none", missing)
	}
}

func TestFindColumn(t *testing.T) {
	tests := []struct {
		name  string
		clean []string
		rule  FieldRule
		want  int
	}{
		{
			name:  "case insensitive substring",
			clean: []string{"MAPA", "VALOR (R$)"},
			rule:  FieldRule{Any: []string{"valor"}},
			want:  1,
		},
		{
			name:  "first match wins",
			clean: []string{"Valor Pago", "Valor"},
			rule:  FieldRule{Any: []string{"valor"}},
			want:  0,
		},
		{
			name:  "accent insensitive exact",
			clean: []string{"Mapa", "Situacao"},
			rule:  FieldRule{Any: []string{"situação"}, Exact: true},
			want:  1,
		},
		{
			name:  "exact rejects longer header",
			clean: []string{"Situação do processo"},
			rule:  FieldRule{Any: []string{"situação"}, Exact: true},
			want:  models.NotFound,
		},
		{
			name:  "all candidates required",
			clean: []string{"Doc Autorização de Pagamento", "Doc que autoriza o Evento"},
			rule:  FieldRule{All: []string{"doc", "autoriza", "evento"}},
			want:  1,
		},
		{
			name:  "case sensitive exact",
			clean: []string{"Om", "om", "OM"},
			rule:  FieldRule{Any: []string{"OM"}, Exact: true, CaseSensitive: true},
			want:  2,
		},
		{
			name:  "empty header never matches",
			clean: []string{"", ""},
			rule:  FieldRule{Any: []string{"x"}},
			want:  models.NotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FindColumn(tt.clean, tt.rule); got != tt.want {
				t.Errorf("FindColumn() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestResolveColumnsFallback(t *testing.T) {
	wide := make([]string, 30)
	wide[0] = "Mapa"
	narrow := make([]string, 20)
	narrow[0] = "Mapa"

	tests := []struct {
		name       string
		headers    []string
		noFallback bool
		wantStatus int
		wantUnit   int
	}{
		{"wide sheet uses fixed columns", wide, false, 27, 28},
		{"narrow sheet reports not found", narrow, false, models.NotFound, models.NotFound},
		{"fallbacks disabled", wide, true, models.NotFound, models.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := DefaultFieldTable()
			table.NoFallbacks = tt.noFallback
			cols := ResolveColumns(models.NewHeaderSet(0, tt.headers), table)
			if cols.Index(models.FieldSituacao) != tt.wantStatus {
				t.Errorf("status column = %d, want %d", cols.Index(models.FieldSituacao), tt.wantStatus)
			}
			if cols.Index(models.FieldOM) != tt.wantUnit {
				t.Errorf("unit column = %d, want %d", cols.Index(models.FieldOM), tt.wantUnit)
			}
		})
	}
}

func TestFieldTableYAML(t *testing.T) {
	data := []byte(`
fields:
  - field: id
    any: ["nº mapa", "mapa"]
  - field: situacao
    any: ["status"]
    exact: true
    fallback: 12
no_fallbacks: false
`)
	table, err := ParseFieldTable(data)
	if err != nil {
		t.Fatalf("ParseFieldTable() error = %v", err)
	}
	rule, ok := table.Rule(models.FieldSituacao)
	if !ok || !rule.Exact || rule.Fallback == nil || *rule.Fallback != 12 {
		t.Errorf("unexpected rule %+v", rule)
	}

	path := filepath.Join(t.TempDir(), "fields.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFieldTable(path); err != nil {
		t.Errorf("LoadFieldTable() error = %v", err)
	}

	bad := []struct {
		name string
		yaml string
	}{
		{"missing id", "fields:\n  - field: valor\n    any: [valor]\n"},
		{"no candidates", "fields:\n  - field: id\n"},
		{"duplicate", "fields:\n  - field: id\n    any: [a]\n  - field: id\n    any: [b]\n"},
		{"not yaml", "fields: [[["},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFieldTable([]byte(tt.yaml)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDiagnose(t *testing.T) {
	headers := models.NewHeaderSet(0, []string{"Mapa", "Evento", "Obs."})
	table := DefaultFieldTable()
	cols := ResolveColumns(headers, table)

	diags := Diagnose(headers, table, cols)
	byField := make(map[models.Field]Diagnostic)
	for _, d := range diags {
		byField[d.Field] = d
	}
	if _, ok := byField[models.FieldID]; ok {
		t.Error("resolved field must not be diagnosed")
	}
	d, ok := byField[models.FieldObservacao]
	if !ok {
		t.Fatal("expected a diagnostic for observacao")
	}
	if d.Suggestion != "" && d.Suggestion != "Mapa" && d.Suggestion != "Evento" && d.Suggestion != "Obs." {
		t.Errorf("suggestion %q is not one of the headers", d.Suggestion)
	}

	if Suggest(models.NewHeaderSet(0, nil), "mapa") != "" {
		t.Error("empty header row should suggest nothing")
	}
}

func TestFold(t *testing.T) {
	if Fold("SITUAÇÃO") != "situacao" {
		t.Errorf("Fold() = %q", Fold("SITUAÇÃO"))
	}
	if Fold("Observação") != "observacao" {
		t.Errorf("Fold() = %q", Fold("Observação"))
	}
}
