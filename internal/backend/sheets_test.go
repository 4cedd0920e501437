package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/logger"
)

// fakeSheetsAPI serves the handful of Sheets API calls the store makes.
type fakeSheetsAPI struct {
	mu       sync.Mutex
	values   [][]interface{}
	batch    *sheets.BatchUpdateValuesRequest
	appended *sheets.ValueRange
	deleted  *sheets.BatchUpdateSpreadsheetRequest
}

func (f *fakeSheetsAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := r.URL.Path
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "values:batchUpdate"):
		f.batch = &sheets.BatchUpdateValuesRequest{}
		_ = json.NewDecoder(r.Body).Decode(f.batch)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":append"):
		f.appended = &sheets.ValueRange{}
		_ = json.NewDecoder(r.Body).Decode(f.appended)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(path, ":batchUpdate"):
		f.deleted = &sheets.BatchUpdateSpreadsheetRequest{}
		_ = json.NewDecoder(r.Body).Decode(f.deleted)
		_, _ = w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(path, "/values/"):
		_ = json.NewEncoder(w).Encode(&sheets.ValueRange{Values: f.values})
	case r.Method == http.MethodGet:
		_, _ = w.Write([]byte(`{"sheets":[{"properties":{"sheetId":7,"title":"Outra"}},{"properties":{"sheetId":42,"title":"Controle de Mapas"}}]}`))
	default:
		http.NotFound(w, r)
	}
}

func newFakeSheets(t *testing.T) (*SheetsStore, *fakeSheetsAPI) {
	t.Helper()
	api := &fakeSheetsAPI{values: [][]interface{}{
		{"CONTROLE DE MAPAS"},
		{},
		{},
		{"Mapa", "Evento", "Valor", "Nr DIEx\nRemessa 4 Bda", "Situação", "OM"},
		{"1/2026 - 4 Bda/OM-A", "Curso", 100, "", "Não encaminhado à Bda", "OM-A"},
		{"2/2026 - 4 Bda/OM-B", "Missão", "2.000,00", "", "Não encaminhado à Bda", "OM-B"},
	}}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	store, err := NewSheetsStore(context.Background(), &SheetsConfig{SpreadsheetID: "abc"}, nil, logger.Discard(),
		option.WithEndpoint(srv.URL+"/"), option.WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return store, api
}

func TestSheetsConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SheetsConfig
		wantErr bool
	}{
		{"service account", SheetsConfig{SpreadsheetID: "x", ServiceAccountPath: "/k.json"}, false},
		{"oauth", SheetsConfig{SpreadsheetID: "x", ClientID: "a", ClientSecret: "b", RefreshToken: "c"}, false},
		{"no spreadsheet", SheetsConfig{ServiceAccountPath: "/k.json"}, true},
		{"no auth", SheetsConfig{SpreadsheetID: "x"}, true},
		{"both", SheetsConfig{SpreadsheetID: "x", ServiceAccountPath: "/k.json", ClientID: "a", ClientSecret: "b", RefreshToken: "c"}, true},
		{"partial oauth", SheetsConfig{SpreadsheetID: "x", ClientID: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSheetsFetchGrid(t *testing.T) {
	store, _ := newFakeSheets(t)

	grid, err := store.FetchGrid(context.Background())
	require.NoError(t, err)
	require.Len(t, grid, 6)
	assert.Equal(t, "100", grid.Cell(4, 2))
	assert.Equal(t, "Nr DIEx\nRemessa 4 Bda", grid.Cell(3, 3))
	assert.Equal(t, "sheets:abc#Controle de Mapas", store.Describe())
}

func TestSheetsUpdate(t *testing.T) {
	tests := []struct {
		name string
		ref  models.RowRef
	}{
		{"positional", models.RowRef{RowNumber: 6}},
		{"row moved", models.RowRef{RowNumber: 5}},
		{"keyed", models.RowRef{Key: "2/2026 - 4 Bda/OM-B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, api := newFakeSheets(t)
			rec := &models.Record{ID: "2/2026 - 4 Bda/OM-B", KeyColumn: "Mapa", Ref: tt.ref}
			req, err := NewUpdateRequest("", rec, models.ChangeSet{
				"Nr DIExRemessa 4 Bda": "77",
				"Situação":             "Encaminhado para a 4ª Bda Inf L Mth.",
				"Inexistente":          "x",
			})
			require.NoError(t, err)
			require.NoError(t, store.Update(context.Background(), req))

			require.NotNil(t, api.batch)
			assert.Equal(t, "USER_ENTERED", api.batch.ValueInputOption)
			require.Len(t, api.batch.Data, 2)
			assert.Equal(t, "'Controle de Mapas'!D6", api.batch.Data[0].Range)
			assert.Equal(t, "77", api.batch.Data[0].Values[0][0])
			assert.Equal(t, "'Controle de Mapas'!E6", api.batch.Data[1].Range)
		})
	}
}

func TestSheetsUpdateNotApplied(t *testing.T) {
	store, api := newFakeSheets(t)
	ctx := context.Background()

	missing := &UpdateRequest{KeyColumn: "Mapa", KeyValue: "9/2026", Changes: models.ChangeSet{"Valor": "1"}}
	assert.True(t, NotApplied(store.Update(ctx, missing)))

	unknown := &UpdateRequest{KeyColumn: "Mapa", KeyValue: "1/2026 - 4 Bda/OM-A", Changes: models.ChangeSet{"Foo": "1"}}
	assert.True(t, NotApplied(store.Update(ctx, unknown)))
	assert.Nil(t, api.batch)
}

func TestSheetsCreate(t *testing.T) {
	store, api := newFakeSheets(t)

	err := store.Create(context.Background(), &CreateRequest{Fields: map[models.Field]string{
		models.FieldID:       "3/2026 - 4 Bda/OM-C",
		models.FieldEvento:   "Curso",
		models.FieldOM:       "OM-C",
		models.FieldSituacao: "Não encaminhado à Bda",
		models.FieldDataDiex: "10/01/2026",
	}})
	require.NoError(t, err)
	require.NotNil(t, api.appended)
	assert.Equal(t, []interface{}{"3/2026 - 4 Bda/OM-C", "Curso", "", "", "Não encaminhado à Bda", "OM-C"}, api.appended.Values[0])
}

func TestSheetsDelete(t *testing.T) {
	store, api := newFakeSheets(t)

	rec := &models.Record{ID: "1/2026 - 4 Bda/OM-A", Ref: models.RowRef{RowNumber: 5}}
	require.NoError(t, store.Delete(context.Background(), NewDeleteRequest("", rec)))

	require.NotNil(t, api.deleted)
	require.Len(t, api.deleted.Requests, 1)
	dim := api.deleted.Requests[0].DeleteDimension.Range
	assert.Equal(t, int64(42), dim.SheetId)
	assert.Equal(t, "ROWS", dim.Dimension)
	assert.Equal(t, int64(4), dim.StartIndex)
	assert.Equal(t, int64(5), dim.EndIndex)

	assert.True(t, NotApplied(store.Delete(context.Background(), &DeleteRequest{KeyValue: "nope"})))
}
