package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

func openTestDB(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "data", "mapas.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func createRequest(id, om, ultDia string) *CreateRequest {
	return &CreateRequest{Fields: map[models.Field]string{
		models.FieldID:           id,
		models.FieldEvento:       "Curso",
		models.FieldUltDiaEvento: ultDia,
		models.FieldValor:        "1.500,00",
		models.FieldSituacao:     "Não encaminhado à Bda",
		models.FieldOM:           om,
		models.FieldAno:          "2026",
	}}
}

func TestNewSQLiteStoreRequiresPath(t *testing.T) {
	_, err := NewSQLiteStore("  ", nil)
	assert.Error(t, err)
}

func TestSQLiteCreateAndList(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, createRequest("1/2026 - 4 Bda/OM-A", "OM-A", "10/01/2026")))
	require.NoError(t, store.Create(ctx, createRequest("2/2026 - 4 Bda/OM-B", "OM-B", "")))

	var stored string
	require.NoError(t, store.db.QueryRow("SELECT ult_dia_evento FROM map_data WHERE om = 'OM-A'").Scan(&stored))
	assert.Equal(t, "2026-01-10", stored)

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "1/2026 - 4 Bda/OM-A", first.ID)
	assert.Equal(t, "10/01/2026", first.UltDiaEvento)
	assert.Equal(t, "Curso", first.Evento)
	assert.Equal(t, "OM-A", first.OM)
	assert.Equal(t, "1/2026 - 4 Bda/OM-A", first.Ref.Key)
	assert.False(t, first.Ref.IsPositional())
	assert.Equal(t, "", records[1].UltDiaEvento)

	// Duplicate ids are rejected by the primary key.
	err = store.Create(ctx, createRequest("1/2026 - 4 Bda/OM-A", "OM-A", ""))
	assert.True(t, NotApplied(err))

	err = store.Create(ctx, &CreateRequest{Fields: map[models.Field]string{models.FieldEvento: "x"}})
	assert.True(t, NotApplied(err))
}

func TestSQLiteUpdate(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, createRequest("1/2026 - 4 Bda/OM-A", "OM-A", "10/01/2026")))

	records, err := store.List(ctx)
	require.NoError(t, err)

	req, err := NewUpdateRequest("", records[0], models.ChangeSet{
		"Situação":        "Pagamento autorizado",
		"Ult Dia Evento":  "01/02/2026",
		"Nr DIEx Saída":   "88",
		"Coluna Estranha": "ignored",
	})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, req))

	records, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pagamento autorizado", records[0].Situacao)
	assert.Equal(t, "01/02/2026", records[0].UltDiaEvento)
	assert.Equal(t, "88", records[0].Raw[7])

	t.Run("unknown record", func(t *testing.T) {
		err := store.Update(ctx, &UpdateRequest{KeyValue: "nope", Changes: models.ChangeSet{"Valor": "1"}})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrOperationFailed))
	})

	t.Run("no known column", func(t *testing.T) {
		err := store.Update(ctx, &UpdateRequest{KeyValue: records[0].ID, Changes: models.ChangeSet{"Foo": "1"}})
		assert.True(t, NotApplied(err))
	})
}

func TestSQLiteDeleteAndIDs(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, createRequest("1/2026 - 4 Bda/OM-A", "OM-A", "")))
	require.NoError(t, store.Create(ctx, createRequest("2/2026 - 4 Bda/OM-A", "OM-A", "")))

	ids, err := store.IDsForYear(ctx, "2026")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"1/2026 - 4 Bda/OM-A", "2/2026 - 4 Bda/OM-A"}, ids)

	ids, err = store.IDsForYear(ctx, "2025")
	require.NoError(t, err)
	assert.Empty(t, ids)

	req := &DeleteRequest{KeyValue: "1/2026 - 4 Bda/OM-A"}
	require.NoError(t, store.Delete(ctx, req))
	assert.True(t, NotApplied(store.Delete(ctx, req)))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "2/2026 - 4 Bda/OM-A", records[0].ID)
}

func TestSQLiteImport(t *testing.T) {
	store := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, createRequest("1/2026 - 4 Bda/OM-A", "OM-A", "")))

	headers := models.NewHeaderSet(3, []string{"Mapa", "Evento", "Ult Dia\nEvento", "Nr DIEx\nSaída", "Situação", "OM"})
	sheetRec := func(raw ...string) *models.Record {
		return &models.Record{
			ID: raw[0], Evento: raw[1], UltDiaEvento: raw[2], Situacao: raw[4], OM: raw[5],
			Raw: raw, Headers: headers,
		}
	}
	records := []*models.Record{
		sheetRec("1/2026 - 4 Bda/OM-A", "Estágio", "5/3/26", "10", "Cancelado", "OM-A"),
		sheetRec("4/2026 - 4 Bda/OM-C", "Missão", "", "", "", "OM-C"),
		sheetRec("", "Sem id", "", "", "", ""),
	}

	stats, err := store.Import(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Current)
	assert.Equal(t, int64(1), stats.Failed)

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "Estágio", listed[0].Evento)
	assert.Equal(t, "05/03/2026", listed[0].UltDiaEvento)
	assert.Equal(t, "Cancelado", listed[0].Situacao)
	assert.Equal(t, "10", listed[0].Raw[7])
	assert.Equal(t, "OM-C", listed[1].OM)
}
