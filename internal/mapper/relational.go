package mapper

import (
	"strings"

	"gratuity-map-service/internal/changeset"
	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
)

// RelationalColumn pairs a sheet header with its column in the relational store.
type RelationalColumn struct {
	Header string
	Name   string
	Field  models.Field
	Date   bool
}

// RelationalSchema is the fixed column list of the relational store, in
// sheet order. Records loaded from it use these headers as both raw and
// clean headers.
var RelationalSchema = []RelationalColumn{
	{Header: "Mapa", Name: "id", Field: models.FieldID},
	{Header: "Evento", Name: "evento", Field: models.FieldEvento},
	{Header: "Ult Dia Evento", Name: "ult_dia_evento", Field: models.FieldUltDiaEvento, Date: true},
	{Header: "Valor", Name: "valor", Field: models.FieldValor},
	{Header: "Doc que autoriza o Evento", Name: "doc_autoriza_evento", Field: models.FieldDocAutoriza},
	{Header: "Nr DIEx Remessa 4 Bda", Name: "nr_diex_remessa", Field: models.FieldNrDiex},
	{Header: "Data DIEx Remessa 4 Bda", Name: "data_diex_remessa", Field: models.FieldDataDiex, Date: true},
	{Header: "Nr DIEx Saída", Name: "nr_diex_saida"},
	{Header: "Data DIEx Saída", Name: "data_diex_saida", Date: true},
	{Header: "Destino DIEx Saída", Name: "destino_diex_saida"},
	{Header: "DIEx da 1ª DE ao CML", Name: "diex_de_ao_cml"},
	{Header: "Data DIEx da 1ª DE ao CML", Name: "data_diex_de_ao_cml", Date: true},
	{Header: "Nr DIEx Devol", Name: "nr_diex_devol"},
	{Header: "Data DIEx Devol", Name: "data_diex_devol", Date: true},
	{Header: "Destino DIEx Devolução", Name: "destino_diex_devolucao"},
	{Header: "Motivo", Name: "motivo_devolucao"},
	{Header: "Doc Autorização de Pagamento", Name: "doc_autz_pagamento"},
	{Header: "Data Doc Autz Pg", Name: "data_doc_autz_pg", Date: true},
	{Header: "Observação", Name: "observacao", Field: models.FieldObservacao},
	{Header: "Situação", Name: "situacao", Field: models.FieldSituacao},
	{Header: "OM", Name: "om", Field: models.FieldOM},
	{Header: "Ano", Name: "ano", Field: models.FieldAno},
}

// RelationalColumnFor returns the store column behind a sheet header.
func RelationalColumnFor(header string) (RelationalColumn, bool) {
	key := models.SanitizeHeader(header)
	for _, c := range RelationalSchema {
		if c.Header == key {
			return c, true
		}
	}
	return RelationalColumn{}, false
}

// RelationalColumnForField returns the store column of a semantic field.
func RelationalColumnForField(f models.Field) (RelationalColumn, bool) {
	for _, c := range RelationalSchema {
		if c.Field != "" && c.Field == f {
			return c, true
		}
	}
	return RelationalColumn{}, false
}

// RelationalColumnNames returns the store column names in schema order.
func RelationalColumnNames() []string {
	names := make([]string, len(RelationalSchema))
	for i, c := range RelationalSchema {
		names[i] = c.Name
	}
	return names
}

// RelationalHeaders builds the header set shared by relational records.
func RelationalHeaders() *models.HeaderSet {
	headers := make([]string, len(RelationalSchema))
	for i, c := range RelationalSchema {
		headers[i] = c.Header
	}
	return models.NewHeaderSet(0, headers)
}

// FromRelational builds records from store rows keyed by column name. Date
// columns are shown as dd/mm/yyyy. Rows are addressed by key, so RowNumber
// stays zero. Rows without an id are skipped.
func FromRelational(rows []map[string]string) []*models.Record {
	headers := RelationalHeaders()
	cols := matcher.ResolveColumns(headers, matcher.DefaultFieldTable())
	records := make([]*models.Record, 0, len(rows))

	for _, row := range rows {
		id := strings.TrimSpace(row["id"])
		if id == "" {
			continue
		}
		raw := make([]string, len(RelationalSchema))
		for i, c := range RelationalSchema {
			v := row[c.Name]
			if c.Date {
				v = changeset.ToDisplayDate(v)
			}
			raw[i] = v
		}

		rec := &models.Record{
			Raw:       raw,
			Headers:   headers,
			KeyColumn: DefaultKeyColumn,
			Ref:       models.RowRef{Key: id},
		}
		for field, idx := range cols {
			if idx != models.NotFound {
				rec.Set(field, raw[idx])
			}
		}
		records = append(records, rec)
	}
	return records
}
