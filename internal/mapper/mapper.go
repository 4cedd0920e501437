// Package mapper converts grid rows into map records.
//
// Every record of one load shares the same HeaderSet. Raw cells are padded or
// cut to the header width so that a record's raw row, raw headers and clean
// headers always have the same length.
package mapper

import (
	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/logger"
)

// DefaultKeyColumn names the identifier column when its header is empty.
const DefaultKeyColumn = "Mapa"

// MapRows builds records from the rows after the header row. Rows whose
// identifier cell is empty are skipped. Each record's row number is its
// 1-based position in the grid.
func MapRows(grid parsers.Grid, headers *models.HeaderSet, cols matcher.Columns) []*models.Record {
	idIdx := cols.Index(models.FieldID)
	if idIdx == models.NotFound || headers == nil {
		return nil
	}

	keyColumn := DefaultKeyColumn
	if col, ok := headers.Column(idIdx); ok && col.Key() != "" {
		keyColumn = col.Key()
	}

	start := headers.Row + 1
	if start > len(grid) {
		return nil
	}
	rows := grid[start:]
	records := make([]*models.Record, 0, len(rows))

	for i, row := range rows {
		if cell(row, idIdx) == "" {
			continue
		}

		rec := &models.Record{
			Raw:       align(row, headers.Width()),
			Headers:   headers,
			KeyColumn: keyColumn,
			Ref:       models.RowRef{RowNumber: headers.Row + 1 + i + 1},
		}
		for field, idx := range cols {
			if idx != models.NotFound {
				rec.Set(field, cell(row, idx))
			}
		}
		rec.Ref.Key = rec.ID
		records = append(records, rec)
	}

	return records
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func align(row []string, width int) []string {
	out := make([]string, width)
	copy(out, row)
	return out
}

// Options configures Load.
type Options struct {
	Locator *matcher.LocatorConfig
	Fields  *matcher.FieldTable
	Logger  logger.Logger
}

// Result is the outcome of one load.
type Result struct {
	Headers     *models.HeaderSet
	Columns     matcher.Columns
	Records     []*models.Record
	DataRows    int
	Skipped     int
	HeaderFound bool
	Diagnostics []matcher.Diagnostic
}

// Load resolves the headers of grid and maps its rows. It never fails: a
// wrong header row or missing columns show up as empty fields and as
// diagnostics on the result.
func Load(grid parsers.Grid, opts Options) *Result {
	if opts.Locator == nil {
		opts.Locator = matcher.DefaultLocatorConfig()
	}
	if opts.Fields == nil {
		opts.Fields = matcher.DefaultFieldTable()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("mapper")

	row, found := matcher.LocateHeaderRow(grid, opts.Locator)
	headers := models.NewHeaderSet(row, grid.Row(row))
	cols := matcher.ResolveColumns(headers, opts.Fields)
	records := MapRows(grid, headers, cols)

	dataRows := len(grid) - row - 1
	if dataRows < 0 {
		dataRows = 0
	}
	result := &Result{
		Headers:     headers,
		Columns:     cols,
		Records:     records,
		DataRows:    dataRows,
		Skipped:     dataRows - len(records),
		HeaderFound: found,
		Diagnostics: matcher.Diagnose(headers, opts.Fields, cols),
	}

	if !found {
		log.WithField("row", row).Warn("Header anchor not found; using default header row")
	}
	for _, d := range result.Diagnostics {
		log.WithFields(logger.Fields{
			"field":      d.Field,
			"candidates": d.Candidates,
			"suggestion": d.Suggestion,
		}).Debug("Field not resolved")
	}
	log.WithFields(logger.Fields{
		"header_row": row,
		"data_rows":  result.DataRows,
		"records":    len(records),
		"skipped":    result.Skipped,
		"unresolved": len(result.Diagnostics),
	}).Info("Mapped records")

	return result
}
