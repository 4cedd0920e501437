package backend

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// SheetsConfig configures direct access to the records spreadsheet through
// the Google Sheets API. Exactly one of ServiceAccountPath or the OAuth
// triple must be set.
type SheetsConfig struct {
	SpreadsheetID      string `mapstructure:"spreadsheet_id" toml:"spreadsheet_id"`
	Sheet              string `mapstructure:"sheet" toml:"sheet"`
	ServiceAccountPath string `mapstructure:"service_account_path" toml:"service_account_path,omitempty"`
	ClientID           string `mapstructure:"client_id" toml:"client_id,omitempty"`
	ClientSecret       string `mapstructure:"client_secret" toml:"client_secret,omitempty"`
	RefreshToken       string `mapstructure:"refresh_token" toml:"refresh_token,omitempty"`
}

// Validate checks the spreadsheet id and the authentication settings.
func (c *SheetsConfig) Validate() error {
	if strings.TrimSpace(c.SpreadsheetID) == "" {
		return errors.ConfigurationError(errors.CodeMissingConfig, "sheets.spreadsheet_id", c.SpreadsheetID, nil)
	}
	oauth := c.ClientID != "" || c.ClientSecret != "" || c.RefreshToken != ""
	switch {
	case c.ServiceAccountPath == "" && !oauth:
		return errors.ConfigurationError(errors.CodeMissingConfig, "sheets", "", nil).
			WithSuggestion("set service_account_path or client_id, client_secret and refresh_token")
	case c.ServiceAccountPath != "" && oauth:
		return errors.ConfigurationError(errors.CodeConfigConflict, "sheets", "", nil).
			WithSuggestion("configure a single authentication method")
	case oauth && (c.ClientID == "" || c.ClientSecret == "" || c.RefreshToken == ""):
		return errors.ConfigurationError(errors.CodeMissingConfig, "sheets.oauth", "", nil)
	}
	return nil
}

func (c *SheetsConfig) sheetName() string {
	if strings.TrimSpace(c.Sheet) == "" {
		return RecordsCollection
	}
	return c.Sheet
}

// SheetsStore edits the records sheet in place. Updates and deletes re-read
// the sheet and confirm the target row by its key before writing.
type SheetsStore struct {
	service *sheets.Service
	id      string
	sheet   string
	locator *matcher.LocatorConfig
	fields  *matcher.FieldTable
	logger  logger.Logger
}

// NewSheetsStore authenticates and builds a store. Extra client options
// replace the configured authentication.
func NewSheetsStore(ctx context.Context, cfg *SheetsConfig, locator *matcher.LocatorConfig, log logger.Logger, opts ...option.ClientOption) (*SheetsStore, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	if locator == nil {
		locator = matcher.DefaultLocatorConfig()
	}

	var srv *sheets.Service
	var err error
	if len(opts) > 0 {
		if strings.TrimSpace(cfg.SpreadsheetID) == "" {
			return nil, errors.ConfigurationError(errors.CodeMissingConfig, "sheets.spreadsheet_id", "", nil)
		}
		srv, err = sheets.NewService(ctx, opts...)
	} else {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		srv, err = createSheetsService(ctx, cfg)
	}
	if err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "connect to sheets", "", err)
	}

	return &SheetsStore{
		service: srv,
		id:      cfg.SpreadsheetID,
		sheet:   cfg.sheetName(),
		locator: locator,
		fields:  matcher.DefaultFieldTable(),
		logger:  log.WithComponent("sheets"),
	}, nil
}

func createSheetsService(ctx context.Context, cfg *SheetsConfig) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if cfg.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(cfg.ServiceAccountPath)
		if err != nil {
			return nil, errors.FileError(errors.CodeFileNotFound, cfg.ServiceAccountPath, err)
		}
		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}
		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: cfg.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	return sheets.NewService(ctx, option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource)))
}

// Name identifies the store in logs.
func (s *SheetsStore) Name() string { return "sheets" }

// Describe implements parsers.GridSource.
func (s *SheetsStore) Describe() string {
	return fmt.Sprintf("sheets:%s#%s", s.id, s.sheet)
}

// FetchGrid implements parsers.GridSource with the sheet's formatted values.
func (s *SheetsStore) FetchGrid(ctx context.Context) (parsers.Grid, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.id, quoteSheet(s.sheet)).Context(ctx).Do()
	if err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "read sheet", "", err)
	}

	grid := make(parsers.Grid, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = strings.TrimSpace(fmt.Sprint(v))
		}
		grid[i] = cells
	}
	return grid, nil
}

// Create appends one row laid out under the sheet's current headers.
func (s *SheetsStore) Create(ctx context.Context, req *CreateRequest) error {
	grid, err := s.FetchGrid(ctx)
	if err != nil {
		return err
	}
	headers := matcher.Resolve(grid, s.locator)
	cols := matcher.ResolveColumns(headers, s.fields)

	row := make([]interface{}, headers.Width())
	for i := range row {
		row[i] = ""
	}
	placed := 0
	for field, v := range req.Fields {
		if idx := cols.Index(field); idx != models.NotFound && idx < len(row) {
			row[idx] = v
			placed++
		}
	}
	if placed == 0 {
		return notApplied(ActionCreate, "no field matches a sheet column", nil)
	}

	_, err = s.service.Spreadsheets.Values.Append(s.id, quoteSheet(s.sheet), &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		s.logger.WithError(err).Warn("Append failed")
		return notApplied(ActionCreate, err.Error(), err)
	}
	return nil
}

// Update writes each change-set cell of the target row. Keys that match no
// header are skipped.
func (s *SheetsStore) Update(ctx context.Context, req *UpdateRequest) error {
	grid, err := s.FetchGrid(ctx)
	if err != nil {
		return err
	}
	headers := matcher.Resolve(grid, s.locator)

	row, err := s.locateRow(grid, headers, req.KeyColumn, req.KeyValue, req.Ref)
	if err != nil {
		return notApplied(ActionUpdate, err.Error(), nil)
	}

	var data []*sheets.ValueRange
	for _, key := range req.Changes.Keys() {
		col, ok := columnByKey(headers, key)
		if !ok {
			s.logger.WithField("column", key).Warn("Column not found in sheet")
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col.Index+1, row+1)
		if err != nil {
			return errors.InternalError(errors.CodeUnexpectedError, "cell name", err)
		}
		data = append(data, &sheets.ValueRange{
			Range:  quoteSheet(s.sheet) + "!" + cell,
			Values: [][]interface{}{{req.Changes[key]}},
		})
	}
	if len(data) == 0 {
		return notApplied(ActionUpdate, "no change-set column matches the sheet", nil)
	}

	_, err = s.service.Spreadsheets.Values.BatchUpdate(s.id, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "USER_ENTERED",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		s.logger.WithError(err).Warn("Batch update failed")
		return notApplied(ActionUpdate, err.Error(), err)
	}

	s.logger.WithFields(logger.Fields{"row": row + 1, "cells": len(data)}).Debug("Row updated")
	return nil
}

// Delete removes the target row.
func (s *SheetsStore) Delete(ctx context.Context, req *DeleteRequest) error {
	grid, err := s.FetchGrid(ctx)
	if err != nil {
		return err
	}
	headers := matcher.Resolve(grid, s.locator)

	row, err := s.locateRow(grid, headers, "", req.KeyValue, req.Ref)
	if err != nil {
		return notApplied(ActionDelete, err.Error(), nil)
	}

	sheetID, err := s.sheetID(ctx)
	if err != nil {
		return err
	}

	_, err = s.service.Spreadsheets.BatchUpdate(s.id, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			DeleteDimension: &sheets.DeleteDimensionRequest{
				Range: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "ROWS",
					StartIndex: int64(row),
					EndIndex:   int64(row + 1),
				},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		s.logger.WithError(err).Warn("Row delete failed")
		return notApplied(ActionDelete, err.Error(), err)
	}
	return nil
}

func (s *SheetsStore) sheetID(ctx context.Context) (int64, error) {
	ss, err := s.service.Spreadsheets.Get(s.id).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return 0, errors.BackendError(errors.CodeStoreError, "read spreadsheet", "", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == s.sheet {
			return sh.Properties.SheetId, nil
		}
	}
	return 0, errors.ParseError(errors.CodeSheetNotFound, s.id, s.sheet, nil)
}

// locateRow returns the 0-based grid row of the record. A positional
// reference is trusted only if the key still sits in that row; otherwise
// the key column below the header is searched.
func (s *SheetsStore) locateRow(grid parsers.Grid, headers *models.HeaderSet, keyColumn, key string, ref models.RowRef) (int, error) {
	keyIdx := s.locator.StartColumn
	if keyColumn != "" {
		if col, ok := columnByKey(headers, keyColumn); ok {
			keyIdx = col.Index
		}
	}
	key = strings.TrimSpace(key)

	if ref.IsPositional() {
		row := ref.RowNumber - 1
		if row > headers.Row && row < len(grid) && (key == "" || grid.Cell(row, keyIdx) == key) {
			return row, nil
		}
		s.logger.WithField("row", ref.RowNumber).Debug("Row moved; searching by key")
	}
	if key == "" {
		return 0, fmt.Errorf("record has no key")
	}
	for r := headers.Row + 1; r < len(grid); r++ {
		if grid.Cell(r, keyIdx) == key {
			return r, nil
		}
	}
	return 0, fmt.Errorf("record %q not found", key)
}

func columnByKey(headers *models.HeaderSet, key string) (models.Column, bool) {
	want := models.SanitizeHeader(key)
	for _, col := range headers.Columns {
		if col.Key() == want {
			return col, true
		}
	}
	return headers.ByClean(models.CleanHeader(key))
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
