package parsers

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// NewSource builds the GridSource described by cfg.
func NewSource(cfg *SourceConfig) (GridSource, error) {
	if cfg == nil {
		cfg = DefaultSourceConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source", cfg.Kind, err)
	}

	switch cfg.Kind {
	case SourceHTTP:
		return &HTTPSource{
			URL:      cfg.ResolvedURL(),
			Client:   &http.Client{Timeout: cfg.Timeout},
			Encoding: cfg.Encoding,
		}, nil
	case SourceXLSX:
		return &XLSXSource{Path: cfg.Path, Sheet: cfg.Sheet}, nil
	default:
		if strings.EqualFold(filepath.Ext(cfg.Path), ".xlsx") {
			return &XLSXSource{Path: cfg.Path, Sheet: cfg.Sheet}, nil
		}
		return &FileSource{Path: cfg.Path, Encoding: cfg.Encoding}, nil
	}
}

// FileSource reads a delimited export from disk.
type FileSource struct {
	Path     string
	Encoding Encoding
}

// FetchGrid implements GridSource.
func (s *FileSource) FetchGrid(ctx context.Context) (Grid, error) {
	file, err := OpenFile(s.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	grid, _, err := NewGridReader(s.Encoding).ReadGrid(file, s.Path)
	return grid, err
}

// Describe implements GridSource.
func (s *FileSource) Describe() string { return s.Path }

// HTTPSource downloads a worksheet export over HTTP.
type HTTPSource struct {
	URL      string
	Client   *http.Client
	Encoding Encoding
}

// FetchGrid implements GridSource. Any non-2xx status is a network error.
func (s *HTTPSource) FetchGrid(ctx context.Context) (Grid, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	log := logger.GetGlobalLogger().WithComponent("http_source").WithField("url", s.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "source.url", s.URL, err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.NetworkError(errors.CodeTimeout, s.URL, err)
		}
		return nil, errors.NetworkError(errors.CodeConnectionFailed, s.URL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.WithField("status", resp.StatusCode).Warn("Export request failed")
		return nil, errors.NetworkError(errors.CodeServiceUnavailable, s.URL,
			fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	grid, _, err := NewGridReader(s.Encoding).ReadGrid(resp.Body, s.URL)
	return grid, err
}

// Describe implements GridSource.
func (s *HTTPSource) Describe() string { return s.URL }

// XLSXSource reads one worksheet of a workbook. An empty Sheet selects the
// first worksheet.
type XLSXSource struct {
	Path  string
	Sheet string
}

// FetchGrid implements GridSource. Cells are trimmed like parsed tokens.
func (s *XLSXSource) FetchGrid(ctx context.Context) (Grid, error) {
	file, err := OpenFile(s.Path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := excelize.OpenReader(file)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileCorrupted, s.Path, err)
	}
	defer f.Close()

	sheet := s.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.ParseError(errors.CodeSheetNotFound, s.Path, "", nil)
		}
		sheet = sheets[0]
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, errors.ParseError(errors.CodeSheetNotFound, s.Path, sheet, err)
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, s.Path, sheet, err)
	}

	grid := make(Grid, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = strings.TrimSpace(cell)
		}
		grid = append(grid, cells)
	}

	logger.GetGlobalLogger().WithComponent("xlsx_source").WithFields(logger.Fields{
		"path":  s.Path,
		"sheet": sheet,
		"rows":  len(grid),
	}).Debug("Read worksheet")

	return grid, nil
}

// Describe implements GridSource.
func (s *XLSXSource) Describe() string {
	if s.Sheet == "" {
		return s.Path
	}
	return s.Path + "#" + s.Sheet
}
