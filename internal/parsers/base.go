// Package parsers turns spreadsheet exports into cell grids.
//
// The exports come from a sheet edited by hand, so nothing here insists on
// strict CSV: Parse tolerates unbalanced quotes and ragged rows, and the
// readers only fail for I/O problems (missing file, unreachable endpoint,
// unreadable workbook), never for the shape of the data.
//
// Sources:
//   - FileSource: a delimited text file on disk
//   - HTTPSource: the Google Sheets CSV export of one worksheet
//   - XLSXSource: one worksheet of a workbook, read with excelize
//
// Example usage:
//
//	src, err := NewSource(cfg)
//	grid, err := src.FetchGrid(ctx)
package parsers

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// GridSource yields the grid of one worksheet.
type GridSource interface {
	FetchGrid(ctx context.Context) (Grid, error)
	Describe() string
}

// ParseStats summarizes one read.
type ParseStats struct {
	Bytes       int
	Rows        int
	Width       int
	RaggedRows  int
	Decoded     Encoding
	InvalidUTF8 bool
	StrippedBOM bool
}

// Stats computes the shape statistics of a grid.
func Stats(g Grid) ParseStats {
	stats := ParseStats{Rows: len(g), Width: g.Width()}
	for _, row := range g {
		if len(row) != stats.Width {
			stats.RaggedRows++
		}
	}
	return stats
}

// GridReader decodes and parses delimited text.
type GridReader struct {
	encoding Encoding
	logger   logger.Logger
}

// NewGridReader creates a reader for the given encoding.
func NewGridReader(encoding Encoding) *GridReader {
	if encoding == "" {
		encoding = EncodingAuto
	}
	return &GridReader{
		encoding: encoding,
		logger:   logger.GetGlobalLogger().WithComponent("grid_reader"),
	}
}

// ReadGrid reads all of r, decodes it and parses it. source only labels
// errors and log lines.
func (gr *GridReader) ReadGrid(r io.Reader, source string) (Grid, ParseStats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ParseStats{}, errors.FileError(errors.CodeFileCorrupted, source, err)
	}

	text, stats, err := gr.decode(data, source)
	if err != nil {
		return nil, stats, err
	}

	grid := Parse(text)
	shape := Stats(grid)
	stats.Rows, stats.Width, stats.RaggedRows = shape.Rows, shape.Width, shape.RaggedRows

	gr.logger.WithFields(logger.Fields{
		"source":      source,
		"bytes":       stats.Bytes,
		"rows":        stats.Rows,
		"width":       stats.Width,
		"ragged_rows": stats.RaggedRows,
		"encoding":    stats.Decoded,
	}).Debug("Parsed grid")

	return grid, stats, nil
}

func (gr *GridReader) decode(data []byte, source string) (string, ParseStats, error) {
	stats := ParseStats{Bytes: len(data), Decoded: EncodingUTF8}

	if bytes.HasPrefix(data, []byte("\xef\xbb\xbf")) {
		data = data[3:]
		stats.StrippedBOM = true
	}

	enc := gr.encoding
	if enc == EncodingAuto {
		if utf8.Valid(data) {
			enc = EncodingUTF8
		} else {
			enc = EncodingWindows1252
		}
	}

	switch enc {
	case EncodingLatin1, EncodingWindows1252:
		cm := charmap.Windows1252
		if enc == EncodingLatin1 {
			cm = charmap.ISO8859_1
		}
		decoded, _, err := transform.Bytes(cm.NewDecoder(), data)
		if err != nil {
			return "", stats, errors.ParseError(errors.CodeEncodingError, source, string(enc), err)
		}
		stats.Decoded = enc
		return string(decoded), stats, nil
	default:
		if !utf8.Valid(data) {
			stats.InvalidUTF8 = true
			gr.logger.WithField("source", source).Warn("Input is not valid UTF-8; invalid bytes replaced")
			return strings.ToValidUTF8(string(data), "�"), stats, nil
		}
		return string(data), stats, nil
	}
}

// OpenFile opens path and classifies the failure the way the CLI reports it.
func OpenFile(path string) (*os.File, error) {
	file, err := os.Open(path)
	if err == nil {
		return file, nil
	}
	switch {
	case os.IsNotExist(err):
		return nil, errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return nil, errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return nil, errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}
