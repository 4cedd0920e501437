package parsers

import (
	"fmt"
	"strings"
	"time"
)

// Encoding names the character set of an inbound export.
type Encoding string

const (
	// EncodingUTF8 expects UTF-8 and replaces invalid sequences.
	EncodingUTF8 Encoding = "utf8"
	// EncodingLatin1 decodes ISO-8859-1.
	EncodingLatin1 Encoding = "latin1"
	// EncodingWindows1252 decodes Windows-1252, the usual desktop spreadsheet export.
	EncodingWindows1252 Encoding = "windows1252"
	// EncodingAuto keeps valid UTF-8 and decodes anything else as Windows-1252.
	EncodingAuto Encoding = "auto"
)

// SourceKind selects where the grid comes from.
type SourceKind string

const (
	SourceFile SourceKind = "file"
	SourceHTTP SourceKind = "http"
	SourceXLSX SourceKind = "xlsx"
)

// SourceConfig describes how to obtain the records grid.
type SourceConfig struct {
	Kind     SourceKind    `mapstructure:"kind" toml:"kind"`
	Path     string        `mapstructure:"path" toml:"path,omitempty"`
	URL      string        `mapstructure:"url" toml:"url,omitempty"`
	SheetID  string        `mapstructure:"sheet_id" toml:"sheet_id,omitempty"`
	GID      string        `mapstructure:"gid" toml:"gid,omitempty"`
	Sheet    string        `mapstructure:"sheet" toml:"sheet,omitempty"`
	Encoding Encoding      `mapstructure:"encoding" toml:"encoding"`
	Timeout  time.Duration `mapstructure:"timeout" toml:"timeout"`
}

// DefaultSourceConfig returns a file source reading UTF-8.
func DefaultSourceConfig() *SourceConfig {
	return &SourceConfig{
		Kind:     SourceFile,
		Encoding: EncodingAuto,
		Timeout:  30 * time.Second,
	}
}

// Validate checks that the fields required by the chosen kind are set.
func (c *SourceConfig) Validate() error {
	switch c.Encoding {
	case EncodingUTF8, EncodingLatin1, EncodingWindows1252, EncodingAuto, "":
	default:
		return fmt.Errorf("unsupported encoding: %s", c.Encoding)
	}

	switch c.Kind {
	case SourceFile, SourceXLSX:
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("%s source requires a path", c.Kind)
		}
	case SourceHTTP:
		if strings.TrimSpace(c.URL) == "" && strings.TrimSpace(c.SheetID) == "" {
			return fmt.Errorf("http source requires a url or a sheet id")
		}
	default:
		return fmt.Errorf("unknown source kind: %s", c.Kind)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}

// ResolvedURL returns the configured URL, or the CSV export URL built from the
// sheet id and gid.
func (c *SourceConfig) ResolvedURL() string {
	if strings.TrimSpace(c.URL) != "" {
		return c.URL
	}
	return ExportURL(c.SheetID, c.GID)
}

// ExportURL builds the Google Sheets CSV export address of one worksheet.
func ExportURL(sheetID, gid string) string {
	return fmt.Sprintf("https://docs.google.com/spreadsheets/d/%s/export?format=csv&gid=%s", sheetID, gid)
}
