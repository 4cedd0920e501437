// Package config loads the mapas configuration from flags, environment
// variables and an optional TOML or YAML file, and writes the default file.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"gratuity-map-service/internal/backend"
	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/internal/reporter"
	"gratuity-map-service/internal/server"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// EnvPrefix prefixes every environment override, e.g. MAPAS_BACKEND_KIND.
const EnvPrefix = "MAPAS"

// Source kinds served by a backing store instead of a grid parser.
const (
	SourceSheets parsers.SourceKind = "sheets"
	SourceSQLite parsers.SourceKind = "sqlite"
)

// Backend kinds.
const (
	BackendAppScript = "appscript"
	BackendSQLite    = "sqlite"
	BackendSheets    = "sheets"
)

// Config is the whole mapas configuration.
type Config struct {
	Source  parsers.SourceConfig `mapstructure:"source" toml:"source"`
	Backend BackendConfig        `mapstructure:"backend" toml:"backend"`
	Sheet   SheetConfig          `mapstructure:"sheet" toml:"sheet"`
	Fields  FieldsConfig         `mapstructure:"fields" toml:"fields"`
	Report  ReportConfig         `mapstructure:"report" toml:"report"`
	Server  server.Config        `mapstructure:"server" toml:"server"`
	Auth    AuthConfig           `mapstructure:"auth" toml:"auth"`
	Aux     AuxiliarConfig       `mapstructure:"auxiliar" toml:"auxiliar"`
	Log     logger.Config        `mapstructure:"log" toml:"log"`
}

// BackendConfig selects the store that applies create, update and delete.
type BackendConfig struct {
	Kind      string                  `mapstructure:"kind" toml:"kind"`
	AppScript backend.AppScriptConfig `mapstructure:"appscript" toml:"appscript"`
	Database  string                  `mapstructure:"database" toml:"database"`
	Sheets    backend.SheetsConfig    `mapstructure:"sheets" toml:"sheets"`
}

// SheetConfig describes the layout of the records sheet.
type SheetConfig struct {
	Collection  string `mapstructure:"collection" toml:"collection"`
	HeaderRow   int    `mapstructure:"header_row" toml:"header_row"`
	ScanWindow  int    `mapstructure:"scan_window" toml:"scan_window"`
	Anchor      string `mapstructure:"anchor" toml:"anchor"`
	StartColumn int    `mapstructure:"start_column" toml:"start_column"`
	// StatusColumn and UnitColumn are the fixed fallbacks of the status and
	// unit fields. NoFallbacks turns both off.
	StatusColumn int  `mapstructure:"status_column" toml:"status_column"`
	UnitColumn   int  `mapstructure:"unit_column" toml:"unit_column"`
	NoFallbacks  bool `mapstructure:"no_fallbacks" toml:"no_fallbacks"`
}

// FieldsConfig points at optional YAML policy files.
type FieldsConfig struct {
	Table string `mapstructure:"table" toml:"table"`
	Rules string `mapstructure:"rules" toml:"rules"`
}

// ReportConfig holds report defaults.
type ReportConfig struct {
	Format     reporter.OutputFormat `mapstructure:"format" toml:"format"`
	Output     string                `mapstructure:"output" toml:"output"`
	GroupBy    string                `mapstructure:"group_by" toml:"group_by"`
	LabelWidth int                   `mapstructure:"label_width" toml:"label_width"`
	SheetName  string                `mapstructure:"sheet_name" toml:"sheet_name"`
}

// AuthConfig enables unit logins on the HTTP API, reading the users sheet
// from Users.
type AuthConfig struct {
	Enabled bool                 `mapstructure:"enabled" toml:"enabled"`
	Users   parsers.SourceConfig `mapstructure:"users" toml:"users"`
}

// AuxiliarConfig reads the option lists of the create form from the
// auxiliary sheet. When disabled they are derived from the records.
type AuxiliarConfig struct {
	Enabled bool                 `mapstructure:"enabled" toml:"enabled"`
	Source  parsers.SourceConfig `mapstructure:"source" toml:"source"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	locator := matcher.DefaultLocatorConfig()
	report := reporter.DefaultReportConfig()
	return &Config{
		Source: *parsers.DefaultSourceConfig(),
		Backend: BackendConfig{
			Kind:      BackendAppScript,
			AppScript: backend.AppScriptConfig{Timeout: 30 * time.Second},
			Database:  "data/mapas.db",
			Sheets:    backend.SheetsConfig{Sheet: backend.RecordsCollection},
		},
		Sheet: SheetConfig{
			Collection:   backend.RecordsCollection,
			HeaderRow:    locator.DefaultRow,
			ScanWindow:   locator.ScanWindow,
			Anchor:       locator.Anchor,
			StartColumn:  locator.StartColumn,
			StatusColumn: 27,
			UnitColumn:   28,
		},
		Report: ReportConfig{
			Format:     report.Format,
			GroupBy:    "event",
			LabelWidth: report.LabelWidth,
			SheetName:  report.SheetName,
		},
		Server: *server.DefaultConfig(),
		Auth:   AuthConfig{Users: *parsers.DefaultSourceConfig()},
		Aux:    AuxiliarConfig{Source: *parsers.DefaultSourceConfig()},
		Log:    *logger.DefaultConfig(),
	}
}

// Bind prepares v: env prefix, nested key replacer and a default for every
// key so that environment variables reach nested settings.
func Bind(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := flatten(Default())
	if err != nil {
		return err
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range optionalKeys {
		if err := v.BindEnv(key); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, key, nil, err)
		}
	}
	return nil
}

// optionalKeys are omitted from the encoded defaults when empty and would
// otherwise be invisible to environment overrides.
var optionalKeys = []string{
	"source.path", "source.url", "source.sheet_id", "source.gid", "source.sheet",
	"auth.users.path", "auth.users.url", "auth.users.sheet_id", "auth.users.gid", "auth.users.sheet",
	"auxiliar.source.path", "auxiliar.source.url", "auxiliar.source.sheet_id", "auxiliar.source.gid", "auxiliar.source.sheet",
	"backend.sheets.service_account_path", "backend.sheets.client_id",
	"backend.sheets.client_secret", "backend.sheets.refresh_token",
	"log.file", "log.disable_timestamp", "log.caller_info",
}

// flatten turns cfg into dotted viper keys using its TOML names, which
// match the mapstructure names.
func flatten(cfg *Config) (map[string]interface{}, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "encode defaults", err)
	}
	tree := map[string]interface{}{}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, errors.InternalError(errors.CodeUnexpectedError, "decode defaults", err)
	}
	out := map[string]interface{}{}
	walk("", tree, out)
	return out, nil
}

func walk(prefix string, node map[string]interface{}, out map[string]interface{}) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			walk(key, child, out)
			continue
		}
		out[key] = v
	}
}

// Load decodes v into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "config", v.ConfigFileUsed(), err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the combination of source and backend and every section
// that can be checked without touching the network.
func (c *Config) Validate() error {
	switch c.Backend.Kind {
	case BackendAppScript:
		if err := c.Backend.AppScript.Validate(); err != nil {
			return err
		}
	case BackendSQLite:
		if strings.TrimSpace(c.Backend.Database) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "backend.database", "", nil)
		}
	case BackendSheets:
		if err := c.Backend.Sheets.Validate(); err != nil {
			return err
		}
	default:
		return errors.ConfigurationError(errors.CodeInvalidConfig, "backend.kind", c.Backend.Kind, nil).
			WithSuggestion(fmt.Sprintf("use one of %s, %s, %s", BackendAppScript, BackendSQLite, BackendSheets))
	}

	switch c.Source.Kind {
	case SourceSheets:
		if c.Backend.Kind != BackendSheets {
			if err := c.Backend.Sheets.Validate(); err != nil {
				return err
			}
		}
	case SourceSQLite:
		if strings.TrimSpace(c.Backend.Database) == "" {
			return errors.ConfigurationError(errors.CodeMissingConfig, "backend.database", "", nil)
		}
	default:
		if err := c.Source.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "source", c.Source.Kind, err)
		}
	}

	if err := c.Locator().Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "sheet", nil, err)
	}
	if _, err := models.ParseGroupBy(c.Report.GroupBy); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report.group_by", c.Report.GroupBy, err)
	}
	if err := c.ReportConfig(c.Report.Format).Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "report", c.Report.Format, err)
	}
	if err := c.Log.Validate(); err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "log", c.Log.Level, err)
	}
	if c.Auth.Enabled {
		if err := c.Auth.Users.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "auth.users", c.Auth.Users.Kind, err)
		}
	}
	if c.Aux.Enabled {
		if err := c.Aux.Source.Validate(); err != nil {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "auxiliar.source", c.Aux.Source.Kind, err)
		}
	}
	return nil
}

// Locator returns the header locator of the records sheet.
func (c *Config) Locator() *matcher.LocatorConfig {
	return &matcher.LocatorConfig{
		DefaultRow:  c.Sheet.HeaderRow,
		ScanWindow:  c.Sheet.ScanWindow,
		Anchor:      c.Sheet.Anchor,
		StartColumn: c.Sheet.StartColumn,
	}
}

// FieldTable loads the field table and applies the sheet's fallback columns.
func (c *Config) FieldTable() (*matcher.FieldTable, error) {
	table, err := matcher.LoadFieldTable(c.Fields.Table)
	if err != nil {
		return nil, err
	}
	table.NoFallbacks = table.NoFallbacks || c.Sheet.NoFallbacks
	for i := range table.Rules {
		switch table.Rules[i].Field {
		case models.FieldSituacao:
			col := c.Sheet.StatusColumn
			table.Rules[i].Fallback = &col
		case models.FieldOM:
			col := c.Sheet.UnitColumn
			table.Rules[i].Fallback = &col
		}
	}
	return table, nil
}

// Classifier loads the status phrase rules.
func (c *Config) Classifier() (*reporter.Classifier, error) {
	return reporter.LoadClassifier(c.Fields.Rules)
}

// ReportConfig builds the renderer settings for format.
func (c *Config) ReportConfig(format reporter.OutputFormat) *reporter.ReportConfig {
	cfg := reporter.DefaultReportConfig()
	if format != "" {
		cfg.Format = format
	}
	if c.Report.LabelWidth > 0 {
		cfg.LabelWidth = c.Report.LabelWidth
	}
	if strings.TrimSpace(c.Report.SheetName) != "" {
		cfg.SheetName = c.Report.SheetName
	}
	return cfg
}

// Keys lists every configuration key in sorted order.
func Keys() []string {
	flat, err := flatten(Default())
	if err != nil {
		return nil
	}
	keys := make([]string, 0, len(flat)+len(optionalKeys))
	for k := range flat {
		keys = append(keys, k)
	}
	keys = append(keys, optionalKeys...)
	sort.Strings(keys)
	return keys
}

// WriteDefault writes the default configuration as TOML to path. An
// existing file is kept unless force is set.
func WriteDefault(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return errors.ConfigurationError(errors.CodeConfigConflict, "config", path, nil).
				WithSuggestion("pass --force to overwrite it")
		}
	}
	data, err := toml.Marshal(Default())
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode config", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.FileError(errors.CodeFilePermission, path, err)
	}
	return nil
}
