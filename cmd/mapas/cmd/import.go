package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"gratuity-map-service/cmd/mapas/config"
	"gratuity-map-service/internal/backend"
	"gratuity-map-service/internal/mapper"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/errors"
)

var (
	importFrom     string
	importDatabase string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy the records sheet into the SQLite database",
	Long: `Import reads a sheet export (CSV or XLSX), maps its rows to records and
upserts them into the map_data table by id. Rows without an id are counted
as failed and skipped.

Example:
  mapas import --from controle_mapas.csv --database data/mapas.db`,
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVar(&importFrom, "from", "", "sheet export to read (default: the configured source)")
	importCmd.Flags().StringVar(&importDatabase, "database", "", "SQLite database (default: backend.database)")
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	grid, err := a.importGrid(cmd)
	if err != nil {
		return err
	}
	table, err := a.cfg.FieldTable()
	if err != nil {
		return err
	}
	result := mapper.Load(grid, mapper.Options{Locator: a.cfg.Locator(), Fields: table, Logger: a.log})

	if importDatabase != "" {
		a.cfg.Backend.Database = importDatabase
	}
	store, err := a.openSQLite()
	if err != nil {
		return err
	}

	stats, err := store.Import(ctx, result.Records)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d registros importados, %d ignorados (%s)\n",
		stats.Current-stats.Failed, stats.Failed, a.cfg.Backend.Database)
	return nil
}

func (a *app) importGrid(cmd *cobra.Command) (parsers.Grid, error) {
	if importFrom != "" {
		src, err := parsers.NewSource(&parsers.SourceConfig{
			Kind:     parsers.SourceFile,
			Path:     importFrom,
			Encoding: a.cfg.Source.Encoding,
		})
		if err != nil {
			return nil, err
		}
		return src.FetchGrid(cmd.Context())
	}

	switch a.cfg.Source.Kind {
	case config.SourceSQLite:
		return nil, errors.ConfigurationError(errors.CodeConfigConflict, "source.kind", a.cfg.Source.Kind, nil).
			WithSuggestion("pass --from with a sheet export")
	case config.SourceSheets:
		s, err := backend.NewSheetsStore(cmd.Context(), &a.cfg.Backend.Sheets, a.cfg.Locator(), a.log)
		if err != nil {
			return nil, err
		}
		return s.FetchGrid(cmd.Context())
	default:
		src, err := parsers.NewSource(&a.cfg.Source)
		if err != nil {
			return nil, err
		}
		return src.FetchGrid(cmd.Context())
	}
}
