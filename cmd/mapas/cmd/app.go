package cmd

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"gratuity-map-service/cmd/mapas/config"
	"gratuity-map-service/internal/backend"
	"gratuity-map-service/internal/dashboard"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/pkg/logger"
)

// app is what one command invocation runs against.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   backend.Store
	service *dashboard.Service
	closers []io.Closer
}

// newApp loads the configuration and opens the store and the records
// source it names.
func newApp(ctx context.Context) (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if err := a.open(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// loadApp loads the configuration and the logger only.
func loadApp() (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	log, err := setupLogger(cfg)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log}, nil
}

func setupLogger(cfg *config.Config) (logger.Logger, error) {
	lc := cfg.Log
	if viper.GetBool("verbose") {
		debug := logger.DebugConfig()
		lc.Level = debug.Level
		lc.CallerInfo = debug.CallerInfo
	}
	log, err := logger.NewLogger(&lc)
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(log)
	return log, nil
}

func (a *app) open(ctx context.Context) error {
	table, err := a.cfg.FieldTable()
	if err != nil {
		return err
	}
	classifier, err := a.cfg.Classifier()
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.store = store

	records, err := a.recordsOption(ctx)
	if err != nil {
		return err
	}

	opts := []dashboard.Option{records, dashboard.WithLogger(a.log)}
	if a.cfg.Aux.Enabled {
		aux, err := parsers.NewSource(&a.cfg.Aux.Source)
		if err != nil {
			return err
		}
		opts = append(opts, dashboard.WithAuxiliar(aux))
	}

	svc, err := dashboard.NewService(&dashboard.Config{
		Collection: a.cfg.Sheet.Collection,
		Locator:    a.cfg.Locator(),
		Fields:     table,
		Classifier: classifier,
	}, store, opts...)
	if err != nil {
		return err
	}
	a.service = svc
	return nil
}

func (a *app) openStore(ctx context.Context) (backend.Store, error) {
	var (
		store backend.Store
		err   error
	)
	switch a.cfg.Backend.Kind {
	case config.BackendSQLite:
		store, err = a.openSQLite()
	case config.BackendSheets:
		store, err = backend.NewSheetsStore(ctx, &a.cfg.Backend.Sheets, a.cfg.Locator(), a.log)
	default:
		store, err = backend.NewAppScriptStore(&a.cfg.Backend.AppScript, a.log)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

func (a *app) openSQLite() (*backend.SQLiteStore, error) {
	if s, ok := a.store.(*backend.SQLiteStore); ok {
		return s, nil
	}
	s, err := backend.NewSQLiteStore(a.cfg.Backend.Database, a.log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, s)
	return s, nil
}

// recordsOption picks where records are read from. The sheets and sqlite
// kinds reuse the backend when it is the same store.
func (a *app) recordsOption(ctx context.Context) (dashboard.Option, error) {
	switch a.cfg.Source.Kind {
	case config.SourceSheets:
		if s, ok := a.store.(*backend.SheetsStore); ok {
			return dashboard.WithSource(s), nil
		}
		s, err := backend.NewSheetsStore(ctx, &a.cfg.Backend.Sheets, a.cfg.Locator(), a.log)
		if err != nil {
			return nil, err
		}
		return dashboard.WithSource(s), nil
	case config.SourceSQLite:
		s, err := a.openSQLite()
		if err != nil {
			return nil, err
		}
		return dashboard.WithLister(s), nil
	default:
		src, err := parsers.NewSource(&a.cfg.Source)
		if err != nil {
			return nil, err
		}
		return dashboard.WithSource(src), nil
	}
}

// Close releases the stores opened by the app.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil && a.log != nil {
			a.log.WithError(err).Warn("Failed to close store")
		}
	}
	a.closers = nil
}

// viewer is the administrator unless --as-om names a unit.
func (a *app) viewer() directory.Identity {
	unit := strings.TrimSpace(viewerOM)
	if unit == "" {
		return directory.Identity{Name: "Administrador", Role: directory.RoleAdmin}
	}
	return directory.Identity{Name: "Oficial " + unit, Role: directory.RoleOM, OM: unit}
}

// state loads the records as the viewer sees them.
func (a *app) state(ctx context.Context) (dashboard.State, error) {
	return a.service.Refresh(ctx, dashboard.NewState(a.viewer()))
}

// output opens path for writing, or returns stdout when path is empty.
func output(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	return os.Create(path)
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
