package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"gratuity-map-service/internal/changeset"
	"gratuity-map-service/internal/mapper"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

const tableName = "map_data"

// SQLiteStore keeps records in a local map_data table keyed by id. Date
// columns are stored as yyyy-mm-dd and read back as dd/mm/yyyy.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger logger.Logger
}

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string, log logger.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "backend.database", dbPath, nil)
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, errors.FileError(errors.CodeFilePermission, filepath.Dir(dbPath), err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "open database", "", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.BackendError(errors.CodeStoreError, "open database", "", err)
	}

	s := &SQLiteStore{db: db, path: dbPath, logger: log.WithComponent("sqlite")}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	cols := []string{"id TEXT PRIMARY KEY"}
	for _, c := range mapper.RelationalSchema[1:] {
		cols = append(cols, c.Name+" TEXT")
	}
	cols = append(cols, "created_at DATETIME DEFAULT CURRENT_TIMESTAMP")

	queries := []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", tableName, strings.Join(cols, ",\n\t")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ano ON %s(ano)", tableName, tableName),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_om ON %s(om)", tableName, tableName),
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return errors.BackendError(errors.CodeStoreError, "migrate database", "", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Name identifies the store in logs.
func (s *SQLiteStore) Name() string { return "sqlite" }

// List returns every record in insertion order.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Record, error) {
	names := mapper.RelationalColumnNames()
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(names, ", "), tableName)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "list", "", err)
	}
	defer rows.Close()

	var out []map[string]string
	for rows.Next() {
		values := make([]sql.NullString, len(names))
		dest := make([]interface{}, len(names))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.BackendError(errors.CodeStoreError, "list", "", err)
		}
		row := make(map[string]string, len(names))
		for i, name := range names {
			row[name] = values[i].String
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "list", "", err)
	}

	return mapper.FromRelational(out), nil
}

// IDsForYear returns the ids of the records of one year, by the ano column
// or, for rows imported without it, by the year inside the id.
func (s *SQLiteStore) IDsForYear(ctx context.Context, year string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE ano = ? OR id LIKE ?", tableName), year, "%/"+year+" %")
	if err != nil {
		return nil, errors.BackendError(errors.CodeStoreError, "list ids", "", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.BackendError(errors.CodeStoreError, "list ids", "", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Create inserts one record. Fields without a store column are ignored.
func (s *SQLiteStore) Create(ctx context.Context, req *CreateRequest) error {
	if strings.TrimSpace(req.Fields[models.FieldID]) == "" {
		return notApplied(ActionCreate, "record has no id", nil)
	}

	var cols []string
	var args []interface{}
	for _, f := range models.RecordFields {
		col, ok := mapper.RelationalColumnForField(f)
		v, set := req.Fields[f]
		if !ok || !set {
			continue
		}
		cols = append(cols, col.Name)
		args = append(args, storeValue(col, v))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		s.logger.WithError(err).Warn("Insert failed")
		return notApplied(ActionCreate, err.Error(), err)
	}

	s.logger.WithField("id", req.Fields[models.FieldID]).Debug("Record created")
	return nil
}

// Update writes the change-set to the record with the request's key.
// Change-set keys that name no store column are skipped; a change-set
// with no known column at all fails.
func (s *SQLiteStore) Update(ctx context.Context, req *UpdateRequest) error {
	var sets []string
	var args []interface{}
	for _, key := range req.Changes.Keys() {
		col, ok := mapper.RelationalColumnFor(key)
		if !ok || col.Name == "id" {
			s.logger.WithField("column", key).Debug("Skipping column without a store field")
			continue
		}
		sets = append(sets, col.Name+" = ?")
		args = append(args, storeValue(col, req.Changes[key]))
	}
	if len(sets) == 0 {
		return notApplied(ActionUpdate, "no known column in change-set", nil)
	}

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", tableName, strings.Join(sets, ", "))
	args = append(args, req.KeyValue)
	return s.execOne(ctx, ActionUpdate, query, args...)
}

// Delete removes the record with the request's key.
func (s *SQLiteStore) Delete(ctx context.Context, req *DeleteRequest) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", tableName)
	return s.execOne(ctx, ActionDelete, query, req.KeyValue)
}

func (s *SQLiteStore) execOne(ctx context.Context, action, query string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		s.logger.WithError(err).Warnf("%s failed", action)
		return notApplied(action, err.Error(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return notApplied(action, err.Error(), err)
	}
	if n == 0 {
		return notApplied(action, "record not found", nil)
	}
	return nil
}

// Import upserts records in one transaction and reports progress.
func (s *SQLiteStore) Import(ctx context.Context, records []*models.Record) (logger.ProgressStats, error) {
	progress := logger.NewProgressTracker(logger.ProgressConfig{
		Operation: "import",
		Total:     int64(len(records)),
		Logger:    s.logger,
	})

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return progress.Complete(err), errors.BackendError(errors.CodeStoreError, "import", "", err)
	}
	defer tx.Rollback()

	names := mapper.RelationalColumnNames()
	updates := make([]string, 0, len(names)-1)
	for _, n := range names[1:] {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", n, n))
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		tableName, strings.Join(names, ", "), placeholders(len(names)), strings.Join(updates, ", "))

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return progress.Complete(err), errors.BackendError(errors.CodeStoreError, "import", "", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return progress.Complete(err), err
		}
		if strings.TrimSpace(rec.ID) == "" {
			progress.Fail()
			continue
		}
		if _, err := stmt.ExecContext(ctx, relationalArgs(rec)...); err != nil {
			s.logger.WithError(err).WithField("id", rec.ID).Warn("Skipping record")
			progress.Fail()
			continue
		}
		progress.Increment()
	}

	if err := tx.Commit(); err != nil {
		return progress.Complete(err), errors.BackendError(errors.CodeStoreError, "import", "", err)
	}
	return progress.Complete(nil), nil
}

// relationalArgs lays a record out in schema order. Sheet cells are found
// by clean header so that sheets with extra columns still import.
func relationalArgs(rec *models.Record) []interface{} {
	args := make([]interface{}, len(mapper.RelationalSchema))
	for i, col := range mapper.RelationalSchema {
		var v string
		if col.Field != "" {
			v = rec.Get(col.Field)
		}
		if c, ok := rec.Headers.ByClean(col.Header); ok && v == "" {
			v = rec.Cell(c)
		}
		args[i] = storeValue(col, v)
	}
	return args
}

func storeValue(col mapper.RelationalColumn, v string) interface{} {
	if !col.Date {
		return v
	}
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return changeset.ToISODate(v)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
