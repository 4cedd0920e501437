package dashboard

import (
	"context"
	"strings"
	"time"

	"gratuity-map-service/internal/backend"
	"gratuity-map-service/internal/changeset"
	"gratuity-map-service/internal/directory"
	"gratuity-map-service/internal/mapper"
	"gratuity-map-service/internal/matcher"
	"gratuity-map-service/internal/models"
	"gratuity-map-service/internal/parsers"
	"gratuity-map-service/internal/reporter"
	"gratuity-map-service/pkg/errors"
	"gratuity-map-service/pkg/logger"
)

// Config holds the sheet layout and the policies the service applies.
type Config struct {
	Collection string
	Locator    *matcher.LocatorConfig
	Fields     *matcher.FieldTable
	Classifier *reporter.Classifier
	Locks      *changeset.LockPolicy
}

// DefaultConfig returns the layout of the records sheet.
func DefaultConfig() *Config {
	return &Config{
		Collection: backend.RecordsCollection,
		Locator:    matcher.DefaultLocatorConfig(),
		Fields:     matcher.DefaultFieldTable(),
		Classifier: reporter.DefaultClassifier(),
		Locks:      changeset.DefaultLockPolicy(),
	}
}

// yearIndexer is a store that can list the ids of one year without a full
// load.
type yearIndexer interface {
	IDsForYear(ctx context.Context, year string) ([]string, error)
}

// Service loads records from a grid source or a listing store and applies
// edits through a backend store. It keeps no state between calls.
type Service struct {
	config   *Config
	source   parsers.GridSource
	auxiliar parsers.GridSource
	lister   backend.Lister
	store    backend.Store
	now      func() time.Time
	logger   logger.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSource loads records by fetching and mapping a grid.
func WithSource(src parsers.GridSource) Option {
	return func(s *Service) { s.source = src }
}

// WithLister loads records from a store that lists them.
func WithLister(l backend.Lister) Option {
	return func(s *Service) { s.lister = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger replaces the global logger.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) { s.logger = log }
}

// NewService creates a service writing to store. A nil config uses
// DefaultConfig. At least one of WithSource and WithLister is required.
func NewService(config *Config, store backend.Store, opts ...Option) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.Locator == nil {
		config.Locator = defaults.Locator
	}
	if config.Fields == nil {
		config.Fields = defaults.Fields
	}
	if config.Classifier == nil {
		config.Classifier = defaults.Classifier
	}
	if config.Locks == nil {
		config.Locks = defaults.Locks
	}
	if strings.TrimSpace(config.Collection) == "" {
		config.Collection = defaults.Collection
	}

	s := &Service{config: config, store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.GetGlobalLogger()
	}
	s.logger = s.logger.WithComponent("dashboard")

	if s.source == nil && s.lister == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "source", nil, nil).
			WithSuggestion("configure a records source")
	}
	if store == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "backend", nil, nil)
	}
	return s, nil
}

// Store returns the backend the service writes to.
func (s *Service) Store() backend.Store { return s.store }

// Load reads the current records. A grid source wins over a lister.
func (s *Service) Load(ctx context.Context) (*mapper.Result, error) {
	if s.source != nil {
		grid, err := s.source.FetchGrid(ctx)
		if err != nil {
			s.logger.WithError(err).WithField("source", s.source.Describe()).Error("Failed to fetch records")
			return nil, err
		}
		return mapper.Load(grid, mapper.Options{
			Locator: s.config.Locator,
			Fields:  s.config.Fields,
			Logger:  s.logger,
		}), nil
	}

	records, err := s.lister.List(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list records")
		return nil, errors.WrapIfNeeded(err, errors.CategoryBackend, errors.CodeStoreError, "failed to list records")
	}
	s.logger.WithField("records", len(records)).Info("Listed records")
	return &mapper.Result{
		Headers:     mapper.RelationalHeaders(),
		Records:     records,
		DataRows:    len(records),
		HeaderFound: true,
	}, nil
}

// Refresh loads the records into st.
func (s *Service) Refresh(ctx context.Context, st State) (State, error) {
	var result *mapper.Result
	err := logger.TimedOperation("load records", s.logger, func() error {
		var err error
		result, err = s.Load(ctx)
		return err
	})
	if err != nil {
		return st, err
	}
	if st.Classifier == nil {
		st = st.WithClassifier(s.config.Classifier)
	}
	return st.Loaded(result.Records), nil
}

// Report aggregates the visible records of st and stamps the time.
func (s *Service) Report(st State) *models.Report {
	if st.Classifier == nil {
		st = st.WithClassifier(s.config.Classifier)
	}
	report := st.Report()
	report.GeneratedAt = s.now()
	return report
}

// EditableColumns lists the columns the viewer may change.
func (s *Service) EditableColumns(st State, rec *models.Record) []models.Column {
	if rec.Headers == nil {
		return nil
	}
	if st.Viewer.Role == directory.RoleAdmin {
		return rec.Headers.Columns
	}
	return s.config.Locks.EditableColumns(rec.Headers)
}

// Diff builds the change-set of an edit of the record with the given id
// without writing it. Unit viewers may not touch locked columns.
func (s *Service) Diff(st State, id string, edited map[string]string) (*models.Record, models.ChangeSet, error) {
	rec, ok := st.Find(id)
	if !ok {
		return nil, nil, errors.ValidationError(errors.CodeRecordMissing, "id", id, nil)
	}
	cs := changeset.ForRecord(rec, edited)
	if st.Viewer.Role != directory.RoleAdmin {
		if err := s.config.Locks.Check(cs); err != nil {
			return rec, cs, err
		}
	}
	return rec, cs, nil
}

// Update writes the minimal change-set of an edit. An edit that changes
// nothing returns the empty change-set and errors.ErrNothingToUpdate
// without contacting the store.
func (s *Service) Update(ctx context.Context, st State, id string, edited map[string]string) (models.ChangeSet, error) {
	rec, cs, err := s.Diff(st, id, edited)
	if err != nil {
		return cs, err
	}

	req, err := backend.NewUpdateRequest(s.config.Collection, rec, cs)
	if err != nil {
		s.logger.WithField("id", rec.ID).Debug("Nothing to update")
		return cs, err
	}

	log := s.logger.WithFields(logger.Fields{
		"id":      rec.ID,
		"row":     rec.Ref.RowNumber,
		"columns": cs.Keys(),
		"store":   s.store.Name(),
	})
	if err := s.store.Update(ctx, req); err != nil {
		log.WithError(err).Warn("Update not applied")
		return cs, err
	}
	log.Info("Record updated")
	return cs, nil
}

// Delete removes the record with the given id.
func (s *Service) Delete(ctx context.Context, st State, id string) error {
	rec, ok := st.Find(id)
	if !ok {
		return errors.ValidationError(errors.CodeRecordMissing, "id", id, nil)
	}

	log := s.logger.WithFields(logger.Fields{"id": rec.ID, "store": s.store.Name()})
	if err := s.store.Delete(ctx, backend.NewDeleteRequest(s.config.Collection, rec)); err != nil {
		log.WithError(err).Warn("Delete not applied")
		return err
	}
	log.Info("Record deleted")
	return nil
}

// NewMap is the form of a new map process.
type NewMap struct {
	Unit         string `json:"om"`
	Evento       string `json:"evento"`
	UltDiaEvento string `json:"ultDiaEvento"`
	Valor        string `json:"valor"`
	DocAutoriza  string `json:"docAutoriza"`
	NrDiex       string `json:"nrDiex"`
	DataDiex     string `json:"dataDiex"`
	Observacao   string `json:"observacao"`
}

// Validate requires the unit, the event, the value and the authorizing
// document.
func (m *NewMap) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"om", m.Unit},
		{"evento", m.Evento},
		{"valor", m.Valor},
		{"docAutoriza", m.DocAutoriza},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return errors.ValidationError(errors.CodeMissingField, r.field, r.value, nil)
		}
	}
	return nil
}

// Create numbers and stores a new map. Unit viewers always create maps of
// their own unit. The number is one more than the highest of the year, taken
// from the store when it can list ids by year and from st otherwise.
func (s *Service) Create(ctx context.Context, st State, m NewMap) (*backend.CreateRequest, error) {
	if st.Viewer.Role == directory.RoleOM {
		m.Unit = st.Viewer.OM
	}
	m.Unit = strings.TrimSpace(m.Unit)
	if err := m.Validate(); err != nil {
		return nil, err
	}

	year := directory.YearOf(m.UltDiaEvento, s.now())
	ids := st.IDs()
	if idx, ok := s.store.(yearIndexer); ok {
		stored, err := idx.IDsForYear(ctx, year)
		if err != nil {
			return nil, err
		}
		ids = stored
	}
	id := directory.ComposeMapID(directory.NextMapNumber(ids, year), year, m.Unit)

	req := &backend.CreateRequest{
		Collection: s.config.Collection,
		Fields: map[models.Field]string{
			models.FieldID:           id,
			models.FieldEvento:       strings.TrimSpace(m.Evento),
			models.FieldUltDiaEvento: changeset.ToDisplayDate(m.UltDiaEvento),
			models.FieldValor:        strings.TrimSpace(m.Valor),
			models.FieldDocAutoriza:  strings.TrimSpace(m.DocAutoriza),
			models.FieldNrDiex:       strings.TrimSpace(m.NrDiex),
			models.FieldDataDiex:     changeset.ToDisplayDate(m.DataDiex),
			models.FieldObservacao:   strings.TrimSpace(m.Observacao),
			models.FieldSituacao:     directory.InitialStatus(m.NrDiex),
			models.FieldOM:           m.Unit,
			models.FieldAno:          year,
		},
	}

	log := s.logger.WithFields(logger.Fields{"id": id, "store": s.store.Name()})
	if err := s.store.Create(ctx, req); err != nil {
		log.WithError(err).Warn("Create not applied")
		return req, err
	}
	log.Info("Record created")
	return req, nil
}
