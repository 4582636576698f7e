// Package store provides storage backends for SurveyPipe.
//
// It includes an in-memory store for tests and single-process use, plus
// SQLite and PostgreSQL backed stores. Reports are whole documents: each
// save replaces the stored document and bumps its version, and a writer must
// present the version it read.
package store

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	"github.com/BTreeMap/SurveyPipe/internal/report"
)

// Opts holds configuration options for store backends.
type Opts struct {
	// DSN is the database connection string (file path for SQLite,
	// postgres:// URL for PostgreSQL).
	DSN string
}

// Option configures store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// Store is the persistence collaborator for surveys, sessions, and report
// documents. Get methods return a nil pointer, not an error, when the record
// does not exist.
type Store interface {
	SaveSurvey(survey models.Survey) error
	GetSurvey(id string) (*models.Survey, error)
	GetSurveyByExternalID(externalID string) (*models.Survey, error)

	SaveSession(state models.SessionState) error
	GetSession(sessionID string) (*models.SessionState, error)

	// GetReport returns the stored report document, or nil if none exists.
	GetReport(sessionID string) (*models.Report, error)
	// SaveReport replaces the whole report document. expectedVersion must
	// match the stored version (0 for a new document); on mismatch the save
	// fails with models.ErrVersionConflict. On success the report's Version
	// is advanced to expectedVersion+1.
	SaveReport(rep *models.Report, expectedVersion int64) error

	Close() error
}

// DetectBackendFromDSN determines the store backend from a DSN string.
func DetectBackendFromDSN(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore is a map-backed Store for tests and single-process use.
type InMemoryStore struct {
	mu       sync.Mutex
	surveys  map[string]models.Survey
	byExtID  map[string]string
	sessions map[string]models.SessionState
	reports  map[string]*models.Report
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		surveys:  make(map[string]models.Survey),
		byExtID:  make(map[string]string),
		sessions: make(map[string]models.SessionState),
		reports:  make(map[string]*models.Report),
	}
}

// SaveSurvey stores a survey, replacing any existing record with the same id.
func (s *InMemoryStore) SaveSurvey(survey models.Survey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.surveys[survey.ID] = survey
	s.byExtID[survey.ExternalID] = survey.ID
	slog.Debug("InMemoryStore.SaveSurvey succeeded", "id", survey.ID, "externalID", survey.ExternalID)
	return nil
}

// GetSurvey retrieves a survey by id.
func (s *InMemoryStore) GetSurvey(id string) (*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	survey, ok := s.surveys[id]
	if !ok {
		return nil, nil
	}
	return &survey, nil
}

// GetSurveyByExternalID retrieves a survey by its external id.
func (s *InMemoryStore) GetSurveyByExternalID(externalID string) (*models.Survey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byExtID[externalID]
	if !ok {
		return nil, nil
	}
	survey := s.surveys[id]
	return &survey, nil
}

// SaveSession stores a session state, replacing any existing record.
func (s *InMemoryStore) SaveSession(state models.SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[state.SessionID] = state
	slog.Debug("InMemoryStore.SaveSession succeeded", "sessionID", state.SessionID, "currentOrder", state.CurrentOrder, "completed", state.Completed)
	return nil
}

// GetSession retrieves a session state by id.
func (s *InMemoryStore) GetSession(sessionID string) (*models.SessionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// GetReport retrieves a report document by session id.
func (s *InMemoryStore) GetReport(sessionID string) (*models.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep, ok := s.reports[sessionID]
	if !ok {
		return nil, nil
	}
	return report.Clone(rep), nil
}

// SaveReport replaces the stored report document under the version check.
func (s *InMemoryStore) SaveReport(rep *models.Report, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := int64(0)
	if existing, ok := s.reports[rep.SessionID]; ok {
		stored = existing.Version
	}
	if stored != expectedVersion {
		slog.Warn("InMemoryStore.SaveReport version conflict", "sessionID", rep.SessionID, "stored", stored, "expected", expectedVersion)
		return models.ErrVersionConflict
	}
	rep.Version = expectedVersion + 1
	s.reports[rep.SessionID] = report.Clone(rep)
	slog.Debug("InMemoryStore.SaveReport succeeded", "sessionID", rep.SessionID, "version", rep.Version)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
