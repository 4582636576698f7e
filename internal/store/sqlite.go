// Package store provides storage backends for SurveyPipe.
//
// This file implements an SQLite-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a Store backed by a single SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// SaveSurvey stores a survey, replacing any existing record with the same id.
func (s *SQLiteStore) SaveSurvey(survey models.Survey) error {
	questionsJSON, err := json.Marshal(survey.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions for survey %s: %w", survey.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO surveys (id, external_id, name, questions) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET external_id = excluded.external_id, name = excluded.name, questions = excluded.questions`,
		survey.ID, survey.ExternalID, survey.Name, string(questionsJSON))
	if err != nil {
		slog.Error("SQLiteStore SaveSurvey failed", "error", err, "id", survey.ID)
		return fmt.Errorf("failed to save survey %s: %w", survey.ID, err)
	}
	slog.Debug("SQLiteStore SaveSurvey succeeded", "id", survey.ID, "externalID", survey.ExternalID)
	return nil
}

// GetSurvey retrieves a survey by id.
func (s *SQLiteStore) GetSurvey(id string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, external_id, name, questions FROM surveys WHERE id = ?`, id)
	return scanSurvey(row)
}

// GetSurveyByExternalID retrieves a survey by its external id.
func (s *SQLiteStore) GetSurveyByExternalID(externalID string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, external_id, name, questions FROM surveys WHERE external_id = ?`, externalID)
	return scanSurvey(row)
}

// SaveSession stores a session state, replacing any existing record.
func (s *SQLiteStore) SaveSession(state models.SessionState) error {
	_, err := s.db.Exec(`INSERT INTO sessions (session_id, survey_id, current_order, completed, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET current_order = excluded.current_order, completed = excluded.completed, updated_at = excluded.updated_at`,
		state.SessionID, state.SurveyID, state.CurrentOrder, state.Completed, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveSession failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("SQLiteStore SaveSession succeeded", "sessionID", state.SessionID, "completed", state.Completed)
	return nil
}

// GetSession retrieves a session state by id.
func (s *SQLiteStore) GetSession(sessionID string) (*models.SessionState, error) {
	row := s.db.QueryRow(`SELECT session_id, survey_id, current_order, completed, created_at, updated_at FROM sessions WHERE session_id = ?`, sessionID)
	var state models.SessionState
	err := row.Scan(&state.SessionID, &state.SurveyID, &state.CurrentOrder, &state.Completed, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetSession scan failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to scan session %s: %w", sessionID, err)
	}
	return &state, nil
}

// GetReport retrieves a report document by session id.
func (s *SQLiteStore) GetReport(sessionID string) (*models.Report, error) {
	row := s.db.QueryRow(`SELECT document, version FROM reports WHERE session_id = ?`, sessionID)
	var document string
	var version int64
	err := row.Scan(&document, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetReport scan failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to scan report %s: %w", sessionID, err)
	}
	var rep models.Report
	if err := json.Unmarshal([]byte(document), &rep); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", sessionID, err)
	}
	rep.Version = version
	return &rep, nil
}

// SaveReport replaces the whole report document under the version check.
func (s *SQLiteStore) SaveReport(rep *models.Report, expectedVersion int64) error {
	newVersion := expectedVersion + 1
	rep.Version = newVersion
	document, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", rep.SessionID, err)
	}

	if expectedVersion == 0 {
		res, err := s.db.Exec(`INSERT INTO reports (session_id, document, version) VALUES (?, ?, ?) ON CONFLICT(session_id) DO NOTHING`,
			rep.SessionID, string(document), newVersion)
		if err != nil {
			slog.Error("SQLiteStore SaveReport insert failed", "error", err, "sessionID", rep.SessionID)
			return fmt.Errorf("failed to insert report %s: %w", rep.SessionID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			slog.Warn("SQLiteStore SaveReport version conflict on insert", "sessionID", rep.SessionID)
			rep.Version = expectedVersion
			return models.ErrVersionConflict
		}
		slog.Debug("SQLiteStore SaveReport inserted", "sessionID", rep.SessionID, "version", newVersion)
		return nil
	}

	res, err := s.db.Exec(`UPDATE reports SET document = ?, version = ? WHERE session_id = ? AND version = ?`,
		string(document), newVersion, rep.SessionID, expectedVersion)
	if err != nil {
		slog.Error("SQLiteStore SaveReport update failed", "error", err, "sessionID", rep.SessionID)
		return fmt.Errorf("failed to update report %s: %w", rep.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("SQLiteStore SaveReport version conflict", "sessionID", rep.SessionID, "expected", expectedVersion)
		rep.Version = expectedVersion
		return models.ErrVersionConflict
	}
	slog.Debug("SQLiteStore SaveReport succeeded", "sessionID", rep.SessionID, "version", newVersion)
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
