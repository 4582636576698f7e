// Package store provides storage backends for SurveyPipe.
//
// This file implements a PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/SurveyPipe/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")
	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

// SaveSurvey stores a survey, replacing any existing record with the same id.
func (s *PostgresStore) SaveSurvey(survey models.Survey) error {
	questionsJSON, err := json.Marshal(survey.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions for survey %s: %w", survey.ID, err)
	}
	_, err = s.db.Exec(`INSERT INTO surveys (id, external_id, name, questions) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET external_id = EXCLUDED.external_id, name = EXCLUDED.name, questions = EXCLUDED.questions`,
		survey.ID, survey.ExternalID, survey.Name, string(questionsJSON))
	if err != nil {
		slog.Error("PostgresStore SaveSurvey failed", "error", err, "id", survey.ID)
		return fmt.Errorf("failed to save survey %s: %w", survey.ID, err)
	}
	slog.Debug("PostgresStore SaveSurvey succeeded", "id", survey.ID, "externalID", survey.ExternalID)
	return nil
}

// GetSurvey retrieves a survey by id.
func (s *PostgresStore) GetSurvey(id string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, external_id, name, questions FROM surveys WHERE id = $1`, id)
	return scanSurvey(row)
}

// GetSurveyByExternalID retrieves a survey by its external id.
func (s *PostgresStore) GetSurveyByExternalID(externalID string) (*models.Survey, error) {
	row := s.db.QueryRow(`SELECT id, external_id, name, questions FROM surveys WHERE external_id = $1`, externalID)
	return scanSurvey(row)
}

// SaveSession stores a session state, replacing any existing record.
func (s *PostgresStore) SaveSession(state models.SessionState) error {
	_, err := s.db.Exec(`INSERT INTO sessions (session_id, survey_id, current_order, completed, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE SET current_order = EXCLUDED.current_order, completed = EXCLUDED.completed, updated_at = EXCLUDED.updated_at`,
		state.SessionID, state.SurveyID, state.CurrentOrder, state.Completed, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveSession failed", "error", err, "sessionID", state.SessionID)
		return fmt.Errorf("failed to save session %s: %w", state.SessionID, err)
	}
	slog.Debug("PostgresStore SaveSession succeeded", "sessionID", state.SessionID, "completed", state.Completed)
	return nil
}

// GetSession retrieves a session state by id.
func (s *PostgresStore) GetSession(sessionID string) (*models.SessionState, error) {
	row := s.db.QueryRow(`SELECT session_id, survey_id, current_order, completed, created_at, updated_at FROM sessions WHERE session_id = $1`, sessionID)
	var state models.SessionState
	err := row.Scan(&state.SessionID, &state.SurveyID, &state.CurrentOrder, &state.Completed, &state.CreatedAt, &state.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetSession scan failed", "error", err, "sessionID", sessionID)
		return nil, fmt.Errorf("failed to scan session %s: %w", sessionID, err)
	}
	return &state, nil
}

// GetReport retrieves a report document by session id.
func (s *PostgresStore) GetReport(sessionID string) (*models.Report, error) {
	row := s.db.QueryRow(`SELECT document, version FROM reports WHERE session_id = $1`, sessionID)
	var document string
	var version int64
	err := row.Scan(&document, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetReport scan failed", "error", err, "sessionID", sessionID)
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
func (s *PostgresStore) SaveReport(rep *models.Report, expectedVersion int64) error {
	newVersion := expectedVersion + 1
	rep.Version = newVersion
	document, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("failed to marshal report %s: %w", rep.SessionID, err)
	}

	if expectedVersion == 0 {
		res, err := s.db.Exec(`INSERT INTO reports (session_id, document, version) VALUES ($1, $2, $3) ON CONFLICT (session_id) DO NOTHING`,
			rep.SessionID, string(document), newVersion)
		if err != nil {
			slog.Error("PostgresStore SaveReport insert failed", "error", err, "sessionID", rep.SessionID)
			return fmt.Errorf("failed to insert report %s: %w", rep.SessionID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			slog.Warn("PostgresStore SaveReport version conflict on insert", "sessionID", rep.SessionID)
			rep.Version = expectedVersion
			return models.ErrVersionConflict
		}
		slog.Debug("PostgresStore SaveReport inserted", "sessionID", rep.SessionID, "version", newVersion)
		return nil
	}

	res, err := s.db.Exec(`UPDATE reports SET document = $1, version = $2 WHERE session_id = $3 AND version = $4`,
		string(document), newVersion, rep.SessionID, expectedVersion)
	if err != nil {
		slog.Error("PostgresStore SaveReport update failed", "error", err, "sessionID", rep.SessionID)
		return fmt.Errorf("failed to update report %s: %w", rep.SessionID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("PostgresStore SaveReport version conflict", "sessionID", rep.SessionID, "expected", expectedVersion)
		rep.Version = expectedVersion
		return models.ErrVersionConflict
	}
	slog.Debug("PostgresStore SaveReport succeeded", "sessionID", rep.SessionID, "version", newVersion)
	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
