package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/kltan/smartshopper/internal/shared"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		user_input TEXT NOT NULL,
		assistant_reply TEXT NOT NULL,
		profile_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_session ON interactions(session_id, ts);

	CREATE TABLE IF NOT EXISTS handoffs (
		session_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		profile_json TEXT NOT NULL,
		answers_json TEXT NOT NULL,
		final_recommendation TEXT NOT NULL,
		summary TEXT
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// LogInteraction appends one turn to the session's interaction log.
func (s *SQLiteStore) LogInteraction(ctx context.Context, rec Interaction) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	query := `
	INSERT INTO interactions (id, session_id, ts, user_input, assistant_reply, profile_json)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		rec.ID, rec.SessionID, rec.Timestamp.Unix(),
		rec.UserInput, rec.AssistantReply, string(profileJSON),
	)
	if err != nil && shared.IsSQLiteConflictError(err) {
		// Single retry after the busy timeout: audit rows are worth one.
		_, err = s.db.ExecContext(ctx, query,
			rec.ID, rec.SessionID, rec.Timestamp.Unix(),
			rec.UserInput, rec.AssistantReply, string(profileJSON),
		)
	}
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

// TruncateLog drops the interaction log for a session.
func (s *SQLiteStore) TruncateLog(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM interactions WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("truncate interaction log: %w", err)
	}
	return nil
}

// Interactions returns a session's log ordered by time.
func (s *SQLiteStore) Interactions(ctx context.Context, sessionID string) ([]Interaction, error) {
	query := `
		SELECT id, session_id, ts, user_input, assistant_reply, profile_json
		FROM interactions WHERE session_id = ? ORDER BY ts, id`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var recs []Interaction
	for rows.Next() {
		var rec Interaction
		var ts int64
		var profileJSON string
		if err := rows.Scan(&rec.ID, &rec.SessionID, &ts, &rec.UserInput, &rec.AssistantReply, &profileJSON); err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		rec.Timestamp = time.Unix(ts, 0)
		if err := json.Unmarshal([]byte(profileJSON), &rec.Profile); err != nil {
			return nil, fmt.Errorf("unmarshal profile: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SaveHandoff upserts the hand-off summary for a session.
func (s *SQLiteStore) SaveHandoff(ctx context.Context, rec Handoff) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	profileJSON, err := json.Marshal(rec.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	answersJSON, err := json.Marshal(rec.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	query := `
	INSERT INTO handoffs (session_id, id, ts, profile_json, answers_json, final_recommendation, summary)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		id = excluded.id,
		ts = excluded.ts,
		profile_json = excluded.profile_json,
		answers_json = excluded.answers_json,
		final_recommendation = excluded.final_recommendation,
		summary = excluded.summary`

	var summary interface{}
	if rec.Summary != "" {
		summary = rec.Summary
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID, rec.ID, rec.Timestamp.Unix(),
		string(profileJSON), string(answersJSON), rec.FinalRecommendation, summary,
	)
	if err != nil {
		return fmt.Errorf("upsert handoff: %w", err)
	}
	return nil
}

// GetHandoff returns the latest hand-off record for a session, or nil.
func (s *SQLiteStore) GetHandoff(ctx context.Context, sessionID string) (*Handoff, error) {
	query := `
		SELECT session_id, id, ts, profile_json, answers_json, final_recommendation, summary
		FROM handoffs WHERE session_id = ?`

	row := s.db.QueryRowContext(ctx, query, sessionID)

	var rec Handoff
	var ts int64
	var profileJSON, answersJSON string
	var summary sql.NullString

	err := row.Scan(&rec.SessionID, &rec.ID, &ts, &profileJSON, &answersJSON, &rec.FinalRecommendation, &summary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan handoff row: %w", err)
	}

	rec.Timestamp = time.Unix(ts, 0)
	rec.Summary = summary.String
	if err := json.Unmarshal([]byte(profileJSON), &rec.Profile); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if err := json.Unmarshal([]byte(answersJSON), &rec.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &rec, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
