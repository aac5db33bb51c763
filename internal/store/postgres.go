// Package store provides conversation state storage backends for AuditLife.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/auditlife/auditlife/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore persists conversation state in a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run PostgreSQL migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetState retrieves the state for a conversation, defaulting to idle.
func (s *PostgresStore) GetState(conversationID string) (models.ConversationState, error) {
	var stateTag string
	var pendingJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT state, pending_json FROM conversation_states WHERE conversation_id = $1`,
		conversationID,
	).Scan(&stateTag, &pendingJSON)
	if err == sql.ErrNoRows {
		return models.Idle(), nil
	}
	if err != nil {
		slog.Error("PostgresStore GetState failed", "error", err, "conversationID", conversationID)
		return models.Idle(), fmt.Errorf("failed to query conversation state: %w", err)
	}
	return decodeState(stateTag, pendingJSON, conversationID)
}

// SetState overwrites the state entry for a conversation.
func (s *PostgresStore) SetState(conversationID string, state models.ConversationState) error {
	pendingJSON, err := encodePending(state.Pending)
	if err != nil {
		slog.Error("PostgresStore SetState marshal failed", "error", err, "conversationID", conversationID)
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO conversation_states (conversation_id, state, pending_json, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id)
		DO UPDATE SET state = EXCLUDED.state, pending_json = EXCLUDED.pending_json, updated_at = EXCLUDED.updated_at`,
		conversationID, string(state.State), pendingJSON, now, now)
	if err != nil {
		slog.Error("PostgresStore SetState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("PostgresStore SetState succeeded", "conversationID", conversationID, "state", state.State)
	return nil
}

// ClearState removes the state entry for a conversation.
func (s *PostgresStore) ClearState(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = $1`, conversationID)
	if err != nil {
		slog.Error("PostgresStore ClearState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	slog.Debug("PostgresStore ClearState succeeded", "conversationID", conversationID)
	return nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing PostgreSQL database connection")
	return s.db.Close()
}
