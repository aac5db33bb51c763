// Package store provides conversation state storage backends for AuditLife.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/auditlife/auditlife/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore persists conversation state in a SQLite database file.
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

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetState retrieves the state for a conversation, defaulting to idle.
func (s *SQLiteStore) GetState(conversationID string) (models.ConversationState, error) {
	var stateTag string
	var pendingJSON sql.NullString
	err := s.db.QueryRow(
		`SELECT state, pending_json FROM conversation_states WHERE conversation_id = ?`,
		conversationID,
	).Scan(&stateTag, &pendingJSON)
	if err == sql.ErrNoRows {
		return models.Idle(), nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetState failed", "error", err, "conversationID", conversationID)
		return models.Idle(), fmt.Errorf("failed to query conversation state: %w", err)
	}
	return decodeState(stateTag, pendingJSON, conversationID)
}

// SetState overwrites the state entry for a conversation.
func (s *SQLiteStore) SetState(conversationID string, state models.ConversationState) error {
	pendingJSON, err := encodePending(state.Pending)
	if err != nil {
		slog.Error("SQLiteStore SetState marshal failed", "error", err, "conversationID", conversationID)
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(`
		INSERT INTO conversation_states (conversation_id, state, pending_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id)
		DO UPDATE SET state = excluded.state, pending_json = excluded.pending_json, updated_at = excluded.updated_at`,
		conversationID, string(state.State), pendingJSON, now, now)
	if err != nil {
		slog.Error("SQLiteStore SetState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("SQLiteStore SetState succeeded", "conversationID", conversationID, "state", state.State)
	return nil
}

// ClearState removes the state entry for a conversation.
func (s *SQLiteStore) ClearState(conversationID string) error {
	_, err := s.db.Exec(`DELETE FROM conversation_states WHERE conversation_id = ?`, conversationID)
	if err != nil {
		slog.Error("SQLiteStore ClearState failed", "error", err, "conversationID", conversationID)
		return fmt.Errorf("failed to clear conversation state: %w", err)
	}
	slog.Debug("SQLiteStore ClearState succeeded", "conversationID", conversationID)
	return nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// encodePending serializes a pending workflow for a nullable column.
func encodePending(pending *models.PendingWorkflow) (interface{}, error) {
	if pending == nil {
		return nil, nil
	}
	b, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending workflow: %w", err)
	}
	return string(b), nil
}

// decodeState reconstructs a ConversationState from its stored columns.
func decodeState(stateTag string, pendingJSON sql.NullString, conversationID string) (models.ConversationState, error) {
	state := models.ConversationState{State: models.StateType(stateTag)}
	if pendingJSON.Valid && pendingJSON.String != "" {
		var pending models.PendingWorkflow
		if err := json.Unmarshal([]byte(pendingJSON.String), &pending); err != nil {
			slog.Error("Conversation state pending JSON unmarshal failed", "error", err, "conversationID", conversationID)
			return models.Idle(), fmt.Errorf("failed to unmarshal pending workflow: %w", err)
		}
		state.Pending = &pending
	}
	return state, nil
}
