// Package store provides conversation state storage backends for AuditLife.
//
// It includes an in-memory store (the default), plus SQLite and PostgreSQL
// backends for deployments that want workflow state to survive restarts.
package store

import (
	"strings"

	"github.com/auditlife/auditlife/internal/models"
)

// ConversationStore persists the per-conversation workflow state.
//
// GetState never fails on absence: a conversation without an entry is idle.
// SetState is a total overwrite of the entry, never a merge. ClearState is
// idempotent; clearing an idle conversation is a no-op. Implementations must
// be safe for concurrent use across different conversation ids and guarantee
// read-after-write visibility for the same id on one logical thread of control.
type ConversationStore interface {
	// GetState retrieves the current state for a conversation, defaulting to idle.
	GetState(conversationID string) (models.ConversationState, error)

	// SetState overwrites the state entry for a conversation.
	SetState(conversationID string, state models.ConversationState) error

	// ClearState removes the state entry for a conversation, returning it to idle.
	ClearState(conversationID string) error

	// Close releases any resources held by the store.
	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string // database connection string (file path for SQLite)
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return WithDSN(dsn)
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return WithDSN(dsn)
}

// DetectDSNType classifies a DSN as "postgres", "sqlite", or "" (unknown/empty).
// Postgres DSNs use URL schemes or key=value form; everything else is treated
// as a SQLite file path.
func DetectDSNType(dsn string) string {
	if dsn == "" {
		return ""
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
