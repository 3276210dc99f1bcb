package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/mailgrab/internal/model"
)

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// GetMailboxState returns the stored high-water mark, or a zero state when
// none is recorded yet.
func (s *SQLiteStore) GetMailboxState(ctx context.Context, account, mailbox string) (MailboxState, error) {
	var state MailboxState
	err := s.db.GetContext(ctx, &state,
		"SELECT account, mailbox, uid_validity, last_uid, updated_at FROM mailbox_state WHERE account = ? AND mailbox = ?",
		account, mailbox,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return MailboxState{Account: account, Mailbox: mailbox}, nil
	}
	if err != nil {
		return MailboxState{}, fmt.Errorf("reading mailbox state: %w", err)
	}
	return state, nil
}

// SetMailboxState records the high-water mark. A changed UIDVALIDITY
// replaces the previous generation's mark entirely.
func (s *SQLiteStore) SetMailboxState(ctx context.Context, state MailboxState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO mailbox_state (account, mailbox, uid_validity, last_uid, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (account, mailbox) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			last_uid = excluded.last_uid,
			updated_at = excluded.updated_at`,
		state.Account, state.Mailbox, state.UIDValidity, uint32(state.LastUID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("writing mailbox state: %w", err)
	}
	return nil
}

// RecordAnomaly persists one decode anomaly. Persistence failures are
// swallowed: anomaly logging must never interfere with decoding.
func (s *SQLiteStore) RecordAnomaly(ctx context.Context, uid model.UID, partPath, kind, detail string) {
	_, _ = s.db.ExecContext(ctx, `
		INSERT INTO anomalies (id, uid, part_path, kind, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), uint32(uid), partPath, kind, detail, time.Now().UTC(),
	)
}

// RecentAnomalies returns up to limit anomalies, newest first.
func (s *SQLiteStore) RecentAnomalies(ctx context.Context, limit int) ([]Anomaly, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []Anomaly
	err := s.db.SelectContext(ctx, &out,
		"SELECT id, uid, part_path, kind, detail, created_at FROM anomalies ORDER BY created_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("reading anomalies: %w", err)
	}
	return out, nil
}
