package store

import (
	"context"
	"time"

	"github.com/nhle/mailgrab/internal/model"
)

// MailboxState is the poller's high-water mark for one account mailbox.
// Only bookkeeping is persisted here; decoded message content never is.
type MailboxState struct {
	Account     string    `db:"account"`
	Mailbox     string    `db:"mailbox"`
	UIDValidity uint32    `db:"uid_validity"`
	LastUID     model.UID `db:"last_uid"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Anomaly is one recorded decode anomaly: a condition the decoder recovered
// from locally but that should remain observable.
type Anomaly struct {
	ID        string    `db:"id"`
	UID       model.UID `db:"uid"`
	PartPath  string    `db:"part_path"`
	Kind      string    `db:"kind"`
	Detail    string    `db:"detail"`
	CreatedAt time.Time `db:"created_at"`
}

// Store defines the persistence interface for fetch state and anomalies.
type Store interface {
	// GetMailboxState returns the stored high-water mark for the account
	// mailbox, or a zero state when none is recorded yet.
	GetMailboxState(ctx context.Context, account, mailbox string) (MailboxState, error)

	// SetMailboxState records the high-water mark. When the stored
	// UIDVALIDITY differs from the given one, the mark is reset to the new
	// generation.
	SetMailboxState(ctx context.Context, state MailboxState) error

	// RecordAnomaly persists one decode anomaly.
	RecordAnomaly(ctx context.Context, uid model.UID, partPath, kind, detail string)

	// RecentAnomalies returns up to limit anomalies, newest first.
	RecentAnomalies(ctx context.Context, limit int) ([]Anomaly, error)

	Close() error
}
