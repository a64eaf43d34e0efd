package types

import (
	"context"
	"time"
)

// MessageLedger is the storage contract for the message ledger. Two
// implementations exist: a Postgres store for production and a SQLite store
// for single-node deployments, selected at startup via LEDGER_DRIVER.
// Consumers depend on this interface so the driver stays swappable.
type MessageLedger interface {
	// Create inserts m as a new pending record. The store assigns ID and
	// CreatedAt and writes both back to m.
	Create(ctx context.Context, m *Message) error

	// Finalize transitions a pending record to the given terminal status.
	// Repeating the same terminal status is a no-op; a different one fails
	// with conflict_status_final. When status is sent, the store stamps
	// SentAt.
	Finalize(ctx context.Context, id int64, status MessageStatus, deliveryResponse, errorText string) error

	// GetByID returns a single record or not_found_message.
	GetByID(ctx context.Context, id int64) (*Message, error)

	// Query returns one page of records matching f, newest first, plus the
	// total number of matching records. Limit is clamped to MaxQueryLimit;
	// zero selects DefaultQueryLimit.
	Query(ctx context.Context, f *MessageFilter) ([]*Message, int, error)

	// Aggregate returns per-caller status counts plus the grand total.
	Aggregate(ctx context.Context) (*LedgerStats, error)

	// ListTerminalBefore returns up to limit terminal records created
	// before cutoff, oldest first. Used by the retention sweep.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]*Message, error)

	// DeleteByIDs removes the given records and reports how many existed.
	// Missing IDs are not an error.
	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
}
