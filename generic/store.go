/*
store.go - Persistence interface for booking transaction records

PURPOSE:
  Defines the interface between the domain logic and the database.
  Implementations exist for SQLite, PostgreSQL and memory; the domain
  never sees SQL.

KEY INTERFACES:
  TransactionStore: single-record operations keyed by message id or record id
  LedgerStore:      TransactionStore + Ledger backed by the same database

UNIQUENESS CONTRACT:
  At most one record exists per source message id. Create() on an existing
  id fails with ErrDuplicateKey, which callers treat as "already processed".

MUTATION CONTRACT:
  - Create(): first successful parse of a message id
  - Update(): valid edit of the same message id (status -> edited)
  - Delete(): administrative removal only
  No multi-row transactions are needed; every call touches one record.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go:     Embedded default
  - store/postgres/postgres.go: Hosted database
  - generic/store/memory.go:    In-memory for testing

SEE ALSO:
  - ledger.go: Processed-message markers
  - diff.go: What Update() compares
*/
package generic

import "context"

// =============================================================================
// TRANSACTION STORE
// =============================================================================

// TransactionStore persists booking records.
type TransactionStore interface {
	// Create stores a new record. Returns ErrDuplicateKey if a record for
	// messageID already exists.
	Create(ctx context.Context, messageID MessageID, chatID ChatID, b Booking) (TransactionID, error)

	// FindByMessageID returns the record for a source message, or nil if absent.
	FindByMessageID(ctx context.Context, messageID MessageID) (*TransactionRecord, error)

	// Update replaces the booking fields of an existing record and marks it
	// edited. Returns ErrNotFound if absent.
	Update(ctx context.Context, messageID MessageID, b Booking) (*TransactionRecord, error)

	// ExistsSimilar is the dedup fallback for replayed history that has no
	// message-id link. Unit and CS name compare case-insensitively.
	ExistsSimilar(ctx context.Context, unit, dateOnly, csName, checkoutTime string) (bool, error)

	// Get returns a record by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, id TransactionID) (*TransactionRecord, error)

	// Delete removes a record by id. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id TransactionID) error

	// ListInWindow returns records created within w, oldest first. An empty
	// apartment means all apartments.
	ListInWindow(ctx context.Context, w Window, apartment string) ([]TransactionRecord, error)

	// FindInWindow returns records in w matching unit and CS name, case-insensitively.
	FindInWindow(ctx context.Context, w Window, unit, csName string) ([]TransactionRecord, error)
}

// LedgerStore is a database that serves both records and markers.
type LedgerStore interface {
	TransactionStore
	Ledger
	Close() error
}
