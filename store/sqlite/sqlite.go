/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.TransactionStore and generic.Ledger on one embedded
  database file. This is the default backend for single-host deployments.

INTERFACES IMPLEMENTED:
  generic.TransactionStore: booking records
  generic.Ledger:           processed-message markers
  generic.LedgerStore:      both, plus Close

KEY TABLES:
  transactions:       one row per source message id (UNIQUE)
  processed_messages: one row per handled message id (PRIMARY KEY)

INDEXES:
  - idx_transactions_created_at: window queries for reports (hot path)
  - idx_transactions_similar:    backfill dedup fallback
  - idx_processed_at:            retention cleanup

TIMESTAMPS:
  Stored as fixed-width UTC text so lexical order equals time order and
  window bounds can be compared in SQL.

CONCURRENCY:
  Uses sync.RWMutex plus a single open connection. WAL mode keeps readers
  from blocking the writer on file databases.

USAGE:
  store, err := sqlite.New("./data/bookings.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres: Hosted backend with versioned migrations
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/generic"
)

const tsLayout = "2006-01-02T15:04:05.000000000Z"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db    *sql.DB
	mu    sync.RWMutex
	clock generic.Clock
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithClock(dbPath, generic.SystemClock{})
}

// NewWithClock is New with an injectable clock for created_at/processed_at.
func NewWithClock(dbPath string, clock generic.Clock) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A second connection to ":memory:" would see an empty database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, clock: clock}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		source_message_id TEXT NOT NULL UNIQUE,
		chat_id TEXT NOT NULL,
		apartment TEXT NOT NULL,
		unit TEXT NOT NULL,
		checkout_time TEXT NOT NULL,
		duration_hours TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		payment_detail TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		commission TEXT NOT NULL,
		net_amount TEXT NOT NULL,
		cs_name TEXT NOT NULL,
		promotional INTEGER NOT NULL DEFAULT 0,
		date_only TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_created_at
		ON transactions(created_at);
	CREATE INDEX IF NOT EXISTS idx_transactions_similar
		ON transactions(date_only, unit COLLATE NOCASE, cs_name COLLATE NOCASE, checkout_time);

	CREATE TABLE IF NOT EXISTS processed_messages (
		message_id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		processed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_processed_at
		ON processed_messages(processed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const recordColumns = `id, source_message_id, chat_id, apartment, unit, checkout_time,
	duration_hours, payment_method, payment_detail, amount, commission, net_amount,
	cs_name, promotional, date_only, status, created_at, updated_at`

// Create stores a new record. A second create for the same message id fails
// with generic.ErrDuplicateKey.
func (s *Store) Create(ctx context.Context, messageID generic.MessageID, chatID generic.ChatID, b generic.Booking) (generic.TransactionID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b = b.WithNet()
	id := generic.TransactionID(uuid.New().String())
	now := s.clock.Now().UTC().Format(tsLayout)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(id), string(messageID), string(chatID), b.Apartment, b.Unit, b.CheckoutTime,
		b.DurationHours.String(), string(b.PaymentMethod), b.PaymentDetail,
		b.Amount.String(), b.Commission.String(), b.NetAmount.String(),
		b.CSName, boolToInt(b.Promotional), b.DateOnly, string(generic.StatusActive), now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return "", generic.ErrDuplicateKey
		}
		return "", &generic.StoreError{Op: "create", Key: string(messageID), Err: err}
	}
	return id, nil
}

func (s *Store) FindByMessageID(ctx context.Context, messageID generic.MessageID) (*generic.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE source_message_id = ?`, string(messageID))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "find", Key: string(messageID), Err: err}
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, messageID generic.MessageID, b generic.Booking) (*generic.TransactionRecord, error) {
	s.mu.Lock()

	b = b.WithNet()
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET
			apartment = ?, unit = ?, checkout_time = ?, duration_hours = ?,
			payment_method = ?, payment_detail = ?, amount = ?, commission = ?,
			net_amount = ?, cs_name = ?, promotional = ?, status = ?, updated_at = ?
		WHERE source_message_id = ?
	`,
		b.Apartment, b.Unit, b.CheckoutTime, b.DurationHours.String(),
		string(b.PaymentMethod), b.PaymentDetail, b.Amount.String(), b.Commission.String(),
		b.NetAmount.String(), b.CSName, boolToInt(b.Promotional), string(generic.StatusEdited),
		s.clock.Now().UTC().Format(tsLayout), string(messageID),
	)
	s.mu.Unlock()
	if err != nil {
		return nil, &generic.StoreError{Op: "update", Key: string(messageID), Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, &generic.StoreError{Op: "update", Key: string(messageID), Err: err}
	}
	if n == 0 {
		return nil, generic.ErrNotFound
	}
	return s.FindByMessageID(ctx, messageID)
}

func (s *Store) ExistsSimilar(ctx context.Context, unit, dateOnly, csName, checkoutTime string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE date_only = ?
		  AND unit = ? COLLATE NOCASE
		  AND cs_name = ? COLLATE NOCASE
		  AND checkout_time = ?
	`, dateOnly, unit, csName, checkoutTime).Scan(&count)
	if err != nil {
		return false, &generic.StoreError{Op: "exists_similar", Key: unit, Err: err}
	}
	return count > 0, nil
}

func (s *Store) Get(ctx context.Context, id generic.TransactionID) (*generic.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM transactions WHERE id = ?`, string(id))
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "get", Key: string(id), Err: err}
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id generic.TransactionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, string(id))
	if err != nil {
		return &generic.StoreError{Op: "delete", Key: string(id), Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &generic.StoreError{Op: "delete", Key: string(id), Err: err}
	}
	if n == 0 {
		return generic.ErrNotFound
	}
	return nil
}

func (s *Store) ListInWindow(ctx context.Context, w generic.Window, apartment string) ([]generic.TransactionRecord, error) {
	return s.query(ctx, "list_window", `
		SELECT `+recordColumns+` FROM transactions
		WHERE created_at >= ? AND created_at < ?
		  AND (? = '' OR apartment = ? COLLATE NOCASE)
		ORDER BY created_at ASC, source_message_id ASC
	`, w.Start.UTC().Format(tsLayout), w.EndExclusive().UTC().Format(tsLayout), apartment, apartment)
}

func (s *Store) FindInWindow(ctx context.Context, w generic.Window, unit, csName string) ([]generic.TransactionRecord, error) {
	return s.query(ctx, "find_window", `
		SELECT `+recordColumns+` FROM transactions
		WHERE created_at >= ? AND created_at < ?
		  AND unit = ? COLLATE NOCASE
		  AND cs_name = ? COLLATE NOCASE
		ORDER BY created_at ASC
	`, w.Start.UTC().Format(tsLayout), w.EndExclusive().UTC().Format(tsLayout), unit, csName)
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]generic.TransactionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, &generic.StoreError{Op: op, Err: err}
	}
	defer rows.Close()

	var out []generic.TransactionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &generic.StoreError{Op: op, Err: err}
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// =============================================================================
// LEDGER
// =============================================================================

func (s *Store) IsProcessed(ctx context.Context, messageID generic.MessageID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processed_messages WHERE message_id = ?`, string(messageID)).Scan(&count)
	if err != nil {
		return false, &generic.StoreError{Op: "is_processed", Key: string(messageID), Err: err}
	}
	return count > 0, nil
}

// MarkProcessed inserts the marker if absent. ON CONFLICT keeps a racing
// second insert from surfacing as an error.
func (s *Store) MarkProcessed(ctx context.Context, messageID generic.MessageID, chatID generic.ChatID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO processed_messages (message_id, chat_id, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING
	`, string(messageID), string(chatID), s.clock.Now().UTC().Format(tsLayout))
	if err != nil {
		return false, &generic.StoreError{Op: "mark_processed", Key: string(messageID), Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, &generic.StoreError{Op: "mark_processed", Key: string(messageID), Err: err}
	}
	return n == 1, nil
}

func (s *Store) Unmark(ctx context.Context, messageID generic.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM processed_messages WHERE message_id = ?`, string(messageID)); err != nil {
		return &generic.StoreError{Op: "unmark", Key: string(messageID), Err: err}
	}
	return nil
}

func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-maxAge).UTC().Format(tsLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM processed_messages WHERE processed_at < ?`, cutoff)
	if err != nil {
		return 0, &generic.StoreError{Op: "cleanup", Err: err}
	}
	return res.RowsAffected()
}

// =============================================================================
// HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*generic.TransactionRecord, error) {
	var rec generic.TransactionRecord
	var id, msgID, chatID, method, status string
	var duration, amount, commission, net string
	var createdAt, updatedAt string
	var promotional int
	err := row.Scan(
		&id, &msgID, &chatID, &rec.Apartment, &rec.Unit, &rec.CheckoutTime,
		&duration, &method, &rec.PaymentDetail, &amount, &commission, &net,
		&rec.CSName, &promotional, &rec.DateOnly, &status, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = generic.TransactionID(id)
	rec.SourceMessageID = generic.MessageID(msgID)
	rec.ChatID = generic.ChatID(chatID)
	rec.PaymentMethod = generic.PaymentMethod(method)
	rec.Status = generic.RecordStatus(status)
	rec.Promotional = promotional != 0

	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.DurationHours, duration},
		{&rec.Amount, amount},
		{&rec.Commission, commission},
		{&rec.NetAmount, net},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return nil, fmt.Errorf("parse decimal %q: %w", f.src, err)
		}
	}
	if rec.CreatedAt, err = time.Parse(tsLayout, createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = time.Parse(tsLayout, updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
