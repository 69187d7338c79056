/*
Package postgres implements the storage interfaces on PostgreSQL.

PURPOSE:
  Hosted alternative to store/sqlite (Supabase-compatible). Same contracts:
  unique source message ids, first-mark detection on the ledger.

SCHEMA:
  Versioned migrations under migrations/, embedded and applied with
  golang-migrate (iofs source, pgx/v5 driver) before the pool is used.

DECIMALS:
  NUMERIC columns cross the wire as text so values round-trip exactly
  through shopspring/decimal.

SEE ALSO:
  - generic/store.go, generic/ledger.go: contracts
  - store/sqlite: embedded backend
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/booking-engine/generic"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const uniqueViolation = "23505"

// Store implements generic.LedgerStore.
type Store struct {
	pool  *pgxpool.Pool
	clock generic.Clock
}

// New migrates the database at databaseURL and opens a pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	if err := Migrate(databaseURL); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool, clock: generic.SystemClock{}}, nil
}

// Migrate applies all up migrations. No change is not an error.
func Migrate(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, migrateURL(databaseURL))
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// migrateURL switches the scheme to the one the pgx/v5 migrate driver registers.
func migrateURL(databaseURL string) string {
	for _, prefix := range []string{"postgresql://", "postgres://"} {
		if strings.HasPrefix(databaseURL, prefix) {
			return "pgx5://" + strings.TrimPrefix(databaseURL, prefix)
		}
	}
	return databaseURL
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// =============================================================================
// TRANSACTION STORE
// =============================================================================

const recordColumns = `id::text, source_message_id, chat_id, apartment, unit, checkout_time,
	duration_hours::text, payment_method, payment_detail, amount::text, commission::text,
	net_amount::text, cs_name, promotional, date_only::text, status, created_at, updated_at`

func (s *Store) Create(ctx context.Context, messageID generic.MessageID, chatID generic.ChatID, b generic.Booking) (generic.TransactionID, error) {
	b = b.WithNet()
	id := uuid.New()
	now := s.clock.Now()

	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (
			id, source_message_id, chat_id, apartment, unit, checkout_time,
			duration_hours, payment_method, payment_detail, amount, commission, net_amount,
			cs_name, promotional, date_only, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::text::numeric, $8, $9, $10::text::numeric, $11::text::numeric, $12::text::numeric,
			$13, $14, $15::text::date, $16, $17, $17
		)
	`,
		id, string(messageID), string(chatID), b.Apartment, b.Unit, b.CheckoutTime,
		b.DurationHours.String(), string(b.PaymentMethod), b.PaymentDetail,
		b.Amount.String(), b.Commission.String(), b.NetAmount.String(),
		b.CSName, b.Promotional, b.DateOnly, string(generic.StatusActive), now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", generic.ErrDuplicateKey
		}
		return "", &generic.StoreError{Op: "create", Key: string(messageID), Err: err}
	}
	return generic.TransactionID(id.String()), nil
}

func (s *Store) FindByMessageID(ctx context.Context, messageID generic.MessageID) (*generic.TransactionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE source_message_id = $1`, string(messageID))
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "find", Key: string(messageID), Err: err}
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, messageID generic.MessageID, b generic.Booking) (*generic.TransactionRecord, error) {
	b = b.WithNet()
	row := s.pool.QueryRow(ctx, `
		UPDATE transactions SET
			apartment = $1, unit = $2, checkout_time = $3, duration_hours = $4::text::numeric,
			payment_method = $5, payment_detail = $6, amount = $7::text::numeric,
			commission = $8::text::numeric, net_amount = $9::text::numeric, cs_name = $10,
			promotional = $11, status = $12, updated_at = $13
		WHERE source_message_id = $14
		RETURNING `+recordColumns,
		b.Apartment, b.Unit, b.CheckoutTime, b.DurationHours.String(),
		string(b.PaymentMethod), b.PaymentDetail, b.Amount.String(),
		b.Commission.String(), b.NetAmount.String(), b.CSName,
		b.Promotional, string(generic.StatusEdited), s.clock.Now(), string(messageID),
	)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "update", Key: string(messageID), Err: err}
	}
	return rec, nil
}

func (s *Store) ExistsSimilar(ctx context.Context, unit, dateOnly, csName, checkoutTime string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE date_only = $1::text::date
			  AND lower(unit) = lower($2)
			  AND lower(cs_name) = lower($3)
			  AND checkout_time = $4
		)
	`, dateOnly, unit, csName, checkoutTime).Scan(&exists)
	if err != nil {
		return false, &generic.StoreError{Op: "exists_similar", Key: unit, Err: err}
	}
	return exists, nil
}

func (s *Store) Get(ctx context.Context, id generic.TransactionID) (*generic.TransactionRecord, error) {
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		return nil, generic.ErrNotFound
	}
	rec, err := scanRecord(s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM transactions WHERE id = $1`, parsed))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, generic.ErrNotFound
	}
	if err != nil {
		return nil, &generic.StoreError{Op: "get", Key: string(id), Err: err}
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, id generic.TransactionID) error {
	parsed, err := uuid.Parse(string(id))
	if err != nil {
		return generic.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1`, parsed)
	if err != nil {
		return &generic.StoreError{Op: "delete", Key: string(id), Err: err}
	}
	if tag.RowsAffected() == 0 {
		return generic.ErrNotFound
	}
	return nil
}

func (s *Store) ListInWindow(ctx context.Context, w generic.Window, apartment string) ([]generic.TransactionRecord, error) {
	return s.query(ctx, "list_window", `
		SELECT `+recordColumns+` FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		  AND ($3 = '' OR lower(apartment) = lower($3))
		ORDER BY created_at ASC, source_message_id ASC
	`, w.Start, w.EndExclusive(), apartment)
}

func (s *Store) FindInWindow(ctx context.Context, w generic.Window, unit, csName string) ([]generic.TransactionRecord, error) {
	return s.query(ctx, "find_window", `
		SELECT `+recordColumns+` FROM transactions
		WHERE created_at >= $1 AND created_at < $2
		  AND lower(unit) = lower($3)
		  AND lower(cs_name) = lower($4)
		ORDER BY created_at ASC
	`, w.Start, w.EndExclusive(), unit, csName)
}

func (s *Store) query(ctx context.Context, op, q string, args ...any) ([]generic.TransactionRecord, error) {
	rows, err := s.pool.Query(ctx, q, args...)
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
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_messages WHERE message_id = $1)`, string(messageID)).Scan(&exists)
	if err != nil {
		return false, &generic.StoreError{Op: "is_processed", Key: string(messageID), Err: err}
	}
	return exists, nil
}

func (s *Store) MarkProcessed(ctx context.Context, messageID generic.MessageID, chatID generic.ChatID) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO processed_messages (message_id, chat_id, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id) DO NOTHING
	`, string(messageID), string(chatID), s.clock.Now())
	if err != nil {
		return false, &generic.StoreError{Op: "mark_processed", Key: string(messageID), Err: err}
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Unmark(ctx context.Context, messageID generic.MessageID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM processed_messages WHERE message_id = $1`, string(messageID)); err != nil {
		return &generic.StoreError{Op: "unmark", Key: string(messageID), Err: err}
	}
	return nil
}

func (s *Store) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM processed_messages WHERE processed_at < $1`, s.clock.Now().Add(-maxAge))
	if err != nil {
		return 0, &generic.StoreError{Op: "cleanup", Err: err}
	}
	return tag.RowsAffected(), nil
}

// =============================================================================
// HELPERS
// =============================================================================

func scanRecord(row pgx.Row) (*generic.TransactionRecord, error) {
	var rec generic.TransactionRecord
	var id, msgID, chatID, method, status string
	var duration, amount, commission, net string
	err := row.Scan(
		&id, &msgID, &chatID, &rec.Apartment, &rec.Unit, &rec.CheckoutTime,
		&duration, &method, &rec.PaymentDetail, &amount, &commission, &net,
		&rec.CSName, &rec.Promotional, &rec.DateOnly, &status, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.ID = generic.TransactionID(id)
	rec.SourceMessageID = generic.MessageID(msgID)
	rec.ChatID = generic.ChatID(chatID)
	rec.PaymentMethod = generic.PaymentMethod(method)
	rec.Status = generic.RecordStatus(status)

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
	return &rec, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
