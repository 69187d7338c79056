/*
Package generic provides the core types of the booking engine.

PURPOSE:
  Domain-level types shared by every other package: the booking field set,
  persisted transaction records, processed-message markers and identifiers.
  Nothing here performs I/O.

KEY CONCEPTS IN THIS FILE (types.go):
  - Booking: the structured fields extracted from one booking message.
    The same struct is the parser output AND the stored column set, so
    edit diffs never need a name translation table.
  - TransactionRecord: a persisted Booking with identity and status
  - ProcessedMessage: idempotency marker for one chat message id
  - Money helpers on decimal.Decimal (rupiah, no fractional cents)

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for amounts and durations
  2. Type Safety: distinct ID types for records and messages
  3. One naming convention: Field constants name every comparable column

SEE ALSO:
  - store.go: TransactionStore interface
  - ledger.go: Ledger interface
  - diff.go: Field-level comparison used by the edit reconciler
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TransactionID string
type MessageID string
type ChatID string

// =============================================================================
// MONEY - Rupiah amounts
// =============================================================================

// Rupiah builds an amount from whole rupiah.
func Rupiah(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// Thousands builds an amount from the "thousands shorthand" used in chat (250 => 250,000).
func Thousands(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Mul(decimal.NewFromInt(1000))
}

// =============================================================================
// BOOKING - Parsed booking fields
// =============================================================================

type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentTransfer PaymentMethod = "transfer"
)

// Booking is the structured content of one booking message.
type Booking struct {
	Apartment     string
	Unit          string
	CheckoutTime  string // "HH:MM" local
	DurationHours decimal.Decimal
	PaymentMethod PaymentMethod
	PaymentDetail string // raw payment text, lowercased ("tf kr 250")
	Amount        decimal.Decimal
	Commission    decimal.Decimal
	NetAmount     decimal.Decimal
	CSName        string
	Promotional   bool
	DateOnly      string // "2006-01-02", processing date in business timezone
}

// WithNet returns a copy with NetAmount recomputed from Amount and Commission.
func (b Booking) WithNet() Booking {
	b.NetAmount = b.Amount.Sub(b.Commission)
	return b
}

// =============================================================================
// TRANSACTION RECORD - Persisted booking
// =============================================================================

type RecordStatus string

const (
	StatusActive RecordStatus = "active"
	StatusEdited RecordStatus = "edited"
	// StatusCompleted is carried by records closed outside this service
	// (dashboard check-out); the engine reads it but never writes it.
	StatusCompleted RecordStatus = "completed"
)

// TransactionRecord is one stored booking, keyed uniquely by its source message.
type TransactionRecord struct {
	ID              TransactionID
	SourceMessageID MessageID
	ChatID          ChatID
	Booking
	Status    RecordStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// PROCESSED MESSAGE - Idempotency marker
// =============================================================================

type ProcessedMessage struct {
	MessageID   MessageID
	ChatID      ChatID
	ProcessedAt time.Time
}
