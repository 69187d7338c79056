/*
ledger.go - Idempotency ledger of handled chat messages

PURPOSE:
  The Ledger records every message id the engine has acted on, whether the
  message parsed or not. It is the sole idempotency anchor: a redelivered
  message that is already marked produces no second record and no second
  delete/notify side effect.

CRITICAL INVARIANTS:
  1. EVERY ATTEMPT IS MARKED: valid, invalid and duplicate messages alike
  2. RE-MARK IS A NO-OP: MarkProcessed never fails because the id exists
  3. FIRST MARK WINS: MarkProcessed reports whether this call created the
     marker, so concurrent deliveries can agree on a single claimant
  4. BOUNDED: markers older than the retention window are pruned

ORDERING:
  For a valid booking the record is created BEFORE the message is marked,
  so a crash between the two leaves the message re-ingestible (the store's
  unique source_message_id rejects the second create).
  For an invalid booking the message is marked FIRST and only the caller
  that created the marker deletes the message and sends guidance.

SEE ALSO:
  - store.go: TransactionStore (records)
  - booking/ingest.go: Ordering of create/mark per event
  - store/redisledger: Redis implementation with TTL-based retention
*/
package generic

import (
	"context"
	"time"
)

// DefaultRetention is how long processed-message markers are kept.
const DefaultRetention = 30 * 24 * time.Hour

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the at-most-once record of handled message ids.
type Ledger interface {
	// IsProcessed reports whether the message id has been marked.
	IsProcessed(ctx context.Context, messageID MessageID) (bool, error)

	// MarkProcessed upserts the marker. Returns true only when this call
	// created it. Re-marking an existing id returns (false, nil).
	MarkProcessed(ctx context.Context, messageID MessageID, chatID ChatID) (bool, error)

	// Unmark removes a marker so the message can be re-derived by backfill.
	// Missing ids are not an error.
	Unmark(ctx context.Context, messageID MessageID) error

	// Cleanup deletes markers older than maxAge and returns how many were removed.
	Cleanup(ctx context.Context, maxAge time.Duration) (int64, error)
}

// RetentionDays converts a day count into a retention duration, falling back
// to DefaultRetention for non-positive values.
func RetentionDays(days int) time.Duration {
	if days <= 0 {
		return DefaultRetention
	}
	return time.Duration(days) * 24 * time.Hour
}
