/*
ingest.go - First-time ingestion of booking messages

PURPOSE:
  Applies one BookingCandidate event: parse, persist, mark, and tell the
  sender when the message is unusable.

ORDERING PER EVENT:
  valid:   IsProcessed -> Parse -> Store.Create -> Ledger.MarkProcessed
  invalid: IsProcessed -> Parse -> Ledger.MarkProcessed (claim) -> delete + guidance

  Store.Create failing with ErrDuplicateKey means a racing delivery already
  recorded the message; it is marked and counted as a duplicate.
  Only the delivery whose MarkProcessed created the marker emits the
  delete/guidance side effect.

FAILURES:
  Store faults are returned to the caller (the dispatcher logs them and moves
  on). Notification faults are logged here and never fail the event.

SEE ALSO:
  - reconcile.go: edited events
  - generic/ledger.go: marker semantics
*/
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
)

type Result string

const (
	ResultCreated      Result = "created"
	ResultDuplicate    Result = "duplicate"
	ResultRejected     Result = "rejected"
	ResultUpdated      Result = "updated"
	ResultUnchanged    Result = "unchanged"
	ResultEditRejected Result = "edit_rejected"
)

// Ingestor handles booking events for both new and edited messages.
type Ingestor struct {
	Parser   *Parser
	Store    generic.TransactionStore
	Ledger   generic.Ledger
	Notifier Notifier
	Log      zerolog.Logger
}

func NewIngestor(parser *Parser, store generic.TransactionStore, ledger generic.Ledger, notifier Notifier, log zerolog.Logger) *Ingestor {
	return &Ingestor{Parser: parser, Store: store, Ledger: ledger, Notifier: notifier, Log: log}
}

// Handle routes an event to first-time ingestion or edit reconciliation.
// label is the apartment bound to the event's chat.
func (in *Ingestor) Handle(ctx context.Context, ev Event, label string) (Result, error) {
	var (
		res Result
		err error
	)
	if ev.Edited {
		res, err = in.HandleEdit(ctx, ev, label)
	} else {
		res, err = in.handleNew(ctx, ev, label)
	}
	if err == nil {
		metrics.BookingsIngested.WithLabelValues(string(res)).Inc()
	}
	return res, err
}

func (in *Ingestor) handleNew(ctx context.Context, ev Event, label string) (Result, error) {
	processed, err := in.Ledger.IsProcessed(ctx, ev.MessageID)
	if err != nil {
		return "", fmt.Errorf("check processed %s: %w", ev.MessageID, err)
	}
	if processed {
		in.Log.Debug().Str("message_id", string(ev.MessageID)).Msg("message already processed, skipping")
		return ResultDuplicate, nil
	}

	switch o := in.Parser.Parse(ev.Body, ev.MessageID, label).(type) {
	case Valid:
		return in.record(ctx, ev, o.Booking)
	default:
		return in.reject(ctx, ev, o)
	}
}

func (in *Ingestor) record(ctx context.Context, ev Event, b ParsedBooking) (Result, error) {
	id, err := in.Store.Create(ctx, ev.MessageID, ev.ChatID, b)
	if errors.Is(err, generic.ErrDuplicateKey) {
		in.mark(ctx, ev)
		return ResultDuplicate, nil
	}
	if err != nil {
		return "", fmt.Errorf("create record for %s: %w", ev.MessageID, err)
	}
	in.mark(ctx, ev)

	in.Log.Info().
		Str("message_id", string(ev.MessageID)).
		Str("transaction_id", string(id)).
		Str("apartment", b.Apartment).
		Str("unit", b.Unit).
		Str("cs", b.CSName).
		Str("amount", b.Amount.String()).
		Msg("booking recorded")
	return ResultCreated, nil
}

// mark records the message after a successful create. A failure here is
// logged only: the unique message id keeps a redelivery from duplicating.
func (in *Ingestor) mark(ctx context.Context, ev Event) {
	if _, err := in.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID); err != nil {
		in.Log.Error().Err(err).Str("message_id", string(ev.MessageID)).Msg("mark processed failed")
	}
}

func (in *Ingestor) reject(ctx context.Context, ev Event, o Outcome) (Result, error) {
	first, err := in.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID)
	if err != nil {
		return "", fmt.Errorf("mark rejected %s: %w", ev.MessageID, err)
	}
	if !first {
		return ResultDuplicate, nil
	}

	in.Log.Info().
		Str("message_id", string(ev.MessageID)).
		Str("chat_id", string(ev.ChatID)).
		Str("outcome", string(o.Kind())).
		Msg("booking rejected")

	if in.Notifier == nil {
		return ResultRejected, nil
	}
	if err := in.Notifier.DeleteMessage(ctx, ev.ChatID, ev.MessageID); err != nil {
		in.Log.Warn().Err(err).Str("message_id", string(ev.MessageID)).Msg("delete invalid booking failed, sending guidance anyway")
	}
	guidance := Guidance(o)
	if mf, ok := o.(MissingField); ok && ev.SenderID != "" {
		err = in.Notifier.SendTextWithMention(ctx, ev.ChatID, fmt.Sprintf("@%s %s", mentionHandle(ev.SenderID), guidance), ev.SenderID)
		if err != nil {
			in.Log.Warn().Err(err).Str("field", string(mf.Field)).Msg("send guidance failed")
		}
		return ResultRejected, nil
	}
	if err := in.Notifier.SendText(ctx, ev.ChatID, guidance); err != nil {
		in.Log.Warn().Err(err).Msg("send guidance failed")
	}
	return ResultRejected, nil
}

// mentionHandle strips the gateway suffix from a sender id ("62812@c.us" -> "62812").
func mentionHandle(senderID string) string {
	for i, r := range senderID {
		if r == '@' {
			return senderID[:i]
		}
	}
	return senderID
}
