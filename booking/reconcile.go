package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/warp/booking-engine/generic"
)

// HandleEdit reconciles an edited message with its stored record.
//
// The stored record only ever holds the original parse or the latest VALID
// edit: invalid edits leave it untouched, identical edits are no-ops.
func (in *Ingestor) HandleEdit(ctx context.Context, ev Event, label string) (Result, error) {
	existing, err := in.Store.FindByMessageID(ctx, ev.MessageID)
	if err != nil {
		return "", fmt.Errorf("find record for edit %s: %w", ev.MessageID, err)
	}
	if existing == nil {
		return in.handleNew(ctx, ev, label)
	}

	outcome := in.Parser.Parse(ev.Body, ev.MessageID, label)
	valid, ok := outcome.(Valid)
	if !ok {
		in.Log.Info().
			Str("message_id", string(ev.MessageID)).
			Str("outcome", string(outcome.Kind())).
			Msg("edit invalid, keeping stored record")
		in.notify(ctx, ev.ChatID, EditRejectedText(outcome))
		return ResultEditRejected, nil
	}

	edited := valid.Booking
	// The business date belongs to the original message, not to the edit.
	edited.DateOnly = existing.DateOnly

	changes := generic.DiffBookings(existing.Booking, edited)
	if len(changes) == 0 && existing.Booking.SameStored(edited) {
		return ResultUnchanged, nil
	}

	if _, err := in.Store.Update(ctx, ev.MessageID, edited); err != nil {
		if errors.Is(err, generic.ErrNotFound) {
			// Deleted between find and update: treat as a fresh message.
			return in.handleNew(ctx, ev, label)
		}
		return "", fmt.Errorf("update record %s: %w", ev.MessageID, err)
	}

	in.Log.Info().
		Str("message_id", string(ev.MessageID)).
		Int("changed_fields", len(changes)).
		Msg("booking edited")
	// Changes outside the comparison set (raw payment text, promo flag, unit
	// case) are stored silently.
	if len(changes) > 0 {
		in.notify(ctx, ev.ChatID, ChangesText(edited.Unit, changes))
	}
	return ResultUpdated, nil
}

func (in *Ingestor) notify(ctx context.Context, chatID generic.ChatID, text string) {
	if in.Notifier == nil || text == "" {
		return
	}
	if err := in.Notifier.SendText(ctx, chatID, text); err != nil {
		in.Log.Warn().Err(err).Str("chat_id", string(chatID)).Msg("send edit notice failed")
	}
}

// EditRejectedText tells the chat an edit was ignored and why.
func EditRejectedText(o Outcome) string {
	return "Edit tidak valid, data lama tetap dipakai.\n" + Guidance(o)
}

// ChangesText lists only the fields that changed.
func ChangesText(unit string, changes []generic.FieldChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Data %s diperbarui:", unit)
	for _, c := range changes {
		fmt.Fprintf(&b, "\n- %s: %s -> %s", c.Field, c.Old, c.New)
	}
	return b.String()
}
