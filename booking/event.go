/*
Package booking turns chat messages into booking records.

PURPOSE:
  Everything between an inbound chat event and a stored record:
  classification, parsing, first-time ingestion, edit reconciliation and
  history backfill. Chat transport is NOT here; this package only consumes
  the small Notifier and HistorySource interfaces declared below.

FLOW:
  Event -> Classifier -> BookingCandidate -> Ingestor.Handle
                                              |- new id     -> Parser -> Store.Create -> Ledger.MarkProcessed
                                              |- edited id  -> Parser -> DiffBookings -> Store.Update
  Scanner replays FetchRecentMessages through the same Classifier and Parser.

SEE ALSO:
  - parser.go: text -> Outcome
  - ingest.go / reconcile.go: side effects per event
  - backfill.go: recovery scan
  - generic/ledger.go: idempotency contract
*/
package booking

import (
	"context"
	"time"

	"github.com/warp/booking-engine/generic"
)

// StatusBroadcastChat is the pseudo-chat carrying status updates.
const StatusBroadcastChat generic.ChatID = "status@broadcast"

// Event is one inbound chat message as delivered by the chat gateway.
// It is never persisted.
type Event struct {
	MessageID generic.MessageID `json:"messageId"`
	ChatID    generic.ChatID    `json:"chatId"`
	IsGroup   bool              `json:"isGroup"`
	SenderID  string            `json:"senderId"`
	Body      string            `json:"body"`
	Edited    bool              `json:"edited"`
	Timestamp time.Time         `json:"timestamp"`
}

// Notifier is the outbound half of the chat gateway used by ingestion.
type Notifier interface {
	SendText(ctx context.Context, chatID generic.ChatID, text string) error
	SendTextWithMention(ctx context.Context, chatID generic.ChatID, text, mentionID string) error
	DeleteMessage(ctx context.Context, chatID generic.ChatID, messageID generic.MessageID) error
}

// HistorySource returns the most recent messages of a chat, newest last.
type HistorySource interface {
	FetchRecentMessages(ctx context.Context, chatID generic.ChatID, limit int) ([]Event, error)
}

// ChatBinding ties an allowed group chat to the apartment it reports for.
type ChatBinding struct {
	ChatID    generic.ChatID
	Apartment string
}
