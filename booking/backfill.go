/*
backfill.go - Recovery scan over recent chat history

PURPOSE:
  Re-derives bookings that were missed while the service was down by
  replaying the last N messages of every allowed chat through the normal
  classifier and parser.

PER MESSAGE:
  not booking-shaped        -> skipped (counted as checked only)
  already processed         -> DuplicatesSkipped
  valid, nothing similar    -> Create + MarkProcessed, NewRecords
  valid, similar exists     -> MarkProcessed, DuplicatesSkipped
  invalid                   -> MarkProcessed, Invalid (no chat side effects)
  store fault / panic       -> Errors, scan continues

IDEMPOTENCE:
  A second run over unchanged history finds every booking already marked,
  so NewRecords == 0 and DuplicatesSkipped == BookingMessagesFound.

CANCELLATION:
  There is none mid-flight; the fetch cap bounds the work and every effect
  is safe to repeat after an interruption.
*/
package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
)

// DefaultBackfillLimit caps how many recent messages are fetched per chat.
const DefaultBackfillLimit = 500

// ScanResult aggregates one backfill run.
type ScanResult struct {
	GroupsProcessed      int           `json:"groupsProcessed"`
	MessagesChecked      int           `json:"totalMessagesChecked"`
	BookingMessagesFound int           `json:"bookingMessagesFound"`
	NewRecords           int           `json:"newDataAdded"`
	DuplicatesSkipped    int           `json:"duplicatesSkipped"`
	Invalid              int           `json:"invalid"`
	Errors               int           `json:"errors"`
	StartedAt            time.Time     `json:"startedAt"`
	Elapsed              time.Duration `json:"elapsed"`
}

type scanOutcome int

const (
	scanNotBooking scanOutcome = iota
	scanDuplicate
	scanNew
	scanInvalid
)

// Scanner replays chat history into the store.
type Scanner struct {
	Source     HistorySource
	Classifier *Classifier
	Parser     *Parser
	Store      generic.TransactionStore
	Ledger     generic.Ledger
	Limit      int
	Log        zerolog.Logger
}

// NewScanner builds a scanner whose classifier accepts every chat: the chats
// passed to Run are already the allowed set.
func NewScanner(source HistorySource, parser *Parser, store generic.TransactionStore, ledger generic.Ledger, limit int, log zerolog.Logger) *Scanner {
	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	return &Scanner{
		Source:     source,
		Classifier: NewClassifier(func(generic.ChatID) bool { return true }),
		Parser:     parser,
		Store:      store,
		Ledger:     ledger,
		Limit:      limit,
		Log:        log,
	}
}

// Run scans every chat. Failures are isolated per message and per chat.
func (s *Scanner) Run(ctx context.Context, chats []ChatBinding) ScanResult {
	res := ScanResult{StartedAt: time.Now()}
	s.Log.Info().Int("chats", len(chats)).Int("limit", s.Limit).Msg("backfill started")

	for _, chat := range chats {
		events, err := s.Source.FetchRecentMessages(ctx, chat.ChatID, s.Limit)
		if err != nil {
			res.Errors++
			s.Log.Error().Err(err).Str("chat_id", string(chat.ChatID)).Msg("backfill fetch failed")
			continue
		}
		res.GroupsProcessed++

		for _, ev := range events {
			res.MessagesChecked++
			// History events come from group chats even if the source omits it.
			ev.IsGroup = true
			if ev.ChatID == "" {
				ev.ChatID = chat.ChatID
			}

			outcome, err := s.scanOne(ctx, chat, ev)
			if outcome != scanNotBooking {
				res.BookingMessagesFound++
			}
			if err != nil {
				res.Errors++
				s.Log.Error().Err(err).
					Str("chat_id", string(chat.ChatID)).
					Str("message_id", string(ev.MessageID)).
					Msg("backfill message failed")
				continue
			}
			switch outcome {
			case scanNew:
				res.NewRecords++
			case scanDuplicate:
				res.DuplicatesSkipped++
			case scanInvalid:
				res.Invalid++
			}
		}
	}

	res.Elapsed = time.Since(res.StartedAt)
	metrics.BackfillMessages.WithLabelValues("new").Add(float64(res.NewRecords))
	metrics.BackfillMessages.WithLabelValues("duplicate").Add(float64(res.DuplicatesSkipped))
	metrics.BackfillMessages.WithLabelValues("error").Add(float64(res.Errors))

	s.Log.Info().
		Int("groups", res.GroupsProcessed).
		Int("checked", res.MessagesChecked).
		Int("bookings", res.BookingMessagesFound).
		Int("new", res.NewRecords).
		Int("duplicates", res.DuplicatesSkipped).
		Int("errors", res.Errors).
		Dur("elapsed", res.Elapsed).
		Msg("backfill finished")
	return res
}

func (s *Scanner) scanOne(ctx context.Context, chat ChatBinding, ev Event) (outcome scanOutcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scanning: %v", r)
		}
	}()

	if s.Classifier.Classify(ev).Kind != ClassBookingCandidate {
		return scanNotBooking, nil
	}

	processed, err := s.Ledger.IsProcessed(ctx, ev.MessageID)
	if err != nil {
		return scanDuplicate, err
	}
	if processed {
		return scanDuplicate, nil
	}

	valid, ok := s.Parser.Parse(ev.Body, ev.MessageID, chat.Apartment).(Valid)
	if !ok {
		_, err := s.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID)
		return scanInvalid, err
	}

	b := valid.Booking
	similar, err := s.Store.ExistsSimilar(ctx, b.Unit, b.DateOnly, b.CSName, b.CheckoutTime)
	if err != nil {
		return scanDuplicate, err
	}
	if similar {
		_, err := s.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID)
		return scanDuplicate, err
	}

	if _, err := s.Store.Create(ctx, ev.MessageID, ev.ChatID, b); err != nil {
		if errors.Is(err, generic.ErrDuplicateKey) {
			_, err := s.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID)
			return scanDuplicate, err
		}
		return scanNew, err
	}
	if _, err := s.Ledger.MarkProcessed(ctx, ev.MessageID, ev.ChatID); err != nil {
		return scanNew, err
	}
	return scanNew, nil
}
