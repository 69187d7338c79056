package booking_test

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/generic/store"
)

// fakeHistory serves canned messages per chat.
type fakeHistory struct {
	messages map[generic.ChatID][]booking.Event
	failFor  generic.ChatID
	limits   []int
}

func (h *fakeHistory) FetchRecentMessages(_ context.Context, chatID generic.ChatID, limit int) ([]booking.Event, error) {
	h.limits = append(h.limits, limit)
	if chatID == h.failFor {
		return nil, errors.New("history unavailable")
	}
	return h.messages[chatID], nil
}

func skyHistory() *fakeHistory {
	return &fakeHistory{messages: map[generic.ChatID][]booking.Event{
		"sky@g.us": {
			{MessageID: "h1", Body: canonicalBooking},
			{MessageID: "h2", Body: "selamat pagi"},
			{MessageID: "h3", Body: "SKY\nUnit: B2\nCek out: 10:00\nUntuk: 3 jam\nCash/Tf: cash 300\nCs: kr\nKomisi: 30"},
			{MessageID: "h4", Body: "SKY\nUnit: B3"},
		},
	}}
}

var skyChats = []booking.ChatBinding{{ChatID: "sky@g.us", Apartment: "SKY HOUSE BSD"}}

func TestScanner_RecoversMissedBookings(t *testing.T) {
	// GIVEN: Two valid bookings, one chatter line and one invalid booking in history
	mem := store.NewMemoryWithClock(generic.FixedClock{At: parseTime})
	s := booking.NewScanner(skyHistory(), newTestParser(), mem, mem, 0, zerolog.Nop())

	// WHEN: Scanning
	res := s.Run(context.Background(), skyChats)

	// THEN: The valid ones are stored, the invalid one only marked
	assert.Equal(t, 1, res.GroupsProcessed)
	assert.Equal(t, 4, res.MessagesChecked)
	assert.Equal(t, 3, res.BookingMessagesFound)
	assert.Equal(t, 2, res.NewRecords)
	assert.Equal(t, 1, res.Invalid)
	assert.Zero(t, res.DuplicatesSkipped)
	assert.Zero(t, res.Errors)
	assert.Equal(t, 2, mem.Count())

	rec, err := mem.FindByMessageID(context.Background(), "h1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, generic.ChatID("sky@g.us"), rec.ChatID, "chat id is filled from the binding")
	assert.Equal(t, "SKY HOUSE BSD", rec.Apartment)

	ok, _ := mem.IsProcessed(context.Background(), "h4")
	assert.True(t, ok)
}

func TestScanner_SecondRunIsIdempotent(t *testing.T) {
	mem := store.NewMemoryWithClock(generic.FixedClock{At: parseTime})
	s := booking.NewScanner(skyHistory(), newTestParser(), mem, mem, 0, zerolog.Nop())
	s.Run(context.Background(), skyChats)

	res := s.Run(context.Background(), skyChats)

	assert.Zero(t, res.NewRecords)
	assert.Equal(t, res.BookingMessagesFound, res.DuplicatesSkipped)
	assert.Equal(t, 2, mem.Count())
}

func TestScanner_SimilarRecordIsDuplicate(t *testing.T) {
	// GIVEN: The same booking already stored under a different message id
	mem := store.NewMemoryWithClock(generic.FixedClock{At: parseTime})
	b := mustValid(t, newTestParser().Parse(canonicalBooking, "live-1", "SKY HOUSE BSD"))
	_, err := mem.Create(context.Background(), "live-1", "sky@g.us", b)
	require.NoError(t, err)

	h := &fakeHistory{messages: map[generic.ChatID][]booking.Event{
		"sky@g.us": {{MessageID: "h1", Body: canonicalBooking}},
	}}
	s := booking.NewScanner(h, newTestParser(), mem, mem, 0, zerolog.Nop())

	// WHEN: Scanning history
	res := s.Run(context.Background(), skyChats)

	// THEN: No second record, but the history message is marked
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Zero(t, res.NewRecords)
	assert.Equal(t, 1, mem.Count())
	ok, _ := mem.IsProcessed(context.Background(), "h1")
	assert.True(t, ok)
}

func TestScanner_FetchFailureIsIsolatedPerChat(t *testing.T) {
	h := skyHistory()
	h.failFor = "broken@g.us"
	mem := store.NewMemory()
	s := booking.NewScanner(h, newTestParser(), mem, mem, 50, zerolog.Nop())

	res := s.Run(context.Background(), []booking.ChatBinding{
		{ChatID: "broken@g.us", Apartment: "TREEPARK BSD"},
		{ChatID: "sky@g.us", Apartment: "SKY HOUSE BSD"},
	})

	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.GroupsProcessed)
	assert.Equal(t, 2, res.NewRecords)
	assert.Equal(t, []int{50, 50}, h.limits)
}

func TestNewScanner_DefaultLimit(t *testing.T) {
	s := booking.NewScanner(&fakeHistory{}, newTestParser(), store.NewMemory(), store.NewMemory(), 0, zerolog.Nop())
	assert.Equal(t, booking.DefaultBackfillLimit, s.Limit)
}
