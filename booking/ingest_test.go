package booking_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/generic/store"
	"github.com/warp/booking-engine/report"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type sentText struct {
	ChatID  generic.ChatID
	Text    string
	Mention string
}

// recordingNotifier captures outbound chat effects.
type recordingNotifier struct {
	mu      sync.Mutex
	sent    []sentText
	deleted []generic.MessageID
	sendErr error
}

func (n *recordingNotifier) SendText(_ context.Context, chatID generic.ChatID, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentText{ChatID: chatID, Text: text})
	return n.sendErr
}

func (n *recordingNotifier) SendTextWithMention(_ context.Context, chatID generic.ChatID, text, mentionID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentText{ChatID: chatID, Text: text, Mention: mentionID})
	return n.sendErr
}

func (n *recordingNotifier) DeleteMessage(_ context.Context, _ generic.ChatID, messageID generic.MessageID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
	return nil
}

func newTestIngestor(t *testing.T) (*booking.Ingestor, *store.Memory, *recordingNotifier) {
	t.Helper()
	mem := store.NewMemoryWithClock(generic.FixedClock{At: parseTime})
	n := &recordingNotifier{}
	return booking.NewIngestor(newTestParser(), mem, mem, n, zerolog.Nop()), mem, n
}

func groupEvent(id generic.MessageID, body string) booking.Event {
	return booking.Event{MessageID: id, ChatID: "sky@g.us", IsGroup: true, SenderID: "62812@c.us", Body: body}
}

// =============================================================================
// NEW MESSAGE TESTS
// =============================================================================

func TestHandle_ValidBooking_CreatesAndMarks(t *testing.T) {
	// GIVEN: A fresh valid booking message
	in, mem, n := newTestIngestor(t)
	ctx := context.Background()

	// WHEN: Handling it
	res, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")

	// THEN: One record exists, the message is marked, nothing is sent
	require.NoError(t, err)
	assert.Equal(t, booking.ResultCreated, res)
	assert.Equal(t, 1, mem.Count())

	rec, err := mem.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "SKY HOUSE BSD", rec.Apartment)
	assert.Equal(t, generic.ChatID("sky@g.us"), rec.ChatID)

	ok, err := mem.IsProcessed(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, n.sent)
	assert.Empty(t, n.deleted)
}

func TestHandle_Redelivery_IsDuplicate(t *testing.T) {
	in, mem, _ := newTestIngestor(t)
	ctx := context.Background()
	ev := groupEvent("m1", canonicalBooking)

	_, err := in.Handle(ctx, ev, "SKY HOUSE BSD")
	require.NoError(t, err)
	res, err := in.Handle(ctx, ev, "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultDuplicate, res)
	assert.Equal(t, 1, mem.Count())
}

func TestHandle_StoredButUnmarked_IsDuplicateAndGetsMarked(t *testing.T) {
	// GIVEN: A record whose marker was lost (crash between create and mark)
	in, mem, _ := newTestIngestor(t)
	ctx := context.Background()
	_, err := mem.Create(ctx, "m1", "sky@g.us", generic.Booking{Unit: "L3/30N"})
	require.NoError(t, err)

	// WHEN: The message is delivered again
	res, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")

	// THEN: The unique key catches it and the marker is restored
	require.NoError(t, err)
	assert.Equal(t, booking.ResultDuplicate, res)
	assert.Equal(t, 1, mem.Count())
	ok, _ := mem.IsProcessed(ctx, "m1")
	assert.True(t, ok)
}

func TestHandle_MissingField_DeletesAndMentionsSender(t *testing.T) {
	in, mem, n := newTestIngestor(t)
	body := "SKY\nUnit: A1\nUntuk: 2 jam\nCash/Tf: cash 150\nCs: amel\nKomisi: 10"

	res, err := in.Handle(context.Background(), groupEvent("m1", body), "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultRejected, res)
	assert.Zero(t, mem.Count())
	assert.Equal(t, []generic.MessageID{"m1"}, n.deleted)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "@62812 Cek outnya mana?", n.sent[0].Text)
	assert.Equal(t, "62812@c.us", n.sent[0].Mention)
}

func TestHandle_WrongFormat_SendsExample(t *testing.T) {
	in, _, n := newTestIngestor(t)
	body := "SKY\nUnit: A1\nCek out: besok\nUntuk: 2 jam\nCash/Tf: cash 150\nCs: amel\nKomisi: 10"

	res, err := in.Handle(context.Background(), groupEvent("m1", body), "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultRejected, res)
	require.Len(t, n.sent, 1)
	assert.Empty(t, n.sent[0].Mention)
	assert.Contains(t, n.sent[0].Text, "Format booking salah")
}

func TestHandle_InvalidRedelivery_NoSecondGuidance(t *testing.T) {
	// GIVEN: An invalid message already rejected once
	in, _, n := newTestIngestor(t)
	ev := groupEvent("m1", "SKY\nUnit: A1")
	_, err := in.Handle(context.Background(), ev, "SKY HOUSE BSD")
	require.NoError(t, err)

	// WHEN: It is delivered again
	res, err := in.Handle(context.Background(), ev, "SKY HOUSE BSD")

	// THEN: Only one delete and one guidance were ever emitted
	require.NoError(t, err)
	assert.Equal(t, booking.ResultDuplicate, res)
	assert.Len(t, n.deleted, 1)
	assert.Len(t, n.sent, 1)
}

func TestHandle_NotifierFailureDoesNotFailEvent(t *testing.T) {
	in, _, n := newTestIngestor(t)
	n.sendErr = errors.New("gateway down")

	res, err := in.Handle(context.Background(), groupEvent("m1", "SKY\nUnit: A1"), "SKY HOUSE BSD")

	assert.NoError(t, err)
	assert.Equal(t, booking.ResultRejected, res)
}

// =============================================================================
// EDIT TESTS
// =============================================================================

func TestHandleEdit_ChangedFields_UpdatesAndNotifies(t *testing.T) {
	// GIVEN: A stored booking of 250k
	in, mem, n := newTestIngestor(t)
	ctx := context.Background()
	_, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")
	require.NoError(t, err)

	// WHEN: The message is edited to 300k
	edit := groupEvent("m1", "🟢SKY HOUSE\nUnit      :L3/30N\nCek out: 05:00\nUntuk   : 6 jam\nCash/Tf: tf kr 300\nCs    : dreamy\nKomisi: 50")
	edit.Edited = true
	res, err := in.Handle(ctx, edit, "SKY HOUSE BSD")

	// THEN: The record is updated and the chat hears only the changed field
	require.NoError(t, err)
	assert.Equal(t, booking.ResultUpdated, res)

	rec, err := mem.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, rec.Amount.Equal(generic.Rupiah(300000)))
	assert.True(t, rec.NetAmount.Equal(generic.Rupiah(250000)))
	assert.Equal(t, generic.StatusEdited, rec.Status)

	require.Len(t, n.sent, 1)
	assert.Equal(t, "Data L3/30N diperbarui:\n- amount: 250000 -> 300000", n.sent[0].Text)
}

func TestHandleEdit_KeepsOriginalBusinessDate(t *testing.T) {
	// GIVEN: A booking recorded on 30 Jul
	mem := store.NewMemoryWithClock(generic.FixedClock{At: parseTime})
	ctx := context.Background()
	first := booking.NewIngestor(newTestParser(), mem, mem, nil, zerolog.Nop())
	_, err := first.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")
	require.NoError(t, err)

	// WHEN: It is edited two days later
	later := booking.NewParser(booking.DefaultNames(), generic.FixedClock{At: parseTime.AddDate(0, 0, 2)}, wib)
	in := booking.NewIngestor(later, mem, mem, nil, zerolog.Nop())
	edit := groupEvent("m1", "🟢SKY HOUSE\nUnit      :L3/30N\nCek out: 06:00\nUntuk   : 6 jam\nCash/Tf: tf kr 250\nCs    : dreamy\nKomisi: 50")
	edit.Edited = true
	res, err := in.Handle(ctx, edit, "SKY HOUSE BSD")

	// THEN: The business date did not move
	require.NoError(t, err)
	assert.Equal(t, booking.ResultUpdated, res)
	rec, _ := mem.FindByMessageID(ctx, "m1")
	assert.Equal(t, "2025-07-30", rec.DateOnly)
	assert.Equal(t, "06:00", rec.CheckoutTime)
}

func TestHandleEdit_SameContent_Unchanged(t *testing.T) {
	in, _, n := newTestIngestor(t)
	ctx := context.Background()
	_, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")
	require.NoError(t, err)

	// Only whitespace and case differ
	edit := groupEvent("m1", "🟢SKY HOUSE\nUnit: l3/30n\nCek out: 5:00\nUntuk: 6 jam\nCash/Tf: tf kr 250\nCs: Dreamy\nKomisi: 50")
	edit.Edited = true
	res, err := in.Handle(ctx, edit, "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultUnchanged, res)
	assert.Empty(t, n.sent)
}

func TestHandleEdit_InvalidEdit_KeepsRecord(t *testing.T) {
	in, mem, n := newTestIngestor(t)
	ctx := context.Background()
	_, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")
	require.NoError(t, err)

	edit := groupEvent("m1", "🟢SKY HOUSE\nUnit: L3/30N\nUntuk: 6 jam")
	edit.Edited = true
	res, err := in.Handle(ctx, edit, "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultEditRejected, res)
	rec, _ := mem.FindByMessageID(ctx, "m1")
	assert.Equal(t, generic.StatusActive, rec.Status)
	assert.True(t, rec.Amount.Equal(generic.Rupiah(250000)))
	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0].Text, "Edit tidak valid")
	assert.Empty(t, n.deleted, "edits never delete the message")
}

func TestHandleEdit_PromoAndUnitCaseOnly_PersistsSilently(t *testing.T) {
	// GIVEN: A stored cash booking that counts as cash revenue
	in, mem, n := newTestIngestor(t)
	ctx := context.Background()
	original := "🟢SKY HOUSE\nUnit: L3/30N\nCek out: 05:00\nUntuk: 6 jam\nCash/Tf: cash 250\nCs: dreamy\nKomisi: 50"
	_, err := in.Handle(ctx, groupEvent("m1", original), "SKY HOUSE BSD")
	require.NoError(t, err)
	before, _ := mem.FindByMessageID(ctx, "m1")
	require.True(t, report.IsCashRevenue(before.Booking, []string{"apk"}))

	// WHEN: The edit only adds a promo marker to the payment text and lowercases the unit
	edit := groupEvent("m1", "🟢SKY HOUSE\nUnit: l3/30n\nCek out: 05:00\nUntuk: 6 jam\nCash/Tf: cash apk 250\nCs: dreamy\nKomisi: 50")
	edit.Edited = true
	res, err := in.Handle(ctx, edit, "SKY HOUSE BSD")

	// THEN: The record is rewritten, leaves the cash subset, and no change notice goes out
	require.NoError(t, err)
	assert.Equal(t, booking.ResultUpdated, res)
	rec, err := mem.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "l3/30n", rec.Unit)
	assert.Equal(t, "cash apk 250", rec.PaymentDetail)
	assert.True(t, rec.Promotional)
	assert.False(t, report.IsCashRevenue(rec.Booking, []string{"apk"}))
	assert.Empty(t, n.sent)

	// AND: Replaying the same edit is a no-op
	res, err = in.Handle(ctx, edit, "SKY HOUSE BSD")
	require.NoError(t, err)
	assert.Equal(t, booking.ResultUnchanged, res)
}

func TestHandleEdit_ValidInvalidValid_StoresLastValidParse(t *testing.T) {
	// GIVEN: A stored booking
	in, mem, _ := newTestIngestor(t)
	ctx := context.Background()
	_, err := in.Handle(ctx, groupEvent("m1", canonicalBooking), "SKY HOUSE BSD")
	require.NoError(t, err)

	edits := []struct {
		body string
		want booking.Result
	}{
		{"🟢SKY HOUSE\nUnit: L3/30N\nCek out: 06:00\nUntuk: 6 jam\nCash/Tf: tf kr 300\nCs: dreamy\nKomisi: 50", booking.ResultUpdated},
		{"🟢SKY HOUSE\nUnit: L3/30N\nUntuk: 6 jam", booking.ResultEditRejected},
		{"🟢SKY HOUSE\nUnit: L5/12A\nCek out: 07:30\nUntuk: 12jam\nCash/Tf: cash 400\nCs: kr\nKomisi: 75", booking.ResultUpdated},
	}

	// WHEN: The message is edited valid, then invalid, then valid again
	for i, e := range edits {
		ev := groupEvent("m1", e.body)
		ev.Edited = true
		res, err := in.Handle(ctx, ev, "SKY HOUSE BSD")
		require.NoError(t, err)
		assert.Equal(t, e.want, res, "edit %d", i)
	}

	// THEN: The stored booking is exactly the last valid parse
	last := mustValid(t, newTestParser().Parse(edits[2].body, "m1", "SKY HOUSE BSD"))
	rec, err := mem.FindByMessageID(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, rec.Booking.SameStored(last), "stored %+v, want %+v", rec.Booking, last)
	assert.Equal(t, "L5/12A", rec.Unit)
	assert.Equal(t, "12", rec.DurationHours.String())
	assert.Equal(t, 1, mem.Count())
}

func TestHandleEdit_UnknownMessage_TreatedAsNew(t *testing.T) {
	in, mem, _ := newTestIngestor(t)
	edit := groupEvent("m9", canonicalBooking)
	edit.Edited = true

	res, err := in.Handle(context.Background(), edit, "SKY HOUSE BSD")

	require.NoError(t, err)
	assert.Equal(t, booking.ResultCreated, res)
	assert.Equal(t, 1, mem.Count())
}

func TestChangesText(t *testing.T) {
	text := booking.ChangesText("A-1", []generic.FieldChange{
		{Field: generic.FieldUnit, Old: "A-1", New: "A-2"},
		{Field: generic.FieldCSName, Old: "Amel", New: "KR"},
	})
	assert.Equal(t, "Data A-1 diperbarui:\n- unit: A-1 -> A-2\n- cs_name: Amel -> KR", text)
}
