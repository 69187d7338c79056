package api_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/generic/store"
	"github.com/warp/booking-engine/report"
)

var wib = time.FixedZone("WIB", 7*60*60)

const ownerChat = generic.ChatID("628123@c.us")

type recordingSender struct {
	mu   sync.Mutex
	sent map[generic.ChatID][]string
	err  error
}

func (s *recordingSender) SendText(_ context.Context, chatID generic.ChatID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.sent == nil {
		s.sent = make(map[generic.ChatID][]string)
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func (s *recordingSender) texts(chatID generic.ChatID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent[chatID]
}

func testSnapshot(t *testing.T, secret string) *config.Snapshot {
	t.Helper()
	snap, err := config.NewSnapshot(config.Config{
		Timezone: "Asia/Jakarta",
		Groups: []config.GroupConfig{
			{ChatID: "sky@g.us", Apartment: "SKY HOUSE BSD", Enabled: true},
			{ChatID: "old@g.us", Apartment: "TREEPARK BSD", Enabled: false},
		},
		Owners: []string{"08123"},
		Schedule: config.ScheduleConfig{
			DailyReport:   "12:00",
			MonthlyReport: "10:00",
			MonthlyDay:    1,
			Cleanup:       "02:00",
		},
		Ledger: config.LedgerConfig{RetentionDays: 30},
		Chat:   config.ChatConfig{WebhookSecret: secret},
	})
	require.NoError(t, err)
	return snap
}

type schedulerFixture struct {
	clock     *generic.FixedClock
	mem       *store.Memory
	sender    *recordingSender
	scheduler *api.ReportScheduler
}

func newSchedulerFixture(t *testing.T, at time.Time) *schedulerFixture {
	t.Helper()
	f := &schedulerFixture{
		clock:  &generic.FixedClock{At: at},
		sender: &recordingSender{},
	}
	f.mem = store.NewMemoryWithClock(f.clock)
	holder := config.NewHolder(testSnapshot(t, ""), nil)
	publisher := report.NewPublisher(f.mem, f.sender, func() report.Options { return report.Options{} }, zerolog.Nop())
	f.scheduler = api.NewReportScheduler(holder, publisher, f.mem, f.clock, zerolog.Nop())
	return f
}

// =============================================================================
// TICK TESTS
// =============================================================================

func TestTick_FirstObservationDoesNotCatchUp(t *testing.T) {
	// GIVEN: A scheduler first seen after every slot of the day has passed
	at := time.Date(2025, time.July, 30, 15, 0, 0, 0, wib)
	f := newSchedulerFixture(t, at)

	// WHEN: Ticking for the first time
	ran := f.scheduler.Tick(context.Background(), at)

	// THEN: Nothing runs
	assert.Empty(t, ran)
	assert.Empty(t, f.sender.texts(ownerChat))
}

func TestTick_FiresDailyOncePerSlot(t *testing.T) {
	// GIVEN: A scheduler primed before the daily slot
	before := time.Date(2025, time.July, 30, 11, 0, 0, 0, wib)
	f := newSchedulerFixture(t, before)
	require.Empty(t, f.scheduler.Tick(context.Background(), before))

	// WHEN: Ticking after 12:00
	after := time.Date(2025, time.July, 30, 12, 30, 0, 0, wib)
	f.clock.At = after
	ran := f.scheduler.Tick(context.Background(), after)

	// THEN: Only the daily report ran, for the business day that just closed
	require.Len(t, ran, 1)
	assert.Equal(t, api.JobDaily, ran[0].Job)
	assert.Equal(t, api.RunCompleted, ran[0].Status)
	assert.Equal(t, "29/07/2025: 0 records, sent to 1", ran[0].Detail)
	assert.True(t, ran[0].ScheduledFor.Equal(time.Date(2025, time.July, 30, 12, 0, 0, 0, wib)))
	require.Len(t, f.sender.texts(ownerChat), 1)
	assert.Contains(t, f.sender.texts(ownerChat)[0], "Laporan Harian")

	// AND: The same slot does not fire again
	assert.Empty(t, f.scheduler.Tick(context.Background(), after.Add(30*time.Minute)))
}

func TestTick_FailedDeliveryIsRecorded(t *testing.T) {
	before := time.Date(2025, time.July, 30, 11, 0, 0, 0, wib)
	f := newSchedulerFixture(t, before)
	f.sender.err = errors.New("gateway offline")
	f.scheduler.Tick(context.Background(), before)

	ran := f.scheduler.Tick(context.Background(), before.Add(2*time.Hour))

	require.Len(t, ran, 1)
	assert.Equal(t, api.RunFailed, ran[0].Status)
	assert.Contains(t, ran[0].Error, "gateway offline")
}

// =============================================================================
// RUN NOW TESTS
// =============================================================================

func TestRunNow_CleanupRemovesOldMarkers(t *testing.T) {
	// GIVEN: One marker older than the 30 day retention and one fresh
	start := time.Date(2025, time.June, 1, 10, 0, 0, 0, wib)
	f := newSchedulerFixture(t, start)
	ctx := context.Background()
	_, err := f.mem.MarkProcessed(ctx, "old", "sky@g.us")
	require.NoError(t, err)

	f.clock.At = start.AddDate(0, 0, 40)
	_, err = f.mem.MarkProcessed(ctx, "new", "sky@g.us")
	require.NoError(t, err)

	// WHEN: Running cleanup now
	run, err := f.scheduler.RunNow(ctx, api.JobCleanup)

	// THEN: Only the old marker is gone
	require.NoError(t, err)
	assert.Equal(t, api.RunCompleted, run.Status)
	assert.Equal(t, "1 markers removed", run.Detail)
	old, _ := f.mem.IsProcessed(ctx, "old")
	fresh, _ := f.mem.IsProcessed(ctx, "new")
	assert.False(t, old)
	assert.True(t, fresh)
}

func TestRunNow_MonthlyUsesPreviousMonth(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2025, time.August, 1, 10, 5, 0, 0, wib))

	run, err := f.scheduler.RunNow(context.Background(), api.JobMonthly)

	require.NoError(t, err)
	assert.Equal(t, "07/2025: 0 records, sent to 1", run.Detail)
	assert.Contains(t, f.sender.texts(ownerChat)[0], "Laporan Bulanan")
}

func TestRunNow_UnknownJob(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2025, time.July, 30, 15, 0, 0, 0, wib))

	_, err := f.scheduler.RunNow(context.Background(), "weekly")

	assert.True(t, generic.IsNotFound(err))
	assert.Empty(t, f.scheduler.Runs())
}

func TestRuns_NewestFirst(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2025, time.July, 30, 15, 0, 0, 0, wib))
	ctx := context.Background()

	_, err := f.scheduler.RunNow(ctx, api.JobDaily)
	require.NoError(t, err)
	_, err = f.scheduler.RunNow(ctx, api.JobCleanup)
	require.NoError(t, err)

	runs := f.scheduler.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, api.JobCleanup, runs[0].Job)
	assert.Equal(t, api.JobDaily, runs[1].Job)
	assert.NotEqual(t, runs[0].ID, runs[1].ID)
}

func TestNextRunTimes(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2025, time.July, 30, 15, 0, 0, 0, wib))

	next := f.scheduler.NextRunTimes()

	assert.True(t, next[api.JobDaily].Equal(time.Date(2025, time.July, 31, 12, 0, 0, 0, wib)))
	assert.True(t, next[api.JobCleanup].Equal(time.Date(2025, time.July, 31, 2, 0, 0, 0, wib)))
	assert.True(t, next[api.JobMonthly].Equal(time.Date(2025, time.August, 1, 10, 0, 0, 0, wib)))
}

func TestStart_DisabledIsNoop(t *testing.T) {
	f := newSchedulerFixture(t, time.Date(2025, time.July, 30, 15, 0, 0, 0, wib))

	f.scheduler.Start()
	f.scheduler.Stop()

	assert.Empty(t, f.scheduler.Runs())
}
