/*
scheduler.go - Time-of-day jobs: daily report, monthly report, ledger cleanup

PURPOSE:
  Fires the recurring jobs at their configured wall-clock times in the
  business timezone and keeps a short in-memory history of runs for the
  admin API.

DESIGN:
  - One background goroutine wakes every CheckInterval
  - Each job knows its most recent due instant; a job runs when that instant
    is later than the last one it ran for
  - The last-run marks start at Start(), so slots missed while the process
    was down are not replayed (use !resend for that)
  - Times are read from the live config snapshot on every tick, so a reload
    moves the schedule without a restart
  - Failures are logged and recorded, never retried

JOBS:
  daily:   report for the business day that just closed (default 12:00)
  monthly: report for the previous month on MonthlyDay (default day 1, 10:00)
  cleanup: prune ledger markers older than the retention (default 02:00)

USAGE:
  scheduler := NewReportScheduler(holder, publisher, ledger, clock, log)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ListScheduleRuns, RunScheduledJob
  - commands/handlers.go: ScheduledRequest (shared with !resend)
*/
package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/commands"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
	"github.com/warp/booking-engine/report"
)

// Job names.
const (
	JobDaily   = "daily"
	JobMonthly = "monthly"
	JobCleanup = "cleanup"
)

// Run statuses.
const (
	RunCompleted = "completed"
	RunFailed    = "failed"
)

const maxRunHistory = 100

// ScheduleRun records one job execution.
type ScheduleRun struct {
	ID           string    `json:"id"`
	Job          string    `json:"job"`
	ScheduledFor time.Time `json:"scheduledFor"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
	Status       string    `json:"status"`
	Detail       string    `json:"detail,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// ReportScheduler runs the recurring jobs.
type ReportScheduler struct {
	Config    *config.Holder
	Publisher *report.Publisher
	Ledger    generic.Ledger
	Clock     generic.Clock
	Log       zerolog.Logger

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu   sync.Mutex
	lastDue map[string]time.Time
	runs    []ScheduleRun
}

// NewReportScheduler creates a scheduler; Start must be called to run it.
func NewReportScheduler(holder *config.Holder, publisher *report.Publisher, ledger generic.Ledger, clock generic.Clock, log zerolog.Logger) *ReportScheduler {
	if clock == nil {
		clock = generic.SystemClock{}
	}
	return &ReportScheduler{
		Config:    holder,
		Publisher: publisher,
		Ledger:    ledger,
		Clock:     clock,
		Log:       log,
		lastDue:   make(map[string]time.Time),
	}
}

// Start begins ticking. It is a no-op when the schedule is disabled.
func (rs *ReportScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	cfg := rs.Config.Current()
	if !cfg.Schedule.Enabled {
		rs.Log.Info().Msg("scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	now := rs.Clock.Now()
	rs.runMu.Lock()
	for _, job := range []string{JobDaily, JobMonthly, JobCleanup} {
		if _, ok := rs.lastDue[job]; !ok {
			rs.lastDue[job] = now
		}
	}
	rs.runMu.Unlock()

	interval := cfg.Schedule.CheckInterval
	if interval <= 0 {
		interval = time.Minute
	}
	rs.ticker = time.NewTicker(interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)
	go rs.run(rs.ticker, rs.stop)

	rs.Log.Info().Dur("check_interval", interval).Msg("scheduler started")
}

// Stop halts the ticker and waits for an in-flight job to finish.
func (rs *ReportScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.Log.Info().Msg("scheduler stopped")
}

func (rs *ReportScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()
	for {
		select {
		case <-ticker.C:
			rs.Tick(context.Background(), rs.Clock.Now())
		case <-stop:
			return
		}
	}
}

// Tick runs every job whose due instant has passed since its last run.
func (rs *ReportScheduler) Tick(ctx context.Context, now time.Time) []ScheduleRun {
	cfg := rs.Config.Current()
	var ran []ScheduleRun
	for _, job := range []string{JobDaily, JobMonthly, JobCleanup} {
		due, err := lastDueFor(job, now, cfg)
		if err != nil {
			rs.Log.Error().Err(err).Str("job", job).Msg("invalid schedule time")
			continue
		}

		rs.runMu.Lock()
		last, seen := rs.lastDue[job]
		if seen && !due.After(last) {
			rs.runMu.Unlock()
			continue
		}
		rs.lastDue[job] = due
		rs.runMu.Unlock()

		if !seen {
			// First observation outside Start: remember the slot without
			// firing so a late-constructed scheduler does not catch up.
			continue
		}
		ran = append(ran, rs.execute(ctx, job, due, now, cfg))
	}
	return ran
}

// RunNow executes one job immediately for the slot that is due at the
// current time, regardless of whether it already ran.
func (rs *ReportScheduler) RunNow(ctx context.Context, job string) (ScheduleRun, error) {
	cfg := rs.Config.Current()
	now := rs.Clock.Now()
	due, err := lastDueFor(job, now, cfg)
	if err != nil {
		return ScheduleRun{}, err
	}
	return rs.execute(ctx, job, due, now, cfg), nil
}

// Runs returns the recorded runs, newest first.
func (rs *ReportScheduler) Runs() []ScheduleRun {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	out := make([]ScheduleRun, len(rs.runs))
	for i, r := range rs.runs {
		out[len(rs.runs)-1-i] = r
	}
	return out
}

// NextRunTimes returns when each job is next due.
func (rs *ReportScheduler) NextRunTimes() map[string]time.Time {
	cfg := rs.Config.Current()
	now := rs.Clock.Now()
	out := make(map[string]time.Time, 3)
	for _, job := range []string{JobDaily, JobMonthly, JobCleanup} {
		due, err := lastDueFor(job, now, cfg)
		if err != nil {
			continue
		}
		if job == JobMonthly {
			out[job] = due.AddDate(0, 1, 0)
		} else {
			out[job] = due.AddDate(0, 0, 1)
		}
	}
	return out
}

func (rs *ReportScheduler) execute(ctx context.Context, job string, due, now time.Time, cfg *config.Snapshot) ScheduleRun {
	run := ScheduleRun{
		ID:           uuid.NewString(),
		Job:          job,
		ScheduledFor: due,
		StartedAt:    rs.Clock.Now(),
	}
	log := rs.Log.With().Str("job", job).Str("run_id", run.ID).Logger()

	detail, err := rs.perform(ctx, job, now, cfg)
	run.CompletedAt = rs.Clock.Now()
	run.Detail = detail
	if err != nil {
		run.Status = RunFailed
		run.Error = err.Error()
		log.Error().Err(err).Msg("scheduled job failed")
	} else {
		run.Status = RunCompleted
		log.Info().Str("detail", detail).Msg("scheduled job completed")
	}

	rs.runMu.Lock()
	rs.runs = append(rs.runs, run)
	if len(rs.runs) > maxRunHistory {
		rs.runs = rs.runs[len(rs.runs)-maxRunHistory:]
	}
	rs.runMu.Unlock()
	return run
}

func (rs *ReportScheduler) perform(ctx context.Context, job string, now time.Time, cfg *config.Snapshot) (string, error) {
	switch job {
	case JobDaily, JobMonthly:
		kind := report.KindDaily
		if job == JobMonthly {
			kind = report.KindMonthly
		}
		req, err := commands.ScheduledRequest(kind, "", now, cfg)
		if err != nil {
			return "", err
		}
		pub, err := rs.Publisher.Publish(ctx, req)
		detail := fmt.Sprintf("%s: %d records, sent to %d", req.Window.Label, pub.Summary.Grand.Count, pub.Sent)
		return detail, err

	case JobCleanup:
		if rs.Ledger == nil {
			return "no ledger", nil
		}
		n, err := rs.Ledger.Cleanup(ctx, generic.RetentionDays(cfg.Ledger.RetentionDays))
		if err != nil {
			return "", err
		}
		metrics.LedgerCleanupRemoved.Add(float64(n))
		return fmt.Sprintf("%d markers removed", n), nil
	}
	return "", fmt.Errorf("%w: unknown job %q", generic.ErrNotFound, job)
}

// lastDueFor returns the most recent instant at or before now at which job
// was due, in the snapshot's timezone.
func lastDueFor(job string, now time.Time, cfg *config.Snapshot) (time.Time, error) {
	loc := cfg.Location
	local := now.In(loc)

	switch job {
	case JobDaily, JobCleanup:
		clock := cfg.Schedule.DailyReport
		if job == JobCleanup {
			clock = cfg.Schedule.Cleanup
		}
		h, m, err := config.ParseClock(clock)
		if err != nil {
			return time.Time{}, err
		}
		t := time.Date(local.Year(), local.Month(), local.Day(), h, m, 0, 0, loc)
		if t.After(local) {
			t = t.AddDate(0, 0, -1)
		}
		return t, nil

	case JobMonthly:
		h, m, err := config.ParseClock(cfg.Schedule.MonthlyReport)
		if err != nil {
			return time.Time{}, err
		}
		day := cfg.Schedule.MonthlyDay
		if day < 1 {
			day = 1
		}
		if day > 28 {
			day = 28
		}
		t := time.Date(local.Year(), local.Month(), day, h, m, 0, 0, loc)
		if t.After(local) {
			t = time.Date(local.Year(), local.Month()-1, day, h, m, 0, 0, loc)
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: unknown job %q", generic.ErrNotFound, job)
}
