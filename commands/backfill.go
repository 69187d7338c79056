package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
)

// Scanner is the part of booking.Scanner the runner needs.
type Scanner interface {
	Run(ctx context.Context, chats []booking.ChatBinding) booking.ScanResult
}

// BackfillStatus is the runner's externally visible state.
type BackfillStatus struct {
	Running   bool                `json:"running"`
	RunID     string              `json:"runId,omitempty"`
	StartedAt time.Time           `json:"startedAt,omitempty"`
	Last      *booking.ScanResult `json:"last,omitempty"`
}

// BackfillRunner runs at most one scan at a time on its own goroutine so
// live dispatch is never blocked by it.
type BackfillRunner struct {
	scanner Scanner
	log     zerolog.Logger

	mu        sync.Mutex
	running   bool
	runID     string
	startedAt time.Time
	last      *booking.ScanResult
	wg        sync.WaitGroup
}

func NewBackfillRunner(scanner Scanner, log zerolog.Logger) *BackfillRunner {
	return &BackfillRunner{scanner: scanner, log: log}
}

// Start launches a scan and returns its run id. done, if set, is called
// with the result on the scan goroutine. The scan outlives ctx cancellation
// of the request that started it.
func (r *BackfillRunner) Start(ctx context.Context, chats []booking.ChatBinding, done func(booking.ScanResult)) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", generic.ErrBackfillRunning
	}
	r.running = true
	r.runID = uuid.NewString()
	r.startedAt = time.Now()
	runID := r.runID
	r.mu.Unlock()

	scanCtx := context.WithoutCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res := r.scanner.Run(scanCtx, chats)

		r.mu.Lock()
		r.running = false
		r.last = &res
		r.mu.Unlock()

		r.log.Info().Str("run_id", runID).Int("new", res.NewRecords).Msg("backfill run complete")
		if done != nil {
			done(res)
		}
	}()
	return runID, nil
}

func (r *BackfillRunner) Status() BackfillStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return BackfillStatus{Running: r.running, RunID: r.runID, StartedAt: r.startedAt, Last: r.last}
}

// Wait blocks until the current run, if any, has finished.
func (r *BackfillRunner) Wait() { r.wg.Wait() }

// ChatBindings converts the enabled groups of a snapshot.
func ChatBindings(s *config.Snapshot) []booking.ChatBinding {
	groups := s.EnabledGroups()
	out := make([]booking.ChatBinding, 0, len(groups))
	for _, g := range groups {
		out = append(out, booking.ChatBinding{ChatID: generic.ChatID(g.ChatID), Apartment: g.Apartment})
	}
	return out
}

// ScanResultText renders backfill counters for chat.
func ScanResultText(res booking.ScanResult) string {
	return fmt.Sprintf("Rekap ulang selesai.\n"+
		"- Grup diproses: %d\n"+
		"- Pesan dicek: %d\n"+
		"- Pesan booking: %d\n"+
		"- Data baru: %d\n"+
		"- Duplikat dilewati: %d\n"+
		"- Format salah: %d\n"+
		"- Error: %d\n"+
		"- Durasi: %s",
		res.GroupsProcessed, res.MessagesChecked, res.BookingMessagesFound,
		res.NewRecords, res.DuplicatesSkipped, res.Invalid, res.Errors,
		res.Elapsed.Round(time.Millisecond))
}
