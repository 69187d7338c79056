/*
handlers.go - HTTP API handlers for the booking engine

PURPOSE:
  Exposes the chat webhook, read-only reports and admin operations over
  HTTP. Handles request/response and JSON, and delegates to the same
  components the chat commands use.

ENDPOINTS:
  Webhook:
    POST   /api/events                 Inbound chat event (queued, 202)

  Reports:
    GET    /api/reports/summary        Aggregated window (?date=|?period=, ?apartment=)
    GET    /api/reports/detail         Same, itemized per apartment

  Transactions:
    GET    /api/transactions/{id}      One stored record
    DELETE /api/transactions/{id}      Remove a record and unmark its message

  Admin:
    POST   /api/admin/backfill         Start a history scan (202)
    GET    /api/admin/backfill         Scan status and last result
    POST   /api/admin/resend           Re-emit a scheduled report
    POST   /api/admin/config/reload    Swap in a freshly loaded config

  Schedule:
    GET    /api/schedule/runs          Recorded job runs and next due times
    POST   /api/schedule/{job}/run     Run a job now

ARCHITECTURE:
  Handler struct holds all dependencies. Every request reads the config
  snapshot current when it starts.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid dates or windows, unknown apartment
  - 401: Missing or wrong shared secret (see middleware.go)
  - 404: Record or job not found
  - 409: Backfill already running
  - 503: Event queue closed (shutting down)
  - 500: Store and transport failures

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - commands/handlers.go: Chat-side equivalents
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/bot"
	"github.com/warp/booking-engine/commands"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/logger"
	"github.com/warp/booking-engine/report"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// EventQueue accepts inbound events for serial dispatch.
type EventQueue interface {
	Enqueue(ctx context.Context, ev booking.Event) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Config    *config.Holder
	Store     generic.TransactionStore
	Ledger    generic.Ledger
	Queue     EventQueue
	Publisher *report.Publisher
	Backfill  *commands.BackfillRunner
	Scheduler *ReportScheduler
	Clock     generic.Clock
	Log       zerolog.Logger
}

func (h *Handler) snapshot() *config.Snapshot { return h.Config.Current() }

func (h *Handler) log(r *http.Request) zerolog.Logger {
	if _, ok := r.Context().Value(logger.LoggerKey).(zerolog.Logger); ok {
		return logger.FromContext(r.Context())
	}
	return h.Log
}

// =============================================================================
// WEBHOOK
// =============================================================================

// ReceiveEvent queues one chat event. The response only acknowledges
// receipt; classification and ingestion happen on the dispatch worker.
func (h *Handler) ReceiveEvent(w http.ResponseWriter, r *http.Request) {
	var ev booking.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if ev.MessageID == "" || ev.ChatID == "" {
		writeError(w, http.StatusBadRequest, "messageId and chatId are required", nil)
		return
	}

	if err := h.Queue.Enqueue(r.Context(), ev); err != nil {
		if errors.Is(err, bot.ErrQueueClosed) {
			writeError(w, http.StatusServiceUnavailable, "Event queue closed", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to queue event", err)
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{MessageID: string(ev.MessageID), Status: "queued"})
}

// =============================================================================
// REPORTS
// =============================================================================

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, false)
}

func (h *Handler) GetDetail(w http.ResponseWriter, r *http.Request) {
	h.report(w, r, true)
}

// report resolves the window from either ?date=DDMMYYYY (a business day,
// default today) or ?period= using the !export grammar.
func (h *Handler) report(w http.ResponseWriter, r *http.Request, detail bool) {
	cfg := h.snapshot()
	q := r.URL.Query()
	now := h.now()

	var (
		window    generic.Window
		apartment string
		err       error
	)
	if period := strings.TrimSpace(q.Get("period")); period != "" {
		var sel commands.Selection
		sel, err = commands.ResolveExport(strings.Fields(period), now, cfg.Location, commands.ResolverFor(cfg))
		window, apartment = sel.Window, sel.Apartment
	} else {
		window, err = commands.ResolveBusinessDay(q.Get("date"), now, cfg.Location)
	}
	if err != nil {
		writeDomainError(w, "Invalid report window", err)
		return
	}

	if a := strings.TrimSpace(q.Get("apartment")); a != "" {
		apartment, err = commands.ResolverFor(cfg).Resolve(a)
		if err != nil {
			writeDomainError(w, "Unknown apartment", err)
			return
		}
	}

	sum, err := h.Publisher.Build(r.Context(), window, apartment)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}

	resp := ReportResponse{Summary: toSummaryDTO(sum)}
	if detail {
		resp.Text = report.RenderDetail(sum, "Detail Rekap")
		resp.Records = toTransactionDTOs(sum)
	} else {
		resp.Text = report.RenderSummary(sum, "Rekap Booking")
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Store.Get(r.Context(), generic.TransactionID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, "Failed to get transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTO(*rec))
}

// DeleteTransaction removes a record and clears its ledger marker, so a
// later backfill may re-derive it from the source message.
func (h *Handler) DeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := generic.TransactionID(chi.URLParam(r, "id"))

	rec, err := h.Store.Get(ctx, id)
	if err != nil {
		writeDomainError(w, "Failed to get transaction", err)
		return
	}
	if err := h.Store.Delete(ctx, id); err != nil {
		writeDomainError(w, "Failed to delete transaction", err)
		return
	}
	if h.Ledger != nil {
		if err := h.Ledger.Unmark(ctx, rec.SourceMessageID); err != nil {
			l := h.log(r)
			l.Warn().Err(err).Str("message_id", string(rec.SourceMessageID)).Msg("unmark after delete failed")
		}
	}

	l := h.log(r)
	l.Info().
		Str("transaction_id", string(rec.ID)).
		Str("unit", rec.Unit).
		Str("cs", rec.CSName).
		Msg("record deleted via api")
	writeJSON(w, http.StatusOK, toTransactionDTO(*rec))
}

// =============================================================================
// ADMIN
// =============================================================================

// StartBackfill launches a history scan over every enabled group.
func (h *Handler) StartBackfill(w http.ResponseWriter, r *http.Request) {
	chats := commands.ChatBindings(h.snapshot())
	log := h.Log
	runID, err := h.Backfill.Start(r.Context(), chats, func(res booking.ScanResult) {
		log.Info().
			Int("checked", res.MessagesChecked).
			Int("new", res.NewRecords).
			Msg("api backfill finished")
	})
	if err != nil {
		writeDomainError(w, "Failed to start backfill", err)
		return
	}
	writeJSON(w, http.StatusAccepted, BackfillStartedResponse{RunID: runID, Groups: len(chats)})
}

func (h *Handler) GetBackfill(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Backfill.Status())
}

// Resend re-emits a daily or monthly report to the owners.
func (h *Handler) Resend(w http.ResponseWriter, r *http.Request) {
	var req ResendRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	kind := report.KindDaily
	switch strings.ToLower(req.Kind) {
	case "", "daily":
	case "monthly":
		kind = report.KindMonthly
	default:
		writeError(w, http.StatusBadRequest, "kind must be daily or monthly", nil)
		return
	}

	preq, err := commands.ScheduledRequest(kind, req.Arg, h.now(), h.snapshot())
	if err != nil {
		writeDomainError(w, "Invalid report window", err)
		return
	}
	pub, err := h.Publisher.Publish(r.Context(), preq)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Report not delivered", err)
		return
	}
	writeJSON(w, http.StatusOK, toPublicationDTO(pub))
}

// ReloadConfig swaps in a freshly loaded config. On failure the current
// snapshot stays active.
func (h *Handler) ReloadConfig(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Config.Reload()
	if err != nil {
		writeError(w, http.StatusBadRequest, "Config reload failed", err)
		return
	}
	l := h.log(r)
	l.Info().Int("groups", len(snap.EnabledGroups())).Msg("config reloaded via api")
	writeJSON(w, http.StatusOK, toConfigDTO(snap))
}

// =============================================================================
// SCHEDULE
// =============================================================================

func (h *Handler) ListScheduleRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ScheduleResponse{
		Runs:    h.Scheduler.Runs(),
		NextRun: h.Scheduler.NextRunTimes(),
	})
}

func (h *Handler) RunScheduledJob(w http.ResponseWriter, r *http.Request) {
	run, err := h.Scheduler.RunNow(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		writeDomainError(w, "Failed to run job", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) now() time.Time {
	if h.Clock == nil {
		return generic.SystemClock{}.Now()
	}
	return h.Clock.Now()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps the sentinel errors to a status.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, generic.ErrBackfillRunning):
		writeError(w, http.StatusConflict, message, err)
	case generic.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
