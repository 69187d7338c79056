package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/report"
)

// Service holds what the built-in commands need.
type Service struct {
	Store     generic.TransactionStore
	Ledger    generic.Ledger
	Publisher *report.Publisher
	Backfill  *BackfillRunner
	// Sender delivers asynchronous follow-ups (backfill completion).
	Sender report.Sender
	Clock  generic.Clock
	Log    zerolog.Logger
}

// Register installs the built-in commands.
func (s *Service) Register(r *Registry) {
	r.Register(Spec{Name: "rekap", Usage: "!rekap [apartemen] [DDMMYYYY]", Handle: s.rekap})
	r.Register(Spec{Name: "detailrekap", Usage: "!detailrekap [apartemen] [DDMMYYYY]", Handle: s.detailRekap})
	r.Register(Spec{Name: "rekapulang", OwnerOnly: true, PrivateOnly: true, Handle: s.rekapUlang})
	r.Register(Spec{
		Name:        "export",
		Usage:       "!export [today|N|DDMMYYYY|DD-DDMMYYYY|bulan|apartemen]",
		OwnerOnly:   true,
		PrivateOnly: true,
		Handle:      s.export,
	})
	r.Register(Spec{Name: "forcedelete", Usage: "!forcedelete <unit> <cs>", OwnerOnly: true, PrivateOnly: true, Handle: s.forceDelete})
	r.Register(Spec{Name: "resend", Usage: "!resend [daily|monthly] [DDMMYYYY|MMYYYY]", OwnerOnly: true, Handle: s.resend})
}

func (s *Service) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock.Now()
}

// ResolverFor builds the apartment resolver of a snapshot.
func ResolverFor(cfg *config.Snapshot) ApartmentResolver {
	return ApartmentResolver{Apartments: cfg.ApartmentNames(), Keywords: cfg.Config.Apartments.Keywords}
}

// NamesFor builds the CS alias table of a snapshot.
func NamesFor(cfg *config.Snapshot) booking.Names {
	n := cfg.Config.Names
	return booking.NewNames(n.Exact, n.Contains, n.Promo)
}

// ReportOptionsFor builds the aggregation defaults of a snapshot. Only the
// configured priority list orders apartments; any other apartment follows in
// the order its first record was seen.
func ReportOptionsFor(cfg *config.Snapshot) report.Options {
	names := NamesFor(cfg)
	return report.Options{
		ApartmentOrder: cfg.Config.Apartments.Order,
		PromoAliases:   names.PromoAliases,
		Normalize:      names.Normalize,
	}
}

// =============================================================================
// !rekap / !detailrekap
// =============================================================================

func (s *Service) rekap(ctx context.Context, inv Invocation) (string, error) {
	return s.businessDayReport(ctx, inv, false)
}

func (s *Service) detailRekap(ctx context.Context, inv Invocation) (string, error) {
	return s.businessDayReport(ctx, inv, true)
}

// businessDayReport scopes group calls to the group's apartment; private
// calls are owner-only and may name any apartment.
func (s *Service) businessDayReport(ctx context.Context, inv Invocation, detail bool) (string, error) {
	rest, date := splitDateArg(inv.Args)

	var apartment string
	if inv.Private() {
		if !inv.IsOwner() {
			return "", generic.ErrPermissionDenied
		}
		if len(rest) > 0 {
			a, err := ResolverFor(inv.Config).Resolve(strings.Join(rest, " "))
			if err != nil {
				return "", err
			}
			apartment = a
		}
	} else {
		a, ok := inv.Config.ApartmentFor(inv.Event.ChatID)
		if !ok {
			return "", generic.ErrPermissionDenied
		}
		if len(rest) > 0 {
			return fmt.Sprintf("Di grup ini hanya bisa melihat data %s. Gunakan: !%s atau !%s DDMMYYYY", a, inv.Name, inv.Name), nil
		}
		apartment = a
	}

	w, err := ResolveBusinessDay(date, s.now(), inv.Config.Location)
	if err != nil {
		return "", err
	}
	sum, err := s.Publisher.Build(ctx, w, apartment)
	if err != nil {
		return "", err
	}
	if detail {
		return report.RenderDetail(sum, "Detail Rekap"), nil
	}
	return report.RenderSummary(sum, "Rekap Booking"), nil
}

// =============================================================================
// !rekapulang
// =============================================================================

func (s *Service) rekapUlang(ctx context.Context, inv Invocation) (string, error) {
	chats := ChatBindings(inv.Config)
	origin := inv.Event.ChatID
	_, err := s.Backfill.Start(ctx, chats, func(res booking.ScanResult) {
		if s.Sender == nil {
			return
		}
		if err := s.Sender.SendText(context.Background(), origin, ScanResultText(res)); err != nil {
			s.Log.Error().Err(err).Str("chat_id", string(origin)).Msg("send backfill result failed")
		}
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Rekap ulang dimulai untuk %d grup. Hasil akan dikirim setelah selesai.", len(chats)), nil
}

// =============================================================================
// !export
// =============================================================================

func (s *Service) export(ctx context.Context, inv Invocation) (string, error) {
	sel, err := ResolveExport(inv.Args, s.now(), inv.Config.Location, ResolverFor(inv.Config))
	if err != nil {
		return "", err
	}
	pub, err := s.Publisher.Publish(ctx, report.Request{
		Kind:      report.KindExport,
		Window:    sel.Window,
		Apartment: sel.Apartment,
		Export:    true,
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(pub.Text)
	if len(pub.Exports) > 0 {
		b.WriteString("\nExport:\n")
		for _, e := range pub.Exports {
			if e.Error != "" {
				fmt.Fprintf(&b, "- %s: gagal (%s)\n", e.Exporter, e.Error)
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", e.Exporter, e.Location)
		}
	}
	return b.String(), nil
}

// =============================================================================
// !forcedelete
// =============================================================================

// forceDelete removes one record matching unit and CS name in the current
// business day only, and unmarks its source message so a later backfill can
// re-derive it. With several matches the most recent goes first.
func (s *Service) forceDelete(ctx context.Context, inv Invocation) (string, error) {
	args := cleanArgs(inv.Args)
	if len(args) < 2 {
		return "Format: !forcedelete <unit> <cs>", nil
	}
	unit := args[0]
	cs := NamesFor(inv.Config).Normalize(strings.Join(args[1:], " "))

	w := generic.BusinessDayWindow(s.now(), inv.Config.Location)
	matches, err := s.Store.FindInWindow(ctx, w, unit, cs)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%w: unit %s cs %s pada %s", generic.ErrNotFound, strings.ToUpper(unit), cs, w.Label)
	}

	// Matches come oldest first; the latest entry is the one removed.
	rec := matches[len(matches)-1]
	if err := s.Store.Delete(ctx, rec.ID); err != nil {
		return "", err
	}
	if s.Ledger != nil {
		if err := s.Ledger.Unmark(ctx, rec.SourceMessageID); err != nil {
			s.Log.Warn().Err(err).Str("message_id", string(rec.SourceMessageID)).Msg("unmark after force delete failed")
		}
	}
	s.Log.Info().
		Str("transaction_id", string(rec.ID)).
		Str("unit", rec.Unit).
		Str("cs", rec.CSName).
		Int("remaining", len(matches)-1).
		Str("by", inv.Sender()).
		Msg("record force deleted")

	reply := fmt.Sprintf("Data %s (CS %s, %s, cek out %s) pada %s dihapus.",
		rec.Unit, rec.CSName, report.FormatRupiah(rec.Amount), rec.CheckoutTime, w.Label)
	if rest := len(matches) - 1; rest > 0 {
		reply += fmt.Sprintf("\nMasih ada %d data lain untuk unit dan CS ini; ulangi perintah untuk menghapusnya.", rest)
	}
	return reply, nil
}

// =============================================================================
// !resend
// =============================================================================

// resend re-emits a scheduled report to the owners. Reports only read the
// store, so repeating one never duplicates records.
func (s *Service) resend(ctx context.Context, inv Invocation) (string, error) {
	args := cleanArgs(inv.Args)
	kind := report.KindDaily
	if len(args) > 0 && (args[0] == "daily" || args[0] == "monthly") {
		if args[0] == "monthly" {
			kind = report.KindMonthly
		}
		args = args[1:]
	}
	var arg string
	if len(args) > 0 {
		arg = args[0]
	}

	req, err := ScheduledRequest(kind, arg, s.now(), inv.Config)
	if err != nil {
		return "", err
	}
	pub, err := s.Publisher.Publish(ctx, req)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Laporan %s %s dikirim ulang ke %d penerima.", kind, req.Window.Label, pub.Sent), nil
}

// ScheduledRequest builds the request the scheduler would have issued. For
// daily reports arg is DDMMYYYY (default: the business day that closed last);
// for monthly reports arg is MMYYYY (default: the previous month).
func ScheduledRequest(kind report.Kind, arg string, now time.Time, cfg *config.Snapshot) (report.Request, error) {
	req := report.Request{Kind: kind, Recipients: cfg.OwnerChats(), Export: true}
	switch kind {
	case report.KindMonthly:
		w, err := ResolveMonth(arg, now, cfg.Location)
		if err != nil {
			return report.Request{}, err
		}
		req.Window = w
	default:
		if arg == "" {
			req.Window = generic.PreviousBusinessDayWindow(now, cfg.Location)
			break
		}
		w, err := generic.BusinessDayWindowForDate(arg, cfg.Location)
		if err != nil {
			return report.Request{}, err
		}
		req.Window = w
	}
	return req, nil
}
