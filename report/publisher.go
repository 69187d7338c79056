package report

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
)

// Kind names the trigger of a report; it labels metrics and titles.
type Kind string

const (
	KindDaily   Kind = "daily"
	KindMonthly Kind = "monthly"
	KindAdhoc   Kind = "adhoc"
	KindExport  Kind = "export"
)

// Sender delivers chat text.
type Sender interface {
	SendText(ctx context.Context, chatID generic.ChatID, text string) error
}

// Exporter ships a summary somewhere outside the chat and returns where it went.
type Exporter interface {
	Name() string
	Export(ctx context.Context, s Summary) (string, error)
}

// Request describes one report emission.
type Request struct {
	Kind       Kind
	Window     generic.Window
	Apartment  string
	Title      string
	Detail     bool
	Recipients []generic.ChatID
	// Export runs every configured exporter after rendering.
	Export bool
}

// ExportResult is the outcome of a single exporter.
type ExportResult struct {
	Exporter string `json:"exporter"`
	Location string `json:"location,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Publication is what Publish produced.
type Publication struct {
	Summary Summary        `json:"summary"`
	Text    string         `json:"text"`
	Sent    int            `json:"sent"`
	Exports []ExportResult `json:"exports,omitempty"`
}

// Publisher loads records, aggregates and delivers. It writes nothing to the
// store, so publishing the same request twice only repeats the output.
type Publisher struct {
	Store     generic.TransactionStore
	Sender    Sender
	Exporters []Exporter
	// Defaults supplies ordering and normalization from the live config.
	Defaults func() Options
	Log      zerolog.Logger
}

func NewPublisher(store generic.TransactionStore, sender Sender, defaults func() Options, log zerolog.Logger, exporters ...Exporter) *Publisher {
	return &Publisher{Store: store, Sender: sender, Exporters: exporters, Defaults: defaults, Log: log}
}

// Build loads and aggregates without delivering anything.
func (p *Publisher) Build(ctx context.Context, w generic.Window, apartment string) (Summary, error) {
	records, err := p.Store.ListInWindow(ctx, w, apartment)
	if err != nil {
		return Summary{}, fmt.Errorf("list records for %s: %w", w.Label, err)
	}
	var opts Options
	if p.Defaults != nil {
		opts = p.Defaults()
	}
	opts.Window = w
	opts.Apartment = apartment
	return Aggregate(records, opts), nil
}

// Publish builds the report and sends it to every recipient. A failed
// recipient or exporter is logged and reported, not fatal.
func (p *Publisher) Publish(ctx context.Context, req Request) (Publication, error) {
	log := p.Log.With().Str("kind", string(req.Kind)).Str("window", req.Window.Label).Logger()

	s, err := p.Build(ctx, req.Window, req.Apartment)
	if err != nil {
		metrics.ReportsPublished.WithLabelValues(string(req.Kind), "error").Inc()
		return Publication{}, err
	}

	title := req.Title
	if title == "" {
		title = defaultTitle(req.Kind)
	}
	pub := Publication{Summary: s}
	if req.Detail {
		pub.Text = RenderDetail(s, title)
	} else {
		pub.Text = RenderSummary(s, title)
	}

	var sendErr error
	for _, chat := range req.Recipients {
		if p.Sender == nil {
			break
		}
		if err := p.Sender.SendText(ctx, chat, pub.Text); err != nil {
			log.Error().Err(err).Str("chat_id", string(chat)).Msg("send report failed")
			sendErr = err
			continue
		}
		pub.Sent++
	}

	if req.Export {
		for _, ex := range p.Exporters {
			loc, err := ex.Export(ctx, s)
			res := ExportResult{Exporter: ex.Name(), Location: loc}
			if err != nil {
				log.Error().Err(err).Str("exporter", ex.Name()).Msg("export failed")
				res.Error = err.Error()
			}
			pub.Exports = append(pub.Exports, res)
		}
	}

	status := "ok"
	if sendErr != nil && pub.Sent == 0 && len(req.Recipients) > 0 {
		status = "error"
		err = fmt.Errorf("report %s not delivered: %w", req.Window.Label, sendErr)
	}
	metrics.ReportsPublished.WithLabelValues(string(req.Kind), status).Inc()
	log.Info().
		Int("records", s.Grand.Count).
		Int("sent", pub.Sent).
		Int("exports", len(pub.Exports)).
		Msg("report published")
	return pub, err
}

func defaultTitle(k Kind) string {
	switch k {
	case KindDaily:
		return "Laporan Harian"
	case KindMonthly:
		return "Laporan Bulanan"
	case KindExport:
		return "Export Laporan"
	default:
		return "Rekap Booking"
	}
}
