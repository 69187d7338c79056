/*
dispatcher.go - Routes one chat event to ingestion or a command

PURPOSE:
  The single entry point for inbound events. Each event is handled against
  the config snapshot current when it starts; a reload mid-event does not
  affect it.

FLOW:
  Event -> Classifier
             Ignored           -> counted, dropped
             Command           -> commands.Registry -> reply to origin chat
             BookingCandidate  -> booking.Ingestor.Handle(label = group apartment)

FAILURES:
  Store and transport faults are logged and counted; the next event is
  processed normally.

SEE ALSO:
  - queue.go: serial delivery
  - booking/ingest.go, commands/registry.go
*/
package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/commands"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/metrics"
)

type Dispatcher struct {
	config   *config.Holder
	store    generic.TransactionStore
	ledger   generic.Ledger
	notifier booking.Notifier
	registry *commands.Registry
	clock    generic.Clock
	log      zerolog.Logger

	mu          sync.Mutex
	ingestorFor *config.Snapshot
	ingestor    *booking.Ingestor
}

func NewDispatcher(
	holder *config.Holder,
	store generic.TransactionStore,
	ledger generic.Ledger,
	notifier booking.Notifier,
	registry *commands.Registry,
	clock generic.Clock,
	log zerolog.Logger,
) *Dispatcher {
	return &Dispatcher{
		config:   holder,
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		registry: registry,
		clock:    clock,
		log:      log,
	}
}

// Dispatch handles one event end to end.
func (d *Dispatcher) Dispatch(ctx context.Context, ev booking.Event) error {
	snap := d.config.Current()
	log := d.log.With().
		Str("message_id", string(ev.MessageID)).
		Str("chat_id", string(ev.ChatID)).
		Logger()

	cls := booking.NewClassifier(snap.IsAllowed).Classify(ev)
	metrics.EventsClassified.WithLabelValues(string(cls.Kind)).Inc()

	switch cls.Kind {
	case booking.ClassCommand:
		return d.runCommand(ctx, snap, ev, cls.Command, log)

	case booking.ClassBookingCandidate:
		label, _ := snap.ApartmentFor(ev.ChatID)
		res, err := d.ingestorOf(snap).Handle(ctx, ev, label)
		if err != nil {
			metrics.DispatchErrors.Inc()
			log.Error().Err(err).Msg("booking ingestion failed")
			return err
		}
		log.Debug().Str("result", string(res)).Msg("booking handled")
		return nil

	default:
		log.Debug().Str("reason", cls.Reason).Msg("event ignored")
		return nil
	}
}

func (d *Dispatcher) runCommand(ctx context.Context, snap *config.Snapshot, ev booking.Event, cmd booking.Command, log zerolog.Logger) error {
	reply, ok, err := d.registry.Execute(ctx, commands.Invocation{
		Event:  ev,
		Name:   cmd.Name,
		Args:   cmd.Args,
		Config: snap,
	})
	if !ok {
		log.Debug().Str("command", cmd.Name).Msg("unknown command ignored")
		return nil
	}
	if err != nil {
		metrics.DispatchErrors.Inc()
		log.Error().Err(err).Str("command", cmd.Name).Msg("command failed")
	}
	if reply != "" && d.notifier != nil {
		if sendErr := d.notifier.SendText(ctx, ev.ChatID, reply); sendErr != nil {
			log.Warn().Err(sendErr).Str("command", cmd.Name).Msg("send command reply failed")
		}
	}
	return err
}

// ingestorOf returns an ingestor whose parser uses the snapshot's timezone
// and alias tables. It is rebuilt only when the snapshot changes.
func (d *Dispatcher) ingestorOf(snap *config.Snapshot) *booking.Ingestor {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ingestor == nil || d.ingestorFor != snap {
		parser := booking.NewParser(commands.NamesFor(snap), d.clock, snap.Location)
		d.ingestor = booking.NewIngestor(parser, d.store, d.ledger, d.notifier, d.log.With().Str("component", "ingest").Logger())
		d.ingestorFor = snap
	}
	return d.ingestor
}
