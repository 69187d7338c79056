package bot

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/booking"
	"github.com/warp/booking-engine/commands"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/generic"
)

// SnapshotScanner runs a history scan with a parser built from the config
// snapshot current when the scan starts, so alias and timezone changes made
// by a reload apply to the next backfill.
type SnapshotScanner struct {
	Config *config.Holder
	Source booking.HistorySource
	Store  generic.TransactionStore
	Ledger generic.Ledger
	Clock  generic.Clock
	Log    zerolog.Logger
}

func (s *SnapshotScanner) Run(ctx context.Context, chats []booking.ChatBinding) booking.ScanResult {
	snap := s.Config.Current()
	parser := booking.NewParser(commands.NamesFor(snap), s.Clock, snap.Location)
	scanner := booking.NewScanner(s.Source, parser, s.Store, s.Ledger, snap.Backfill.Limit, s.Log)
	return scanner.Run(ctx, chats)
}
