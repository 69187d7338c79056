/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the booking engine: webhook intake, serial event
  dispatch, commands, scheduled reports and the admin API. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, load config (file + BOOKING_* env + .env)
  2. Open the transaction store (sqlite | postgres | memory)
  3. Choose the ledger (same database, or redis)
  4. Build chat gateway, exporters, report publisher
  5. Register commands, start dispatch queue and scheduler
  6. Start HTTP server

COMMAND-LINE FLAGS:
  -config  Config file path (default: BOOKING_CONFIG or ./booking.*)
  -port    HTTP server port, overrides config when non-zero

SIGNALS:
  SIGHUP           Reload config; the current snapshot stays on failure
  SIGINT/SIGTERM   Graceful shutdown:
                   1. Stop accepting HTTP requests (30s timeout)
                   2. Stop the scheduler
                   3. Drain the event queue
                   4. Wait for a running backfill
                   5. Close stores and exporters

SEE ALSO:
  - api/server.go: Router configuration
  - bot/dispatcher.go: Event routing
  - config/config.go: Configuration keys
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/warp/booking-engine/api"
	"github.com/warp/booking-engine/bot"
	"github.com/warp/booking-engine/chat"
	"github.com/warp/booking-engine/commands"
	"github.com/warp/booking-engine/config"
	"github.com/warp/booking-engine/export"
	"github.com/warp/booking-engine/generic"
	"github.com/warp/booking-engine/generic/store"
	"github.com/warp/booking-engine/logger"
	"github.com/warp/booking-engine/report"
	"github.com/warp/booking-engine/store/postgres"
	"github.com/warp/booking-engine/store/redisledger"
	"github.com/warp/booking-engine/store/sqlite"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "Config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	snap, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewFor(snap.Env, snap.LogLevel)
	holder := config.NewHolder(snap, func() (*config.Snapshot, error) { return config.Load(*configPath) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store and ledger
	db, err := openStore(ctx, snap, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", snap.Storage.Driver).Msg("open store failed")
	}
	var closers []io.Closer
	closers = append(closers, db)

	var ledger generic.Ledger = db
	if snap.Ledger.Backend == "redis" {
		rl, err := redisledger.New(ctx, snap.Ledger.RedisURL, generic.RetentionDays(snap.Ledger.RetentionDays))
		if err != nil {
			log.Fatal().Err(err).Msg("redis ledger connection failed")
		}
		closers = append(closers, rl)
		ledger = rl
		log.Info().Msg("ledger on redis")
	}

	// Chat platform
	var chatClient chat.Client
	if snap.Chat.BaseURL != "" {
		chatClient = chat.NewGateway(snap.Chat.BaseURL, snap.Chat.Token, snap.Chat.Timeout, logger.Component(log, "chat"))
	} else {
		log.Warn().Msg("chat.base_url not set, outbound messages are only logged")
		chatClient = chat.LogNotifier{Log: logger.Component(log, "chat")}
	}

	// Exporters and publisher
	exporters, exportClosers := openExporters(ctx, snap, log)
	closers = append(closers, exportClosers...)

	publisher := report.NewPublisher(db, chatClient, func() report.Options {
		return commands.ReportOptionsFor(holder.Current())
	}, logger.Component(log, "report"), exporters...)

	// Commands
	clock := generic.SystemClock{}
	backfill := commands.NewBackfillRunner(&bot.SnapshotScanner{
		Config: holder,
		Source: chatClient,
		Store:  db,
		Ledger: ledger,
		Clock:  clock,
		Log:    logger.Component(log, "backfill"),
	}, logger.Component(log, "backfill"))

	registry := commands.NewRegistry()
	(&commands.Service{
		Store:     db,
		Ledger:    ledger,
		Publisher: publisher,
		Backfill:  backfill,
		Sender:    chatClient,
		Clock:     clock,
		Log:       logger.Component(log, "commands"),
	}).Register(registry)

	// Dispatch
	dispatcher := bot.NewDispatcher(holder, db, ledger, chatClient, registry, clock, logger.Component(log, "dispatch"))
	queue := bot.NewQueue(256, logger.Component(log, "queue"))
	queue.Start(ctx, dispatcher.Dispatch)

	// Scheduler
	scheduler := api.NewReportScheduler(holder, publisher, ledger, clock, logger.Component(log, "scheduler"))
	scheduler.Start()

	// HTTP
	handler := &api.Handler{
		Config:    holder,
		Store:     db,
		Ledger:    ledger,
		Queue:     queue,
		Publisher: publisher,
		Backfill:  backfill,
		Scheduler: scheduler,
		Clock:     clock,
		Log:       logger.Component(log, "api"),
	}
	listenPort := snap.HTTP.Port
	if *port != 0 {
		listenPort = *port
	}
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", listenPort),
		Handler:      api.NewRouter(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Int("port", listenPort).Str("env", snap.Env).Msg("booking engine starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Signals
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigs {
		if sig == syscall.SIGHUP {
			if s, err := holder.Reload(); err != nil {
				log.Error().Err(err).Msg("config reload failed, keeping current config")
			} else {
				log.Info().Int("groups", len(s.EnabledGroups())).Msg("config reloaded")
			}
			continue
		}
		break
	}

	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	scheduler.Stop()
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("event queue did not drain")
	}
	backfill.Wait()
	cancel()

	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
	log.Info().Msg("server stopped")
}

func openStore(ctx context.Context, snap *config.Snapshot, log zerolog.Logger) (generic.LedgerStore, error) {
	switch snap.Storage.Driver {
	case "postgres":
		db, err := postgres.New(ctx, snap.Storage.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info().Msg("postgres migrations applied")
		return db, nil
	case "memory":
		log.Warn().Msg("memory store: records are lost on exit")
		return store.NewMemory(), nil
	case "", "sqlite":
		return sqlite.New(snap.Storage.SQLitePath)
	}
	return nil, fmt.Errorf("unknown storage driver %q", snap.Storage.Driver)
}

// openExporters always includes the local CSV exporter; GCS and BigQuery
// are added when configured. A cloud exporter that fails to open is logged
// and skipped.
func openExporters(ctx context.Context, snap *config.Snapshot, log zerolog.Logger) ([]report.Exporter, []io.Closer) {
	exp := snap.Export
	exporters := []report.Exporter{export.NewFileExporter(exp.Dir)}
	var closers []io.Closer

	if exp.GCSBucket != "" {
		gcs, err := export.NewGCSExporter(ctx, exp.GCSBucket, exp.GCSPrefix, exp.CredentialsFile)
		if err != nil {
			log.Error().Err(err).Str("bucket", exp.GCSBucket).Msg("gcs exporter disabled")
		} else {
			exporters = append(exporters, gcs)
			closers = append(closers, gcs)
		}
	}
	if exp.BigQueryProject != "" && exp.BigQueryDataset != "" && exp.BigQueryTable != "" {
		bq, err := export.NewBigQueryExporter(ctx, exp.BigQueryProject, exp.BigQueryDataset, exp.BigQueryTable, exp.CredentialsFile)
		if err != nil {
			log.Error().Err(err).Str("project", exp.BigQueryProject).Msg("bigquery exporter disabled")
		} else {
			exporters = append(exporters, bq)
			closers = append(closers, bq)
		}
	}
	return exporters, closers
}
