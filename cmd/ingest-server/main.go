package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coldtrace/coldtrace-server/internal/api"
	"github.com/coldtrace/coldtrace-server/internal/classify"
	"github.com/coldtrace/coldtrace-server/internal/config"
	"github.com/coldtrace/coldtrace-server/internal/decoder"
	"github.com/coldtrace/coldtrace-server/internal/ingest"
	"github.com/coldtrace/coldtrace-server/internal/integration"
	"github.com/coldtrace/coldtrace-server/internal/notify"
	"github.com/coldtrace/coldtrace-server/internal/pending"
	"github.com/coldtrace/coldtrace-server/internal/storage"
)

func main() {
	// Command line flags
	var configFile string
	flag.StringVar(&configFile, "config", "config/ingest-server.yml", "Configuration file path")
	flag.Parse()

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Connect to database
	store, err := storage.NewPostgresStore(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer store.Close()

	log.Info().Msg("Connected to database")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// WaitGroup for services
	var wg sync.WaitGroup

	// Optional NATS connection; the pipeline runs without it.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		log.Info().Str("url", cfg.NATS.URL).Msg("Connecting to NATS...")

		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("coldtrace-ingest-server"),
			nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password),
			nats.ReconnectWait(cfg.NATS.ReconnectInterval),
			nats.MaxReconnects(cfg.NATS.MaxReconnects),
			nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
				log.Warn().Err(err).Msg("Disconnected from NATS")
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				log.Info().Msg("Reconnected to NATS")
			}),
			nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
				log.Error().
					Err(err).
					Str("subject", sub.Subject).
					Msg("NATS error")
			}),
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without fan-out")
			nc = nil
		} else {
			defer nc.Close()
			log.Info().Msg("Connected to NATS")
		}
	} else {
		log.Info().Msg("NATS not configured, running in standalone mode")
	}

	// Build the ingestion pipeline
	classifier := classify.New(cfg.Ingest.ConfidenceFloor)
	sandbox := decoder.NewSandbox(decoder.Limits{
		MaxScriptBytes: cfg.Ingest.DecoderMaxScriptBytes,
		MaxOutputBytes: cfg.Ingest.DecoderMaxOutputBytes,
		Timeout:        cfg.Ingest.DecoderTimeout,
	}, cfg.Ingest.DecoderCacheTTL, cfg.Ingest.DecoderCacheMaxEntries)
	confirm := pending.NewEngine(store)
	notifier := notify.NewAlarmNotifier(cfg.Alarm.EvaluationURL, cfg.Alarm.Timeout)

	orchestrator := ingest.NewOrchestrator(store, classifier, sandbox, confirm, notifier, nc)

	// Start REST API server
	apiServer := api.NewRESTServer(cfg, store, orchestrator)

	wg.Add(1)
	go func() {
		defer wg.Done()
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		if err := apiServer.ListenAndServe(addr); err != nil {
			log.Error().Err(err).Msg("REST API server stopped")
			cancel()
		}
	}()

	// Start integration forwarder when NATS is available
	if nc != nil {
		forwarder := integration.NewForwarderService(nc, store)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := forwarder.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Integration forwarder stopped")
			}
		}()
	}

	// Wait for signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")
	case <-ctx.Done():
	}

	// Cancel context
	cancel()

	// Shutdown API server
	if err := apiServer.Shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shutdown API server gracefully")
	}

	// Wait for all services
	wg.Wait()

	log.Info().Msg("Ingest server stopped")
}
