package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/koscakluka/ema-livebridge/core/bridge"
	"github.com/koscakluka/ema-livebridge/core/events"
	"github.com/koscakluka/ema-livebridge/core/speechtotext/deepgram"
	"github.com/koscakluka/ema-livebridge/internal/config"
	"github.com/koscakluka/ema-livebridge/internal/metrics"
	"github.com/koscakluka/ema-livebridge/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const (
	serviceName    = "livebridge"
	serviceVersion = "0.1.0"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (defaults only when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.String("address", cfg.Server.Addr()),
		slog.Int("max_sessions", cfg.Sessions.MaxSessions),
		slog.Duration("idle_timeout", cfg.Sessions.IdleTimeout),
		slog.Int("max_fragment_bytes", cfg.Ingestion.MaxFragmentBytes),
		slog.String("speech_endpoint", cfg.Speech.Endpoint),
		slog.String("speech_model", cfg.Speech.Model),
		slog.String("encoding", cfg.Speech.Encoding),
		slog.Int("sample_rate", cfg.Speech.SampleRate),
	)
	if cfg.Speech.APIKey == "" {
		logger.Warn("No speech recognition API key configured, every session will fail to connect")
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Service stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Service stopped")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	encoding, err := cfg.Speech.EncodingInfo()
	if err != nil {
		return err
	}

	stt := deepgram.NewTranscriptionClient(
		deepgram.WithAPIKey(cfg.Speech.APIKey),
		deepgram.WithEndpoint(cfg.Speech.Endpoint),
		deepgram.WithModel(cfg.Speech.Model),
		deepgram.WithLanguage(cfg.Speech.Language),
		deepgram.WithInterimResults(cfg.Speech.InterimResults),
		deepgram.WithUtteranceEnd(cfg.Speech.UtteranceEnd),
		deepgram.WithEndpointing(cfg.Speech.Endpointing),
		deepgram.WithDialTimeout(cfg.Speech.DialTimeout),
		deepgram.WithWriteTimeout(cfg.Speech.WriteTimeout),
		deepgram.WithKeepAliveInterval(cfg.Speech.KeepAliveInterval),
	)

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(promRegistry)

	registry := bridge.NewRegistry(stt,
		bridge.WithMaxSessions(cfg.Sessions.MaxSessions),
		bridge.WithIdleTimeout(cfg.Sessions.IdleTimeout),
		bridge.WithSweepInterval(cfg.Sessions.SweepInterval),
		bridge.WithRelayBuffer(cfg.Sessions.RelayBuffer),
		bridge.WithHeartbeatInterval(cfg.Sessions.HeartbeatInterval),
		bridge.WithCloseTimeout(cfg.Sessions.CloseTimeout),
		bridge.WithEncodingInfo(encoding),
		bridge.WithLogger(logger),
		bridge.WithMetrics(appMetrics),
		bridge.WithObserver(transcriptLogger{logger: logger}),
		bridge.WithStateChangeCallback(func(sessionID string, from, to bridge.State) {
			logger.Debug("Session state changed",
				slog.String("session_id", sessionID),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		}),
	)

	httpServer, err := server.NewHTTPServer(cfg, logger, registry, appMetrics, promRegistry)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	// Run closes every session once ctx is done, which also ends their
	// streams so the HTTP shutdown below can complete.
	g.Go(func() error {
		return registry.Run(ctx)
	})
	g.Go(func() error {
		return httpServer.ListenAndServe()
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Starting graceful shutdown...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop HTTP server: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// transcriptLogger writes final transcripts to the debug log.
type transcriptLogger struct {
	logger *slog.Logger
}

func (l transcriptLogger) ObserveEvent(sessionID string, event events.Event) {
	transcript, ok := event.(events.Transcript)
	if !ok || !transcript.Entry.IsFinal {
		return
	}
	l.logger.Debug("Final transcript",
		slog.String("session_id", sessionID),
		slog.String("text", transcript.Entry.Text),
		slog.Float64("confidence", transcript.Entry.Confidence),
	)
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
