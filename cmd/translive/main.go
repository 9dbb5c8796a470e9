package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/takikomiudon/limbus-realtime-translation/internal/audio"
	"github.com/takikomiudon/limbus-realtime-translation/internal/config"
	"github.com/takikomiudon/limbus-realtime-translation/internal/console"
	"github.com/takikomiudon/limbus-realtime-translation/internal/delivery"
	"github.com/takikomiudon/limbus-realtime-translation/internal/dispatch"
	"github.com/takikomiudon/limbus-realtime-translation/internal/engine"
	"github.com/takikomiudon/limbus-realtime-translation/internal/metrics"
	"github.com/takikomiudon/limbus-realtime-translation/internal/relay"
	"github.com/takikomiudon/limbus-realtime-translation/internal/server"
	"github.com/takikomiudon/limbus-realtime-translation/internal/session"
	"github.com/takikomiudon/limbus-realtime-translation/internal/translate"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "limbus-realtime-translation"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load environment overrides from .env if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	// Log service startup
	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("frame_duration_ms", cfg.Audio.FrameDuration),
		slog.Int("streaming_limit_ms", cfg.Session.StreamingLimitMs),
		slog.String("engine_url", cfg.Engine.URL),
		slog.String("language", cfg.Engine.Language),
		slog.String("translation_model", cfg.Translation.Model),
		slog.String("delivery_endpoint", cfg.Delivery.Endpoint),
		slog.Int("finalize_workers", cfg.Dispatcher.Workers),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)
	logger.Info("Prometheus metrics initialized")

	// Initialize microphone capture
	queue := audio.NewFrameQueue()
	metrics.RegisterQueueDepth(registry, queue.Len)
	capture, err := audio.NewCapture(audio.CaptureConfig{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		FrameBytes: cfg.Audio.FrameBytes(),
	}, queue, logger)
	if err != nil {
		logger.Error("Failed to initialize microphone capture", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize transcription engine client
	recognizer, err := engine.NewClient(engine.Config{
		URL:            cfg.Engine.URL,
		APIKey:         cfg.Engine.APIKey,
		ConnectTimeout: cfg.Engine.GetConnectTimeout(),
	}, logger)
	if err != nil {
		logger.Error("Failed to create engine client", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the Gemini translator
	glossary := make([]translate.GlossaryTerm, 0, len(cfg.Translation.Glossary))
	for _, term := range cfg.Translation.Glossary {
		glossary = append(glossary, translate.GlossaryTerm{Source: term.Source, Target: term.Target})
	}
	translator, err := translate.NewGeminiTranslator(ctx, translate.GeminiConfig{
		Model:    cfg.Translation.Model,
		APIKey:   os.Getenv(cfg.Translation.APIKeyEnv),
		Prompt:   cfg.Translation.Prompt,
		Glossary: glossary,
	})
	if err != nil {
		logger.Error("Failed to create translator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize the delivery client (optional)
	var deliverer *delivery.Client
	if cfg.Delivery.Endpoint != "" {
		deliverer, err = delivery.NewClient(delivery.Config{
			Endpoint: cfg.Delivery.Endpoint,
			APIKey:   cfg.Delivery.APIKey,
			Timeout:  cfg.Delivery.GetTimeout(),
		})
		if err != nil {
			logger.Error("Failed to create delivery client", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// Initialize the console renderer
	term := console.New()

	// Initialize the finalize pipeline
	var sink dispatch.Deliverer = deliverer
	if deliverer == nil {
		sink = noopDeliverer{}
	}
	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Workers:            cfg.Dispatcher.Workers,
		TranslationTimeout: cfg.Translation.GetTimeout(),
		DeliveryTimeout:    cfg.Delivery.GetTimeout(),
	}, translator, sink, term, appMetrics, logger)
	logger.Info("Finalize pipeline initialized", slog.Int("workers", cfg.Dispatcher.Workers))

	// Initialize the session and relay
	sess := session.New(queue, cfg.Session.StreamingLimitMs)

	phrases := make([]engine.Phrase, 0, len(cfg.Engine.Phrases))
	for _, p := range cfg.Engine.Phrases {
		phrases = append(phrases, engine.Phrase{Value: p.Value, Boost: p.Boost})
	}
	streamCfg := engine.StreamConfig{
		SampleRate:      cfg.Audio.SampleRate,
		Language:        cfg.Engine.Language,
		MaxAlternatives: cfg.Engine.MaxAlternatives,
		InterimResults:  true,
		Phrases:         phrases,
	}

	r := relay.New(sess, recognizer, dispatcher, term,
		relay.NewCommandMatcher(cfg.Session.StopWords), streamCfg, appMetrics, logger)

	// Initialize monitoring server (if enabled)
	var httpServer *server.HTTPServer
	if cfg.Monitor.Enabled {
		httpServer = server.NewHTTPServer(cfg.Monitor.Address, logger, registry,
			sess, queue, dispatcher, deliverer)
		httpServer.Start()
	}

	// Start microphone capture
	if err := capture.Start(); err != nil {
		logger.Error("Failed to start microphone capture", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Stop on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("Session started, speak into the microphone")

	// Run the session to completion
	runErr := r.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("Session failed", slog.String("error", runErr.Error()))
	}

	logger.Info("Starting graceful shutdown...")

	// Stop capture first so no more audio arrives
	capture.Stop()

	// Stop the monitoring server
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping monitoring server", slog.String("error", err.Error()))
		}
	}

	// Let in-flight finalize jobs finish
	dispatcher.Close()
	dispatcher.Wait()

	// Final statistics
	stats := sess.GetStats()
	logger.Info("Final session statistics",
		slog.Int("restarts", stats.RestartCounter),
		slog.Int("final_end_time_ms", stats.IsFinalEndTimeMs),
	)
	if deliverer != nil {
		deliveryStats := deliverer.GetStats()
		logger.Info("Final delivery statistics",
			slog.Uint64("total_requests", deliveryStats.TotalRequests),
			slog.Uint64("successes", deliveryStats.Successes),
			slog.Uint64("failures", deliveryStats.Failures),
		)
	}

	logger.Info("Service stopped")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		os.Exit(1)
	}
}

// noopDeliverer discards records when no delivery endpoint is configured.
type noopDeliverer struct{}

func (noopDeliverer) Deliver(ctx context.Context, record delivery.Record) error {
	return nil
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination. The live transcript owns stdout, so logs
	// default to stderr.
	var output *os.File
	switch cfg.Output {
	case "stdout":
		output = os.Stdout
	case "stderr", "":
		output = os.Stderr
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
