package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sentinel/internal/ai"
	"sentinel/internal/api"
	"sentinel/internal/auth"
	"sentinel/internal/backend"
	"sentinel/internal/config"
	"sentinel/internal/events"
	"sentinel/internal/intel"
	"sentinel/internal/logging"
	"sentinel/internal/metrics"
	"sentinel/internal/poller"
	"sentinel/internal/server"
	"sentinel/internal/store"
	"sentinel/internal/websocket"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Version is set at compile time
var Version = "dev"

func main() {
	port := flag.Int("port", 0, "HTTP port (overrides SERVER_PORT)")
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	noPoll := flag.Bool("no-poll", false, "disable the background page pollers")
	flag.Parse()

	log.Println("╔════════════════════════════════════════════════════════════════╗")
	log.Println("║              Sentinel - AI Security Operations Hub             ║")
	log.Println("║       Threats • Network • Incidents • Reports • Assistant      ║")
	log.Println("╚════════════════════════════════════════════════════════════════╝")

	if err := godotenv.Load(*envFile); err != nil {
		log.Println("⚠️  No .env file found or failed to load, using environment variables only")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	cfg := config.Load()
	if *port > 0 {
		cfg.ServerPort = *port
	}
	if *noPoll {
		cfg.Polling.Enable = false
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "sentinel",
		Version:     Version,
	})
	if err != nil {
		log.Fatalf("❌ Failed to build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("❌ Invalid configuration", zap.Error(err))
	}
	if insecure := cfg.InsecureDefaults(); len(insecure) > 0 {
		logger.Warn("⚠️  Using development defaults; set these before deploying",
			zap.String("variables", strings.Join(insecure, ", ")))
	}
	logger.Info("✅ Configuration loaded successfully", zap.Int("port", cfg.ServerPort))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := metrics.New()

	authService, err := buildAuth(cfg, logger)
	if err != nil {
		logger.Fatal("❌ Failed to initialise account storage", zap.Error(err))
	}

	client := api.NewClient(api.Options{
		BaseURL:   cfg.Upstream.BaseURL,
		Timeout:   cfg.Upstream.Timeout,
		RateLimit: cfg.Upstream.RateLimit,
		Burst:     cfg.Upstream.Burst,
		Metrics:   collector,
		Logger:    logger.Named("upstream"),
	})
	apis := api.NewSet(client, api.Keys(cfg.Upstream.Keys))

	aiService, closeModel := buildAI(ctx, cfg, logger)
	defer closeModel()

	ws := websocket.NewWebSocketManager(websocket.Options{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Logger:         logger.Named("websocket"),
		Metrics:        collector,
	})

	alerts := events.NewAlertingSystem(1000, collector, logger.Named("alerts"))
	alerts.RegisterDefaultRules()
	alerts.RegisterHandler(func(alert events.Alert) {
		ws.BroadcastAlert(alert)
	})

	pipeline := events.NewPipeline(buildPublisher(ctx, cfg, logger), alerts, collector, logger.Named("events"))
	defer func() {
		if err := pipeline.Close(); err != nil {
			logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}()

	pollers := poller.NewManager(poller.ManagerOptions{
		Broadcaster: ws,
		Emitter:     pipeline,
		Metrics:     collector,
		Logger:      logger.Named("poller"),
	})
	poller.RegisterPages(pollers, poller.Sources{API: apis, AI: aiService, Logger: logger.Named("poller")},
		cfg.Polling.DashboardInterval,
		cfg.Polling.ThreatsInterval,
		cfg.Polling.NetworkInterval,
		cfg.Polling.IncidentsInterval)
	ws.SetReplay(pollers.Replay)

	if cfg.Polling.Enable {
		pollers.Start(ctx)
		defer pollers.Stop()
	} else {
		logger.Info("⏸️  Background polling disabled; views refresh on demand")
	}

	intelClients := intel.New(intel.Config{
		VirusTotalKey:   cfg.Intel.VirusTotalKey,
		SafeBrowsingKey: cfg.Intel.SafeBrowsingKey,
		AbuseIPDBKey:    cfg.Intel.AbuseIPDBKey,
	})

	srv := server.New(server.Dependencies{
		Config:    cfg,
		Auth:      authService,
		API:       apis,
		AI:        aiService,
		Intel:     intelClients,
		Pollers:   pollers,
		Events:    pipeline,
		WebSocket: ws,
		Metrics:   collector,
		Logger:    logger.Named("http"),
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error("❌ Server stopped with error", zap.Error(err))
		return
	}
	logger.Info("👋 Sentinel stopped")
}

// buildAuth selects the hosted backend when one is configured and a local
// account store otherwise
func buildAuth(cfg *config.Config, logger *zap.Logger) (*auth.Service, error) {
	opts := auth.Options{
		SessionSecret: cfg.Session.Secret,
		BaseURL:       cfg.AppBaseURL,
		CheckTimeout:  cfg.Session.CheckTimeout,
		Logger:        logger.Named("auth"),
	}

	if cfg.Backend.Enabled() {
		client := backend.New(backend.Config{
			URL:     cfg.Backend.URL,
			AnonKey: cfg.Backend.AnonKey,
			Logger:  logger.Named("backend"),
		})
		opts.Provider = auth.NewBackendProvider(client)
		opts.Store = client.Rows()
		opts.JWTSecret = cfg.Backend.JWTSecret
		logger.Info("🔐 Using hosted backend for accounts", zap.String("url", cfg.Backend.URL))
		return auth.NewService(opts), nil
	}

	rows, err := store.OpenPersistent(cfg.DataDir, logger.Named("store"))
	if err != nil {
		return nil, err
	}
	opts.Provider = auth.NewLocalProvider(rows, cfg.Session.Secret, logger.Named("auth"))
	opts.Store = rows
	opts.JWTSecret = cfg.Session.Secret
	logger.Info("📁 Using local account store", zap.String("dir", cfg.DataDir))
	return auth.NewService(opts), nil
}

// buildAI attaches the Gemini chat model when a key is present
func buildAI(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*ai.Service, func()) {
	aiLogger := logger.Named("ai")
	opts := []ai.Option{ai.WithLogger(aiLogger)}
	closeModel := func() {}

	if cfg.Chat.GeminiAPIKey != "" {
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		model, err := ai.NewGeminiModel(initCtx, cfg.Chat.GeminiAPIKey, cfg.Chat.GeminiModel)
		if err != nil {
			aiLogger.Warn("⚠️  Gemini unavailable, chat uses templates", zap.Error(err))
		} else {
			opts = append(opts, ai.WithChatModel(model, ai.NewTiktokenCounter(aiLogger), cfg.Chat.MaxPromptTokens))
			closeModel = func() { _ = model.Close() }
			aiLogger.Info(fmt.Sprintf("🤖 Gemini chat model enabled (%s)", cfg.Chat.GeminiModel))
		}
	}
	return ai.NewService(opts...), closeModel
}

// buildPublisher returns a Kafka producer when enabled. An unreachable broker
// is logged and events are still produced, so they flow once it comes back.
func buildPublisher(ctx context.Context, cfg *config.Config, logger *zap.Logger) events.Publisher {
	if !cfg.Kafka.Enable {
		return events.NopPublisher{}
	}
	producer := events.NewEventProducer(events.ProducerConfig{
		Brokers: cfg.Kafka.Brokers,
		Topic:   cfg.Kafka.Topic,
		Async:   true,
	}, logger.Named("kafka"))

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := producer.Connect(connectCtx); err != nil {
		logger.Warn("⚠️  Kafka not reachable yet", zap.Error(err))
	}
	return producer
}
