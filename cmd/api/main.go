package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/adaptlearn/backend/internal/api/handlers"
	"github.com/adaptlearn/backend/internal/bottleneck"
	"github.com/adaptlearn/backend/internal/cache/redis"
	"github.com/adaptlearn/backend/internal/content"
	"github.com/adaptlearn/backend/internal/decay"
	"github.com/adaptlearn/backend/internal/evaluation"
	"github.com/adaptlearn/backend/internal/mastery"
	"github.com/adaptlearn/backend/internal/metrics"
	"github.com/adaptlearn/backend/internal/middleware/ratelimit"
	"github.com/adaptlearn/backend/internal/middleware/security"
	"github.com/adaptlearn/backend/internal/middleware/validation"
	"github.com/adaptlearn/backend/internal/priority"
	"github.com/adaptlearn/backend/internal/session"
	"github.com/adaptlearn/backend/internal/storage/sqlite"
	"github.com/adaptlearn/backend/pkg/config"
	appLogger "github.com/adaptlearn/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting AdaptLearn API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The cache is an optimization; the service runs without it.
	var cacheClient *redis.Client
	cacheClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Warn("Redis unavailable, queue caching disabled", zap.Error(err))
		cacheClient = nil
	} else {
		defer cacheClient.Close()
	}

	var feedbackProvider content.Provider
	if cfg.Content.Enabled {
		feedbackProvider = content.NewOpenAIProvider(
			cfg.Content.APIKey,
			cfg.Content.Model,
			cfg.Content.Temperature,
			cfg.Content.MaxTokens,
			cfg.Content.TimeoutSec,
		)
	}

	evaluator := evaluation.NewEvaluator(evaluation.Config{
		FuzzyThreshold:   cfg.Evaluation.FuzzyThreshold,
		PartialThreshold: cfg.Evaluation.PartialThreshold,
		FastLatencyMs:    cfg.Evaluation.FastLatencyMs,
		TrainingWeight:   cfg.Evaluation.TrainingWeight,
	})

	tracker := mastery.NewTracker(mastery.Config{
		SmoothingAlpha: cfg.Mastery.SmoothingAlpha,
	})

	reviewer := decay.NewReviewer(decay.Config{
		LapseStabilityFactor: cfg.Decay.LapseStabilityFactor,
		HardMultiplier:       cfg.Decay.HardMultiplier,
		GoodMultiplier:       cfg.Decay.GoodMultiplier,
		EasyMultiplier:       cfg.Decay.EasyMultiplier,
		LapseDifficultyStep:  cfg.Decay.LapseDifficultyStep,
		EasyDifficultyStep:   cfg.Decay.EasyDifficultyStep,
	})

	detector := bottleneck.NewDetector(bottleneck.Config{
		WindowDays:         cfg.Bottleneck.WindowDays,
		RecentWindowDays:   cfg.Bottleneck.RecentWindowDays,
		ErrorRateThreshold: cfg.Bottleneck.ErrorRateThreshold,
		CascadeRatio:       cfg.Bottleneck.CascadeRatio,
		CascadeConfidence:  cfg.Bottleneck.CascadeConfidence,
		MinResponses:       cfg.Bottleneck.MinResponses,
		MinPatternCount:    cfg.Bottleneck.MinPatternCount,
		TopPatterns:        cfg.Bottleneck.TopPatterns,
	}, nil)

	ranker := priority.NewRanker(priority.Weights{
		Frequency:       cfg.Priority.FrequencyWeight,
		Relational:      cfg.Priority.RelationalWeight,
		Domain:          cfg.Priority.DomainWeight,
		Morph:           cfg.Priority.MorphWeight,
		Phon:            cfg.Priority.PhonWeight,
		Urgency:         cfg.Priority.UrgencyWeight,
		BottleneckBoost: cfg.Priority.BottleneckBoost,
	})

	engine := session.NewEngine(
		sqliteClient,
		cacheClient,
		evaluator,
		tracker,
		reviewer,
		detector,
		ranker,
		feedbackProvider,
		session.Config{
			BottleneckWindowDays: cfg.Bottleneck.WindowDays,
			QueueTTL:             time.Duration(cfg.Redis.QueueTTLSec) * time.Second,
		},
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, X-Learner-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	responseHandler := handlers.NewResponseHandler(engine)
	queueHandler := handlers.NewQueueHandler(engine)
	bottleneckHandler := handlers.NewBottleneckHandler(engine)
	masteryHandler := handlers.NewMasteryHandler(sqliteClient, reviewer)
	statsHandler := handlers.NewStatsHandler(engine)
	objectHandler := handlers.NewObjectHandler(sqliteClient)
	wsHandler := handlers.NewWebSocketHandler(engine)

	api := app.Group("/api/v1")

	api.Post("/responses", responseHandler.HandleResponse)
	api.Get("/queue", queueHandler.GetQueue)
	api.Get("/bottleneck", bottleneckHandler.GetBottleneck)
	api.Get("/mastery/:objectID", masteryHandler.GetMastery)
	api.Get("/stats", statsHandler.GetStats)

	api.Post("/objects", objectHandler.CreateObject)
	api.Get("/objects", objectHandler.ListObjects)
	api.Get("/objects/:objectID", objectHandler.GetObject)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/session", websocket.New(wsHandler.HandleConnection))

	// Urgency drifts with the clock, so recompute priorities on a ticker
	// even when no responses arrive.
	refreshCtx, cancelRefresh := context.WithCancel(context.Background())
	defer cancelRefresh()
	go func() {
		interval := time.Duration(cfg.Server.UrgencyRefreshSec) * time.Second
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-refreshCtx.Done():
				return
			case <-ticker.C:
				if err := engine.RefreshUrgency(refreshCtx); err != nil {
					appLogger.Error("Urgency refresh failed", zap.Error(err))
				}
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	cancelRefresh()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
