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
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/formsnapper/backend/internal/analysis"
	"github.com/formsnapper/backend/internal/api/handlers"
	rediscache "github.com/formsnapper/backend/internal/cache/redis"
	"github.com/formsnapper/backend/internal/dispatch"
	"github.com/formsnapper/backend/internal/domparser"
	"github.com/formsnapper/backend/internal/embedding"
	"github.com/formsnapper/backend/internal/inference"
	"github.com/formsnapper/backend/internal/kb"
	"github.com/formsnapper/backend/internal/metrics"
	"github.com/formsnapper/backend/internal/middleware/ratelimit"
	"github.com/formsnapper/backend/internal/middleware/security"
	"github.com/formsnapper/backend/internal/middleware/validation"
	"github.com/formsnapper/backend/internal/storage"
	"github.com/formsnapper/backend/internal/storage/local"
	"github.com/formsnapper/backend/internal/storage/remote"
	"github.com/formsnapper/backend/pkg/config"
	appLogger "github.com/formsnapper/backend/pkg/logger"
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

	appLogger.Info("Starting FormSnapper API Server")

	metrics.Init()

	localClient, err := local.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create local storage client", zap.Error(err))
	}
	defer localClient.Close()

	err = localClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// Remote storage is optional: without it the engine runs local-only and
	// mode switches to remote are rejected.
	var remoteBackend storage.Backend
	if cfg.Milvus.Endpoint != "" {
		remoteClient, err := remote.NewClient(
			cfg.Milvus.Endpoint,
			cfg.Milvus.APIKey,
			cfg.Milvus.CollectionName,
			cfg.Inference.EmbeddingDim,
		)
		if err != nil {
			appLogger.Warn("Remote storage unavailable, running local-only", zap.Error(err))
		} else {
			defer remoteClient.Close()
			if err := remoteClient.CreateCollection(context.Background()); err != nil {
				appLogger.Warn("Failed to prepare remote collection, running local-only", zap.Error(err))
			} else {
				remoteBackend = remoteClient
			}
		}
	}

	var embeddingCache *rediscache.Client
	if cfg.Redis.Host != "" {
		embeddingCache, err = rediscache.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			time.Duration(cfg.Redis.TTLHours)*time.Hour,
		)
		if err != nil {
			appLogger.Warn("Embedding cache unavailable", zap.Error(err))
			embeddingCache = nil
		} else {
			defer embeddingCache.Close()
		}
	}

	manager, err := storage.NewManager(localClient, remoteBackend, localClient, storage.Mode(cfg.Storage.DefaultMode))
	if err != nil {
		appLogger.Fatal("Failed to create storage manager", zap.Error(err))
	}

	embedder := embedding.NewClient(
		cfg.Inference.CloudAPIKey,
		cfg.Inference.EmbeddingModel,
		cfg.Inference.EmbeddingDim,
		embeddingCache,
	)

	ingestor := kb.NewIngestor(embedder, manager, kb.Config{
		ChunkMaxChars:       cfg.Knowledge.ChunkMaxChars,
		DedupThreshold:      cfg.Knowledge.DedupThreshold,
		SearchMinSimilarity: cfg.Knowledge.SearchMinSimilarity,
		SearchTopK:          cfg.Knowledge.SearchTopK,
	})

	cloudClient := inference.NewCloudClient(
		cfg.Inference.CloudAPIKey,
		cfg.Inference.CloudModel,
		cfg.Inference.Temperature,
		cfg.Inference.MaxTokens,
	)
	onDeviceClient := inference.NewOnDeviceClient(cfg.Inference.OllamaURL, cfg.Inference.OnDeviceModel)
	hybridClient := inference.NewHybridClient(onDeviceClient, cloudClient, cfg.Analysis.TokenThreshold)

	parser := domparser.NewParser()
	analyzer := analysis.NewTwoStageAnalyzer(hybridClient, parser)
	orchestrator := analysis.NewOrchestrator(analyzer, hybridClient, onDeviceClient, cloudClient, parser,
		analysis.OrchestratorConfig{
			TokenThreshold:  cfg.Analysis.TokenThreshold,
			Tier3Confidence: cfg.Analysis.Tier3Confidence,
		})

	dispatcher := dispatch.NewDispatcher(orchestrator, ingestor, manager)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{Logger: appLogger.GetLogger()})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	hub := handlers.NewEventHub()
	analyzeHandler := handlers.NewAnalyzeHandler(dispatcher, hub)
	documentHandler := handlers.NewDocumentHandler(dispatcher)
	storageHandler := handlers.NewStorageHandler(dispatcher)
	eventsHandler := handlers.NewEventsHandler(hub)

	api := app.Group("/api/v1")

	api.Post("/analyze", analyzeHandler.HandleAnalyze)

	api.Post("/documents", documentHandler.UploadDocument)
	api.Delete("/documents/:fileName", documentHandler.DeleteDocument)
	api.Post("/knowledge/search", documentHandler.SearchKnowledgeBase)

	api.Get("/storage/mode", storageHandler.GetMode)
	api.Put("/storage/mode", storageHandler.SetMode)

	api.Use("/events", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/events", websocket.New(eventsHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		status := "healthy"
		storageStatus := "ok"
		if err := manager.Ping(c.Context()); err != nil {
			status = "degraded"
			storageStatus = err.Error()
		}
		return c.JSON(fiber.Map{
			"status":  status,
			"storage": storageStatus,
			"mode":    string(manager.Mode()),
			"time":    time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

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
	app.Shutdown()
	appLogger.Info("Server stopped")
}
