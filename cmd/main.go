package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/soulprintlabs/soulprint-backend/internal/app"
	"github.com/soulprintlabs/soulprint-backend/internal/clients/redis"
	"github.com/soulprintlabs/soulprint-backend/internal/db"
	"github.com/soulprintlabs/soulprint-backend/internal/handlers"
	"github.com/soulprintlabs/soulprint-backend/internal/jobs/pipeline/memory_full_pass"
	"github.com/soulprintlabs/soulprint-backend/internal/jobs/runtime"
	"github.com/soulprintlabs/soulprint-backend/internal/jobs/worker"
	"github.com/soulprintlabs/soulprint-backend/internal/logger"
	"github.com/soulprintlabs/soulprint-backend/internal/middleware"
	"github.com/soulprintlabs/soulprint-backend/internal/observability"
	"github.com/soulprintlabs/soulprint-backend/internal/platform/openai"
	"github.com/soulprintlabs/soulprint-backend/internal/repos"
	"github.com/soulprintlabs/soulprint-backend/internal/server"
	"github.com/soulprintlabs/soulprint-backend/internal/services"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg := app.LoadConfig(log)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	otelShutdown := observability.InitOTel(rootCtx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})

	// Database
	dbService, err := db.New(log)
	if err != nil {
		log.Fatal("Database init failed", "error", err)
	}
	if err := dbService.AutoMigrateAll(); err != nil {
		log.Fatal("Auto migration failed", "error", err)
	}
	gdb := dbService.DB()

	// Repos
	log.Info("Setting up repos...")
	userRepo := repos.NewUserRepo(gdb, log)
	jobRepo := repos.NewSynthesisJobRepo(gdb, log)
	chunkRepo := repos.NewConversationChunkRepo(gdb, log)
	profileRepo := repos.NewUserProfileRepo(gdb, log)
	callLogRepo := repos.NewAICallLogRepo(gdb, log)

	// Clients
	log.Info("Setting up clients...")
	var notifier services.JobNotifier
	notifyBus, err := redis.NewNotifyBus(log)
	if err != nil {
		log.Warn("Redis notify bus unavailable, job events disabled", "error", err)
		notifier = services.NewNopJobNotifier()
	} else {
		defer notifyBus.Close()
		notifier = services.NewJobNotifier(log, notifyBus)
	}

	recorder := services.NewAICallRecorder(log, callLogRepo)
	aiClient, err := openai.NewClient(log, recorder)
	if err != nil {
		log.Fatal("OpenAI client init failed", "error", err)
	}

	var bucket services.BucketService
	if cfg.StorageMode == "local" {
		bucket, err = services.NewLocalBucketService(log)
	} else {
		bucket, err = services.NewBucketService(log)
	}
	if err != nil {
		log.Fatal("Bucket service init failed", "error", err)
	}

	// Services
	log.Info("Setting up services...")
	exportSource := services.NewExportSource(log, bucket)
	jobService := services.NewJobService(gdb, log, jobRepo, userRepo, notifier)
	profileService := services.NewProfileService(log, profileRepo)
	authService := services.NewAuthService(log, cfg.JWTSecretKey)

	// Job worker
	log.Info("Setting up job worker...")
	registry := runtime.NewRegistry()
	fullPass := memory_full_pass.New(gdb, log, aiClient, exportSource, chunkRepo, profileRepo, memory_full_pass.Tuning{
		ChunkTargetTokens:  cfg.Tuning.ChunkTargetTokens,
		ChunkOverlapTokens: cfg.Tuning.ChunkOverlapTokens,
		ExtractConcurrency: cfg.Tuning.ExtractConcurrency,
		EmbedConcurrency:   cfg.Tuning.EmbedConcurrency,
		ReduceBudgetTokens: cfg.Tuning.ReduceBudgetTokens,
		ReduceBatchTokens:  cfg.Tuning.ReduceBatchTokens,
		ReduceMaxDepth:     cfg.Tuning.ReduceMaxDepth,
		ProfileSampleSize:  cfg.Tuning.ProfileSampleSize,
	})
	if err := registry.Register(fullPass); err != nil {
		log.Fatal("Handler registration failed", "error", err)
	}
	log.Info("Job handlers registered", "job_types", registry.Types())
	worker.NewWorker(gdb, log, jobRepo, registry, notifier).Start(rootCtx)

	// HTTP
	log.Info("Setting up router...")
	authMiddleware := middleware.NewAuthMiddleware(log, authService)
	router := server.NewRouter(server.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AuthMiddleware: authMiddleware,
		HealthHandler:  handlers.NewHealthHandler(gdb),
		MemoryHandler:  handlers.NewMemoryHandler(jobService, profileService),
		JobsHandler:    handlers.NewJobsHandler(jobService),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}
	go func() {
		log.Info("Server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown failed", "error", err)
	}
	if otelShutdown != nil {
		_ = otelShutdown(shutdownCtx)
	}
}
