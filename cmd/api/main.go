package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pedagolab/stepflow-api/internal/config"
	"github.com/pedagolab/stepflow-api/internal/database"
	"github.com/pedagolab/stepflow-api/internal/handler"
	"github.com/pedagolab/stepflow-api/internal/middleware"
	"github.com/pedagolab/stepflow-api/internal/models"
	"github.com/pedagolab/stepflow-api/internal/repository"
	"github.com/pedagolab/stepflow-api/internal/router"
	"github.com/pedagolab/stepflow-api/internal/service"
	"github.com/pedagolab/stepflow-api/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	db, err := database.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}

	if err := db.AutoMigrate(
		&models.Activity{},
		&models.StepSubmission{},
		&models.CorrectionModel{},
		&models.EvaluationJob{},
		&models.AggregateSummary{},
	); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	var events service.EventPublisher
	if cfg.NATSURL != "" {
		natsConn, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to nats: %v", err)
		}
		defer natsConn.Drain()
		events = service.NewNATSPublisher(natsConn)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	jobRepo := repository.NewEvaluationJobRepository(db)
	submissionRepo := repository.NewStepSubmissionRepository(db)
	correctionRepo := repository.NewCorrectionModelRepository(db)
	activityRepo := repository.NewActivityRepository(db)
	summaryRepo := repository.NewAggregateSummaryRepository(db)

	resolver := service.NewProviderResolver(cfg)

	evaluationService := service.NewEvaluationService(jobRepo, submissionRepo, correctionRepo, activityRepo, resolver, events, validate, logger, service.EvaluationConfig{
		MaxTokens:      cfg.AIMaxTokens,
		PromptBudget:   cfg.AIPromptBudget,
		RequestTimeout: cfg.AIRequestTimeout,
	})
	gradeService := service.NewGradeService(jobRepo, submissionRepo, logger)
	summaryService := service.NewSummaryService(summaryRepo, jobRepo, activityRepo, resolver, redisClient, logger, service.SummaryConfig{
		StaleAfter: cfg.SummaryStaleAfter,
		CacheTTL:   cfg.SummaryCacheTTL,
		MaxTokens:  cfg.AIMaxTokens,
		Timeout:    cfg.AISummaryTimeout,
	})
	submissionService := service.NewSubmissionService(submissionRepo, evaluationService, logger)

	evaluationHandler := handler.NewEvaluationHandler(evaluationService, gradeService, logger)
	summaryHandler := handler.NewSummaryHandler(summaryService, logger)
	providerHandler := handler.NewProviderHandler(evaluationService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		EvaluationHandler: evaluationHandler,
		SummaryHandler:    summaryHandler,
		ProviderHandler:   providerHandler,
		JWTMiddleware:     middleware.JWTProtected(cfg.JWTSecret),
	})

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	evaluationWorker := worker.New(jobRepo, evaluationService, submissionService, worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		SweepInterval: cfg.SweepInterval,
		Concurrency:   cfg.WorkerConcurrency,
	}, logger)
	evaluationWorker.Start(workerCtx)

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app, func() {
		cancelWorker()
		evaluationWorker.Stop()
	})
}

func waitForShutdown(app *fiber.App, stopWorker func()) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	stopWorker()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
