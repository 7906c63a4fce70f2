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
	"github.com/rs/zerolog"

	"github.com/openlearn/lms-api/internal/config"
	"github.com/openlearn/lms-api/internal/database"
	"github.com/openlearn/lms-api/internal/grader"
	"github.com/openlearn/lms-api/internal/handler"
	"github.com/openlearn/lms-api/internal/middleware"
	"github.com/openlearn/lms-api/internal/repository"
	"github.com/openlearn/lms-api/internal/router"
	"github.com/openlearn/lms-api/internal/service"
	"github.com/openlearn/lms-api/pkg/ai"
	"github.com/openlearn/lms-api/pkg/filestore"
	"github.com/openlearn/lms-api/pkg/sandbox"
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
	if err := database.Migrate(db); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	redisClient, err := database.ConnectRedis(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}
	defer redisClient.Close()

	natsConn, err := database.ConnectNATS(cfg.NATSURL)
	if err != nil {
		log.Fatalf("failed to connect to nats: %v", err)
	}
	if natsConn != nil {
		defer natsConn.Close()
	}

	executor, err := sandbox.NewDockerExecutor(sandbox.Config{
		Host:          cfg.DockerHost,
		Timeout:       cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to create sandbox executor: %v", err)
	}

	files, err := buildFileStore(cfg, logger)
	if err != nil {
		log.Fatalf("failed to create file store: %v", err)
	}

	var reviewer ai.Reviewer
	if cfg.OpenAIAPIKey != "" {
		openAIReviewer, err := ai.NewOpenAIReviewer(ai.OpenAIConfig{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
			Logger: logger,
		})
		if err != nil {
			log.Fatalf("failed to create reviewer: %v", err)
		}
		reviewer = openAIReviewer
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	quizRepo := repository.NewQuizRepository(db)
	quizSubmissionRepo := repository.NewQuizSubmissionRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)

	codeGrader := grader.New(executor, grader.Config{
		CaseTimeout:   cfg.ExecutionTimeout,
		MemoryLimitMB: int64(cfg.CodeRunMemoryMB),
		CPUShares:     int64(cfg.CodeRunCPUShares),
	}, logger)

	activityService := service.NewActivityService(activityRepo, logger)
	notificationService := service.NewNotificationService(notificationRepo, natsConn, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, quizRepo, activityService, validate, logger)
	submissionService := service.NewSubmissionService(
		submissionRepo,
		assignmentRepo,
		codeGrader,
		files,
		redisClient,
		activityService,
		notificationService,
		validate,
		logger,
		service.SubmissionConfig{
			UploadMaxBytes: cfg.UploadMaxBytes,
			CaseTimeout:    cfg.ExecutionTimeout,
			IdempotencyTTL: cfg.IdempotencyTTL,
		},
	)
	quizService := service.NewQuizService(
		quizRepo,
		quizSubmissionRepo,
		assignmentRepo,
		redisClient,
		activityService,
		notificationService,
		validate,
		logger,
		service.QuizConfig{SessionTTL: cfg.QuizSessionTTL},
	)
	gradingService := service.NewGradingService(submissionRepo, reviewer, activityService, notificationService, validate, logger)

	assignmentHandler := handler.NewAssignmentHandler(assignmentService, logger)
	submissionHandler := handler.NewSubmissionHandler(submissionService, logger)
	quizHandler := handler.NewQuizHandler(quizService, logger)
	gradingHandler := handler.NewGradingHandler(gradingService, logger)
	notificationHandler := handler.NewNotificationHandler(notificationService, logger)
	activityHandler := handler.NewActivityHandler(activityService, logger)

	app := fiber.New(fiber.Config{
		AppName:      cfg.AppName,
		ServerHeader: cfg.AppName,
		BodyLimit:    int(cfg.UploadMaxBytes) + 1<<20,
	})

	middleware.Register(app, middleware.Config{Logger: &logger})
	router.Register(app, cfg, router.Dependencies{
		AssignmentHandler:   assignmentHandler,
		SubmissionHandler:   submissionHandler,
		QuizHandler:         quizHandler,
		GradingHandler:      gradingHandler,
		NotificationHandler: notificationHandler,
		ActivityHandler:     activityHandler,
		JWTMiddleware:       middleware.JWTProtected(cfg.JWTSecret),
		SubmitLimiter:       middleware.RateLimit("submit", cfg.SubmitRateLimit, cfg.SubmitRateLimitWindow),
	})

	go func() {
		if err := app.Listen(cfg.HTTPAddress()); err != nil {
			log.Fatalf("failed to start server: %v", err)
		}
	}()

	waitForShutdown(app)
}

func buildFileStore(cfg config.Config, logger zerolog.Logger) (filestore.Store, error) {
	if cfg.FileStoreBackend == "cloudinary" {
		return filestore.NewCloudinaryStore(filestore.CloudinaryConfig{
			CloudName: cfg.CloudinaryCloudName,
			APIKey:    cfg.CloudinaryAPIKey,
			APISecret: cfg.CloudinaryAPISecret,
			Folder:    cfg.CloudinaryFolder,
		}, logger)
	}
	return filestore.NewLocalStore(cfg.FileStoreDir, logger)
}

func waitForShutdown(app *fiber.App) {
	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-shutdownCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	log.Println("server stopped")
}
