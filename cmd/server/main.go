package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/export"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/logger"
	"github.com/stemsi/exstem-portal/internal/meeting"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/router"
	"github.com/stemsi/exstem-portal/internal/service"
	"github.com/stemsi/exstem-portal/internal/validator"
	"github.com/stemsi/exstem-portal/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Portal")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	userRepo := repository.NewUserRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	submissionRepo := repository.NewSubmissionRepository(pool)
	violationRepo := repository.NewViolationRepository(pool)
	monitorRepo := repository.NewMonitorRepository(pool, rdb)

	// ─── Queues & Pub/Sub ─────────────────────────────────────────────
	queue := worker.NewRedisQueue(rdb)
	publisher := service.NewRedisPublisher(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, userRepo, log)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	questionService := service.NewQuestionService(questionRepo, examService, log)
	mediaService := service.NewMediaService(cfg)
	submissionService := service.NewSubmissionService(submissionRepo, examRepo, questionRepo, queue, publisher, log)
	gradingService := service.NewGradingService(submissionRepo, log)
	resultService := service.NewResultService(submissionRepo, examRepo, questionRepo, userRepo, cfg.Scoring, log)
	violationService := service.NewViolationService(queue, publisher, violationRepo, log)
	monitorService := service.NewMonitorService(monitorRepo, questionRepo, rdb, log)
	meetingService := service.NewMeetingService(meeting.New(cfg.Meeting, log), examService, rdb, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	health := func(ctx context.Context) database.Health {
		return database.Check(ctx, pool, rdb)
	}
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, log),
		Exam:       handler.NewExamHandler(examService, log),
		Question:   handler.NewQuestionHandler(questionService, log),
		Media:      handler.NewMediaHandler(mediaService, cfg.MaxUploadBytes, log),
		Submission: handler.NewSubmissionHandler(submissionService, log),
		Grading:    handler.NewGradingHandler(gradingService, log),
		Result:     handler.NewResultHandler(resultService, log),
		Violation:  handler.NewViolationHandler(violationService, log),
		Monitor:    handler.NewMonitorHandler(examService, monitorService, log),
		Meeting:    handler.NewMeetingHandler(meetingService, log),
		Proctor: handler.NewProctorHandler(
			rdb, examService, submissionService, violationService, publisher,
			cfg.Proctor, cfg.AllowedOrigins, log,
		),
		Health: health,
	}
	handlers.System = handler.NewSystemHandler(rdb, health, log)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(violationRepo, rdb, log)
	artifactWorker := worker.NewArtifactWorker(
		&worker.RepositorySource{
			Submissions: submissionRepo,
			Exams:       examRepo,
			Questions:   questionRepo,
			Users:       userRepo,
		},
		export.NewPDFRenderer(cfg.Artifact.FontPath),
		rdb, cfg.Artifact, log,
	)

	workers.Add(2)
	go func() { defer workers.Done(); violationWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); artifactWorker.Start(workerCtx) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all active exam papers into Redis BEFORE accepting traffic.
	if err := examService.PrewarmActive(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for their buffers to flush.
	workerCancel()
	done := make(chan struct{})
	go func() { workers.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("Workers did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
