package router

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/database"
	"github.com/stemsi/exstem-portal/internal/handler"
	"github.com/stemsi/exstem-portal/internal/middleware"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/response"
	"github.com/stemsi/exstem-portal/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth       *handler.AuthHandler
	Exam       *handler.ExamHandler
	Question   *handler.QuestionHandler
	Media      *handler.MediaHandler
	Submission *handler.SubmissionHandler
	Grading    *handler.GradingHandler
	Result     *handler.ResultHandler
	Violation  *handler.ViolationHandler
	Monitor    *handler.MonitorHandler
	Meeting    *handler.MeetingHandler
	Proctor    *handler.ProctorHandler
	System     *handler.SystemHandler

	// Health reports store readiness for /health. Nil means always ok.
	Health func(ctx context.Context) database.Health
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Brotli skips SSE, WebSocket upgrades and binary downloads.
	router.Use(middleware.Brotli())

	// Serve uploaded media files statically with aggressive caching (1 year).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		if handlers.Health == nil {
			response.Success(c, http.StatusOK, gin.H{"status": "ok"})
			return
		}
		h := handlers.Health(c.Request.Context())
		if !h.OK() {
			response.Success(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "stores": h})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok", "stores": h})
	})

	requireAuth := []gin.HandlerFunc{
		middleware.RequireAuth(authService),
		middleware.CheckTokenNotRevoked(authService),
	}
	admin := middleware.RequireAdmin()
	student := middleware.RequireStudent()

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	loginLimiter := middleware.NewRateLimiter(30, time.Minute)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", loginLimiter.Middleware(), handlers.Auth.Login)
		auth.GET("/me", append(requireAuth, handlers.Auth.Me)...)
		auth.POST("/logout", append(requireAuth, handlers.Auth.Logout)...)
	}

	api := router.Group("/api/v1")
	api.Use(requireAuth...)
	api.Use(middleware.NoStore())

	// ─── 2. Exams ──────────────────────────────────────────────────────
	exams := api.Group("/exams")
	{
		exams.GET("", handlers.Exam.ListExams)
		exams.POST("", admin, handlers.Exam.CreateExam)
		exams.GET("/:exam_id", admin, handlers.Exam.GetExam)
		exams.PATCH("/:exam_id", admin, handlers.Exam.UpdateExam)
		exams.POST("/:exam_id/status", admin, handlers.Exam.ChangeStatus)
		exams.DELETE("/:exam_id", admin, handlers.Exam.DeleteExam)

		exams.GET("/:exam_id/questions", admin, handlers.Question.ListQuestions)
		exams.POST("/:exam_id/questions", admin, handlers.Question.AddQuestion)
		exams.PUT("/:exam_id/questions/:question_id", admin, handlers.Question.ReplaceQuestion)
		exams.DELETE("/:exam_id/questions/:question_id", admin, handlers.Question.DeleteQuestion)

		exams.GET("/:exam_id/paper", student, handlers.Exam.GetPaper)
		exams.POST("/:exam_id/submissions", student, handlers.Submission.Submit)

		exams.GET("/:exam_id/results", admin, handlers.Result.GetExamResults)
		exams.GET("/:exam_id/results/export", admin, handlers.Result.ExportExamResults)
		exams.GET("/:exam_id/violations", admin, handlers.Violation.ListViolations)
		exams.GET("/:exam_id/monitor", admin, handlers.Monitor.MonitorExamSSE)

		exams.POST("/:exam_id/meeting", admin, handlers.Meeting.CreateMeeting)
		exams.DELETE("/:exam_id/meeting", admin, handlers.Meeting.EndMeeting)
		exams.GET("/:exam_id/meeting/participants", admin, handlers.Meeting.ListParticipants)
		exams.POST("/:exam_id/meeting/join",
			middleware.RequireRole(model.RoleStudent, model.RoleAdmin),
			handlers.Meeting.JoinMeeting,
		)
	}

	// ─── 3. Submissions & Results ──────────────────────────────────────
	submissions := api.Group("/submissions")
	{
		submissions.GET("", student, handlers.Submission.ListMine)
		submissions.GET("/:id", handlers.Result.GetSubmissionResult)
		submissions.PATCH("/:id/canvas-answers/:question_id", admin, handlers.Grading.ScoreCanvasAnswer)
		submissions.PATCH("/:id/canvas-answers", admin, handlers.Grading.BulkScore)
		submissions.POST("/:id/artifact", admin, handlers.Submission.RegenerateArtifact)
		submissions.GET("/:id/artifact", admin, handlers.Submission.DownloadArtifact)
	}

	api.GET("/students/:student_id/performance", handlers.Result.GetStudentPerformance)

	// ─── 4. Violations (Student, Rate Limited per user) ───────────────
	violationLimiter := middleware.NewKeyedRateLimiter(120, time.Minute, middleware.ByUser)
	api.POST("/violations", student, violationLimiter.Middleware(), handlers.Violation.LogViolation)

	// ─── 5. Media & System ─────────────────────────────────────────────
	api.POST("/media/upload", admin, handlers.Media.UploadMedia)
	api.GET("/system/metrics", admin, handlers.System.SystemMetricsSSE)

	// ─── 6. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.CheckTokenNotRevoked(authService),
		student,
	)
	{
		ws.GET("/exams/:exam_id/proctor", handlers.Proctor.ExamProctorStream)
	}

	return router
}
