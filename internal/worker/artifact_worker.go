package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/export"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// ArtifactSource loads what an answer sheet needs and records the outcome.
type ArtifactSource interface {
	GetSubmission(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	StudentName(ctx context.Context, id int) (string, error)
	UpdateArtifact(ctx context.Context, id uuid.UUID, status model.ArtifactStatus, path string) error
}

// RepositorySource reads artifact inputs from the pgx repositories.
type RepositorySource struct {
	Submissions *repository.SubmissionRepository
	Exams       *repository.ExamRepository
	Questions   *repository.QuestionRepository
	Users       *repository.UserRepository
}

func (s *RepositorySource) GetSubmission(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	return s.Submissions.GetByID(ctx, id)
}

func (s *RepositorySource) GetExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.Exams.GetByID(ctx, id)
}

func (s *RepositorySource) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	return s.Questions.ListByExam(ctx, examID)
}

func (s *RepositorySource) StudentName(ctx context.Context, id int) (string, error) {
	u, err := s.Users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func (s *RepositorySource) UpdateArtifact(ctx context.Context, id uuid.UUID, status model.ArtifactStatus, path string) error {
	return s.Submissions.UpdateArtifact(ctx, id, status, path)
}

// ArtifactWorker renders descriptive answer sheets off the submit path.
type ArtifactWorker struct {
	src      ArtifactSource
	renderer export.AnswerSheetRenderer
	rdb      *redis.Client
	cfg      config.ArtifactConfig
	log      zerolog.Logger
	backoff  func(attempt int) time.Duration
}

// NewArtifactWorker creates a new ArtifactWorker.
func NewArtifactWorker(src ArtifactSource, renderer export.AnswerSheetRenderer, rdb *redis.Client, cfg config.ArtifactConfig, log zerolog.Logger) *ArtifactWorker {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &ArtifactWorker{
		src:      src,
		renderer: renderer,
		rdb:      rdb,
		cfg:      cfg,
		log:      log.With().Str("component", "artifact_worker").Logger(),
		backoff:  func(attempt int) time.Duration { return time.Duration(attempt) * time.Second },
	}
}

// Start processes jobs one at a time until ctx is cancelled.
func (w *ArtifactWorker) Start(ctx context.Context) {
	w.log.Info().Str("dir", w.cfg.Dir).Msg("ArtifactWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ArtifactWorker stopped")
			return
		default:
		}

		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.GenerateArtifactsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var job artifactJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed artifact job")
			continue
		}
		w.handle(ctx, job)
	}
}

// handle runs one job and retries or gives up on failure.
func (w *ArtifactWorker) handle(ctx context.Context, job artifactJob) {
	id, err := uuid.Parse(job.SubmissionID)
	if err != nil {
		w.log.Error().Str("submission_id", job.SubmissionID).Msg("Dropping artifact job with invalid UUID")
		return
	}

	path, err := w.Generate(ctx, id)
	if err == nil {
		if err := w.src.UpdateArtifact(ctx, id, model.ArtifactStatusGenerated, path); err != nil {
			w.log.Error().Err(err).Str("submission_id", job.SubmissionID).Msg("Failed to record artifact")
		}
		return
	}

	job.Attempt++
	log := w.log.With().Err(err).Str("submission_id", job.SubmissionID).Int("attempt", job.Attempt).Logger()
	if job.Attempt >= w.cfg.MaxAttempts {
		log.Error().Msg("Answer sheet generation failed, giving up")
		if err := w.src.UpdateArtifact(ctx, id, model.ArtifactStatusFailed, ""); err != nil {
			log.Error().Err(err).Msg("Failed to record artifact failure")
		}
		return
	}

	log.Warn().Msg("Answer sheet generation failed, retrying")
	select {
	case <-ctx.Done():
	case <-time.After(w.backoff(job.Attempt)):
	}
	data, _ := json.Marshal(job)
	// Background context: the job must survive a shutdown that interrupted the wait.
	if err := w.rdb.RPush(context.Background(), config.WorkerKey.GenerateArtifactsQueue, data).Err(); err != nil {
		log.Error().Err(err).Msg("CRITICAL: Failed to requeue artifact job")
	}
}

// Generate renders a submission's answer sheet to disk and returns its path.
func (w *ArtifactWorker) Generate(ctx context.Context, id uuid.UUID) (string, error) {
	sub, err := w.src.GetSubmission(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load submission: %w", err)
	}
	if len(sub.CanvasAnswers) == 0 {
		return "", errors.New("submission has no canvas answers")
	}

	sheet, err := w.sheet(ctx, sub)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(w.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	final := filepath.Join(w.cfg.Dir, id.String()+".pdf")
	tmp, err := os.CreateTemp(w.cfg.Dir, id.String()+"-*.pdf.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := w.renderer.Render(tmp, sheet); err != nil {
		tmp.Close()
		return "", fmt.Errorf("render: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("move artifact: %w", err)
	}

	w.log.Info().Str("submission_id", id.String()).Str("path", final).Int("answers", len(sheet.Items)).Msg("Answer sheet generated")
	return final, nil
}

func (w *ArtifactWorker) sheet(ctx context.Context, sub *model.Submission) (*export.AnswerSheet, error) {
	sheet := &export.AnswerSheet{
		ExamTitle:    model.DeletedExamTitle,
		StudentLabel: sub.ExternalStudentLabel,
		SubmittedAt:  sub.SubmittedAt,
	}

	exam, err := w.src.GetExam(ctx, sub.ExamID)
	if err == nil {
		sheet.ExamTitle = exam.Title
	}
	questions, err := w.src.ListQuestions(ctx, sub.ExamID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	name, err := w.src.StudentName(ctx, sub.StudentID)
	if err != nil {
		w.log.Debug().Err(err).Int("student_id", sub.StudentID).Msg("Student name unavailable")
	}
	sheet.StudentName = name

	text := make(map[uuid.UUID]string, len(questions))
	number := make(map[uuid.UUID]int, len(questions))
	for i, q := range questions {
		text[q.ID] = q.QuestionText
		number[q.ID] = i + 1
	}

	for i, ca := range sub.CanvasAnswers {
		item := export.AnswerSheetItem{
			Number:       i + 1,
			QuestionText: model.DeletedQuestionText,
			ImagePayload: ca.ImagePayload,
			MaxScore:     ca.MaxScore,
			Feedback:     ca.Feedback,
		}
		if n, ok := number[ca.QuestionID]; ok {
			item.Number = n
			item.QuestionText = text[ca.QuestionID]
		}
		if ca.IsGraded {
			item.Score = ca.AdminScore
		}
		sheet.Items = append(sheet.Items, item)
	}
	return sheet, nil
}
