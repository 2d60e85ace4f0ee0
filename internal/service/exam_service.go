package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/response"
)

// paperTTL bounds how long a cached paper outlives a missed invalidation.
const paperTTL = 12 * time.Hour

// ExamService handles exam business logic and the student paper cache.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
	now          func() time.Time
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
		now:          time.Now,
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// GetOwned retrieves an exam and checks that the admin owns it.
func (s *ExamService) GetOwned(ctx context.Context, id uuid.UUID, ownerID int) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.OwnerID != ownerID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// List returns the exams the viewer may see. Admins see the exams they own,
// students see active exams open to their college and branch.
func (s *ExamService) List(ctx context.Context, viewer Viewer, q model.PageQuery) ([]model.Exam, *response.Pagination, error) {
	q.Normalize()

	var filter repository.ExamFilter
	if viewer.IsAdmin() {
		filter.OwnerID = viewer.UserID
	} else {
		filter.Status = model.ExamStatusActive
		filter.CollegeID = viewer.CollegeID
		filter.Branch = viewer.Branch
	}

	exams, total, err := s.examRepo.ListPaginated(ctx, filter, q.PerPage, q.Offset())
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, paginate(q, total), nil
}

// Create inserts a new exam as draft.
func (s *ExamService) Create(ctx context.Context, ownerID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam := &model.Exam{
		Title:                    req.Title,
		Description:              req.Description,
		Category:                 req.Category,
		DurationMinutes:          req.DurationMinutes,
		Status:                   model.ExamStatusDraft,
		CollegeID:                req.CollegeID,
		Branch:                   req.Branch,
		OwnerID:                  ownerID,
		ScheduledStart:           req.ScheduledStart,
		ScheduledEnd:             req.ScheduledEnd,
		MaxAttempts:              req.MaxAttempts,
		ShuffleQuestions:         req.ShuffleQuestions,
		ProctoringEnabled:        req.ProctoringEnabled,
		MaxViolations:            req.MaxViolations,
		MaxEyeTrackingViolations: req.MaxEyeTrackingViolations,
	}
	if exam.MaxAttempts == 0 {
		exam.MaxAttempts = 1
	}
	if err := s.examRepo.Create(ctx, exam); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().Str("exam_id", exam.ID.String()).Int("owner_id", ownerID).Msg("Exam created")
	return exam, nil
}

// Update applies a partial update. Active exams get their paper refreshed.
func (s *ExamService) Update(ctx context.Context, ownerID int, id uuid.UUID, req *model.UpdateExamRequest) (*model.Exam, error) {
	exam, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	req.Apply(exam)
	if exam.ScheduledStart != nil && exam.ScheduledEnd != nil && !exam.ScheduledEnd.After(*exam.ScheduledStart) {
		return nil, fmt.Errorf("%w: scheduled_end must be after scheduled_start", ErrInvalidArgument)
	}
	if err := s.examRepo.Update(ctx, exam); err != nil {
		return nil, fmt.Errorf("update exam: %w", err)
	}

	if exam.Status == model.ExamStatusActive {
		if err := s.WarmPaperCache(ctx, exam); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to refresh paper after update")
		}
	}
	return exam, nil
}

// ChangeStatus moves an exam to a new status. Activating requires at least
// one question and warms the paper cache; leaving active evicts it.
func (s *ExamService) ChangeStatus(ctx context.Context, ownerID int, id uuid.UUID, status model.ExamStatus) (*model.Exam, error) {
	exam, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if status == model.ExamStatusActive {
		// Warm first so students never see an active exam without a paper.
		if err := s.WarmPaperCache(ctx, exam); err != nil {
			return nil, err
		}
	}

	if err := s.examRepo.UpdateStatus(ctx, id, status); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	if status != model.ExamStatusActive {
		if err := s.rdb.Del(ctx, config.CacheKey.ExamPaperKey(id.String())).Err(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to evict paper")
		}
	}

	s.log.Info().
		Str("exam_id", id.String()).
		Str("from", string(exam.Status)).
		Str("to", string(status)).
		Msg("Exam status changed")
	exam.Status = status
	return exam, nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, ownerID int, id uuid.UUID) error {
	exam, err := s.GetOwned(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	if err := s.examRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete exam: %w", err)
	}
	return nil
}

// ─── Paper cache ──────────────────────────────────────────────────────

// WarmPaperCache builds the student-facing paper from PostgreSQL and stores it in Redis.
func (s *ExamService) WarmPaperCache(ctx context.Context, exam *model.Exam) error {
	paper, err := s.buildPaper(ctx, exam)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), payload, paperTTL).Err(); err != nil {
		return fmt.Errorf("cache paper: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(paper.Questions)).
		Msg("Paper cache warmed")
	return nil
}

// PrewarmActive loads every active exam's paper into Redis on startup.
func (s *ExamService) PrewarmActive(ctx context.Context) error {
	exams, err := s.examRepo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active exams: %w", err)
	}
	if len(exams) == 0 {
		s.log.Info().Msg("No active exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmPaperCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().Int("warmed", warmed).Int("total", len(exams)).Msg("Prewarming complete")
	return nil
}

// GetPaper returns the paper for a student. The exam must be active, inside
// its schedule window and open to the student's college and branch. A cache
// miss is rebuilt from PostgreSQL.
func (s *ExamService) GetPaper(ctx context.Context, viewer Viewer, id uuid.UUID) (*model.ExamPaper, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.Available(viewer, exam) {
		return nil, ErrExamNotAvailable
	}

	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(id.String())).Bytes()
	switch {
	case err == nil:
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err == nil {
			return &paper, nil
		}
		s.log.Warn().Str("exam_id", id.String()).Msg("Corrupt cached paper, rebuilding")
	case !errors.Is(err, redis.Nil):
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Paper cache read failed")
	}

	if err := s.WarmPaperCache(ctx, exam); err != nil && !errors.Is(err, ErrNoQuestions) {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Paper cache rebuild failed")
	}
	return s.buildPaper(ctx, exam)
}

// Available reports whether a student may sit the exam right now.
func (s *ExamService) Available(viewer Viewer, exam *model.Exam) bool {
	if exam.Status != model.ExamStatusActive {
		return false
	}
	if exam.CollegeID != "" && exam.CollegeID != viewer.CollegeID {
		return false
	}
	if exam.Branch != "" && exam.Branch != viewer.Branch {
		return false
	}
	now := s.now()
	if exam.ScheduledStart != nil && now.Before(*exam.ScheduledStart) {
		return false
	}
	if exam.ScheduledEnd != nil && now.After(*exam.ScheduledEnd) {
		return false
	}
	return true
}

func (s *ExamService) buildPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	// Student-facing payload carries no answer key.
	studentQuestions := make([]model.QuestionForStudent, len(questions))
	for i, q := range questions {
		studentQuestions[i] = model.QuestionForStudent{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			ImageURL:     q.ImageURL,
			Kind:         q.Kind,
			Options:      q.Options,
			OrderNum:     q.OrderNum,
		}
	}

	return &model.ExamPaper{
		ExamID:            exam.ID,
		Title:             exam.Title,
		Duration:          exam.DurationMinutes,
		ShuffleQuestions:  exam.ShuffleQuestions,
		ProctoringEnabled: exam.ProctoringEnabled,
		Questions:         studentQuestions,
	}, nil
}

func paginate(q model.PageQuery, total int) *response.Pagination {
	return response.NewPagination(q.Page, q.PerPage, total)
}
