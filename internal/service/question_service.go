package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// QuestionService handles question business logic. Questions can only be
// changed while their exam is a draft, so the cached paper never drifts
// from what students are answering.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	exams        *ExamService
	log          zerolog.Logger
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, exams *ExamService, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		exams:        exams,
		log:          log.With().Str("component", "question_service").Logger(),
	}
}

// ListByExam retrieves all questions for an exam owned by the admin.
func (s *QuestionService) ListByExam(ctx context.Context, ownerID int, examID uuid.UUID) ([]model.Question, error) {
	if _, err := s.exams.GetOwned(ctx, examID, ownerID); err != nil {
		return nil, err
	}
	questions, err := s.questionRepo.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, nil
}

// Create adds a question to a draft exam.
func (s *QuestionService) Create(ctx context.Context, ownerID int, examID uuid.UUID, req *model.QuestionRequest) (*model.Question, error) {
	if _, err := s.editableExam(ctx, ownerID, examID); err != nil {
		return nil, err
	}

	q := req.ToQuestion(examID)
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Replace overwrites a question of a draft exam.
func (s *QuestionService) Replace(ctx context.Context, ownerID int, examID, questionID uuid.UUID, req *model.QuestionRequest) (*model.Question, error) {
	if _, err := s.editableExam(ctx, ownerID, examID); err != nil {
		return nil, err
	}

	q := req.ToQuestion(examID)
	q.ID = questionID
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	if err := s.questionRepo.Update(ctx, q); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("update question: %w", err)
	}
	return q, nil
}

// Delete removes a question from a draft exam. Submissions that referenced
// it keep their records and render a placeholder.
func (s *QuestionService) Delete(ctx context.Context, ownerID int, examID, questionID uuid.UUID) error {
	if _, err := s.editableExam(ctx, ownerID, examID); err != nil {
		return err
	}
	if err := s.questionRepo.Delete(ctx, examID, questionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrQuestionNotFound
		}
		return fmt.Errorf("delete question: %w", err)
	}
	s.log.Info().Str("exam_id", examID.String()).Str("question_id", questionID.String()).Msg("Question deleted")
	return nil
}

func (s *QuestionService) editableExam(ctx context.Context, ownerID int, examID uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetOwned(ctx, examID, ownerID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}
	return exam, nil
}
