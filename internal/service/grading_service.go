package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
	"github.com/stemsi/exstem-portal/internal/scoring"
)

// GradeResult is returned by a single-answer grade.
type GradeResult struct {
	CanvasAnswer model.CanvasAnswer `json:"canvas_answer"`
	Submission   *model.Submission  `json:"submission"`
}

// BulkGradeResult reports which entries of a bulk grade were applied.
type BulkGradeResult struct {
	Updated    int               `json:"updated"`
	Skipped    []string          `json:"skipped"`
	Submission *model.Submission `json:"submission"`
}

// GradingService applies manual scores to descriptive (canvas) answers.
// Every mutation runs under the submission's row lock and re-derives the
// aggregate once before it is written.
type GradingService struct {
	submissions SubmissionStore
	log         zerolog.Logger
	now         func() time.Time
}

// NewGradingService creates a new GradingService.
func NewGradingService(submissions SubmissionStore, log zerolog.Logger) *GradingService {
	return &GradingService{
		submissions: submissions,
		log:         log.With().Str("component", "grading_service").Logger(),
		now:         time.Now,
	}
}

// ScoreCanvasAnswer grades one canvas answer. The score is clamped to
// [0, maxScore].
func (s *GradingService) ScoreCanvasAnswer(ctx context.Context, graderID int, submissionID, questionID uuid.UUID, req *model.ScoreCanvasRequest) (*GradeResult, error) {
	if req.Score == nil {
		return nil, fmt.Errorf("%w: score is required", ErrInvalidArgument)
	}

	var graded model.CanvasAnswer
	sub, err := s.submissions.UpdateLocked(ctx, submissionID, func(sub *model.Submission) error {
		ca := sub.FindCanvasAnswer(questionID)
		if ca == nil {
			return ErrCanvasAnswerNotFound
		}
		s.apply(ca, graderID, *req.Score, req.MaxScore, req.Feedback)
		graded = *ca

		*sub = scoring.DeriveFields(*sub)
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}

	s.log.Info().
		Str("submission_id", submissionID.String()).
		Str("question_id", questionID.String()).
		Int("grader_id", graderID).
		Float64("score", *graded.AdminScore).
		Float64("final_percentage", sub.FinalPercentage).
		Msg("Canvas answer graded")

	return &GradeResult{CanvasAnswer: graded, Submission: sub}, nil
}

// BulkScore grades several canvas answers of one submission at once.
// Entries with a malformed or unknown question id are skipped and reported.
func (s *GradingService) BulkScore(ctx context.Context, graderID int, submissionID uuid.UUID, req *model.BulkScoreRequest) (*BulkGradeResult, error) {
	result := &BulkGradeResult{Skipped: []string{}}

	sub, err := s.submissions.UpdateLocked(ctx, submissionID, func(sub *model.Submission) error {
		// Reset so a retried closure reports consistently.
		result.Updated = 0
		result.Skipped = result.Skipped[:0]

		for _, entry := range req.Scores {
			qid, err := uuid.Parse(entry.QuestionID)
			if err != nil || entry.Score == nil {
				result.Skipped = append(result.Skipped, entry.QuestionID)
				continue
			}
			ca := sub.FindCanvasAnswer(qid)
			if ca == nil {
				result.Skipped = append(result.Skipped, entry.QuestionID)
				continue
			}
			s.apply(ca, graderID, *entry.Score, entry.MaxScore, entry.Feedback)
			result.Updated++
		}

		*sub = scoring.DeriveFields(*sub)
		return nil
	})
	if err != nil {
		return nil, s.mapErr(err)
	}
	result.Submission = sub

	s.log.Info().
		Str("submission_id", submissionID.String()).
		Int("grader_id", graderID).
		Int("updated", result.Updated).
		Int("skipped", len(result.Skipped)).
		Msg("Canvas answers bulk graded")

	return result, nil
}

func (s *GradingService) apply(ca *model.CanvasAnswer, graderID int, score float64, maxScore *float64, feedback string) {
	clamped, m := scoring.ClampScore(score, maxScore, ca.MaxScore)
	now := s.now().UTC()
	grader := graderID

	ca.AdminScore = &clamped
	ca.MaxScore = m
	ca.Feedback = feedback
	ca.GraderID = &grader
	ca.GradedAt = &now
	ca.IsGraded = true
}

func (s *GradingService) mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSubmissionNotFound
	}
	return err
}
