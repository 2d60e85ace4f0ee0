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

// Student identifies the submitting student.
type Student struct {
	ID    int
	Label string
}

// SubmissionService turns a student's answers into a single scored,
// persisted submission.
type SubmissionService struct {
	submissions SubmissionStore
	exams       ExamReader
	questions   QuestionReader
	artifacts   ArtifactScheduler
	monitor     MonitorPublisher
	log         zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	submissions SubmissionStore,
	exams ExamReader,
	questions QuestionReader,
	artifacts ArtifactScheduler,
	monitor MonitorPublisher,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissions: submissions,
		exams:       exams,
		questions:   questions,
		artifacts:   artifacts,
		monitor:     monitor,
		log:         log.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

// Submit reconciles, scores and persists a student's submission.
func (s *SubmissionService) Submit(ctx context.Context, examID string, student Student, req *model.SubmitExamRequest) (*model.SubmitResult, error) {
	eid, err := uuid.Parse(examID)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed exam id", ErrInvalidArgument)
	}
	if student.ID <= 0 {
		return nil, fmt.Errorf("%w: student id must be positive", ErrInvalidArgument)
	}

	exam, err := s.exams.GetByID(ctx, eid)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status == model.ExamStatusDraft {
		return nil, ErrExamNotAvailable
	}

	// Fast path only. The unique index decides.
	exists, err := s.submissions.Exists(ctx, eid, student.ID)
	if err != nil {
		return nil, fmt.Errorf("check existing submission: %w", err)
	}
	if exists {
		return nil, ErrAlreadySubmitted
	}

	questions, err := s.questions.ListByExam(ctx, eid)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}

	raw := scoring.FromAnswerList(req.Answers)
	raw = append(raw, scoring.FromCanvasMap(req.CanvasAnswerMap, questions)...)
	raw = append(raw, scoring.FromLegacyMap(req.LegacyAnswerMap, questions)...)
	rec := scoring.Reconcile(questions, raw)

	status := model.SubmissionStatusCompleted
	reason := model.AutoSubmitReason(req.AutoSubmitReason)
	if req.IsAutoSubmit && reason == model.AutoSubmitReasonTimeout {
		status = model.SubmissionStatusTimeout
	}
	if !req.IsAutoSubmit {
		reason = model.AutoSubmitReasonNone
	}

	artifact := model.ArtifactStatusNone
	if len(rec.CanvasAnswers) > 0 {
		artifact = model.ArtifactStatusPending
	}

	proctoring := req.Proctoring
	if proctoring.TriggeredBy == "" {
		proctoring.TriggeredBy = reason
	}

	sub := scoring.DeriveFields(model.Submission{
		ExamID:                  eid,
		StudentID:               student.ID,
		ExternalStudentLabel:    student.Label,
		Answers:                 rec.Records,
		CanvasAnswers:           rec.CanvasAnswers,
		TotalObjectiveQuestions: len(questions),
		TimeTakenSeconds:        req.TimeTakenSeconds,
		SubmittedAt:             s.now().UTC(),
		Status:                  status,
		IsAutoSubmit:            req.IsAutoSubmit,
		AutoSubmitReason:        reason,
		Proctoring:              proctoring,
		ArtifactStatus:          artifact,
	})

	if err := s.submissions.Create(ctx, &sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadySubmitted
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	artifactAccepted := false
	if len(sub.CanvasAnswers) > 0 {
		if err := s.artifacts.ScheduleArtifact(ctx, sub.ID); err != nil {
			s.log.Warn().
				Err(err).
				Str("submission_id", sub.ID.String()).
				Msg("Failed to schedule answer sheet")
			if uerr := s.submissions.UpdateArtifact(ctx, sub.ID, model.ArtifactStatusFailed, ""); uerr != nil {
				s.log.Warn().Err(uerr).Str("submission_id", sub.ID.String()).Msg("Failed to mark artifact failed")
			}
		} else {
			artifactAccepted = true
		}
	}

	s.publish(ctx, model.MonitorEvent{
		Type:      model.MonitorSubmitted,
		ExamID:    examID,
		StudentID: student.ID,
		Label:     student.Label,
		Data: map[string]any{
			"final_percentage": sub.FinalPercentage,
			"is_auto_submit":   sub.IsAutoSubmit,
			"reason":           string(sub.AutoSubmitReason),
		},
	})

	s.log.Info().
		Str("exam_id", examID).
		Int("student_id", student.ID).
		Str("submission_id", sub.ID.String()).
		Int("score", sub.ObjectiveScore).
		Int("total", sub.TotalObjectiveQuestions).
		Bool("auto", sub.IsAutoSubmit).
		Msg("Submission stored")

	tally := scoring.Count(sub.Answers)
	return &model.SubmitResult{
		SubmissionID:          sub.ID,
		Score:                 sub.ObjectiveScore,
		Total:                 sub.TotalObjectiveQuestions,
		Percentage:            sub.ObjectivePercentage,
		CorrectCount:          tally.Correct,
		IncorrectCount:        tally.Incorrect,
		UnansweredCount:       tally.Unanswered,
		DescriptiveCount:      tally.Descriptive,
		PendingGradingCount:   sub.PendingGradingCount(),
		FinalScore:            sub.FinalScore,
		FinalPercentage:       sub.FinalPercentage,
		HasDescriptiveAnswers: len(sub.CanvasAnswers) > 0,
		ArtifactGenerated:     artifactAccepted,
	}, nil
}

// HasSubmitted reports whether the student already submitted the exam.
func (s *SubmissionService) HasSubmitted(ctx context.Context, examID uuid.UUID, studentID int) (bool, error) {
	return s.submissions.Exists(ctx, examID, studentID)
}

// Get loads a submission by id.
func (s *SubmissionService) Get(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	sub, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("get submission: %w", err)
	}
	return sub, nil
}

// ListByStudent returns the student's submissions, oldest first.
func (s *SubmissionService) ListByStudent(ctx context.Context, studentID int) ([]model.Submission, error) {
	subs, err := s.submissions.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	return subs, nil
}

// RegenerateArtifact re-queues the answer sheet of a submission with
// descriptive answers.
func (s *SubmissionService) RegenerateArtifact(ctx context.Context, id uuid.UUID) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(sub.CanvasAnswers) == 0 {
		return ErrNoCanvasAnswers
	}

	if err := s.submissions.UpdateArtifact(ctx, id, model.ArtifactStatusPending, sub.ArtifactPath); err != nil {
		return fmt.Errorf("mark artifact pending: %w", err)
	}
	if err := s.artifacts.ScheduleArtifact(ctx, id); err != nil {
		return fmt.Errorf("schedule artifact: %w", err)
	}

	s.log.Info().Str("submission_id", id.String()).Msg("Answer sheet regeneration queued")
	return nil
}

func (s *SubmissionService) publish(ctx context.Context, e model.MonitorEvent) {
	if s.monitor == nil {
		return
	}
	if e.At.IsZero() {
		e.At = s.now().UTC()
	}
	if err := s.monitor.Publish(ctx, e); err != nil {
		s.log.Debug().Err(err).Str("exam_id", e.ExamID).Msg("Monitor publish failed")
	}
}
