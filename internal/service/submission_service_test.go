package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

func (f *fixture) submissionService() *SubmissionService {
	return NewSubmissionService(f.subs, f.exams, f.questions, f.sched, f.pub, zerolog.Nop())
}

func threeMC(examID uuid.UUID) []model.Question {
	return []model.Question{mcQuestion(examID, 1, 1), mcQuestion(examID, 2, 0), mcQuestion(examID, 3, 2)}
}

func TestSubmit_ScoresDuplicatesAndUnanswered(t *testing.T) {
	f := newFixture(threeMC)
	qs := f.questions.byExam[f.exam.ID]
	svc := f.submissionService()

	res, err := svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7, Label: "S-007"}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{
			{QuestionID: qs[0].ID.String(), SelectedOption: intp(1)},
			{QuestionID: qs[0].ID.String(), SelectedOption: intp(2)},
			{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)},
			{QuestionID: qs[2].ID.String(), SelectedOption: intp(-1)},
		},
		TimeTakenSeconds: 300,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Score)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 66.67, res.Percentage)
	assert.Equal(t, 2, res.CorrectCount)
	assert.Equal(t, 0, res.IncorrectCount)
	assert.Equal(t, 1, res.UnansweredCount)
	assert.False(t, res.HasDescriptiveAnswers)
	assert.False(t, res.ArtifactGenerated)
	assert.Empty(t, f.sched.scheduled)

	stored, err := f.subs.GetByID(context.Background(), res.SubmissionID)
	require.NoError(t, err)
	assert.Len(t, stored.Answers, 3)
	assert.Equal(t, 2, stored.AnsweredCount)
	assert.Equal(t, "S-007", stored.ExternalStudentLabel)
	assert.Equal(t, model.SubmissionStatusCompleted, stored.Status)
	assert.Equal(t, model.ArtifactStatusNone, stored.ArtifactStatus)

	require.Len(t, f.pub.events, 1)
	assert.Equal(t, model.MonitorSubmitted, f.pub.events[0].Type)
}

func TestSubmit_DescriptiveSchedulesArtifact(t *testing.T) {
	f := newFixture(func(id uuid.UUID) []model.Question { return []model.Question{descQuestion(id, 1)} })
	q := f.questions.byExam[f.exam.ID][0]

	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		CanvasAnswerMap: map[string]string{q.ID.String(): "data:image/png;base64,AAAA"},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 100.0, res.Percentage)
	assert.Equal(t, 1, res.DescriptiveCount)
	assert.Equal(t, 1, res.PendingGradingCount)
	// Completion point over 1 + 10 until graded.
	assert.Equal(t, 1.0, res.FinalScore)
	assert.Equal(t, 9.09, res.FinalPercentage)
	assert.True(t, res.HasDescriptiveAnswers)
	assert.True(t, res.ArtifactGenerated)
	assert.Equal(t, []uuid.UUID{res.SubmissionID}, f.sched.scheduled)

	stored, _ := f.subs.GetByID(context.Background(), res.SubmissionID)
	assert.Equal(t, model.ArtifactStatusPending, stored.ArtifactStatus)
}

func TestSubmit_ArtifactFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture(func(id uuid.UUID) []model.Question { return []model.Question{descQuestion(id, 1)} })
	f.sched.err = errBoom
	q := f.questions.byExam[f.exam.ID][0]

	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{{QuestionID: q.ID.String(), AnswerType: "canvas", CanvasPayload: "AAAA"}},
	})
	require.NoError(t, err)
	assert.False(t, res.ArtifactGenerated)
	assert.Equal(t, model.ArtifactStatusFailed, f.subs.artifacts[res.SubmissionID])
}

func TestSubmit_Conflict(t *testing.T) {
	f := newFixture(threeMC)
	svc := f.submissionService()
	req := &model.SubmitExamRequest{}

	_, err := svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, req)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, req)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	// The unique constraint is the real guard when the pre-check races.
	f.subs.existsLies = true
	_, err = svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, req)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)

	all, _ := f.subs.ListAllByExam(context.Background(), f.exam.ID)
	assert.Len(t, all, 1)

	// Another student is unaffected.
	_, err = svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 8}, req)
	assert.NoError(t, err)
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(f *fixture) (string, Student)
		wantErr error
	}{
		{
			name:    "malformed exam id",
			setup:   func(f *fixture) (string, Student) { return "not-a-uuid", Student{ID: 7} },
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "non-positive student",
			setup:   func(f *fixture) (string, Student) { return f.exam.ID.String(), Student{ID: 0} },
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "unknown exam",
			setup:   func(f *fixture) (string, Student) { return uuid.NewString(), Student{ID: 7} },
			wantErr: ErrExamNotFound,
		},
		{
			name: "exam without questions",
			setup: func(f *fixture) (string, Student) {
				f.questions.byExam[f.exam.ID] = nil
				return f.exam.ID.String(), Student{ID: 7}
			},
			wantErr: ErrNoQuestions,
		},
		{
			name: "draft exam",
			setup: func(f *fixture) (string, Student) {
				f.exam.Status = model.ExamStatusDraft
				return f.exam.ID.String(), Student{ID: 7}
			},
			wantErr: ErrExamNotAvailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(threeMC)
			examID, student := tt.setup(f)

			_, err := f.submissionService().Submit(context.Background(), examID, student, &model.SubmitExamRequest{})
			assert.ErrorIs(t, err, tt.wantErr)

			all, _ := f.subs.ListAllByExam(context.Background(), f.exam.ID)
			assert.Empty(t, all)
		})
	}
}

func TestSubmit_StoreFailurePersistsNothing(t *testing.T) {
	f := newFixture(threeMC)
	f.subs.createErr = errBoom

	_, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{})
	assert.ErrorIs(t, err, errBoom)
	assert.Empty(t, f.pub.events)
}

func TestSubmit_AutoSubmitTimeout(t *testing.T) {
	f := newFixture(threeMC)

	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		IsAutoSubmit:     true,
		AutoSubmitReason: string(model.AutoSubmitReasonTimeout),
	})
	require.NoError(t, err)

	stored, _ := f.subs.GetByID(context.Background(), res.SubmissionID)
	assert.Equal(t, model.SubmissionStatusTimeout, stored.Status)
	assert.True(t, stored.IsAutoSubmit)
	assert.Equal(t, model.AutoSubmitReasonTimeout, stored.Proctoring.TriggeredBy)
}

func TestSubmit_ReasonIgnoredForManualSubmit(t *testing.T) {
	f := newFixture(threeMC)

	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		AutoSubmitReason: string(model.AutoSubmitReasonViolationLimit),
	})
	require.NoError(t, err)

	stored, _ := f.subs.GetByID(context.Background(), res.SubmissionID)
	assert.False(t, stored.IsAutoSubmit)
	assert.Equal(t, model.AutoSubmitReasonNone, stored.AutoSubmitReason)
}

func TestRegenerateArtifact(t *testing.T) {
	f := newFixture(func(id uuid.UUID) []model.Question {
		return []model.Question{descQuestion(id, 1), mcQuestion(id, 2, 0)}
	})
	svc := f.submissionService()
	qs := f.questions.byExam[f.exam.ID]

	withCanvas, err := svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		CanvasAnswerMap: map[string]string{qs[0].ID.String(): "AAAA"},
	})
	require.NoError(t, err)
	objectiveOnly, err := svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 8}, &model.SubmitExamRequest{})
	require.NoError(t, err)

	require.NoError(t, svc.RegenerateArtifact(context.Background(), withCanvas.SubmissionID))
	assert.Len(t, f.sched.scheduled, 2)

	assert.ErrorIs(t, svc.RegenerateArtifact(context.Background(), objectiveOnly.SubmissionID), ErrNoCanvasAnswers)
	assert.ErrorIs(t, svc.RegenerateArtifact(context.Background(), uuid.New()), ErrSubmissionNotFound)
}

func TestSubmissionService_GetMapsNotFound(t *testing.T) {
	f := newFixture(threeMC)
	_, err := f.submissionService().Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}
