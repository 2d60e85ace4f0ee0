package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/model"
)

// submitDescriptive stores a submission with one graded-later canvas answer
// and one objective question answered correctly.
func submitDescriptive(t *testing.T, f *fixture) (uuid.UUID, model.Question) {
	t.Helper()
	qs := f.questions.byExam[f.exam.ID]
	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{
			{QuestionID: qs[0].ID.String(), AnswerType: "canvas", CanvasPayload: "data:image/png;base64,AAAA"},
			{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)},
		},
	})
	require.NoError(t, err)
	return res.SubmissionID, qs[0]
}

func descAndMC(id uuid.UUID) []model.Question {
	return []model.Question{descQuestion(id, 1), mcQuestion(id, 2, 0)}
}

func TestScoreCanvasAnswer(t *testing.T) {
	f := newFixture(descAndMC)
	subID, q := submitDescriptive(t, f)
	svc := NewGradingService(f.subs, zerolog.Nop())

	res, err := svc.ScoreCanvasAnswer(context.Background(), 99, subID, q.ID, &model.ScoreCanvasRequest{Score: floatp(7), Feedback: "baik"})
	require.NoError(t, err)

	assert.True(t, res.CanvasAnswer.IsGraded)
	assert.Equal(t, 7.0, *res.CanvasAnswer.AdminScore)
	assert.Equal(t, 10.0, res.CanvasAnswer.MaxScore)
	assert.Equal(t, 99, *res.CanvasAnswer.GraderID)
	assert.NotNil(t, res.CanvasAnswer.GradedAt)

	// objective 2 (1 correct + 1 completion) + descriptive 7 over 2 + 10.
	assert.Equal(t, 9.0, res.Submission.FinalScore)
	assert.Equal(t, 75.0, res.Submission.FinalPercentage)
	assert.Equal(t, 0, res.Submission.PendingGradingCount())

	stored, _ := f.subs.GetByID(context.Background(), subID)
	assert.Equal(t, 75.0, stored.FinalPercentage)
}

func TestScoreCanvasAnswer_ClampsAndIsIdempotent(t *testing.T) {
	f := newFixture(descAndMC)
	subID, q := submitDescriptive(t, f)
	svc := NewGradingService(f.subs, zerolog.Nop())

	res, err := svc.ScoreCanvasAnswer(context.Background(), 99, subID, q.ID, &model.ScoreCanvasRequest{Score: floatp(25), MaxScore: floatp(20)})
	require.NoError(t, err)
	assert.Equal(t, 20.0, *res.CanvasAnswer.AdminScore)
	assert.Equal(t, 20.0, res.CanvasAnswer.MaxScore)

	res, err = svc.ScoreCanvasAnswer(context.Background(), 99, subID, q.ID, &model.ScoreCanvasRequest{Score: floatp(-3)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, *res.CanvasAnswer.AdminScore)
	assert.Equal(t, 20.0, res.CanvasAnswer.MaxScore, "existing max is kept")

	first, err := svc.ScoreCanvasAnswer(context.Background(), 99, subID, q.ID, &model.ScoreCanvasRequest{Score: floatp(12)})
	require.NoError(t, err)
	second, err := svc.ScoreCanvasAnswer(context.Background(), 99, subID, q.ID, &model.ScoreCanvasRequest{Score: floatp(12)})
	require.NoError(t, err)
	assert.Equal(t, first.Submission.FinalScore, second.Submission.FinalScore)
	assert.Equal(t, first.Submission.FinalPercentage, second.Submission.FinalPercentage)
}

func TestScoreCanvasAnswer_Errors(t *testing.T) {
	f := newFixture(descAndMC)
	subID, _ := submitDescriptive(t, f)
	svc := NewGradingService(f.subs, zerolog.Nop())

	_, err := svc.ScoreCanvasAnswer(context.Background(), 99, uuid.New(), uuid.New(), &model.ScoreCanvasRequest{Score: floatp(1)})
	assert.ErrorIs(t, err, ErrSubmissionNotFound)

	_, err = svc.ScoreCanvasAnswer(context.Background(), 99, subID, uuid.New(), &model.ScoreCanvasRequest{Score: floatp(1)})
	assert.ErrorIs(t, err, ErrCanvasAnswerNotFound)

	_, err = svc.ScoreCanvasAnswer(context.Background(), 99, subID, uuid.New(), &model.ScoreCanvasRequest{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Objective-only submission.
	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 8}, &model.SubmitExamRequest{})
	require.NoError(t, err)
	_, err = svc.ScoreCanvasAnswer(context.Background(), 99, res.SubmissionID, uuid.New(), &model.ScoreCanvasRequest{Score: floatp(1)})
	assert.ErrorIs(t, err, ErrCanvasAnswerNotFound)
}

func TestBulkScore_ObjectiveOnlySubmissionSkipsEverything(t *testing.T) {
	f := newFixture(descAndMC)
	qs := f.questions.byExam[f.exam.ID]
	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 8}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)}},
	})
	require.NoError(t, err)
	before, _ := f.subs.GetByID(context.Background(), res.SubmissionID)

	svc := NewGradingService(f.subs, zerolog.Nop())
	missing := uuid.New().String()
	out, err := svc.BulkScore(context.Background(), 99, res.SubmissionID, &model.BulkScoreRequest{Scores: []model.BulkScoreEntry{
		{QuestionID: qs[0].ID.String(), Score: floatp(4)},
		{QuestionID: missing, Score: floatp(4)},
	}})
	require.NoError(t, err)

	assert.Equal(t, 0, out.Updated)
	assert.Equal(t, []string{qs[0].ID.String(), missing}, out.Skipped)
	assert.Equal(t, before.FinalScore, out.Submission.FinalScore)
	assert.Equal(t, before.FinalPercentage, out.Submission.FinalPercentage)
}

func TestBulkScore(t *testing.T) {
	f := newFixture(func(id uuid.UUID) []model.Question {
		return []model.Question{descQuestion(id, 1), descQuestion(id, 2), mcQuestion(id, 3, 1)}
	})
	qs := f.questions.byExam[f.exam.ID]
	res, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		CanvasAnswerMap: map[string]string{qs[0].ID.String(): "AAAA", qs[1].ID.String(): "BBBB"},
	})
	require.NoError(t, err)

	svc := NewGradingService(f.subs, zerolog.Nop())
	out, err := svc.BulkScore(context.Background(), 99, res.SubmissionID, &model.BulkScoreRequest{Scores: []model.BulkScoreEntry{
		{QuestionID: qs[0].ID.String(), Score: floatp(8)},
		{QuestionID: qs[1].ID.String(), Score: floatp(15)},
		{QuestionID: qs[2].ID.String(), Score: floatp(5)},
		{QuestionID: "garbage", Score: floatp(5)},
	}})
	require.NoError(t, err)

	assert.Equal(t, 2, out.Updated)
	assert.ElementsMatch(t, []string{qs[2].ID.String(), "garbage"}, out.Skipped)
	assert.Equal(t, 18.0, out.Submission.DescriptiveScore)
	assert.Equal(t, 20.0, out.Submission.MaxDescriptiveScore)
	// objective 2 (completion credit) + 18 over 3 + 20.
	assert.Equal(t, 20.0, out.Submission.FinalScore)
	assert.Equal(t, 86.96, out.Submission.FinalPercentage)
}
