package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

func (f *fixture) resultService() *ResultService {
	return NewResultService(f.subs, f.exams, f.questions, f.users,
		config.ScoringConfig{PassThreshold: 60, TrendTolerance: 5}, zerolog.Nop())
}

func TestGetSubmissionResult_DeletedQuestion(t *testing.T) {
	f := newFixture(threeMC)
	qs := f.questions.byExam[f.exam.ID]
	sub, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)}},
	})
	require.NoError(t, err)

	// Question 2 is removed after the submission.
	f.questions.byExam[f.exam.ID] = []model.Question{qs[0], qs[2]}

	res, err := f.resultService().GetSubmissionResult(context.Background(), Viewer{UserID: 7, Role: model.RoleStudent}, sub.SubmissionID)
	require.NoError(t, err)

	assert.Equal(t, "Matematika", res.ExamTitle)
	require.Len(t, res.Questions, 3)
	assert.Equal(t, model.DeletedQuestionText, res.Questions[1].QuestionText)
	assert.True(t, res.Questions[1].QuestionDeleted)
	assert.True(t, res.Questions[1].IsCorrect)
	assert.Equal(t, 0, *res.Questions[1].SelectedOption)
	assert.False(t, res.Questions[0].QuestionDeleted)
	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Questions[0].Options)
	assert.Equal(t, 33.33, res.FinalPercentage)
	assert.False(t, res.Passed)
}

func TestGetSubmissionResult_DeletedExam(t *testing.T) {
	f := newFixture(threeMC)
	sub, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{})
	require.NoError(t, err)
	delete(f.exams.byID, f.exam.ID)

	res, err := f.resultService().GetSubmissionResult(context.Background(), Viewer{UserID: 99, Role: model.RoleAdmin}, sub.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, model.DeletedExamTitle, res.ExamTitle)
}

func TestGetSubmissionResult_Access(t *testing.T) {
	f := newFixture(threeMC)
	sub, err := f.submissionService().Submit(context.Background(), f.exam.ID.String(), Student{ID: 7}, &model.SubmitExamRequest{})
	require.NoError(t, err)
	svc := f.resultService()

	tests := []struct {
		name    string
		viewer  Viewer
		wantErr error
	}{
		{"owner", Viewer{UserID: 7, Role: model.RoleStudent}, nil},
		{"parent of owner", Viewer{UserID: 50, Role: model.RoleParent}, nil},
		{"admin", Viewer{UserID: 99, Role: model.RoleAdmin}, nil},
		{"other student", Viewer{UserID: 8, Role: model.RoleStudent}, ErrForbidden},
		{"unrelated parent", Viewer{UserID: 51, Role: model.RoleParent}, ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetSubmissionResult(context.Background(), tt.viewer, sub.SubmissionID)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = svc.GetSubmissionResult(context.Background(), Viewer{UserID: 99, Role: model.RoleAdmin}, uuid.New())
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGetExamResults(t *testing.T) {
	f := newFixture(threeMC)
	qs := f.questions.byExam[f.exam.ID]
	svc := f.submissionService()

	// Ani answers everything correctly, Budi gets nothing right.
	_, err := svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 7, Label: "S-7"}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{
			{QuestionID: qs[0].ID.String(), SelectedOption: intp(1)},
			{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)},
			{QuestionID: qs[2].ID.String(), SelectedOption: intp(2)},
		},
	})
	require.NoError(t, err)
	_, err = svc.Submit(context.Background(), f.exam.ID.String(), Student{ID: 8, Label: "S-8"}, &model.SubmitExamRequest{
		Answers: []model.AnswerEntry{{QuestionID: qs[0].ID.String(), SelectedOption: intp(3)}},
	})
	require.NoError(t, err)

	res, page, err := f.resultService().GetExamResults(context.Background(), f.exam.ID, model.PageQuery{PerPage: 1})
	require.NoError(t, err)

	assert.Equal(t, 2, res.Stats.Count)
	assert.Equal(t, 50.0, res.Stats.Average)
	assert.Equal(t, 0.0, res.Stats.Min)
	assert.Equal(t, 100.0, res.Stats.Max)
	assert.Equal(t, 1, res.Stats.PassCount)
	assert.Equal(t, 50.0, res.Stats.PassRate)
	assert.Len(t, res.Submissions, 1)
	assert.Equal(t, 2, page.TotalItems)

	all, err := f.resultService().ExportExamResults(context.Background(), f.exam.ID)
	require.NoError(t, err)
	require.Len(t, all.Submissions, 2)
	names := []string{all.Submissions[0].StudentName, all.Submissions[1].StudentName}
	assert.ElementsMatch(t, []string{"Ani", "Budi"}, names)

	_, _, err = f.resultService().GetExamResults(context.Background(), uuid.New(), model.PageQuery{})
	assert.ErrorIs(t, err, ErrExamNotFound)
}

func TestStudentPerformance(t *testing.T) {
	f := newFixture(nil)
	svc := f.resultService()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	physics := &model.Exam{ID: uuid.New(), Title: "Fisika", Category: "physics", Status: model.ExamStatusActive}
	f.exams.byID[physics.ID] = physics

	mathScores := []float64{40, 45, 50, 70, 75, 80}
	for i, p := range mathScores {
		f.subs.byID[uuid.New()] = &model.Submission{
			ExamID: f.exam.ID, StudentID: 7, FinalPercentage: p,
			SubmittedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}
	}
	f.subs.byID[uuid.New()] = &model.Submission{
		ExamID: physics.ID, StudentID: 7, FinalPercentage: 90,
		SubmittedAt: base.Add(10 * 24 * time.Hour),
	}
	// The exam behind this one no longer exists.
	f.subs.byID[uuid.New()] = &model.Submission{
		ExamID: uuid.New(), StudentID: 7, FinalPercentage: 20,
		SubmittedAt: base.Add(11 * 24 * time.Hour),
	}

	perf, err := svc.GetStudentPerformance(context.Background(), Viewer{UserID: 50, Role: model.RoleParent}, 7)
	require.NoError(t, err)

	assert.Equal(t, "Ani", perf.StudentName)
	assert.Equal(t, 8, perf.Attempts)
	require.Len(t, perf.Categories, 3)

	byName := map[string]model.CategoryPerformance{}
	for _, c := range perf.Categories {
		byName[c.Category] = c
	}
	m := byName["math"]
	assert.Equal(t, 6, m.Attempts)
	assert.Equal(t, "improving", m.Trend)
	assert.Equal(t, 40.0, m.Min)
	assert.Equal(t, 80.0, m.Max)
	assert.Equal(t, 3, m.Passed)
	assert.Equal(t, 60.0, m.Average)

	assert.Equal(t, "insufficient_data", byName["physics"].Trend)
	assert.Equal(t, 1, byName[UncategorizedLabel].Attempts)

	_, err = svc.GetStudentPerformance(context.Background(), Viewer{UserID: 8, Role: model.RoleStudent}, 7)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.GetStudentPerformance(context.Background(), Viewer{UserID: 99, Role: model.RoleAdmin}, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = svc.GetStudentPerformance(context.Background(), Viewer{UserID: 99, Role: model.RoleAdmin}, 1234)
	assert.ErrorIs(t, err, ErrUserNotFound)
}
