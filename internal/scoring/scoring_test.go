package scoring

import (
	"math/rand"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/model"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func mcQuestion(correct int) model.Question {
	return model.Question{
		ID:                 uuid.New(),
		Kind:               model.QuestionKindMultipleChoice,
		QuestionText:       "q",
		Options:            []string{"a", "b", "c", "d"},
		CorrectOptionIndex: intp(correct),
	}
}

func descriptiveQuestion() model.Question {
	return model.Question{ID: uuid.New(), Kind: model.QuestionKindDescriptive, QuestionText: "explain"}
}

func newSubmission(questions []model.Question, rec Reconciliation) model.Submission {
	return DeriveFields(model.Submission{
		Answers:                 rec.Records,
		CanvasAnswers:           rec.CanvasAnswers,
		TotalObjectiveQuestions: len(questions),
	})
}

func TestReconcile_DuplicateAndUnanswered(t *testing.T) {
	qs := []model.Question{mcQuestion(1), mcQuestion(0), mcQuestion(2)}
	list := []model.AnswerEntry{
		{QuestionID: qs[0].ID.String(), SelectedOption: intp(1)},
		{QuestionID: qs[0].ID.String(), SelectedOption: intp(2)},
		{QuestionID: qs[1].ID.String(), SelectedOption: intp(0)},
		{QuestionID: qs[2].ID.String(), SelectedOption: intp(-1)},
	}

	rec := Reconcile(qs, FromAnswerList(list))
	require.Len(t, rec.Records, 3)

	assert.Equal(t, 1, *rec.Records[0].SelectedOption)
	assert.True(t, rec.Records[0].IsCorrect)
	assert.Equal(t, 0, *rec.Records[1].SelectedOption)
	assert.True(t, rec.Records[1].IsCorrect)
	assert.Nil(t, rec.Records[2].SelectedOption)
	assert.False(t, rec.Records[2].IsCorrect)

	sub := newSubmission(qs, rec)
	assert.Equal(t, 2, sub.ObjectiveScore)
	assert.Equal(t, 3, sub.TotalObjectiveQuestions)
	assert.Equal(t, 66.67, sub.ObjectivePercentage)
	assert.Equal(t, 2, sub.AnsweredCount)
}

func TestReconcile_DescriptiveCompletionCreditThenGrade(t *testing.T) {
	q := descriptiveQuestion()
	qs := []model.Question{q}

	rec := Reconcile(qs, FromCanvasMap(map[string]string{q.ID.String(): "data:image/png;base64,AAAA"}, qs))
	require.Len(t, rec.Records, 1)
	require.Len(t, rec.CanvasAnswers, 1)
	assert.Equal(t, model.AnswerKindCanvas, rec.Records[0].Kind)
	assert.True(t, rec.Records[0].IsCorrect)

	sub := newSubmission(qs, rec)
	assert.Equal(t, 1, sub.ObjectiveScore)
	assert.Equal(t, 100.0, sub.ObjectivePercentage)
	assert.Equal(t, 0, sub.AnsweredCount)

	score, maxScore := ClampScore(7, nil, sub.CanvasAnswers[0].MaxScore)
	sub.CanvasAnswers[0].AdminScore = floatp(score)
	sub.CanvasAnswers[0].MaxScore = maxScore
	sub.CanvasAnswers[0].IsGraded = true
	sub = DeriveFields(sub)

	assert.Equal(t, 10.0, sub.MaxDescriptiveScore)
	assert.Equal(t, 7.0, sub.DescriptiveScore)
	assert.Equal(t, 8.0, sub.FinalScore)
	assert.Equal(t, 72.73, sub.FinalPercentage)

	again := DeriveFields(sub)
	assert.Equal(t, sub.FinalScore, again.FinalScore)
	assert.Equal(t, sub.FinalPercentage, again.FinalPercentage)
}

func TestReconcile_SourcePrecedence(t *testing.T) {
	mc := mcQuestion(2)
	desc := descriptiveQuestion()
	other := mcQuestion(0)
	qs := []model.Question{mc, desc, other}

	list := FromAnswerList([]model.AnswerEntry{
		{QuestionID: mc.ID.String(), SelectedOption: intp(2)},
		{QuestionID: desc.ID.String(), AnswerType: "canvas", CanvasPayload: "from-list"},
	})
	canvas := FromCanvasMap(map[string]string{desc.ID.String(): "from-map"}, qs)
	legacy := FromLegacyMap(map[string]*int{
		mc.ID.String():    intp(0),
		other.ID.String(): intp(0),
	}, qs)

	rec := Reconcile(qs, append(append(legacy, canvas...), list...))
	require.Len(t, rec.Records, 3)
	assert.Equal(t, 2, *rec.Records[0].SelectedOption, "list wins over legacy map")
	assert.Equal(t, "from-list", rec.Records[1].CanvasPayload, "list wins over canvas map")
	require.Len(t, rec.CanvasAnswers, 1)
	assert.Equal(t, "from-list", rec.CanvasAnswers[0].ImagePayload)
	assert.True(t, rec.Records[2].IsCorrect, "legacy map fills uncovered question")
}

func TestReconcile_CanvasMapOnlyForDescriptive(t *testing.T) {
	mc := mcQuestion(1)
	qs := []model.Question{mc}

	rec := Reconcile(qs, FromCanvasMap(map[string]string{mc.ID.String(): "img"}, qs))
	require.Len(t, rec.Records, 1)
	assert.Empty(t, rec.CanvasAnswers)
	assert.Equal(t, model.AnswerKindMultipleChoice, rec.Records[0].Kind)
	assert.Nil(t, rec.Records[0].SelectedOption)
}

func TestReconcile_DropsUnknownAndMalformedIDs(t *testing.T) {
	qs := []model.Question{mcQuestion(0)}
	rec := Reconcile(qs, FromAnswerList([]model.AnswerEntry{
		{QuestionID: "not-a-uuid", SelectedOption: intp(0)},
		{QuestionID: uuid.NewString(), SelectedOption: intp(0)},
	}))

	require.Len(t, rec.Records, 1)
	assert.Equal(t, qs[0].ID, rec.Records[0].QuestionID)
	assert.False(t, rec.Records[0].IsCorrect)
}

func TestReconcile_TrueFalseKind(t *testing.T) {
	q := mcQuestion(1)
	q.Kind = model.QuestionKindTrueFalse
	q.Options = []string{"false", "true"}

	rec := Reconcile([]model.Question{q}, FromAnswerList([]model.AnswerEntry{{QuestionID: q.ID.String(), SelectedOption: intp(1)}}))
	assert.Equal(t, model.AnswerKindTrueFalse, rec.Records[0].Kind)
	assert.True(t, rec.Records[0].IsCorrect)
}

func TestReconcile_CompletenessAndOrderIndependence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		n := 1 + rng.Intn(8)
		qs := make([]model.Question, 0, n)
		for i := 0; i < n; i++ {
			if rng.Intn(4) == 0 {
				qs = append(qs, descriptiveQuestion())
			} else {
				qs = append(qs, mcQuestion(rng.Intn(4)))
			}
		}

		var entries []model.AnswerEntry
		count := rng.Intn(3 * n)
		for i := 0; i < count; i++ {
			q := qs[rng.Intn(n)]
			entries = append(entries, model.AnswerEntry{QuestionID: q.ID.String(), SelectedOption: intp(rng.Intn(5) - 1)})
		}
		canvasMap := map[string]string{}
		legacyMap := map[string]*int{}
		for _, q := range qs {
			if rng.Intn(2) == 0 {
				canvasMap[q.ID.String()] = "img"
			}
			if rng.Intn(2) == 0 {
				legacyMap[q.ID.String()] = intp(rng.Intn(4))
			}
		}

		list := FromAnswerList(entries)
		canvas := FromCanvasMap(canvasMap, qs)
		legacy := FromLegacyMap(legacyMap, qs)

		a := Reconcile(qs, append(append(append([]RawAnswer{}, list...), canvas...), legacy...))
		b := Reconcile(qs, append(append(append([]RawAnswer{}, legacy...), canvas...), list...))

		require.Len(t, a.Records, n)
		seen := map[uuid.UUID]bool{}
		for i, r := range a.Records {
			assert.Equal(t, qs[i].ID, r.QuestionID)
			assert.False(t, seen[r.QuestionID])
			seen[r.QuestionID] = true
		}
		assert.Equal(t, a, b)
	}
}

func TestPercentageBounds(t *testing.T) {
	tests := []struct {
		name string
		sub  model.Submission
	}{
		{name: "no questions", sub: model.Submission{}},
		{name: "canvas only ungraded", sub: model.Submission{
			TotalObjectiveQuestions: 1,
			Answers:                 []model.AnswerRecord{{Kind: model.AnswerKindCanvas, IsCorrect: true}},
			CanvasAnswers:           []model.CanvasAnswer{{MaxScore: 10}},
		}},
		{name: "over-scored canvas", sub: model.Submission{
			TotalObjectiveQuestions: 1,
			Answers:                 []model.AnswerRecord{{Kind: model.AnswerKindCanvas, IsCorrect: true}},
			CanvasAnswers:           []model.CanvasAnswer{{MaxScore: 1, AdminScore: floatp(50), IsGraded: true}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveFields(tt.sub)
			assert.GreaterOrEqual(t, got.ObjectivePercentage, 0.0)
			assert.LessOrEqual(t, got.ObjectivePercentage, 100.0)
			assert.GreaterOrEqual(t, got.FinalPercentage, 0.0)
			assert.LessOrEqual(t, got.FinalPercentage, 100.0)
		})
	}
}

func TestCount(t *testing.T) {
	records := []model.AnswerRecord{
		{Kind: model.AnswerKindMultipleChoice, SelectedOption: intp(1), IsCorrect: true},
		{Kind: model.AnswerKindMultipleChoice, SelectedOption: intp(2)},
		{Kind: model.AnswerKindTrueFalse},
		{Kind: model.AnswerKindCanvas, IsCorrect: true},
	}
	assert.Equal(t, Tally{Correct: 1, Incorrect: 1, Unanswered: 1, Descriptive: 1}, Count(records))
	assert.Equal(t, 2, ObjectiveScore(records))
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		name      string
		score     float64
		provided  *float64
		existing  float64
		wantScore float64
		wantMax   float64
	}{
		{"default max", 12, nil, 0, 10, 10},
		{"existing max", 4, nil, 5, 4, 5},
		{"provided max", 30, floatp(20), 10, 20, 20},
		{"negative", -3, nil, 10, 0, 10},
		{"non-positive provided falls back", 3, floatp(0), 8, 3, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, maxScore := ClampScore(tt.score, tt.provided, tt.existing)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantMax, maxScore)
		})
	}
}

func TestClassifyTrend(t *testing.T) {
	assert.Equal(t, TrendInsufficientData, ClassifyTrend([]float64{10, 20, 30, 40, 50}, 5))
	assert.Equal(t, TrendImproving, ClassifyTrend([]float64{40, 40, 40, 60, 60, 60}, 5))
	assert.Equal(t, TrendDeclining, ClassifyTrend([]float64{0, 90, 90, 90, 50, 50, 50}, 5))
	assert.Equal(t, TrendStable, ClassifyTrend([]float64{70, 70, 70, 72, 73, 71}, 5))
}

func TestPassed(t *testing.T) {
	assert.True(t, Passed(60, 60))
	assert.False(t, Passed(59.99, 60))
}

func TestMean(t *testing.T) {
	assert.Equal(t, 0.0, Mean(nil))
	assert.Equal(t, 50.0, Mean([]float64{40, 60}))
	assert.InDelta(t, 66.667, Mean([]float64{100, 100, 0}), 0.001)
}
