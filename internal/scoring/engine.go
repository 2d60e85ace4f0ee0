package scoring

import (
	"math"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Tally counts reconciled records by outcome.
type Tally struct {
	Correct     int
	Incorrect   int
	Unanswered  int
	Descriptive int
}

// ObjectiveScore counts correct objective records plus one completion point
// for every canvas record.
func ObjectiveScore(records []model.AnswerRecord) int {
	score := 0
	for i := range records {
		if records[i].Kind == model.AnswerKindCanvas || records[i].IsCorrect {
			score++
		}
	}
	return score
}

// Count tallies records. Answered-but-wrong objective records are Incorrect,
// objective records without a selection are Unanswered.
func Count(records []model.AnswerRecord) Tally {
	var t Tally
	for i := range records {
		r := &records[i]
		switch {
		case r.Kind == model.AnswerKindCanvas:
			t.Descriptive++
		case r.IsCorrect:
			t.Correct++
		case r.IsAnswered():
			t.Incorrect++
		default:
			t.Unanswered++
		}
	}
	return t
}

// CalculateFinalScore folds graded descriptive scores into the final score.
// Every canvas answer contributes its max score to the denominator whether
// graded or not.
func CalculateFinalScore(sub model.Submission) model.Submission {
	var descriptive, maxDescriptive float64
	for _, ca := range sub.CanvasAnswers {
		maxDescriptive += ca.MaxScore
		if ca.IsGraded && ca.AdminScore != nil {
			descriptive += *ca.AdminScore
		}
	}
	sub.DescriptiveScore = Round2(descriptive)
	sub.MaxDescriptiveScore = Round2(maxDescriptive)
	sub.FinalScore = Round2(float64(sub.ObjectiveScore) + descriptive)
	sub.FinalPercentage = Percentage(sub.FinalScore, float64(sub.TotalObjectiveQuestions)+maxDescriptive)
	return sub
}

// Percentage returns num/den as a percentage rounded to two decimals and
// clamped to [0, 100]. A non-positive denominator yields 0.
func Percentage(num, den float64) float64 {
	if den <= 0 {
		return 0
	}
	return clamp(Round2(num/den*100), 0, 100)
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Passed reports whether a percentage meets the pass threshold.
func Passed(percentage, threshold float64) bool {
	return percentage >= threshold
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
