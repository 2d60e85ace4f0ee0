package scoring

import "github.com/stemsi/exstem-portal/internal/model"

// DeriveFields recomputes every derived field of a submission from its
// answer records and canvas answers. It does not touch its input.
// Call it on construction and after every grading change.
func DeriveFields(sub model.Submission) model.Submission {
	answered := 0
	for i := range sub.Answers {
		if sub.Answers[i].Kind != model.AnswerKindCanvas && sub.Answers[i].IsAnswered() {
			answered++
		}
	}
	sub.AnsweredCount = answered
	sub.ObjectiveScore = ObjectiveScore(sub.Answers)
	sub.ObjectivePercentage = Percentage(float64(sub.ObjectiveScore), float64(sub.TotalObjectiveQuestions))
	return CalculateFinalScore(sub)
}

// ClampScore bounds a grader's score to [0, max]. The max is the provided
// value when positive, else the existing one, else the default of 10.
func ClampScore(score float64, provided *float64, existing float64) (clamped, maxScore float64) {
	switch {
	case provided != nil && *provided > 0:
		maxScore = *provided
	case existing > 0:
		maxScore = existing
	default:
		maxScore = model.DefaultCanvasMaxScore
	}
	return clamp(score, 0, maxScore), maxScore
}
