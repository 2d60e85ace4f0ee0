// Package scoring turns raw student answers into canonical answer records
// and computes the objective and final scores of a submission.
package scoring

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-portal/internal/model"
)

// Source identifies which client payload format a RawAnswer came from.
// Lower values take precedence during reconciliation.
type Source int

const (
	SourceAnswerList Source = iota
	SourceCanvasMap
	SourceLegacyMap
)

func (s Source) String() string {
	switch s {
	case SourceAnswerList:
		return "answer_list"
	case SourceCanvasMap:
		return "canvas_map"
	case SourceLegacyMap:
		return "legacy_map"
	default:
		return "unknown"
	}
}

// RawAnswer is a single answer in any of the accepted client formats.
type RawAnswer struct {
	Source         Source
	QuestionID     string
	SelectedOption *int
	CanvasPayload  string
	// Canvas is set when the client declared answer_type=canvas.
	Canvas bool
}

// Reconciliation is the output of Reconcile: exactly one record per exam
// question, plus the canvas answers that need manual grading.
type Reconciliation struct {
	Records       []model.AnswerRecord
	CanvasAnswers []model.CanvasAnswer
}

// ─── Adapters ─────────────────────────────────────────────────────────

// FromAnswerList adapts the structured answer list. Order is preserved.
func FromAnswerList(entries []model.AnswerEntry) []RawAnswer {
	out := make([]RawAnswer, 0, len(entries))
	for _, e := range entries {
		out = append(out, RawAnswer{
			Source:         SourceAnswerList,
			QuestionID:     e.QuestionID,
			SelectedOption: e.SelectedOption,
			CanvasPayload:  e.CanvasPayload,
			Canvas:         strings.EqualFold(e.AnswerType, string(model.AnswerKindCanvas)),
		})
	}
	return out
}

// FromCanvasMap adapts the {questionId: payload} map, walking the exam's
// questions so the result does not depend on map iteration order.
func FromCanvasMap(m map[string]string, questions []model.Question) []RawAnswer {
	if len(m) == 0 {
		return nil
	}
	var out []RawAnswer
	for _, q := range questions {
		payload, ok := lookup(m, q.ID)
		if !ok {
			continue
		}
		out = append(out, RawAnswer{
			Source:        SourceCanvasMap,
			QuestionID:    q.ID.String(),
			CanvasPayload: payload,
			Canvas:        true,
		})
	}
	return out
}

// FromLegacyMap adapts the legacy {questionId: selectedOption} map.
func FromLegacyMap(m map[string]*int, questions []model.Question) []RawAnswer {
	if len(m) == 0 {
		return nil
	}
	var out []RawAnswer
	for _, q := range questions {
		sel, ok := lookup(m, q.ID)
		if !ok {
			continue
		}
		out = append(out, RawAnswer{
			Source:         SourceLegacyMap,
			QuestionID:     q.ID.String(),
			SelectedOption: sel,
		})
	}
	return out
}

// lookup finds a map entry by question id, tolerating upper-case keys.
func lookup[V any](m map[string]V, id uuid.UUID) (V, bool) {
	key := id.String()
	if v, ok := m[key]; ok {
		return v, true
	}
	v, ok := m[strings.ToUpper(key)]
	return v, ok
}

// ─── Merge ────────────────────────────────────────────────────────────

// Reconcile merges raw answers into one AnswerRecord per question.
//
// Answers are applied list first, then the canvas-map fallback, then the
// legacy-map fallback; whatever is still uncovered gets an empty record.
// The first answer for a question wins. Unknown or malformed question ids
// are dropped. Records come back in the order of questions.
func Reconcile(questions []model.Question, raw []RawAnswer) Reconciliation {
	index := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		index[questions[i].ID] = &questions[i]
	}

	ordered := slices.Clone(raw)
	slices.SortStableFunc(ordered, func(a, b RawAnswer) int { return int(a.Source) - int(b.Source) })

	records := make(map[uuid.UUID]model.AnswerRecord, len(questions))
	canvas := make(map[uuid.UUID]model.CanvasAnswer)

	for _, a := range ordered {
		id, err := uuid.Parse(strings.TrimSpace(a.QuestionID))
		if err != nil {
			continue
		}
		q, ok := index[id]
		if !ok {
			continue
		}
		if _, covered := records[id]; covered {
			continue
		}

		switch a.Source {
		case SourceAnswerList:
			if a.Canvas && a.CanvasPayload != "" {
				records[id], canvas[id] = canvasRecord(q, a.CanvasPayload)
				continue
			}
			records[id] = optionRecord(q, a.SelectedOption)
		case SourceCanvasMap:
			if !q.IsDescriptive() || a.CanvasPayload == "" {
				continue
			}
			records[id], canvas[id] = canvasRecord(q, a.CanvasPayload)
		case SourceLegacyMap:
			records[id] = optionRecord(q, a.SelectedOption)
		}
	}

	out := Reconciliation{Records: make([]model.AnswerRecord, 0, len(questions))}
	for i := range questions {
		q := &questions[i]
		rec, ok := records[q.ID]
		if !ok {
			rec = optionRecord(q, nil)
		}
		out.Records = append(out.Records, rec)
		if ca, ok := canvas[q.ID]; ok {
			out.CanvasAnswers = append(out.CanvasAnswers, ca)
		}
	}
	return out
}

func optionRecord(q *model.Question, selected *int) model.AnswerRecord {
	rec := model.AnswerRecord{QuestionID: q.ID, Kind: model.AnswerKindMultipleChoice}
	if q.Kind == model.QuestionKindTrueFalse {
		rec.Kind = model.AnswerKindTrueFalse
	}
	if selected == nil || *selected == model.UnansweredOption {
		return rec
	}
	v := *selected
	rec.SelectedOption = &v
	rec.IsCorrect = q.CorrectOptionIndex != nil && v == *q.CorrectOptionIndex
	return rec
}

// canvasRecord marks a descriptive answer correct for completion credit;
// the real score comes later from grading.
func canvasRecord(q *model.Question, payload string) (model.AnswerRecord, model.CanvasAnswer) {
	return model.AnswerRecord{
			QuestionID:    q.ID,
			IsCorrect:     true,
			Kind:          model.AnswerKindCanvas,
			CanvasPayload: payload,
		}, model.CanvasAnswer{
			QuestionID:   q.ID,
			ImagePayload: payload,
			MaxScore:     model.DefaultCanvasMaxScore,
		}
}
