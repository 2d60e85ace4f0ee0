package model

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

// QuestionKind distinguishes auto-graded from manually graded questions.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "multiple_choice"
	QuestionKindTrueFalse      QuestionKind = "true_false"
	QuestionKindDescriptive    QuestionKind = "descriptive"
)

// Question represents a single exam question.
type Question struct {
	ID                 uuid.UUID    `json:"id"`
	ExamID             uuid.UUID    `json:"exam_id"`
	QuestionText       string       `json:"question_text"`
	ImageURL           string       `json:"image_url,omitempty"`
	Kind               QuestionKind `json:"kind"`
	Options            []string     `json:"options"`
	CorrectOptionIndex *int         `json:"correct_option_index,omitempty"`
	OrderNum           int          `json:"order_num"`
}

// IsDescriptive reports whether the question is graded manually.
func (q *Question) IsDescriptive() bool {
	return q.Kind == QuestionKindDescriptive
}

var (
	ErrQuestionContentRequired = errors.New("question text or image is required")
	ErrQuestionOptionsRequired = errors.New("options are required for this question kind")
	ErrQuestionCorrectIndex    = errors.New("correct_option_index must point into options")
	ErrQuestionUnexpectedKey   = errors.New("descriptive questions cannot carry a correct option")
)

// Validate enforces the content and answer-key rules for a question.
func (q *Question) Validate() error {
	if strings.TrimSpace(q.QuestionText) == "" && strings.TrimSpace(q.ImageURL) == "" {
		return ErrQuestionContentRequired
	}
	if q.IsDescriptive() {
		if q.CorrectOptionIndex != nil {
			return ErrQuestionUnexpectedKey
		}
		return nil
	}
	if len(q.Options) == 0 {
		return ErrQuestionOptionsRequired
	}
	if q.CorrectOptionIndex == nil || *q.CorrectOptionIndex < 0 || *q.CorrectOptionIndex >= len(q.Options) {
		return ErrQuestionCorrectIndex
	}
	return nil
}

// QuestionForStudent is a question without the correct answer, sent to students.
type QuestionForStudent struct {
	ID           uuid.UUID    `json:"id"`
	QuestionText string       `json:"question_text"`
	ImageURL     string       `json:"image_url,omitempty"`
	Kind         QuestionKind `json:"kind"`
	Options      []string     `json:"options"`
	OrderNum     int          `json:"order_num"`
}

// QuestionRequest is the payload for adding or replacing a question.
type QuestionRequest struct {
	QuestionText       string   `json:"question_text" binding:"omitempty,max=4000"`
	ImageURL           string   `json:"image_url" binding:"omitempty,max=500"`
	Kind               string   `json:"kind" binding:"required,oneof=multiple_choice true_false descriptive"`
	Options            []string `json:"options" binding:"omitempty,max=10,dive,max=1000"`
	CorrectOptionIndex *int     `json:"correct_option_index" binding:"omitempty,min=0"`
	OrderNum           int      `json:"order_num" binding:"min=0"`
}

// ToQuestion builds a Question for the given exam from the request.
func (r *QuestionRequest) ToQuestion(examID uuid.UUID) *Question {
	return &Question{
		ExamID:             examID,
		QuestionText:       r.QuestionText,
		ImageURL:           r.ImageURL,
		Kind:               QuestionKind(r.Kind),
		Options:            r.Options,
		CorrectOptionIndex: r.CorrectOptionIndex,
		OrderNum:           r.OrderNum,
	}
}
