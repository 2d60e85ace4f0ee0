package service

import "errors"

// Domain errors shared by the exam, submission, grading and result services.
var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrForbidden            = errors.New("forbidden")
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamNotAvailable     = errors.New("exam is not available")
	ErrExamNotDraft         = errors.New("exam is not a draft")
	ErrNotExamOwner         = errors.New("not the owner of this exam")
	ErrNoQuestions          = errors.New("exam has no questions")
	ErrQuestionNotFound     = errors.New("question not found")
	ErrAlreadySubmitted     = errors.New("exam already submitted")
	ErrSubmissionNotFound   = errors.New("submission not found")
	ErrCanvasAnswerNotFound = errors.New("canvas answer not found")
	ErrNoCanvasAnswers      = errors.New("submission has no canvas answers")
	ErrUserNotFound         = errors.New("user not found")
)
