package model

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus enumerates submission states.
type SubmissionStatus string

const (
	SubmissionStatusCompleted  SubmissionStatus = "completed"
	SubmissionStatusInProgress SubmissionStatus = "in_progress"
	SubmissionStatusTimeout    SubmissionStatus = "timeout"
)

// AnswerKind is the canonical kind of a reconciled answer.
type AnswerKind string

const (
	AnswerKindMultipleChoice AnswerKind = "multiple_choice"
	AnswerKindTrueFalse      AnswerKind = "true_false"
	AnswerKindCanvas         AnswerKind = "canvas"
)

// UnansweredOption is the client sentinel for "no option selected".
const UnansweredOption = -1

// DefaultCanvasMaxScore is the max score of a descriptive answer when the
// grader does not provide one.
const DefaultCanvasMaxScore = 10.0

// AutoSubmitReason explains why a submission was made by the system.
type AutoSubmitReason string

const (
	AutoSubmitReasonNone             AutoSubmitReason = ""
	AutoSubmitReasonViolationLimit   AutoSubmitReason = "violation_limit"
	AutoSubmitReasonEyeTrackingLimit AutoSubmitReason = "eye_tracking_limit"
	AutoSubmitReasonTimeout          AutoSubmitReason = "timeout"
)

// ArtifactStatus tracks the descriptive answer-sheet export.
type ArtifactStatus string

const (
	ArtifactStatusNone      ArtifactStatus = "none"
	ArtifactStatusPending   ArtifactStatus = "pending"
	ArtifactStatusGenerated ArtifactStatus = "generated"
	ArtifactStatusFailed    ArtifactStatus = "failed"
)

// AnswerRecord is the canonical reconciled answer for one question.
type AnswerRecord struct {
	QuestionID     uuid.UUID  `json:"question_id"`
	SelectedOption *int       `json:"selected_option"`
	IsCorrect      bool       `json:"is_correct"`
	Kind           AnswerKind `json:"kind"`
	CanvasPayload  string     `json:"canvas_payload,omitempty"`
}

// IsAnswered reports whether the record carries a real selected option.
func (a *AnswerRecord) IsAnswered() bool {
	return a.SelectedOption != nil && *a.SelectedOption != UnansweredOption
}

// CanvasAnswer is a descriptive answer captured as an image and graded manually.
type CanvasAnswer struct {
	QuestionID   uuid.UUID  `json:"question_id"`
	ImagePayload string     `json:"image_payload"`
	AdminScore   *float64   `json:"admin_score"`
	MaxScore     float64    `json:"max_score"`
	Feedback     string     `json:"feedback"`
	GraderID     *int       `json:"grader_id,omitempty"`
	GradedAt     *time.Time `json:"graded_at,omitempty"`
	IsGraded     bool       `json:"is_graded"`
}

// ProctoringSummary is the proctoring state copied into a submission.
type ProctoringSummary struct {
	ViolationCount            int               `json:"violation_count"`
	EyeTrackingViolationCount int               `json:"eye_tracking_violation_count"`
	TriggeredBy               AutoSubmitReason  `json:"triggered_by,omitempty"`
	WebcamAvailable           bool              `json:"webcam_available"`
	FullscreenAvailable       bool              `json:"fullscreen_available"`
	VideoSessionID            string            `json:"video_session_id,omitempty"`
	Metadata                  map[string]string `json:"metadata,omitempty"`
}

// Submission is a student's single, final attempt at an exam.
type Submission struct {
	ID                      uuid.UUID         `json:"id"`
	ExamID                  uuid.UUID         `json:"exam_id"`
	StudentID               int               `json:"student_id"`
	ExternalStudentLabel    string            `json:"external_student_label"`
	Answers                 []AnswerRecord    `json:"answers"`
	CanvasAnswers           []CanvasAnswer    `json:"canvas_answers"`
	ObjectiveScore          int               `json:"objective_score"`
	TotalObjectiveQuestions int               `json:"total_objective_questions"`
	ObjectivePercentage     float64           `json:"objective_percentage"`
	DescriptiveScore        float64           `json:"descriptive_score"`
	MaxDescriptiveScore     float64           `json:"max_descriptive_score"`
	FinalScore              float64           `json:"final_score"`
	FinalPercentage         float64           `json:"final_percentage"`
	TimeTakenSeconds        int               `json:"time_taken_seconds"`
	SubmittedAt             time.Time         `json:"submitted_at"`
	Status                  SubmissionStatus  `json:"status"`
	AnsweredCount           int               `json:"answered_count"`
	IsAutoSubmit            bool              `json:"is_auto_submit"`
	AutoSubmitReason        AutoSubmitReason  `json:"auto_submit_reason,omitempty"`
	Proctoring              ProctoringSummary `json:"proctoring_summary"`
	ArtifactStatus          ArtifactStatus    `json:"artifact_status"`
	ArtifactPath            string            `json:"artifact_path,omitempty"`
}

// FindCanvasAnswer returns a pointer into CanvasAnswers for the question, or nil.
func (s *Submission) FindCanvasAnswer(questionID uuid.UUID) *CanvasAnswer {
	for i := range s.CanvasAnswers {
		if s.CanvasAnswers[i].QuestionID == questionID {
			return &s.CanvasAnswers[i]
		}
	}
	return nil
}

// PendingGradingCount returns how many canvas answers still await a grader.
func (s *Submission) PendingGradingCount() int {
	n := 0
	for _, ca := range s.CanvasAnswers {
		if !ca.IsGraded {
			n++
		}
	}
	return n
}

// ─── Requests ─────────────────────────────────────────────────────────

// AnswerEntry is one element of the structured answer list sent by clients.
type AnswerEntry struct {
	QuestionID     string `json:"question_id"`
	SelectedOption *int   `json:"selected_option"`
	CanvasPayload  string `json:"canvas_payload"`
	AnswerType     string `json:"answer_type"`
}

// SubmitExamRequest is the payload of POST /exams/:exam_id/submissions.
type SubmitExamRequest struct {
	Answers          []AnswerEntry     `json:"answers" binding:"omitempty,max=1000"`
	LegacyAnswerMap  map[string]*int   `json:"legacy_answer_map"`
	CanvasAnswerMap  map[string]string `json:"canvas_answer_map"`
	TimeTakenSeconds int               `json:"time_taken_seconds" binding:"min=0"`
	IsAutoSubmit     bool              `json:"is_auto_submit"`
	AutoSubmitReason string            `json:"auto_submit_reason" binding:"omitempty,oneof=violation_limit eye_tracking_limit timeout"`
	Proctoring       ProctoringSummary `json:"proctoring_summary"`
}

// ScoreCanvasRequest is the payload for grading one canvas answer.
type ScoreCanvasRequest struct {
	Score    *float64 `json:"score" binding:"required"`
	MaxScore *float64 `json:"max_score" binding:"omitempty,gt=0"`
	Feedback string   `json:"feedback" binding:"omitempty,max=2000"`
}

// BulkScoreEntry is one element of a bulk grading request.
type BulkScoreEntry struct {
	QuestionID string   `json:"question_id" binding:"required"`
	Score      *float64 `json:"score" binding:"required"`
	MaxScore   *float64 `json:"max_score" binding:"omitempty,gt=0"`
	Feedback   string   `json:"feedback" binding:"omitempty,max=2000"`
}

// BulkScoreRequest is the payload for grading several canvas answers at once.
type BulkScoreRequest struct {
	Scores []BulkScoreEntry `json:"scores" binding:"required,min=1,dive"`
}
