package model

import (
	"time"

	"github.com/google/uuid"
)

// DeletedQuestionText replaces the text of a question that no longer exists.
const DeletedQuestionText = "[Pertanyaan telah dihapus]"

// DeletedExamTitle replaces the title of an exam that no longer exists.
const DeletedExamTitle = "[Ujian telah dihapus]"

// SubmitResult is the synchronous response to a submit. Score and
// Percentage are the raw objective figures, which include one completion
// point per descriptive answer until it is graded.
type SubmitResult struct {
	SubmissionID          uuid.UUID `json:"submission_id"`
	Score                 int       `json:"score"`
	Total                 int       `json:"total"`
	Percentage            float64   `json:"percentage"`
	CorrectCount          int       `json:"correct_count"`
	IncorrectCount        int       `json:"incorrect_count"`
	UnansweredCount       int       `json:"unanswered_count"`
	DescriptiveCount      int       `json:"descriptive_count"`
	PendingGradingCount   int       `json:"pending_grading_count"`
	FinalScore            float64   `json:"final_score"`
	FinalPercentage       float64   `json:"final_percentage"`
	HasDescriptiveAnswers bool      `json:"has_descriptive_answers"`
	// ArtifactGenerated means the answer-sheet job was accepted, not that
	// the file already exists.
	ArtifactGenerated bool `json:"artifact_generated"`
}

// QuestionResult joins one answer record with its question.
type QuestionResult struct {
	QuestionID         uuid.UUID     `json:"question_id"`
	QuestionText       string        `json:"question_text"`
	ImageURL           string        `json:"image_url,omitempty"`
	Kind               AnswerKind    `json:"kind"`
	Options            []string      `json:"options"`
	CorrectOptionIndex *int          `json:"correct_option_index"`
	SelectedOption     *int          `json:"selected_option"`
	IsCorrect          bool          `json:"is_correct"`
	QuestionDeleted    bool          `json:"question_deleted,omitempty"`
	CanvasAnswer       *CanvasAnswer `json:"canvas_answer,omitempty"`
}

// SubmissionResult is the detailed view of one submission.
type SubmissionResult struct {
	SubmissionID         uuid.UUID         `json:"submission_id"`
	ExamID               uuid.UUID         `json:"exam_id"`
	ExamTitle            string            `json:"exam_title"`
	ExamCategory         string            `json:"exam_category"`
	StudentID            int               `json:"student_id"`
	ExternalStudentLabel string            `json:"external_student_label"`
	SubmittedAt          time.Time         `json:"submitted_at"`
	TimeTakenSeconds     int               `json:"time_taken_seconds"`
	Status               SubmissionStatus  `json:"status"`
	ObjectiveScore       int               `json:"objective_score"`
	TotalQuestions       int               `json:"total_questions"`
	ObjectivePercentage  float64           `json:"objective_percentage"`
	DescriptiveScore     float64           `json:"descriptive_score"`
	MaxDescriptiveScore  float64           `json:"max_descriptive_score"`
	FinalScore           float64           `json:"final_score"`
	FinalPercentage      float64           `json:"final_percentage"`
	AnsweredCount        int               `json:"answered_count"`
	PendingGradingCount  int               `json:"pending_grading_count"`
	PassThreshold        float64           `json:"pass_threshold"`
	Passed               bool              `json:"passed"`
	IsAutoSubmit         bool              `json:"is_auto_submit"`
	AutoSubmitReason     AutoSubmitReason  `json:"auto_submit_reason,omitempty"`
	ViolationTriggered   bool              `json:"violation_triggered"`
	Proctoring           ProctoringSummary `json:"proctoring_summary"`
	ArtifactStatus       ArtifactStatus    `json:"artifact_status"`
	Questions            []QuestionResult  `json:"questions"`
}

// SubmissionRow is one line of the admin results table.
type SubmissionRow struct {
	SubmissionID         uuid.UUID        `json:"submission_id"`
	StudentID            int              `json:"student_id"`
	StudentName          string           `json:"student_name"`
	ExternalStudentLabel string           `json:"external_student_label"`
	ObjectiveScore       int              `json:"objective_score"`
	ObjectivePercentage  float64          `json:"objective_percentage"`
	FinalScore           float64          `json:"final_score"`
	FinalPercentage      float64          `json:"final_percentage"`
	PendingGradingCount  int              `json:"pending_grading_count"`
	Passed               bool             `json:"passed"`
	ViolationCount       int              `json:"violation_count"`
	IsAutoSubmit         bool             `json:"is_auto_submit"`
	AutoSubmitReason     AutoSubmitReason `json:"auto_submit_reason,omitempty"`
	TimeTakenSeconds     int              `json:"time_taken_seconds"`
	SubmittedAt          time.Time        `json:"submitted_at"`
}

// ExamStats aggregates final percentages across an exam's submissions.
type ExamStats struct {
	Count          int     `json:"count"`
	PassCount      int     `json:"pass_count"`
	PassRate       float64 `json:"pass_rate"`
	Average        float64 `json:"average_percentage"`
	Min            float64 `json:"min_percentage"`
	Max            float64 `json:"max_percentage"`
	PendingGrading int     `json:"pending_grading"`
}

// ExamResults is the admin aggregate view of an exam.
type ExamResults struct {
	ExamID        uuid.UUID       `json:"exam_id"`
	ExamTitle     string          `json:"exam_title"`
	PassThreshold float64         `json:"pass_threshold"`
	Stats         ExamStats       `json:"stats"`
	Submissions   []SubmissionRow `json:"submissions"`
}

// CategoryPerformance buckets a student's history for one exam category.
type CategoryPerformance struct {
	Category   string  `json:"category"`
	Attempts   int     `json:"attempts"`
	Passed     int     `json:"passed"`
	PassRate   float64 `json:"pass_rate"`
	Average    float64 `json:"average_percentage"`
	Min        float64 `json:"min_percentage"`
	Max        float64 `json:"max_percentage"`
	Trend      string  `json:"trend"`
	LastExamAt string  `json:"last_exam_at,omitempty"`
}

// StudentPerformance is the dashboard view for a student or their parent.
type StudentPerformance struct {
	StudentID     int                   `json:"student_id"`
	StudentName   string                `json:"student_name"`
	PassThreshold float64               `json:"pass_threshold"`
	Attempts      int                   `json:"attempts"`
	PassRate      float64               `json:"pass_rate"`
	Average       float64               `json:"average_percentage"`
	Trend         string                `json:"trend"`
	Categories    []CategoryPerformance `json:"categories"`
}

// PageQuery is the common page/per_page query string.
type PageQuery struct {
	Page    int `form:"page" binding:"omitempty,min=1"`
	PerPage int `form:"per_page" binding:"omitempty,min=1,max=100"`
}

// Normalize fills defaults.
func (q *PageQuery) Normalize() {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage < 1 {
		q.PerPage = 20
	}
}

// Offset returns the SQL offset for the page.
func (q PageQuery) Offset() int {
	return (q.Page - 1) * q.PerPage
}
