package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft    ExamStatus = "draft"
	ExamStatusActive   ExamStatus = "active"
	ExamStatusInactive ExamStatus = "inactive"
	ExamStatusArchived ExamStatus = "archived"
)

// Exam represents an exam entity.
type Exam struct {
	ID                       uuid.UUID  `json:"id"`
	Title                    string     `json:"title"`
	Description              string     `json:"description"`
	Category                 string     `json:"category"`
	DurationMinutes          int        `json:"duration_minutes"`
	Status                   ExamStatus `json:"status"`
	CollegeID                string     `json:"college_id"`
	Branch                   string     `json:"branch"`
	OwnerID                  int        `json:"owner_id"`
	ScheduledStart           *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd             *time.Time `json:"scheduled_end,omitempty"`
	MaxAttempts              int        `json:"max_attempts"`
	ShuffleQuestions         bool       `json:"shuffle_questions"`
	ProctoringEnabled        bool       `json:"proctoring_enabled"`
	MaxViolations            int        `json:"max_violations"`
	MaxEyeTrackingViolations int        `json:"max_eye_tracking_violations"`
	CreatedAt                time.Time  `json:"created_at"`
	UpdatedAt                time.Time  `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title                    string     `json:"title" binding:"required,notblank,min=3,max=255"`
	Description              string     `json:"description" binding:"omitempty,max=2000"`
	Category                 string     `json:"category" binding:"omitempty,max=100"`
	DurationMinutes          int        `json:"duration_minutes" binding:"required,min=1,max=480"`
	CollegeID                string     `json:"college_id" binding:"omitempty,max=64"`
	Branch                   string     `json:"branch" binding:"omitempty,max=64"`
	ScheduledStart           *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd             *time.Time `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	MaxAttempts              int        `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	ShuffleQuestions         bool       `json:"shuffle_questions"`
	ProctoringEnabled        bool       `json:"proctoring_enabled"`
	MaxViolations            int        `json:"max_violations" binding:"omitempty,min=1,max=100"`
	MaxEyeTrackingViolations int        `json:"max_eye_tracking_violations" binding:"omitempty,min=1,max=100"`
}

// UpdateExamRequest is the payload for partially updating an exam.
// Nil fields are left untouched.
type UpdateExamRequest struct {
	Title                    *string    `json:"title" binding:"omitempty,min=3,max=255"`
	Description              *string    `json:"description" binding:"omitempty,max=2000"`
	Category                 *string    `json:"category" binding:"omitempty,max=100"`
	DurationMinutes          *int       `json:"duration_minutes" binding:"omitempty,min=1,max=480"`
	CollegeID                *string    `json:"college_id" binding:"omitempty,max=64"`
	Branch                   *string    `json:"branch" binding:"omitempty,max=64"`
	ScheduledStart           *time.Time `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd             *time.Time `json:"scheduled_end" binding:"omitempty"`
	MaxAttempts              *int       `json:"max_attempts" binding:"omitempty,min=1,max=10"`
	ShuffleQuestions         *bool      `json:"shuffle_questions"`
	ProctoringEnabled        *bool      `json:"proctoring_enabled"`
	MaxViolations            *int       `json:"max_violations" binding:"omitempty,min=1,max=100"`
	MaxEyeTrackingViolations *int       `json:"max_eye_tracking_violations" binding:"omitempty,min=1,max=100"`
}

// Apply copies every non-nil field of the request onto the exam.
func (r *UpdateExamRequest) Apply(e *Exam) {
	if r.Title != nil {
		e.Title = *r.Title
	}
	if r.Description != nil {
		e.Description = *r.Description
	}
	if r.Category != nil {
		e.Category = *r.Category
	}
	if r.DurationMinutes != nil {
		e.DurationMinutes = *r.DurationMinutes
	}
	if r.CollegeID != nil {
		e.CollegeID = *r.CollegeID
	}
	if r.Branch != nil {
		e.Branch = *r.Branch
	}
	if r.ScheduledStart != nil {
		e.ScheduledStart = r.ScheduledStart
	}
	if r.ScheduledEnd != nil {
		e.ScheduledEnd = r.ScheduledEnd
	}
	if r.MaxAttempts != nil {
		e.MaxAttempts = *r.MaxAttempts
	}
	if r.ShuffleQuestions != nil {
		e.ShuffleQuestions = *r.ShuffleQuestions
	}
	if r.ProctoringEnabled != nil {
		e.ProctoringEnabled = *r.ProctoringEnabled
	}
	if r.MaxViolations != nil {
		e.MaxViolations = *r.MaxViolations
	}
	if r.MaxEyeTrackingViolations != nil {
		e.MaxEyeTrackingViolations = *r.MaxEyeTrackingViolations
	}
}

// ChangeExamStatusRequest is the payload for moving an exam between states.
type ChangeExamStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=draft active inactive archived"`
}

// ExamPaper is the Redis-cached payload sent to students (no correct answers).
type ExamPaper struct {
	ExamID            uuid.UUID            `json:"exam_id"`
	Title             string               `json:"title"`
	Duration          int                  `json:"duration_minutes"`
	ShuffleQuestions  bool                 `json:"shuffle_questions"`
	ProctoringEnabled bool                 `json:"proctoring_enabled"`
	Questions         []QuestionForStudent `json:"questions"`
}
