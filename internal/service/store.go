package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-portal/internal/model"
)

// ─── Storage collaborators ────────────────────────────────────────────
//
// The pgx repositories satisfy these; tests use in-memory fakes.

// SubmissionStore persists submissions. Create must reject a second
// submission for the same (exam, student) with repository.ErrDuplicate.
type SubmissionStore interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	Exists(ctx context.Context, examID uuid.UUID, studentID int) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]model.Submission, int, error)
	ListAllByExam(ctx context.Context, examID uuid.UUID) ([]model.Submission, error)
	ListByStudent(ctx context.Context, studentID int) ([]model.Submission, error)
	Stats(ctx context.Context, examID uuid.UUID, passThreshold float64) (model.ExamStats, error)
	UpdateLocked(ctx context.Context, id uuid.UUID, fn func(*model.Submission) error) (*model.Submission, error)
	UpdateArtifact(ctx context.Context, id uuid.UUID, status model.ArtifactStatus, path string) error
}

// ExamReader loads exams.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Exam, error)
}

// QuestionReader loads an exam's questions in display order.
type QuestionReader interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// UserReader loads users.
type UserReader interface {
	GetByID(ctx context.Context, id int) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetNames(ctx context.Context, ids []int) (map[int]string, error)
}

// ─── Background collaborators ─────────────────────────────────────────

// ArtifactScheduler accepts answer-sheet generation jobs.
type ArtifactScheduler interface {
	ScheduleArtifact(ctx context.Context, submissionID uuid.UUID) error
}

// ViolationSink accepts violation events for asynchronous persistence.
type ViolationSink interface {
	EnqueueViolation(ctx context.Context, e model.ViolationEvent) error
}

// MonitorPublisher pushes events to the live proctoring monitor.
type MonitorPublisher interface {
	Publish(ctx context.Context, e model.MonitorEvent) error
}
