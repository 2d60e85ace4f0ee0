package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/model"
	"github.com/stemsi/exstem-portal/internal/repository"
)

// ViolationService accepts proctoring violation events for the audit log.
// Logging never blocks or fails the exam: events are queued and written by
// the violation worker.
type ViolationService struct {
	sink    ViolationSink
	monitor MonitorPublisher
	repo    *repository.ViolationRepository
	log     zerolog.Logger
	now     func() time.Time
}

// NewViolationService creates a new ViolationService.
func NewViolationService(sink ViolationSink, monitor MonitorPublisher, repo *repository.ViolationRepository, log zerolog.Logger) *ViolationService {
	return &ViolationService{
		sink:    sink,
		monitor: monitor,
		repo:    repo,
		log:     log.With().Str("component", "violation_service").Logger(),
		now:     time.Now,
	}
}

// Record queues one violation event and notifies the live monitor.
func (s *ViolationService) Record(ctx context.Context, e model.ViolationEvent, label string) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	if err := s.sink.EnqueueViolation(ctx, e); err != nil {
		return fmt.Errorf("enqueue violation: %w", err)
	}

	if s.monitor != nil {
		data := map[string]any{
			"violation_type":  string(e.Kind),
			"violation_count": e.RunningCount,
		}
		for k, v := range e.Metadata {
			data[k] = v
		}
		err := s.monitor.Publish(ctx, model.MonitorEvent{
			Type:      model.MonitorViolation,
			ExamID:    e.ExamID.String(),
			StudentID: e.StudentID,
			Label:     label,
			Data:      data,
			At:        e.Timestamp,
		})
		if err != nil {
			s.log.Debug().Err(err).Msg("Monitor publish failed")
		}
	}
	return nil
}

// RecordRequest converts a client request and records it.
func (s *ViolationService) RecordRequest(ctx context.Context, student Student, req *model.LogViolationRequest) error {
	examID, err := uuid.Parse(req.ExamID)
	if err != nil {
		return fmt.Errorf("%w: malformed exam id", ErrInvalidArgument)
	}
	e := model.ViolationEvent{
		ExamID:       examID,
		StudentID:    student.ID,
		Kind:         model.ViolationKind(req.ViolationType),
		RunningCount: req.ViolationCount,
		Metadata:     req.Metadata,
	}
	if req.Timestamp != nil {
		e.Timestamp = req.Timestamp.UTC()
	}
	return s.Record(ctx, e, student.Label)
}

// ListByExam returns the persisted audit log of an exam, newest first.
// A zero studentID lists every student.
func (s *ViolationService) ListByExam(ctx context.Context, examID uuid.UUID, studentID int, limit, offset int) ([]model.ViolationEvent, int, error) {
	events, total, err := s.repo.ListByExam(ctx, examID, studentID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if events == nil {
		events = []model.ViolationEvent{}
	}
	return events, total, nil
}
