package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/meeting"
)

// ErrMeetingNotFound is returned when the exam has no running meeting.
var ErrMeetingNotFound = errors.New("exam has no active meeting")

// JoinInfo is what a client needs to join the exam's video session.
type JoinInfo struct {
	MeetingID string `json:"meeting_id"`
	Password  string `json:"password,omitempty"`
	JoinURL   string `json:"join_url"`
	Signature string `json:"signature"`
}

// MeetingService binds a video meeting to an exam. The active meeting is
// kept in Redis so every server instance can hand out join signatures.
type MeetingService struct {
	provider meeting.Provider
	exams    *ExamService
	rdb      *redis.Client
	log      zerolog.Logger
}

// NewMeetingService creates a new MeetingService.
func NewMeetingService(provider meeting.Provider, exams *ExamService, rdb *redis.Client, log zerolog.Logger) *MeetingService {
	return &MeetingService{
		provider: provider,
		exams:    exams,
		rdb:      rdb,
		log:      log.With().Str("component", "meeting_service").Logger(),
	}
}

// Create starts a meeting for an exam the admin owns, replacing any
// previous one.
func (s *MeetingService) Create(ctx context.Context, ownerID int, examID uuid.UUID) (*meeting.Meeting, error) {
	exam, err := s.exams.GetOwned(ctx, examID, ownerID)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(exam.DurationMinutes) * time.Minute
	m, err := s.provider.CreateMeeting(ctx, exam.Title, duration)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal meeting: %w", err)
	}
	// Outlive the exam so late joiners still get a signature.
	if err := s.rdb.Set(ctx, config.CacheKey.ExamMeetingKey(examID.String()), data, duration+time.Hour).Err(); err != nil {
		return nil, fmt.Errorf("store meeting: %w", err)
	}
	return m, nil
}

// End stops the exam's meeting.
func (s *MeetingService) End(ctx context.Context, ownerID int, examID uuid.UUID) error {
	if _, err := s.exams.GetOwned(ctx, examID, ownerID); err != nil {
		return err
	}
	m, err := s.active(ctx, examID)
	if err != nil {
		return err
	}

	if err := s.provider.EndMeeting(ctx, m.ID); err != nil && !errors.Is(err, meeting.ErrNotFound) {
		return err
	}
	return s.rdb.Del(ctx, config.CacheKey.ExamMeetingKey(examID.String())).Err()
}

// Participants lists who is connected to the exam's meeting.
func (s *MeetingService) Participants(ctx context.Context, examID uuid.UUID) ([]meeting.Participant, error) {
	m, err := s.active(ctx, examID)
	if err != nil {
		return nil, err
	}
	return s.provider.ListParticipants(ctx, m.ID)
}

// Join returns a signed join request. Admins join as host.
func (s *MeetingService) Join(ctx context.Context, viewer Viewer, examID uuid.UUID) (*JoinInfo, error) {
	m, err := s.active(ctx, examID)
	if err != nil {
		return nil, err
	}

	role := meeting.RoleAttendee
	if viewer.IsAdmin() {
		role = meeting.RoleHost
	}
	sig, err := s.provider.JoinSignature(m.ID, role)
	if err != nil {
		return nil, err
	}
	return &JoinInfo{MeetingID: m.ID, Password: m.Password, JoinURL: m.JoinURL, Signature: sig}, nil
}

func (s *MeetingService) active(ctx context.Context, examID uuid.UUID) (*meeting.Meeting, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamMeetingKey(examID.String())).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMeetingNotFound
		}
		return nil, fmt.Errorf("load meeting: %w", err)
	}
	var m meeting.Meeting
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode meeting: %w", err)
	}
	return &m, nil
}
