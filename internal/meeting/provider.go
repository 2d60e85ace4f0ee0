// Package meeting integrates the optional video-conferencing session that
// runs alongside a proctored exam.
package meeting

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnavailable is returned when no provider is configured or the
	// provider cannot be reached.
	ErrUnavailable = errors.New("meeting provider unavailable")
	// ErrNotFound is returned for an unknown or already ended meeting.
	ErrNotFound = errors.New("meeting not found")
)

// Role is the participant role encoded into a join signature.
type Role int

const (
	RoleAttendee Role = 0
	RoleHost     Role = 1
)

// Meeting is a provider-side video session.
type Meeting struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	JoinURL   string    `json:"join_url"`
	Password  string    `json:"password,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Participant is a user currently or previously connected to a meeting.
type Participant struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joined_at"`
	LeftAt   time.Time `json:"left_at,omitempty"`
}

// Provider is the video-conferencing collaborator.
type Provider interface {
	CreateMeeting(ctx context.Context, topic string, duration time.Duration) (*Meeting, error)
	EndMeeting(ctx context.Context, meetingID string) error
	ListParticipants(ctx context.Context, meetingID string) ([]Participant, error)
	JoinSignature(meetingID string, role Role) (string, error)
}

// Noop is used when no provider is configured. Every call reports
// ErrUnavailable, which the proctoring layer records and ignores.
type Noop struct{}

func (Noop) CreateMeeting(context.Context, string, time.Duration) (*Meeting, error) {
	return nil, ErrUnavailable
}

func (Noop) EndMeeting(context.Context, string) error { return ErrUnavailable }

func (Noop) ListParticipants(context.Context, string) ([]Participant, error) {
	return nil, ErrUnavailable
}

func (Noop) JoinSignature(string, Role) (string, error) { return "", ErrUnavailable }
