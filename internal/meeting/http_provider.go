package meeting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-portal/internal/config"
)

// signatureTTL is how long a join signature stays valid.
const signatureTTL = 2 * time.Hour

// HTTPProvider talks to a REST video-conferencing API and signs client
// join requests with the SDK secret.
type HTTPProvider struct {
	baseURL   string
	apiToken  string
	sdkKey    string
	sdkSecret []byte
	client    *http.Client
	log       zerolog.Logger
	now       func() time.Time
}

// New returns an HTTPProvider, or Noop when the integration is not configured.
func New(cfg config.MeetingConfig, log zerolog.Logger) Provider {
	if cfg.BaseURL == "" {
		log.Info().Msg("Meeting provider not configured, video sessions disabled")
		return Noop{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPProvider{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiToken:  cfg.APIToken,
		sdkKey:    cfg.SDKKey,
		sdkSecret: []byte(cfg.SDKSecret),
		client:    &http.Client{Timeout: timeout},
		log:       log.With().Str("component", "meeting_provider").Logger(),
		now:       time.Now,
	}
}

type createMeetingRequest struct {
	Topic    string `json:"topic"`
	Type     int    `json:"type"`
	Duration int    `json:"duration"`
}

type meetingResponse struct {
	ID        json.Number `json:"id"`
	Topic     string      `json:"topic"`
	JoinURL   string      `json:"join_url"`
	Password  string      `json:"password"`
	StartTime time.Time   `json:"start_time"`
}

type participantsResponse struct {
	Participants []struct {
		ID        string    `json:"id"`
		Name      string    `json:"user_name"`
		JoinTime  time.Time `json:"join_time"`
		LeaveTime time.Time `json:"leave_time"`
	} `json:"participants"`
}

// CreateMeeting starts an instant meeting.
func (p *HTTPProvider) CreateMeeting(ctx context.Context, topic string, duration time.Duration) (*Meeting, error) {
	body := createMeetingRequest{Topic: topic, Type: 1, Duration: int(duration.Minutes())}
	var out meetingResponse
	if err := p.do(ctx, http.MethodPost, "/users/me/meetings", body, &out); err != nil {
		return nil, err
	}

	started := out.StartTime
	if started.IsZero() {
		started = p.now().UTC()
	}
	p.log.Info().Str("meeting_id", out.ID.String()).Str("topic", topic).Msg("Meeting created")
	return &Meeting{
		ID:        out.ID.String(),
		Topic:     out.Topic,
		JoinURL:   out.JoinURL,
		Password:  out.Password,
		StartedAt: started,
	}, nil
}

// EndMeeting ends a running meeting for all participants.
func (p *HTTPProvider) EndMeeting(ctx context.Context, meetingID string) error {
	return p.do(ctx, http.MethodPut, "/meetings/"+url.PathEscape(meetingID)+"/status", map[string]string{"action": "end"}, nil)
}

// ListParticipants lists the participants of a running meeting.
func (p *HTTPProvider) ListParticipants(ctx context.Context, meetingID string) ([]Participant, error) {
	var out participantsResponse
	if err := p.do(ctx, http.MethodGet, "/metrics/meetings/"+url.PathEscape(meetingID)+"/participants", nil, &out); err != nil {
		return nil, err
	}
	participants := make([]Participant, 0, len(out.Participants))
	for _, pp := range out.Participants {
		participants = append(participants, Participant{ID: pp.ID, Name: pp.Name, JoinedAt: pp.JoinTime, LeftAt: pp.LeaveTime})
	}
	return participants, nil
}

// JoinSignature signs an SDK join request for the meeting.
func (p *HTTPProvider) JoinSignature(meetingID string, role Role) (string, error) {
	if p.sdkKey == "" || len(p.sdkSecret) == 0 {
		return "", ErrUnavailable
	}
	now := p.now()
	claims := jwt.MapClaims{
		"appKey":   p.sdkKey,
		"sdkKey":   p.sdkKey,
		"mn":       meetingID,
		"role":     int(role),
		"iat":      now.Add(-30 * time.Second).Unix(),
		"exp":      now.Add(signatureTTL).Unix(),
		"tokenExp": now.Add(signatureTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.sdkSecret)
	if err != nil {
		return "", fmt.Errorf("sign join request: %w", err)
	}
	return signed, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiToken)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("meeting api %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
