package meeting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-portal/internal/config"
)

func TestNew_UnconfiguredIsNoop(t *testing.T) {
	p := New(config.MeetingConfig{}, zerolog.Nop())
	_, ok := p.(Noop)
	require.True(t, ok)

	_, err := p.CreateMeeting(context.Background(), "x", time.Hour)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPProvider_CreateAndEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/users/me/meetings":
			var body createMeetingRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, 90, body.Duration)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 123456, "topic": "Ujian", "join_url": "https://meet.example/j/123456"}`))
		case r.Method == http.MethodPut && r.URL.Path == "/meetings/123456/status":
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Path == "/meetings/999/status":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	p := New(config.MeetingConfig{BaseURL: srv.URL, APIToken: "tok"}, zerolog.Nop())

	m, err := p.CreateMeeting(context.Background(), "Ujian", 90*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "123456", m.ID)
	assert.Equal(t, "https://meet.example/j/123456", m.JoinURL)
	assert.False(t, m.StartedAt.IsZero())

	require.NoError(t, p.EndMeeting(context.Background(), "123456"))
	assert.ErrorIs(t, p.EndMeeting(context.Background(), "999"), ErrNotFound)
}

func TestHTTPProvider_ServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New(config.MeetingConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := p.ListParticipants(context.Background(), "1")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPProvider_JoinSignature(t *testing.T) {
	p := New(config.MeetingConfig{BaseURL: "http://unused", SDKKey: "key", SDKSecret: "secret"}, zerolog.Nop())

	sig, err := p.JoinSignature("42", RoleAttendee)
	require.NoError(t, err)

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(sig, claims, func(*jwt.Token) (interface{}, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "42", claims["mn"])
	assert.Equal(t, "key", claims["sdkKey"])
	assert.EqualValues(t, 0, claims["role"])
}

func TestHTTPProvider_JoinSignatureNeedsSDKCredentials(t *testing.T) {
	p := New(config.MeetingConfig{BaseURL: "http://unused"}, zerolog.Nop())
	_, err := p.JoinSignature("42", RoleHost)
	assert.ErrorIs(t, err, ErrUnavailable)
}
