package websocket

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionStart     Action = "start"
	ActionAutosave  Action = "autosave"
	ActionViolation Action = "violation"
	ActionGaze      Action = "gaze"
	ActionNote      Action = "note"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is every client message. Only the fields relevant to Action are set.
type Request struct {
	Action Action `json:"action"`

	// start
	Webcam         bool   `json:"webcam"`
	Fullscreen     bool   `json:"fullscreen"`
	VideoSessionID string `json:"video_session_id"`

	// autosave
	QID            string `json:"q_id"`
	SelectedOption *int   `json:"selected_option"`
	CanvasPayload  string `json:"canvas_payload"`

	// violation
	ViolationType string            `json:"violation_type"`
	Metadata      map[string]string `json:"metadata"`

	// gaze
	FaceDetected bool    `json:"face_detected"`
	Horizontal   float64 `json:"horizontal"`
	Vertical     float64 `json:"vertical"`

	// note
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError         Event = "error"
	EventStarted       Event = "started"
	EventSaved         Event = "saved"
	EventWarning       Event = "warning"
	EventGaze          Event = "gaze"
	EventTick          Event = "tick"
	EventTimersStopped Event = "timers_stopped"
	EventInputDisabled Event = "input_disabled"
	EventLeaveVideo    Event = "leave_video"
	EventSubmitted     Event = "submitted"
	EventPong          Event = "pong"
)

type StartedResponse struct {
	Event            Event `json:"event"`
	Resumed          bool  `json:"resumed"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type SavedResponse struct {
	Event Event  `json:"event"`
	QID   string `json:"q_id"`
}

type WarningResponse struct {
	Event         Event               `json:"event"`
	Message       string              `json:"message"`
	ViolationType model.ViolationKind `json:"violation_type,omitempty"`
	Count         int                 `json:"count,omitempty"`
	Limit         int                 `json:"limit,omitempty"`
	EyeTracking   bool                `json:"eye_tracking"`
	At            time.Time           `json:"at"`
}

type GazeResponse struct {
	Event     Event  `json:"event"`
	Direction string `json:"direction"`
}

type TickResponse struct {
	Event            Event `json:"event"`
	RemainingSeconds int   `json:"remaining_seconds"`
}

type SubmittedResponse struct {
	Event            Event                  `json:"event"`
	IsAutoSubmit     bool                   `json:"is_auto_submit"`
	AutoSubmitReason model.AutoSubmitReason `json:"auto_submit_reason,omitempty"`
	Result           *model.SubmitResult    `json:"result,omitempty"`
}

type SignalResponse struct {
	Event Event `json:"event"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}
