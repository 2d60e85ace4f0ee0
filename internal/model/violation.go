package model

import (
	"time"

	"github.com/google/uuid"
)

// ViolationKind identifies the proctoring rule that was breached.
type ViolationKind string

const (
	ViolationTabHidden       ViolationKind = "tab_hidden"
	ViolationWindowBlur      ViolationKind = "window_blur"
	ViolationFullscreenExit  ViolationKind = "fullscreen_exit"
	ViolationBlockedShortcut ViolationKind = "blocked_shortcut"
	ViolationRightClick      ViolationKind = "right_click"
	ViolationMouseLeave      ViolationKind = "mouse_leave"
	ViolationGazeAway        ViolationKind = "gaze_away"
	ViolationNoFace          ViolationKind = "no_face_detected"
)

// IsEyeTracking reports whether the kind belongs to the gaze counter.
func (k ViolationKind) IsEyeTracking() bool {
	return k == ViolationGazeAway || k == ViolationNoFace
}

// ViolationEvent is an audit record of a proctoring violation.
// It never gates scoring on its own.
type ViolationEvent struct {
	ID           int64             `json:"id,omitempty"`
	ExamID       uuid.UUID         `json:"exam_id"`
	StudentID    int               `json:"student_id"`
	Kind         ViolationKind     `json:"violation_type"`
	Timestamp    time.Time         `json:"timestamp"`
	RunningCount int               `json:"violation_count"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// LogViolationRequest is the payload of POST /violations.
type LogViolationRequest struct {
	ExamID         string            `json:"exam_id" binding:"required,uuid"`
	ViolationType  string            `json:"violation_type" binding:"required,oneof=tab_hidden window_blur fullscreen_exit blocked_shortcut right_click mouse_leave gaze_away no_face_detected"`
	Timestamp      *time.Time        `json:"timestamp"`
	ViolationCount int               `json:"violation_count" binding:"min=0"`
	Metadata       map[string]string `json:"metadata"`
}
