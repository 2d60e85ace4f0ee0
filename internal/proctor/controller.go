package proctor

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-portal/internal/model"
)

// State is the lifecycle state of a proctored attempt.
type State int

const (
	StateIdle State = iota
	StateActive
	StateAutoSubmitting
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateAutoSubmitting:
		return "auto_submitting"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

// EffectKind names a side effect the owner of a Controller must perform.
type EffectKind string

const (
	EffectWarning      EffectKind = "warning"
	EffectLogViolation EffectKind = "log_violation"
	EffectGazeChanged  EffectKind = "gaze_changed"
	EffectStopTimers   EffectKind = "stop_timers"
	EffectDisableInput EffectKind = "disable_input"
	EffectLeaveVideo   EffectKind = "leave_video"
	EffectSubmit       EffectKind = "submit"
	EffectTeardown     EffectKind = "teardown"
)

// Effect is an instruction returned by the Controller. Only the fields
// relevant to Kind are set.
type Effect struct {
	Kind EffectKind

	Violation   model.ViolationKind
	Count       int
	Limit       int
	EyeTracking bool
	Message     string
	Metadata    map[string]string
	At          time.Time

	Direction Direction

	Submit *SubmitIntent
}

// SubmitIntent carries what the owner needs to submit the attempt.
type SubmitIntent struct {
	IsAutoSubmit bool
	Reason       model.AutoSubmitReason
	Summary      model.ProctoringSummary
}

// Capabilities records what the client managed to acquire at start.
type Capabilities struct {
	Webcam         bool
	Fullscreen     bool
	VideoSessionID string
}

// Controller is the proctoring state machine for one attempt.
type Controller struct {
	cfg   Config
	state State

	// examActive is cleared before any teardown effect is emitted so late
	// events are ignored.
	examActive bool
	// submitRequested guards against a second submit from a stale timer.
	submitRequested bool

	violations    int
	eyeViolations int
	gaze          gazeTracker

	startedAt time.Time
	deadline  time.Time

	caps     Capabilities
	reason   model.AutoSubmitReason
	metadata map[string]string
}

// NewController creates an idle controller.
func NewController(cfg Config) *Controller {
	if cfg.StableSamples < 1 {
		cfg.StableSamples = 1
	}
	return &Controller{cfg: cfg, metadata: map[string]string{}}
}

func (c *Controller) State() State { return c.state }

// Active reports whether the attempt still accepts input and violations.
func (c *Controller) Active() bool { return c.examActive }

func (c *Controller) Violations() int { return c.violations }

func (c *Controller) EyeTrackingViolations() int { return c.eyeViolations }

func (c *Controller) Direction() Direction { return c.gaze.current }

// Start moves Idle to Active. Missing webcam or fullscreen is recorded and
// never blocks the attempt. resumeFrom, when non-zero, is the original start
// of an attempt being resumed on a new connection.
func (c *Controller) Start(now time.Time, caps Capabilities, resumeFrom time.Time) []Effect {
	if c.state != StateIdle {
		return nil
	}
	c.state = StateActive
	c.examActive = true
	c.caps = caps
	c.startedAt = now
	if !resumeFrom.IsZero() && resumeFrom.Before(now) {
		c.startedAt = resumeFrom
	}
	if c.cfg.ExamDuration > 0 {
		c.deadline = c.startedAt.Add(c.cfg.ExamDuration)
	}
	c.gaze = newGazeTracker(now)

	var effects []Effect
	if !caps.Webcam {
		c.metadata["webcam"] = "unavailable"
		effects = append(effects, Effect{Kind: EffectWarning, At: now, Message: "Webcam tidak tersedia, pelacakan mata dinonaktifkan"})
	}
	if !caps.Fullscreen {
		c.metadata["fullscreen"] = "unavailable"
	}
	if reason := c.restoredReason(); reason != model.AutoSubmitReasonNone {
		effects = append(effects, c.autoSubmit(reason)...)
	}
	return effects
}

// Restore seeds an idle controller with the counters of an attempt resumed
// on a new connection. pending is an auto-submit that was triggered but
// never delivered.
func (c *Controller) Restore(violations, eyeViolations int, pending model.AutoSubmitReason) {
	if c.state != StateIdle {
		return
	}
	c.violations = max(violations, 0)
	c.eyeViolations = max(eyeViolations, 0)
	c.reason = pending
}

// restoredReason is the auto-submit owed by restored state, if any.
func (c *Controller) restoredReason() model.AutoSubmitReason {
	switch {
	case c.reason != model.AutoSubmitReasonNone:
		return c.reason
	case c.cfg.MaxViolations > 0 && c.violations >= c.cfg.MaxViolations:
		return model.AutoSubmitReasonViolationLimit
	case c.cfg.MaxEyeTrackingViolations > 0 && c.eyeViolations >= c.cfg.MaxEyeTrackingViolations:
		return model.AutoSubmitReasonEyeTrackingLimit
	}
	return model.AutoSubmitReasonNone
}

// Remaining returns the time left on the countdown, or -1 when unlimited.
func (c *Controller) Remaining(now time.Time) time.Duration {
	if c.deadline.IsZero() {
		return -1
	}
	if d := c.deadline.Sub(now); d > 0 {
		return d
	}
	return 0
}

// RecordViolation registers a detected violation and auto-submits when its
// counter reaches the limit.
func (c *Controller) RecordViolation(kind model.ViolationKind, now time.Time, metadata map[string]string) []Effect {
	if !c.examActive {
		return nil
	}

	eye := kind.IsEyeTracking()
	count, limit := c.bump(eye)

	effects := []Effect{
		{
			Kind:        EffectWarning,
			Violation:   kind,
			Count:       count,
			Limit:       limit,
			EyeTracking: eye,
			At:          now,
			Message:     warningMessage(kind, count, limit),
		},
		{
			Kind:        EffectLogViolation,
			Violation:   kind,
			Count:       count,
			Limit:       limit,
			EyeTracking: eye,
			At:          now,
			Metadata:    metadata,
		},
	}

	if limit > 0 && count >= limit {
		reason := model.AutoSubmitReasonViolationLimit
		if eye {
			reason = model.AutoSubmitReasonEyeTrackingLimit
		}
		effects = append(effects, c.autoSubmit(reason)...)
	}
	return effects
}

func (c *Controller) bump(eye bool) (count, limit int) {
	if eye {
		c.eyeViolations++
		return c.eyeViolations, c.cfg.MaxEyeTrackingViolations
	}
	c.violations++
	return c.violations, c.cfg.MaxViolations
}

// ObserveGaze feeds one gaze sample. Samples must arrive in time order.
func (c *Controller) ObserveGaze(s GazeSample) []Effect {
	if !c.examActive || !c.caps.Webcam {
		return nil
	}
	var effects []Effect
	d := Classify(s, c.cfg)
	if c.gaze.observe(d, s.At, c.cfg) {
		effects = append(effects, Effect{Kind: EffectGazeChanged, Direction: d, At: s.At})
	}
	return append(effects, c.checkGaze(s.At)...)
}

// TickGaze is the gaze watchdog. It catches episodes that outlast the
// threshold while no new samples arrive.
func (c *Controller) TickGaze(now time.Time) []Effect {
	if !c.examActive || !c.caps.Webcam {
		return nil
	}
	return c.checkGaze(now)
}

func (c *Controller) checkGaze(now time.Time) []Effect {
	if !c.gaze.due(now, c.cfg) {
		return nil
	}
	kind := model.ViolationGazeAway
	if c.gaze.current == DirectionNone {
		kind = model.ViolationNoFace
	}
	return c.RecordViolation(kind, now, map[string]string{
		"direction": string(c.gaze.current),
		"duration":  now.Sub(c.gaze.awaySince).Round(time.Millisecond).String(),
	})
}

// TickCountdown auto-submits once the exam duration has elapsed.
func (c *Controller) TickCountdown(now time.Time) []Effect {
	if !c.examActive || c.deadline.IsZero() || now.Before(c.deadline) {
		return nil
	}
	return c.autoSubmit(model.AutoSubmitReasonTimeout)
}

// Submit is a manual submit by the student. It goes straight to Submitted.
func (c *Controller) Submit() []Effect {
	if c.state != StateActive || c.submitRequested {
		return nil
	}
	c.examActive = false
	c.submitRequested = true
	c.state = StateSubmitted

	effects := c.haltEffects()
	effects = append(effects,
		Effect{Kind: EffectSubmit, Submit: &SubmitIntent{Summary: c.Summary()}},
		Effect{Kind: EffectTeardown},
	)
	return effects
}

// Complete finishes an auto-submit once the owner has delivered it.
func (c *Controller) Complete() []Effect {
	if c.state != StateAutoSubmitting {
		return nil
	}
	c.state = StateSubmitted
	return []Effect{{Kind: EffectTeardown}}
}

func (c *Controller) autoSubmit(reason model.AutoSubmitReason) []Effect {
	if c.state != StateActive || c.submitRequested {
		return nil
	}
	c.examActive = false
	c.submitRequested = true
	c.reason = reason
	c.state = StateAutoSubmitting

	effects := c.haltEffects()
	return append(effects, Effect{
		Kind:   EffectSubmit,
		Submit: &SubmitIntent{IsAutoSubmit: true, Reason: reason, Summary: c.Summary()},
	})
}

func (c *Controller) haltEffects() []Effect {
	effects := []Effect{{Kind: EffectStopTimers}, {Kind: EffectDisableInput}}
	if c.caps.VideoSessionID != "" {
		effects = append(effects, Effect{Kind: EffectLeaveVideo})
	}
	return effects
}

// Summary snapshots the proctoring state for the submission record.
func (c *Controller) Summary() model.ProctoringSummary {
	meta := make(map[string]string, len(c.metadata))
	for k, v := range c.metadata {
		meta[k] = v
	}
	return model.ProctoringSummary{
		ViolationCount:            c.violations,
		EyeTrackingViolationCount: c.eyeViolations,
		TriggeredBy:               c.reason,
		WebcamAvailable:           c.caps.Webcam,
		FullscreenAvailable:       c.caps.Fullscreen,
		VideoSessionID:            c.caps.VideoSessionID,
		Metadata:                  meta,
	}
}

// NoteMetadata attaches a degraded-signal note, e.g. a failed video join.
func (c *Controller) NoteMetadata(key, value string) {
	c.metadata[key] = value
}

func warningMessage(kind model.ViolationKind, count, limit int) string {
	if limit <= 0 {
		return fmt.Sprintf("Pelanggaran terdeteksi: %s", kind)
	}
	return fmt.Sprintf("Pelanggaran terdeteksi: %s (%d/%d)", kind, count, limit)
}
