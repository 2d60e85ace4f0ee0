package proctor

import "time"

// Direction is a classified gaze direction.
type Direction string

const (
	DirectionCenter Direction = "center"
	DirectionLeft   Direction = "left"
	DirectionRight  Direction = "right"
	DirectionDown   Direction = "down"
	DirectionNone   Direction = "none"
)

// GazeSample is one reading from the client's face tracker. Ratios are the
// iris position within the eye box, 0 to 1.
type GazeSample struct {
	FaceDetected bool      `json:"face_detected"`
	Horizontal   float64   `json:"horizontal"`
	Vertical     float64   `json:"vertical"`
	At           time.Time `json:"at"`
}

// Classify maps a raw sample onto a direction.
func Classify(s GazeSample, cfg Config) Direction {
	switch {
	case !s.FaceDetected:
		return DirectionNone
	case s.Horizontal < cfg.LeftRatio:
		return DirectionLeft
	case s.Horizontal > cfg.RightRatio:
		return DirectionRight
	case s.Vertical > cfg.DownRatio:
		return DirectionDown
	default:
		return DirectionCenter
	}
}

// gazeTracker debounces classified samples and tracks look-away episodes.
type gazeTracker struct {
	current    Direction
	lastChange time.Time

	pending      Direction
	pendingCount int
	pendingSince time.Time

	// awaySince is the start of the current off-center episode.
	awaySince time.Time
	// inViolation is set once the episode has been counted and is only
	// cleared when gaze returns to center.
	inViolation bool
}

func newGazeTracker(now time.Time) gazeTracker {
	return gazeTracker{current: DirectionCenter, lastChange: now}
}

// observe feeds one classified sample. It reports whether the accepted
// direction changed.
func (g *gazeTracker) observe(d Direction, at time.Time, cfg Config) bool {
	if d == g.current {
		g.pending, g.pendingCount = "", 0
		return false
	}
	if d != g.pending {
		g.pending, g.pendingCount, g.pendingSince = d, 0, at
	}
	g.pendingCount++
	if g.pendingCount < cfg.StableSamples || at.Sub(g.lastChange) < cfg.DebounceInterval {
		return false
	}

	wasAway := g.current != DirectionCenter
	g.current = d
	g.lastChange = at
	g.pending, g.pendingCount = "", 0

	switch {
	case d == DirectionCenter:
		g.awaySince = time.Time{}
		g.inViolation = false
	case !wasAway:
		g.awaySince = g.pendingSince
	}
	return true
}

// due reports whether the current episode has lasted long enough to count.
// It arms inViolation so the episode is counted once.
func (g *gazeTracker) due(now time.Time, cfg Config) bool {
	if g.current == DirectionCenter || g.inViolation || g.awaySince.IsZero() {
		return false
	}
	limit := cfg.LookAwayThreshold
	if g.current == DirectionNone {
		limit = cfg.NoFaceThreshold
	}
	if now.Sub(g.awaySince) < limit {
		return false
	}
	g.inViolation = true
	return true
}
