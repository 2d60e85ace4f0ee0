// Package proctor implements the proctoring state machine for a single
// student's exam attempt. A Controller is not safe for concurrent use; it is
// meant to be owned by one goroutine that feeds it events and executes the
// effects it returns.
package proctor

import (
	"time"

	"github.com/stemsi/exstem-portal/internal/config"
	"github.com/stemsi/exstem-portal/internal/model"
)

// Config holds the thresholds for one controller.
type Config struct {
	// A non-positive max disables auto-submit for that counter.
	MaxViolations            int
	MaxEyeTrackingViolations int

	LeftRatio  float64
	RightRatio float64
	DownRatio  float64

	LookAwayThreshold time.Duration
	NoFaceThreshold   time.Duration
	DebounceInterval  time.Duration
	StableSamples     int

	// ExamDuration of zero means the countdown never expires.
	ExamDuration time.Duration
}

// NewConfig builds a controller config from the server defaults, letting the
// exam override its violation limits and supply the duration.
func NewConfig(defaults config.ProctorConfig, exam *model.Exam) Config {
	cfg := Config{
		MaxViolations:            defaults.MaxViolations,
		MaxEyeTrackingViolations: defaults.MaxEyeTrackingViolations,
		LeftRatio:                defaults.LeftRatio,
		RightRatio:               defaults.RightRatio,
		DownRatio:                defaults.DownRatio,
		LookAwayThreshold:        defaults.LookAwayThreshold,
		NoFaceThreshold:          defaults.NoFaceThreshold,
		DebounceInterval:         defaults.DebounceInterval,
		StableSamples:            defaults.StableSamples,
	}
	if exam != nil {
		if exam.MaxViolations > 0 {
			cfg.MaxViolations = exam.MaxViolations
		}
		if exam.MaxEyeTrackingViolations > 0 {
			cfg.MaxEyeTrackingViolations = exam.MaxEyeTrackingViolations
		}
		cfg.ExamDuration = time.Duration(exam.DurationMinutes) * time.Minute
	}
	if cfg.StableSamples < 1 {
		cfg.StableSamples = 1
	}
	return cfg
}
