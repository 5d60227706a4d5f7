package models

import (
	"time"
)

// SecureSession is an isolated, ephemeral workspace for one browser session.
// It exclusively owns its WorkDir/ScreenshotDir tree until SecureCleanup
// removes it. Mutations after creation are limited to the suspend/resume
// accounting fields; expiry queries are read-only.
type SecureSession struct {
	ID            string        `json:"id"`
	WorkDir       string        `json:"work_dir"`
	ScreenshotDir string        `json:"screenshot_dir"`
	StartTime     time.Time     `json:"start_time"`
	MaxDuration   time.Duration `json:"max_duration"`
	Site          string        `json:"site,omitempty"`

	// Suspend/resume accounting. SuspendedAt is the zero value while the
	// session is running; SuspendedTotal accumulates completed suspended
	// intervals, which do not count against MaxDuration.
	SuspendedAt    time.Time     `json:"suspended_at,omitzero"`
	SuspendedTotal time.Duration `json:"suspended_total"`

	// CleanedUp is set once SecureCleanup has run; a second cleanup is a
	// no-op success.
	CleanedUp bool `json:"cleaned_up"`
}

// Suspended reports whether elapsed-time accounting is currently frozen.
func (s *SecureSession) Suspended() bool {
	return !s.SuspendedAt.IsZero()
}

// Elapsed returns the counted elapsed time at now: wall-clock time since
// start, excluding completed and in-progress suspended intervals.
func (s *SecureSession) Elapsed(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartTime) - s.SuspendedTotal
	if s.Suspended() {
		elapsed -= now.Sub(s.SuspendedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// IsExpired reports whether counted elapsed time has exceeded MaxDuration.
func (s *SecureSession) IsExpired(now time.Time) bool {
	return s.Elapsed(now) > s.MaxDuration
}

// TimeRemaining returns the unconsumed portion of the session budget,
// clamped at zero.
func (s *SecureSession) TimeRemaining(now time.Time) time.Duration {
	remaining := s.MaxDuration - s.Elapsed(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}
