package interfaces

import (
	"time"

	"github.com/kestrelsec/browservault/internal/models"
)

// SessionService manages isolated, ephemeral session workspaces. Sessions
// are tracked by id in an explicit manager - there is no module-level
// "current session" singleton.
type SessionService interface {
	// CreateSession allocates a unique id, a dedicated temporary work
	// directory, and a nested screenshot directory. A zero maxDuration
	// selects the configured default.
	CreateSession(site string, maxDuration time.Duration) (*models.SecureSession, error)

	// GetSession returns the session with the given id, or nil.
	GetSession(id string) *models.SecureSession

	// IsExpired reports whether the session's counted elapsed time has
	// exceeded its budget.
	IsExpired(id string) bool

	// TimeRemaining returns the unconsumed session budget, clamped at zero.
	TimeRemaining(id string) time.Duration

	// WatchTimeout polls the session at a fixed interval and invokes onExpire
	// exactly once when expiry is first observed. Stop the watcher by
	// cleaning up the session.
	WatchTimeout(id string, onExpire func())

	// Suspend freezes elapsed-time accounting; Resume continues counting
	// from the remaining budget. Wall-clock time spent suspended never
	// counts against the budget.
	Suspend(id string) error
	Resume(id string) error

	// SecureCleanup overwrites every file under the session's work
	// directory with random bytes and removes the tree. Best-effort: the
	// returned flag is false on partial failure, but cleanup never aborts
	// teardown. Calling it twice is a no-op success. This is not a
	// cryptographic erasure guarantee on copy-on-write or journaling
	// filesystems.
	SecureCleanup(id string) (cleanupSuccess bool)

	// ScreenshotPath returns a deterministic, sanitized, collision-free
	// filename under the session's screenshot directory.
	ScreenshotPath(id string, index int, actionLabel string) (string, error)
}
