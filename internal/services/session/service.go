// Package session manages isolated, ephemeral workspaces for browser
// sessions: scoped work directories, timeout accounting, and best-effort
// secure wipe on teardown.
package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// Service tracks sessions by id in an explicit manager. The process model
// assumes one active session at a time; the map keeps session state out of
// package-level globals so tests (and future concurrent use) hold no hidden
// shared state.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	workdirRoot   string
	defaultBudget time.Duration
	watchInterval time.Duration
	wipePasses    int
	logger        arbor.ILogger
}

type sessionState struct {
	session    *models.SecureSession
	mu         sync.Mutex
	expireOnce sync.Once
	stopWatch  chan struct{}
	watchOnce  sync.Once
}

// NewService creates a session manager from the isolation and session
// configuration blocks.
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	watchInterval := config.Security.Session.WatchInterval
	if watchInterval <= 0 {
		watchInterval = 5 * time.Second
	}
	wipePasses := config.Security.Session.WipePasses
	if wipePasses < 1 {
		wipePasses = 3
	}

	return &Service{
		sessions:      make(map[string]*sessionState),
		workdirRoot:   config.Isolation.WorkdirRoot,
		defaultBudget: time.Duration(config.Security.Session.MaxDurationMinutes) * time.Minute,
		watchInterval: watchInterval,
		wipePasses:    wipePasses,
		logger:        logger,
	}
}

// CreateSession allocates a unique id, a dedicated temporary work directory,
// and a nested screenshot subdirectory.
func (s *Service) CreateSession(site string, maxDuration time.Duration) (*models.SecureSession, error) {
	if maxDuration <= 0 {
		maxDuration = s.defaultBudget
	}

	id := common.NewSessionID()

	workDir, err := os.MkdirTemp(s.workdirRoot, "browservault-")
	if err != nil {
		return nil, fmt.Errorf("failed to create session workdir: %w", err)
	}
	if err := os.Chmod(workDir, 0o700); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("failed to restrict session workdir: %w", err)
	}

	screenshotDir := filepath.Join(workDir, "screenshots")
	if err := os.MkdirAll(screenshotDir, 0o700); err != nil {
		_ = os.RemoveAll(workDir)
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}

	session := &models.SecureSession{
		ID:            id,
		WorkDir:       workDir,
		ScreenshotDir: screenshotDir,
		StartTime:     time.Now(),
		MaxDuration:   maxDuration,
		Site:          site,
	}

	s.mu.Lock()
	s.sessions[id] = &sessionState{
		session:   session,
		stopWatch: make(chan struct{}),
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", id).
		Str("site", site).
		Str("work_dir", workDir).
		Dur("max_duration", maxDuration).
		Msg("Created secure session")

	return session, nil
}

func (s *Service) state(id string) *sessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[id]
}

// GetSession returns the session with the given id, or nil.
func (s *Service) GetSession(id string) *models.SecureSession {
	if st := s.state(id); st != nil {
		return st.session
	}
	return nil
}

// IsExpired reports whether the session's counted elapsed time has exceeded
// its budget. Unknown sessions are expired.
func (s *Service) IsExpired(id string) bool {
	st := s.state(id)
	if st == nil {
		return true
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.IsExpired(time.Now())
}

// TimeRemaining returns the unconsumed session budget, clamped at zero.
func (s *Service) TimeRemaining(id string) time.Duration {
	st := s.state(id)
	if st == nil {
		return 0
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.TimeRemaining(time.Now())
}

// WatchTimeout polls the session at the configured interval and invokes
// onExpire exactly once when expiry is first observed. The watcher is a
// lightweight poller, not an OS timer, so suspending the session cleanly
// pauses the countdown without cancelling in-flight I/O.
func (s *Service) WatchTimeout(id string, onExpire func()) {
	st := s.state(id)
	if st == nil {
		return
	}

	st.watchOnce.Do(func() {
		common.SafeGo(s.logger, "session-watch-"+id, func() {
			ticker := time.NewTicker(s.watchInterval)
			defer ticker.Stop()

			for {
				select {
				case <-st.stopWatch:
					return
				case <-ticker.C:
					st.mu.Lock()
					expired := st.session.IsExpired(time.Now())
					st.mu.Unlock()
					if expired {
						st.expireOnce.Do(func() {
							s.logger.Warn().Str("session_id", id).Msg("Session budget exhausted")
							onExpire()
						})
						return
					}
				}
			}
		})
	})
}

// Suspend freezes elapsed-time accounting. Suspending an already-suspended
// session is an error.
func (s *Service) Suspend(id string) error {
	st := s.state(id)
	if st == nil {
		return fmt.Errorf("unknown session %q", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.Suspended() {
		return fmt.Errorf("session %q is already suspended", id)
	}
	st.session.SuspendedAt = time.Now()
	s.logger.Debug().Str("session_id", id).Msg("Session suspended")
	return nil
}

// Resume continues counting from the remaining budget. The suspended
// interval never counts against the budget.
func (s *Service) Resume(id string) error {
	st := s.state(id)
	if st == nil {
		return fmt.Errorf("unknown session %q", id)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.session.Suspended() {
		return fmt.Errorf("session %q is not suspended", id)
	}
	st.session.SuspendedTotal += time.Since(st.session.SuspendedAt)
	st.session.SuspendedAt = time.Time{}
	s.logger.Debug().Str("session_id", id).Msg("Session resumed")
	return nil
}

// SecureCleanup overwrites every file under the work directory with random
// bytes and removes the tree. Best-effort: partial failures are logged and
// reflected in the returned flag, never thrown - teardown always completes.
// A second call is a no-op success. Not a cryptographic erasure guarantee:
// copy-on-write and journaling filesystems may retain old blocks.
func (s *Service) SecureCleanup(id string) bool {
	st := s.state(id)
	if st == nil {
		return true
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.CleanedUp {
		return true
	}
	st.session.CleanedUp = true

	// Stop the timeout watcher; the session is going away.
	close(st.stopWatch)

	success := true
	if err := wipeTree(st.session.WorkDir, s.wipePasses, s.logger); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Secure wipe incomplete")
		success = false
	}
	if err := os.RemoveAll(st.session.WorkDir); err != nil {
		s.logger.Warn().Err(err).Str("session_id", id).Msg("Failed to remove session workdir")
		success = false
	}

	// Drop the manager entry: a repeated cleanup lands on the lookup miss,
	// which is already a no-op success, and long-running processes do not
	// accumulate dead session state.
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	s.logger.Info().
		Str("session_id", id).
		Bool("cleanup_success", success).
		Msg("Session workspace cleaned up")

	return success
}

// ScreenshotPath returns a deterministic, collision-free filename under the
// session's screenshot directory. The action label is sanitized so caller
// input cannot escape the directory.
func (s *Service) ScreenshotPath(id string, index int, actionLabel string) (string, error) {
	st := s.state(id)
	if st == nil {
		return "", fmt.Errorf("unknown session %q", id)
	}
	if st.session.CleanedUp {
		return "", fmt.Errorf("session %q has been cleaned up", id)
	}

	name := fmt.Sprintf("%03d_%s.png", index, sanitizeLabel(actionLabel))
	return filepath.Join(st.session.ScreenshotDir, name), nil
}

// sanitizeLabel keeps only filename-safe characters from an opaque action
// label.
func sanitizeLabel(label string) string {
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" {
		return "action"
	}

	var b strings.Builder
	for _, r := range label {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "action"
	}
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

var _ interfaces.SessionService = (*Service)(nil)
