// Package app wires configuration, the vault providers, the encrypted
// credential cache, session isolation, and the audit trail into one
// application object, and owns the session open/close lifecycle.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
	"github.com/kestrelsec/browservault/internal/services/audit"
	"github.com/kestrelsec/browservault/internal/services/cache"
	configsvc "github.com/kestrelsec/browservault/internal/services/config"
	"github.com/kestrelsec/browservault/internal/services/credentials"
	"github.com/kestrelsec/browservault/internal/services/session"
	"github.com/kestrelsec/browservault/internal/services/vault"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	// Config service
	ConfigService interfaces.ConfigService

	// Credential resolution (providers behind the cache)
	Cache             interfaces.CredentialCache // nil when caching is disabled
	CredentialService interfaces.CredentialService

	// Session isolation
	SessionService interfaces.SessionService

	// Audit trail
	AuditService interfaces.AuditService

	// Interactive credential discovery
	Discovery *vault.Discovery

	rotation *cron.Cron

	mu   sync.Mutex
	open map[string]string // session id -> site, sessions not yet closed
}

// New initializes the application with all dependencies. Provider
// availability is verified here, so a misconfigured or locked vault fails at
// startup rather than mid-session.
func New(cfg *common.Config, configPath string, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
		open:   make(map[string]string),
	}

	if err := app.initServices(configPath); err != nil {
		return nil, err
	}

	if err := app.startRotation(); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) initServices(configPath string) error {
	a.ConfigService = configsvc.NewService(a.Config, configPath)

	runner := vault.NewRunner(a.Config.Security.Network.VaultCLITimeout)

	primary, err := vault.NewProvider(a.Config.Vault.Provider, a.Config, runner, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize vault provider: %w", err)
	}
	a.Logger.Info().Str("provider", string(primary.Name())).Msg("Vault provider ready")

	var fallback interfaces.VaultProvider
	if a.Config.Vault.Fallback != "" {
		fallback, err = vault.NewProvider(a.Config.Vault.Fallback, a.Config, runner, a.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize fallback provider: %w", err)
		}
		a.Logger.Info().Str("provider", string(fallback.Name())).Msg("Fallback vault provider ready")
	}

	// Caching is opt-in via the passphrase environment variable. Without it
	// every resolution goes straight to the vault backend.
	if passphrase, perr := common.CachePassphrase(); perr == nil {
		cacheService, cerr := cache.NewService(common.ConfigDir(), passphrase, a.Logger)
		if cerr != nil {
			return fmt.Errorf("failed to initialize credential cache: %w", cerr)
		}
		a.Cache = cacheService
	} else {
		a.Logger.Info().Msg("Credential cache disabled: no passphrase in environment")
	}

	a.CredentialService = credentials.NewService(
		primary,
		fallback,
		a.Cache,
		a.ConfigService,
		time.Duration(a.Config.Security.DefaultTTLMinutes)*time.Minute,
		a.Logger,
	)

	a.SessionService = session.NewService(a.Config, a.Logger)
	a.AuditService = audit.NewService(a.Config, a.Logger)

	providers := []interfaces.VaultProvider{primary}
	if fallback != nil {
		providers = append(providers, fallback)
	}
	a.Discovery = vault.NewDiscovery(providers, a.ConfigService, os.Stdin, os.Stdout, a.Logger)

	return nil
}

func (a *App) startRotation() error {
	schedule := a.Config.Security.Audit.RotateSchedule
	if schedule == "" {
		return nil
	}

	auditService, ok := a.AuditService.(*audit.Service)
	if !ok {
		return nil
	}

	c, err := auditService.ScheduleRotation(schedule, a.Config.Security.Audit.RetentionDays)
	if err != nil {
		return err
	}
	a.rotation = c
	a.Logger.Info().Str("schedule", schedule).Msg("Scheduled audit log rotation")
	return nil
}

// OpenSession creates an isolated session for a site, opens its audit
// session, and starts the timeout watcher. An expired session is closed
// automatically with autoClosed recorded in the audit summary.
func (a *App) OpenSession(site string, maxDuration time.Duration) (string, error) {
	sess, err := a.SessionService.CreateSession(site, maxDuration)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	a.AuditService.StartSession(sess.ID, site)

	a.mu.Lock()
	a.open[sess.ID] = site
	a.mu.Unlock()

	a.SessionService.WatchTimeout(sess.ID, func() {
		a.Logger.Warn().Str("session_id", sess.ID).Msg("Session budget exhausted, closing")
		if cerr := a.CloseSession(sess.ID, true); cerr != nil {
			a.Logger.Error().Err(cerr).Str("session_id", sess.ID).Msg("Failed to close expired session")
		}
	})

	a.Logger.Info().
		Str("session_id", sess.ID).
		Str("site", site).
		Str("workdir", sess.WorkDir).
		Msg("Session opened")

	return sess.ID, nil
}

// ResolveCredentials fetches credentials for the site of an open session and
// records the access in its audit trail. The caller owns the returned
// credentials and must Wipe them after use. The audit detail carries the
// site and outcome only, never credential values.
func (a *App) ResolveCredentials(ctx context.Context, sessionID string) (*models.VaultCredentials, error) {
	a.mu.Lock()
	site, ok := a.open[sessionID]
	a.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no open session %q", sessionID)
	}

	creds, err := a.CredentialService.GetSiteCredentials(ctx, site)

	action := models.AuditAction{
		Action:    "credential_access",
		Timestamp: time.Now().UTC(),
		Details:   map[string]interface{}{"site": site, "success": err == nil},
	}
	if aerr := a.AuditService.LogAction(sessionID, action); aerr != nil {
		a.Logger.Warn().Err(aerr).Str("session_id", sessionID).Msg("Failed to audit credential access")
	}

	return creds, err
}

// CloseSession tears a session down. Cleanup always runs before
// finalization, in that fixed order, so the audit record carries the real
// cleanup outcome; this holds for normal exits and signal-driven shutdown
// alike.
func (a *App) CloseSession(sessionID string, autoClosed bool) error {
	a.mu.Lock()
	_, ok := a.open[sessionID]
	if ok {
		delete(a.open, sessionID)
	}
	a.mu.Unlock()
	if !ok {
		return nil
	}

	sess := a.SessionService.GetSession(sessionID)
	var duration time.Duration
	if sess != nil {
		duration = sess.Elapsed(time.Now())
	}

	cleanupSuccess := a.SessionService.SecureCleanup(sessionID)
	if !cleanupSuccess {
		a.Logger.Warn().Str("session_id", sessionID).Msg("Secure cleanup reported partial failure")
	}

	if err := a.AuditService.Finalize(sessionID, duration, autoClosed, cleanupSuccess); err != nil {
		return fmt.Errorf("failed to finalize audit session: %w", err)
	}

	a.Logger.Info().
		Str("session_id", sessionID).
		Bool("auto_closed", autoClosed).
		Bool("cleanup_success", cleanupSuccess).
		Msg("Session closed")

	return nil
}

// Close shuts the application down: every still-open session is closed
// (cleanup, then finalize) and the rotation scheduler is stopped.
func (a *App) Close() error {
	a.mu.Lock()
	ids := make([]string, 0, len(a.open))
	for id := range a.open {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	var firstErr error
	for _, id := range ids {
		if err := a.CloseSession(id, true); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.rotation != nil {
		ctx := a.rotation.Stop()
		select {
		case <-ctx.Done():
		case <-time.After(5 * time.Second):
			a.Logger.Warn().Msg("Timed out waiting for rotation jobs to stop")
		}
		a.rotation = nil
	}

	a.Logger.Info().Msg("Application closed")
	return firstErr
}
