// Package credentials wires the encrypted cache and the vault providers
// into the credential-resolution flow the action executor consumes.
package credentials

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// Service resolves site credentials: cache first, then the configured or
// per-site vault provider. One provider instance per configured backend is
// constructed at bootstrap, so availability failures surface at startup.
type Service struct {
	primary       interfaces.VaultProvider
	fallback      interfaces.VaultProvider // may be nil
	cache         interfaces.CredentialCache
	configService interfaces.ConfigService
	defaultTTL    time.Duration
	logger        arbor.ILogger
}

// NewService creates the credential-resolution service. fallback and cache
// may be nil (no fallback provider, caching disabled).
func NewService(primary, fallback interfaces.VaultProvider, cache interfaces.CredentialCache, configService interfaces.ConfigService, defaultTTL time.Duration, logger arbor.ILogger) *Service {
	return &Service{
		primary:       primary,
		fallback:      fallback,
		cache:         cache,
		configService: configService,
		defaultTTL:    defaultTTL,
		logger:        logger,
	}
}

// GetSiteCredentials resolves credentials for a site. The encrypted cache
// is consulted first; on a miss the vault provider resolves and the result
// is cached before returning. Vault failures are reported immediately -
// never retried - so misconfiguration is not masked.
func (s *Service) GetSiteCredentials(ctx context.Context, site string) (*models.VaultCredentials, error) {
	if creds, ok := s.GetCachedCredentials(site); ok {
		s.logger.Debug().Str("site", site).Msg("Credential cache hit")
		return creds, nil
	}

	cfg := s.configService.SiteConfig(site)

	provider, err := s.providerFor(site, cfg)
	if err != nil {
		return nil, err
	}

	creds, err := provider.GetCredentials(ctx, site, cfg)
	if err != nil {
		return nil, err
	}

	if err := s.CacheCredentials(site, creds); err != nil {
		// Caching is an optimization on this path; resolution already
		// succeeded. Never log the credential values themselves.
		s.logger.Warn().Err(err).Str("site", site).Msg("Failed to cache resolved credentials")
	}

	return creds, nil
}

// providerFor selects the backend for a site. A per-site provider override
// must name an initialized backend; anything else is reported as
// misconfiguration rather than silently served from the wrong vault.
func (s *Service) providerFor(site string, cfg *models.SiteConfig) (interfaces.VaultProvider, error) {
	if cfg == nil || cfg.Provider == "" || cfg.Provider == s.primary.Name() {
		return s.primary, nil
	}
	if s.fallback != nil && cfg.Provider == s.fallback.Name() {
		return s.fallback, nil
	}
	return nil, &models.ConfigurationError{
		Field:  "vault.sites." + site + ".provider",
		Reason: "provider " + string(cfg.Provider) + " is not an initialized backend; configure it as the primary or fallback provider",
	}
}

// GetCachedCredentials checks only the encrypted cache. Expired or
// undecryptable entries surface as a miss.
func (s *Service) GetCachedCredentials(site string) (*models.VaultCredentials, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(site)
}

// CacheCredentials stores credentials with the site's effective TTL: the
// site policy override when present, else the configured default.
func (s *Service) CacheCredentials(site string, creds *models.VaultCredentials) error {
	if s.cache == nil {
		return nil
	}

	ttl := s.defaultTTL
	if policy := s.configService.SitePolicy(site); policy != nil && policy.SessionTTLMinutes > 0 {
		ttl = time.Duration(policy.SessionTTLMinutes) * time.Minute
	}

	return s.cache.Put(site, creds, ttl)
}

var _ interfaces.CredentialService = (*Service)(nil)
