// Package config exposes resolved configuration to the other services and
// persists discovered site mappings.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// Service wraps the loaded configuration. Site-map mutation (from
// discovery) is the only write path; everything else is read-only.
type Service struct {
	mu     sync.RWMutex
	config *common.Config
	path   string
}

// NewService creates a config service over an already-loaded configuration.
// path is where SaveSiteConfig persists updates (empty = default path).
func NewService(config *common.Config, path string) *Service {
	return &Service{config: config, path: path}
}

// GetConfig returns the underlying configuration.
func (s *Service) GetConfig() *common.Config {
	return s.config
}

// DefaultTTL returns the credential cache TTL.
func (s *Service) DefaultTTL() time.Duration {
	return time.Duration(s.config.Security.DefaultTTLMinutes) * time.Minute
}

// SiteConfig returns the configured vault mapping for a site key, or nil.
func (s *Service) SiteConfig(site string) *models.SiteConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if cfg, ok := s.config.Vault.Sites[site]; ok {
		out := cfg
		return &out
	}
	return nil
}

// SitePolicy returns the per-site policy, or nil when none is configured.
// Absence of a policy means "no policy", not an error.
func (s *Service) SitePolicy(site string) *models.SitePolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.config.Vault.Sites[site]
	if !ok || cfg.Policy == nil {
		return nil
	}
	policy := *cfg.Policy
	return &policy
}

// SaveSiteConfig persists a discovered mapping. Only field names and item
// identifiers are written - the discovery flow never hands secret values
// to this path.
func (s *Service) SaveSiteConfig(site string, cfg *models.SiteConfig) error {
	if site == "" || cfg == nil {
		return fmt.Errorf("site and config are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Vault.Sites == nil {
		s.config.Vault.Sites = make(map[string]models.SiteConfig)
	}
	s.config.Vault.Sites[site] = *cfg

	return common.SaveConfig(s.config, s.path)
}

var _ interfaces.ConfigService = (*Service)(nil)
