package interfaces

import (
	"github.com/kestrelsec/browservault/internal/models"
)

// ConfigService exposes resolved configuration to the other services and
// persists discovered site mappings.
type ConfigService interface {
	// SiteConfig returns the configured vault mapping for a site key, or
	// nil when the site has no mapping (the discovery path handles that).
	SiteConfig(site string) *models.SiteConfig

	// SitePolicy returns the per-site policy, or nil when none is
	// configured. Absence of a policy means "no policy", not an error; the
	// caller supplies a safe default.
	SitePolicy(site string) *models.SitePolicy

	// SaveSiteConfig persists a discovered mapping. Only field names and
	// item identifiers are written - never secret values.
	SaveSiteConfig(site string, cfg *models.SiteConfig) error
}
