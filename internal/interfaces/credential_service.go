package interfaces

import (
	"context"

	"github.com/kestrelsec/browservault/internal/models"
)

// CredentialService is the narrow boundary the action-execution layer calls
// to resolve site credentials. Cache first, then the configured or
// per-site vault provider; fresh results are re-cached encrypted.
type CredentialService interface {
	// GetSiteCredentials resolves credentials for a site: encrypted cache
	// first, vault provider on a miss. Fails with
	// *models.CredentialNotFoundError when no mapping resolves, or
	// *models.VaultUnavailableError when the backend cannot be used.
	GetSiteCredentials(ctx context.Context, site string) (*models.VaultCredentials, error)

	// GetCachedCredentials checks only the encrypted cache.
	GetCachedCredentials(site string) (*models.VaultCredentials, bool)

	// CacheCredentials stores credentials for a site using the resolved TTL
	// (site policy override, else the configured default).
	CacheCredentials(site string, creds *models.VaultCredentials) error
}
