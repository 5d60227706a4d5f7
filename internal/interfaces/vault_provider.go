package interfaces

import (
	"context"

	"github.com/kestrelsec/browservault/internal/models"
)

// VaultProvider is the uniform contract over credential backends. The
// variant set is closed (1Password CLI, Bitwarden CLI, OS keyring,
// environment); the vault factory selects an implementation by switch on the
// configured provider name.
type VaultProvider interface {
	// Name returns the provider's configured name.
	Name() models.VaultProviderName

	// IsAvailable reports whether the backend can be used at all (CLI on
	// PATH, platform store reachable). Availability is checked at factory
	// time - an unavailable configured provider fails immediately, not on
	// first use.
	IsAvailable() bool

	// GetCredentials resolves the site's credentials from the backend.
	// Fails with *models.VaultUnavailableError when the backend cannot be
	// reached or unlocked, or *models.CredentialNotFoundError when the item
	// does not exist.
	GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error)
}

// VaultLister is implemented by providers that can enumerate items for
// credential discovery. The keyring and env providers are not listable.
type VaultLister interface {
	// ListItems returns candidate items whose name, notes, or URL matches
	// the site key. Implementations cap results defensively.
	ListItems(ctx context.Context, siteKey string) ([]models.VaultItem, error)
}
