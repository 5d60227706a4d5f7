package vault

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/zalando/go-keyring"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// keyringService is the service namespace under which entries are stored in
// the platform secret store.
const keyringService = "browservault"

// KeyringProvider reads from the platform secret store (macOS Keychain,
// Secret Service, Windows Credential Manager). Read-only, password field
// only - the platform stores hold a single secret per entry.
type KeyringProvider struct {
	logger arbor.ILogger
}

// NewKeyringProvider creates a platform secret store provider.
func NewKeyringProvider(logger arbor.ILogger) *KeyringProvider {
	return &KeyringProvider{logger: logger}
}

func (p *KeyringProvider) Name() models.VaultProviderName {
	return models.ProviderKeyring
}

// IsAvailable probes the platform store with a read of a well-known key.
// A missing entry still proves the store is reachable.
func (p *KeyringProvider) IsAvailable() bool {
	_, err := keyring.Get(keyringService, "availability-probe")
	return err == nil || err == keyring.ErrNotFound
}

// GetCredentials reads the site's password from the platform store. The item
// identifier (or the site key itself) is the entry name; username comes from
// the site config if present, since the platform store has no username field.
func (p *KeyringProvider) GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error) {
	entry := site
	if cfg != nil && cfg.ItemIdentifier != "" {
		entry = cfg.ItemIdentifier
	}

	password, err := keyring.Get(keyringService, entry)
	if err != nil {
		if err == keyring.ErrNotFound {
			return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
		}
		return nil, &models.VaultUnavailableError{
			Provider:    p.Name(),
			Reason:      err.Error(),
			Remediation: "verify the platform secret store is unlocked for this user",
		}
	}

	// Partial resolution: the platform store yields only a password, which
	// is a valid credential set on its own.
	return &models.VaultCredentials{Password: password}, nil
}

var _ interfaces.VaultProvider = (*KeyringProvider)(nil)
