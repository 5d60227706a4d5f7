package vault

import (
	"context"
	"os"
	"strings"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// envPrefix is the naming convention for environment-supplied credentials:
// BROWSERVAULT_<SITE>_{USERNAME,PASSWORD,TOKEN}.
const envPrefix = "BROWSERVAULT_"

// EnvProvider reads credentials from environment variables. Always
// available; intended for CI and unattended runs where no interactive vault
// is reachable.
type EnvProvider struct{}

// NewEnvProvider creates an environment-variable provider.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{}
}

func (p *EnvProvider) Name() models.VaultProviderName {
	return models.ProviderEnv
}

func (p *EnvProvider) IsAvailable() bool {
	return true
}

// GetCredentials reads BROWSERVAULT_<SITE>_{USERNAME,PASSWORD,TOKEN}. The
// site key is upper-cased with non-alphanumerics mapped to underscores.
func (p *EnvProvider) GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error) {
	key := envSiteKey(site)

	creds := &models.VaultCredentials{
		Username: os.Getenv(envPrefix + key + "_USERNAME"),
		Password: os.Getenv(envPrefix + key + "_PASSWORD"),
		Token:    os.Getenv(envPrefix + key + "_TOKEN"),
	}

	if creds.IsEmpty() {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	return creds, nil
}

// envSiteKey normalizes a site key into an environment variable segment.
func envSiteKey(site string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(site) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

var _ interfaces.VaultProvider = (*EnvProvider)(nil)
