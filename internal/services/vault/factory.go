// Package vault implements the credential backend providers and the
// discovery engine that maps sites onto vault items.
package vault

import (
	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// NewProvider resolves a configured provider name to its instance. The
// provider set is closed - selection is a switch over the four variants, not
// a runtime registry lookup. An unknown name or an unavailable backend fails
// here, immediately, never deferred to first use.
func NewProvider(name models.VaultProviderName, config *common.Config, runner CommandRunner, logger arbor.ILogger) (interfaces.VaultProvider, error) {
	var provider interfaces.VaultProvider

	switch name {
	case models.ProviderOnePassword:
		provider = NewOnePasswordProvider(runner, logger)
	case models.ProviderBitwarden:
		provider = NewBitwardenProvider(runner, logger)
	case models.ProviderKeyring:
		provider = NewKeyringProvider(logger)
	case models.ProviderEnv:
		provider = NewEnvProvider()
	default:
		return nil, &models.ConfigurationError{
			Field:  "vault.provider",
			Reason: "unknown vault provider " + string(name),
		}
	}

	if !provider.IsAvailable() {
		return nil, unavailableError(name)
	}

	return provider, nil
}

// unavailableError builds the per-provider remediation hint surfaced when a
// configured backend cannot be used.
func unavailableError(name models.VaultProviderName) *models.VaultUnavailableError {
	remediation := map[models.VaultProviderName]string{
		models.ProviderOnePassword: "install the 1Password CLI and run 'op signin'",
		models.ProviderBitwarden:   "install the Bitwarden CLI and run 'bw login'",
		models.ProviderKeyring:     "no platform secret store is reachable on this system",
	}[name]

	return &models.VaultUnavailableError{
		Provider:    name,
		Reason:      "backend is not available",
		Remediation: remediation,
	}
}
