package interfaces

import (
	"time"

	"github.com/kestrelsec/browservault/internal/models"
)

// CredentialCache stores credentials encrypted at rest with a TTL. All
// failure modes on the read path (expiry, wrong key, corruption) surface as
// a miss, never as an error that unwinds the caller.
type CredentialCache interface {
	// Get returns the cached credentials for a site, or ok=false on any
	// miss: absent, expired (entry is evicted), or undecryptable (entry is
	// evicted).
	Get(site string) (*models.VaultCredentials, bool)

	// Put encrypts and stores credentials for a site with the given TTL,
	// replacing any existing entry for that site and pruning all expired
	// entries. Fails with *models.ConfigurationError if the cache passphrase
	// was not supplied.
	Put(site string, creds *models.VaultCredentials, ttl time.Duration) error

	// Clear deletes the cache file and drops key material from memory.
	Clear() error
}
