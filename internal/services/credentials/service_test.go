package credentials

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

type fakeProvider struct {
	name  models.VaultProviderName
	creds *models.VaultCredentials
	err   error
	calls int
}

func (p *fakeProvider) Name() models.VaultProviderName { return p.name }
func (p *fakeProvider) IsAvailable() bool              { return true }
func (p *fakeProvider) GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error) {
	p.calls++
	return p.creds, p.err
}

type fakeCache struct {
	entries map[string]*models.VaultCredentials
	ttls    map[string]time.Duration
	putErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: map[string]*models.VaultCredentials{},
		ttls:    map[string]time.Duration{},
	}
}

func (c *fakeCache) Get(site string) (*models.VaultCredentials, bool) {
	creds, ok := c.entries[site]
	return creds, ok
}

func (c *fakeCache) Put(site string, creds *models.VaultCredentials, ttl time.Duration) error {
	if c.putErr != nil {
		return c.putErr
	}
	c.entries[site] = creds
	c.ttls[site] = ttl
	return nil
}

func (c *fakeCache) Clear() error {
	c.entries = map[string]*models.VaultCredentials{}
	return nil
}

type fakeConfig struct {
	sites map[string]*models.SiteConfig
}

func (c *fakeConfig) SiteConfig(site string) *models.SiteConfig {
	return c.sites[site]
}

func (c *fakeConfig) SitePolicy(site string) *models.SitePolicy {
	if cfg := c.sites[site]; cfg != nil {
		return cfg.Policy
	}
	return nil
}

func (c *fakeConfig) SaveSiteConfig(site string, cfg *models.SiteConfig) error {
	c.sites[site] = cfg
	return nil
}

var (
	_ interfaces.VaultProvider   = (*fakeProvider)(nil)
	_ interfaces.CredentialCache = (*fakeCache)(nil)
	_ interfaces.ConfigService   = (*fakeConfig)(nil)
)

func TestGetSiteCredentialsCacheHitSkipsVault(t *testing.T) {
	provider := &fakeProvider{name: models.ProviderEnv}
	cache := newFakeCache()
	cache.entries["github"] = &models.VaultCredentials{Username: "cached"}

	svc := NewService(provider, nil, cache, &fakeConfig{sites: map[string]*models.SiteConfig{}}, 15*time.Minute, arbor.NewLogger())

	creds, err := svc.GetSiteCredentials(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "cached", creds.Username)
	assert.Zero(t, provider.calls)
}

func TestGetSiteCredentialsMissResolvesAndCaches(t *testing.T) {
	provider := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "fresh"}}
	cache := newFakeCache()

	svc := NewService(provider, nil, cache, &fakeConfig{sites: map[string]*models.SiteConfig{}}, 15*time.Minute, arbor.NewLogger())

	creds, err := svc.GetSiteCredentials(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "fresh", creds.Password)
	assert.Equal(t, 1, provider.calls)

	cached, ok := cache.Get("github")
	require.True(t, ok)
	assert.Equal(t, "fresh", cached.Password)
	assert.Equal(t, 15*time.Minute, cache.ttls["github"])
}

func TestGetSiteCredentialsVaultErrorNotMasked(t *testing.T) {
	provider := &fakeProvider{
		name: models.ProviderBitwarden,
		err:  &models.VaultUnavailableError{Provider: models.ProviderBitwarden, Reason: "locked"},
	}
	svc := NewService(provider, nil, newFakeCache(), &fakeConfig{sites: map[string]*models.SiteConfig{}}, 15*time.Minute, arbor.NewLogger())

	_, err := svc.GetSiteCredentials(context.Background(), "github")
	var unavailable *models.VaultUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, 1, provider.calls, "vault failures are reported, never retried")
}

func TestGetSiteCredentialsCacheWriteFailureTolerated(t *testing.T) {
	provider := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "fresh"}}
	cache := newFakeCache()
	cache.putErr = assert.AnError

	svc := NewService(provider, nil, cache, &fakeConfig{sites: map[string]*models.SiteConfig{}}, 15*time.Minute, arbor.NewLogger())

	creds, err := svc.GetSiteCredentials(context.Background(), "github")
	require.NoError(t, err, "a cache write failure must not fail resolution")
	assert.Equal(t, "fresh", creds.Password)
}

func TestSitePolicyTTLOverride(t *testing.T) {
	provider := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "x"}}
	cache := newFakeCache()
	cfg := &fakeConfig{sites: map[string]*models.SiteConfig{
		"banking": {Policy: &models.SitePolicy{SessionTTLMinutes: 5}},
	}}

	svc := NewService(provider, nil, cache, cfg, 15*time.Minute, arbor.NewLogger())
	require.NoError(t, svc.CacheCredentials("banking", &models.VaultCredentials{Password: "x"}))
	assert.Equal(t, 5*time.Minute, cache.ttls["banking"])
}

func TestPerSiteProviderSelectsFallback(t *testing.T) {
	primary := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "from-env"}}
	fallback := &fakeProvider{name: models.ProviderBitwarden, creds: &models.VaultCredentials{Password: "from-bw"}}
	cfg := &fakeConfig{sites: map[string]*models.SiteConfig{
		"github": {Provider: models.ProviderBitwarden, ItemIdentifier: "GitHub"},
	}}

	svc := NewService(primary, fallback, newFakeCache(), cfg, 15*time.Minute, arbor.NewLogger())

	creds, err := svc.GetSiteCredentials(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "from-bw", creds.Password)
	assert.Zero(t, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestPerSiteProviderNotInitializedFails(t *testing.T) {
	primary := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "from-env"}}
	cfg := &fakeConfig{sites: map[string]*models.SiteConfig{
		"github": {Provider: models.ProviderKeyring, ItemIdentifier: "GitHub"},
	}}

	svc := NewService(primary, nil, newFakeCache(), cfg, 15*time.Minute, arbor.NewLogger())

	_, err := svc.GetSiteCredentials(context.Background(), "github")
	require.Error(t, err, "a site routed to an uninitialized backend must not be served by another provider")

	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Field, "github")
	assert.Zero(t, primary.calls, "no backend may be consulted for a misrouted site")
}

func TestPerSiteProviderNotFallbackFails(t *testing.T) {
	primary := &fakeProvider{name: models.ProviderEnv}
	fallback := &fakeProvider{name: models.ProviderBitwarden}
	cfg := &fakeConfig{sites: map[string]*models.SiteConfig{
		"github": {Provider: models.ProviderOnePassword, ItemIdentifier: "GitHub"},
	}}

	svc := NewService(primary, fallback, newFakeCache(), cfg, 15*time.Minute, arbor.NewLogger())

	_, err := svc.GetSiteCredentials(context.Background(), "github")
	var cfgErr *models.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Zero(t, primary.calls)
	assert.Zero(t, fallback.calls)
}

func TestNilCacheDisablesCaching(t *testing.T) {
	provider := &fakeProvider{name: models.ProviderEnv, creds: &models.VaultCredentials{Password: "x"}}
	svc := NewService(provider, nil, nil, &fakeConfig{sites: map[string]*models.SiteConfig{}}, 15*time.Minute, arbor.NewLogger())

	_, ok := svc.GetCachedCredentials("github")
	assert.False(t, ok)

	creds, err := svc.GetSiteCredentials(context.Background(), "github")
	require.NoError(t, err)
	assert.Equal(t, "x", creds.Password)
	require.NoError(t, svc.CacheCredentials("github", creds))
}
