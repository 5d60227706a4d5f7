package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/models"
)

func newTestService(t *testing.T) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browservault.toml")
	config := common.NewDefaultConfig()
	config.Vault.Sites = map[string]models.SiteConfig{
		"github": {
			Provider:       models.ProviderBitwarden,
			ItemIdentifier: "GitHub",
			Policy:         &models.SitePolicy{ApprovalTier: models.ApprovalPrompt, SessionTTLMinutes: 5},
		},
	}
	return NewService(config, path), path
}

func TestSiteConfigReturnsCopy(t *testing.T) {
	svc, _ := newTestService(t)

	cfg := svc.SiteConfig("github")
	require.NotNil(t, cfg)
	assert.Equal(t, "GitHub", cfg.ItemIdentifier)

	// Mutating the returned struct must not leak into the service.
	cfg.ItemIdentifier = "Mutated"
	assert.Equal(t, "GitHub", svc.SiteConfig("github").ItemIdentifier)
}

func TestSiteConfigUnknownSite(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Nil(t, svc.SiteConfig("unmapped"))
}

func TestSitePolicy(t *testing.T) {
	svc, _ := newTestService(t)

	policy := svc.SitePolicy("github")
	require.NotNil(t, policy)
	assert.Equal(t, models.ApprovalPrompt, policy.ApprovalTier)
	assert.Equal(t, 5, policy.SessionTTLMinutes)

	// No mapping, or a mapping without a policy, both mean "no policy".
	assert.Nil(t, svc.SitePolicy("unmapped"))
}

func TestSaveSiteConfigPersists(t *testing.T) {
	svc, path := newTestService(t)

	err := svc.SaveSiteConfig("gitlab", &models.SiteConfig{
		Provider:       models.ProviderOnePassword,
		ItemIdentifier: "GitLab",
	})
	require.NoError(t, err)

	assert.Equal(t, "GitLab", svc.SiteConfig("gitlab").ItemIdentifier)

	// Reload from disk: the mapping survived, existing mappings untouched.
	loaded, err := common.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "GitLab", loaded.Vault.Sites["gitlab"].ItemIdentifier)
	assert.Equal(t, "GitHub", loaded.Vault.Sites["github"].ItemIdentifier)
}

func TestSaveSiteConfigValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Error(t, svc.SaveSiteConfig("", &models.SiteConfig{ItemIdentifier: "X"}))
	assert.Error(t, svc.SaveSiteConfig("site", nil))
}

func TestDefaultTTL(t *testing.T) {
	svc, _ := newTestService(t)
	assert.Equal(t, svc.GetConfig().Security.DefaultTTLMinutes, int(svc.DefaultTTL().Minutes()))
}
