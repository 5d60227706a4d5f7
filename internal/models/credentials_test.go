package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestVaultCredentialsIsEmpty(t *testing.T) {
	var nilCreds *VaultCredentials
	assert.True(t, nilCreds.IsEmpty())
	assert.True(t, (&VaultCredentials{}).IsEmpty())

	// Partial resolution is valid.
	assert.False(t, (&VaultCredentials{Token: "tok"}).IsEmpty())
	assert.False(t, (&VaultCredentials{Username: "alice"}).IsEmpty())
}

func TestVaultCredentialsWipe(t *testing.T) {
	creds := &VaultCredentials{Username: "alice", Password: "s3cret", Token: "tok"}
	creds.Wipe()
	assert.True(t, creds.IsEmpty())

	var nilCreds *VaultCredentials
	nilCreds.Wipe() // must not panic
}

func TestCachedCredentialEntryExpired(t *testing.T) {
	now := time.Now()
	entry := &CachedCredentialEntry{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, entry.Expired(now))
	assert.False(t, entry.Expired(now.Add(time.Minute)), "expiry boundary is still valid")
	assert.True(t, entry.Expired(now.Add(time.Minute+time.Nanosecond)))
}

func TestVaultItemMatches(t *testing.T) {
	item := &VaultItem{Name: "GitHub Work Account", URL: "https://github.com/login"}
	assert.True(t, item.Matches("github"))
	assert.True(t, item.Matches("GITHUB"))
	assert.False(t, item.Matches("gitlab"))

	notes := &VaultItem{Name: "Work", Notes: "used for example.com staging"}
	assert.True(t, notes.Matches("example"))
}

func TestErrorMessages(t *testing.T) {
	assert.Contains(t, (&ConfigurationError{Field: "vault.provider", Reason: "unknown"}).Error(), "vault.provider")

	err := &VaultUnavailableError{Provider: ProviderBitwarden, Reason: "locked", Remediation: "run 'bw login'"}
	assert.Contains(t, err.Error(), "bitwarden")
	assert.Contains(t, err.Error(), "bw login")

	assert.Contains(t, (&CredentialNotFoundError{Site: "github", Provider: ProviderEnv}).Error(), "github")
	assert.Contains(t, (&DecryptionError{Site: "github", Reason: "tag mismatch"}).Error(), "tag mismatch")
}
