package models

import (
	"strings"
	"time"
)

// VaultProviderName identifies a credential backend. The set is closed:
// providers are selected by switch in the vault factory, not looked up in a
// runtime registry.
type VaultProviderName string

const (
	// ProviderOnePassword uses the 1Password CLI with op:// item-path addressing
	ProviderOnePassword VaultProviderName = "onepassword"
	// ProviderBitwarden uses the Bitwarden CLI with search-by-name lookup
	ProviderBitwarden VaultProviderName = "bitwarden"
	// ProviderKeyring uses the platform secret store (read-only, password field only)
	ProviderKeyring VaultProviderName = "keyring"
	// ProviderEnv reads BROWSERVAULT_<SITE>_{USERNAME,PASSWORD,TOKEN} variables
	ProviderEnv VaultProviderName = "env"
)

// VaultCredentials is the only payload ever held in plaintext, and only
// transiently in memory or inside an encrypted cache entry. Never logged.
type VaultCredentials struct {
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Token    string `json:"token,omitempty"`
}

// IsEmpty reports whether no credential field resolved. An authentication
// step must not proceed against an empty credential set; partial resolution
// (e.g. token only) is valid.
func (c *VaultCredentials) IsEmpty() bool {
	return c == nil || (c.Username == "" && c.Password == "" && c.Token == "")
}

// Wipe overwrites the credential fields in place. Best-effort memory hygiene
// for values that have been cached or handed off.
func (c *VaultCredentials) Wipe() {
	if c == nil {
		return
	}
	c.Username = strings.Repeat("\x00", len(c.Username))
	c.Password = strings.Repeat("\x00", len(c.Password))
	c.Token = strings.Repeat("\x00", len(c.Token))
	c.Username = ""
	c.Password = ""
	c.Token = ""
}

// SiteConfig maps a site key to a vault item. Only field names and item
// identifiers are persisted here - never secret values.
type SiteConfig struct {
	Provider       VaultProviderName `toml:"provider" json:"provider" validate:"omitempty,oneof=onepassword bitwarden keyring env"`
	ItemIdentifier string            `toml:"item" json:"item"`
	UsernameField  string            `toml:"username_field,omitempty" json:"username_field,omitempty"`
	PasswordField  string            `toml:"password_field,omitempty" json:"password_field,omitempty"`
	TokenField     string            `toml:"token_field,omitempty" json:"token_field,omitempty"`
	Policy         *SitePolicy       `toml:"policy,omitempty" json:"policy,omitempty"`
}

// ApprovalTier controls how the (external) approval flow gates credential use.
type ApprovalTier string

const (
	ApprovalNone   ApprovalTier = "none"
	ApprovalPrompt ApprovalTier = "prompt"
	ApprovalAlways ApprovalTier = "always"
	Approval2FA    ApprovalTier = "2fa"
)

// SitePolicy is read-only input to the approval flow. Absence of a policy
// means "no policy", not an error; the caller supplies its own safe default.
type SitePolicy struct {
	ApprovalTier      ApprovalTier `toml:"approval_tier" json:"approval_tier" validate:"omitempty,oneof=none prompt always 2fa"`
	SessionTTLMinutes int          `toml:"session_ttl_minutes,omitempty" json:"session_ttl_minutes,omitempty"`
	Require2FA        bool         `toml:"require_2fa" json:"require_2fa"`
}

// CachedCredentialEntry is one encrypted-at-rest cache record. Exactly one
// live entry exists per site key; writing a new entry for a site first
// removes any existing entry for that site.
type CachedCredentialEntry struct {
	Site       string    `json:"site"`
	Ciphertext string    `json:"ciphertext"` // base64
	AuthTag    string    `json:"auth_tag"`   // base64
	IV         string    `json:"iv"`         // base64
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the entry's TTL has elapsed.
func (e *CachedCredentialEntry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// VaultItem is a provider-agnostic listing entry returned during discovery.
// Fields holds custom field labels mapped to values; values are shown masked
// and are never persisted.
type VaultItem struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Notes  string            `json:"notes,omitempty"`
	URL    string            `json:"url,omitempty"`
	Fields map[string]string `json:"-"`
}

// Matches reports whether the item's name, notes, or URL contains the site
// key (case-insensitive substring - the discovery heuristic, not an exact
// identifier match).
func (i *VaultItem) Matches(siteKey string) bool {
	key := strings.ToLower(siteKey)
	return strings.Contains(strings.ToLower(i.Name), key) ||
		strings.Contains(strings.ToLower(i.Notes), key) ||
		strings.Contains(strings.ToLower(i.URL), key)
}
