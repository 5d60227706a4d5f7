package models

import (
	"fmt"
)

// ConfigurationError indicates missing or invalid configuration, including a
// missing mandatory cache-encryption passphrase. Fatal: the operator must fix
// the configuration before the core can proceed.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error (%s): %s", e.Field, e.Reason)
}

// VaultUnavailableError indicates the backend CLI is missing or its
// authentication state machine never reached the unlocked state. Fatal, with
// a specific remediation hint; never retried silently.
type VaultUnavailableError struct {
	Provider    VaultProviderName
	Reason      string
	Remediation string
}

func (e *VaultUnavailableError) Error() string {
	if e.Remediation != "" {
		return fmt.Sprintf("vault %q unavailable: %s (%s)", e.Provider, e.Reason, e.Remediation)
	}
	return fmt.Sprintf("vault %q unavailable: %s", e.Provider, e.Reason)
}

// CredentialNotFoundError indicates no configured or discovered mapping
// exists for a site. Recoverable: the caller can fall into discovery or
// manual entry.
type CredentialNotFoundError struct {
	Site     string
	Provider VaultProviderName
}

func (e *CredentialNotFoundError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("no credentials found for site %q in vault %q", e.Site, e.Provider)
	}
	return fmt.Sprintf("no credentials found for site %q", e.Site)
}

// DecryptionError indicates a corrupted cache entry or key mismatch. The
// cache self-heals by evicting the entry and reporting a miss; this error is
// absorbed inside the cache layer and never unwinds the caller.
type DecryptionError struct {
	Site   string
	Reason string
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt cache entry for site %q: %s", e.Site, e.Reason)
}
