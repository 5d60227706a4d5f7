package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

const bwBinary = "bw"

// authState tracks the Bitwarden CLI authentication state machine:
// unauthenticated -> logging_in -> unlocking -> unlocked. Any terminal
// failure to reach unlocked is fatal with a remediation hint - never a
// silent retry, so misconfiguration is reported instead of masked.
type authState string

const (
	stateUnauthenticated authState = "unauthenticated"
	stateLoggingIn       authState = "logging_in"
	stateUnlocking       authState = "unlocking"
	stateUnlocked        authState = "unlocked"
)

// BitwardenProvider resolves credentials through the Bitwarden CLI using
// search-by-name lookup.
type BitwardenProvider struct {
	runner  CommandRunner
	logger  arbor.ILogger
	state   authState
	session string
}

// NewBitwardenProvider creates a Bitwarden CLI provider.
func NewBitwardenProvider(runner CommandRunner, logger arbor.ILogger) *BitwardenProvider {
	return &BitwardenProvider{
		runner: runner,
		logger: logger,
		state:  stateUnauthenticated,
	}
}

func (p *BitwardenProvider) Name() models.VaultProviderName {
	return models.ProviderBitwarden
}

func (p *BitwardenProvider) IsAvailable() bool {
	return p.runner.LookPath(bwBinary)
}

// State returns the current authentication state.
func (p *BitwardenProvider) State() authState {
	return p.state
}

// bwStatus is the subset of 'bw status' output we consume.
type bwStatus struct {
	Status string `json:"status"` // "unauthenticated", "locked", "unlocked"
}

// ensureUnlocked drives the state machine to unlocked. Login requires
// API-style credentials (BW_CLIENTID/BW_CLIENTSECRET) in the environment;
// unlock uses either a master passphrase (BW_PASSWORD) or reuse of an
// existing valid session token (BW_SESSION).
func (p *BitwardenProvider) ensureUnlocked(ctx context.Context) error {
	if p.state == stateUnlocked {
		return nil
	}

	out, err := p.runner.Run(ctx, bwBinary, "status")
	if err != nil {
		return p.fatal("cannot query vault status: "+err.Error(),
			"check that the Bitwarden CLI is installed and on PATH")
	}

	var status bwStatus
	if err := json.Unmarshal(out, &status); err != nil {
		return p.fatal("unexpected 'bw status' output",
			"upgrade the Bitwarden CLI; the status output could not be parsed")
	}

	if status.Status == "unauthenticated" {
		if err := p.login(ctx); err != nil {
			return err
		}
	}

	if status.Status == "unlocked" && os.Getenv("BW_SESSION") != "" {
		// An exported session token already unlocks the vault.
		p.session = os.Getenv("BW_SESSION")
		p.state = stateUnlocked
		return nil
	}

	return p.unlock(ctx)
}

// login transitions unauthenticated -> logging_in. The transition is only
// taken when API-key credentials are present in the environment.
func (p *BitwardenProvider) login(ctx context.Context) error {
	if os.Getenv("BW_CLIENTID") == "" || os.Getenv("BW_CLIENTSECRET") == "" {
		return p.fatal("vault is not logged in and no API credentials are present",
			"run 'bw login' interactively or export BW_CLIENTID and BW_CLIENTSECRET")
	}

	p.state = stateLoggingIn
	if _, err := p.runner.Run(ctx, bwBinary, "login", "--apikey"); err != nil {
		return p.fatal("API-key login failed: "+err.Error(),
			"verify BW_CLIENTID and BW_CLIENTSECRET are valid for this account")
	}

	return nil
}

// unlock transitions to unlocked via session-token reuse or a master
// passphrase.
func (p *BitwardenProvider) unlock(ctx context.Context) error {
	p.state = stateUnlocking

	if session := os.Getenv("BW_SESSION"); session != "" {
		out, err := p.runner.Run(ctx, bwBinary, "status", "--session", session)
		if err == nil {
			var status bwStatus
			if json.Unmarshal(out, &status) == nil && status.Status == "unlocked" {
				p.session = session
				p.state = stateUnlocked
				p.logger.Debug().Msg("Reusing existing Bitwarden session token")
				return nil
			}
		}
		p.logger.Debug().Msg("Stale BW_SESSION token; falling through to passphrase unlock")
	}

	if os.Getenv("BW_PASSWORD") == "" {
		return p.fatal("vault is locked and no unlock path is available",
			"export BW_PASSWORD with the master passphrase or BW_SESSION with a valid session token")
	}

	out, err := p.runner.Run(ctx, bwBinary, "unlock", "--passwordenv", "BW_PASSWORD", "--raw")
	if err != nil {
		return p.fatal("master-passphrase unlock failed: "+err.Error(),
			"verify BW_PASSWORD matches the account's master passphrase")
	}

	p.session = strings.TrimSpace(string(out))
	if p.session == "" {
		return p.fatal("unlock produced no session token",
			"upgrade the Bitwarden CLI; 'bw unlock --raw' returned empty output")
	}

	p.state = stateUnlocked
	return nil
}

// fatal records the terminal state and builds the VaultUnavailableError.
func (p *BitwardenProvider) fatal(reason, remediation string) error {
	p.state = stateUnauthenticated
	return &models.VaultUnavailableError{
		Provider:    p.Name(),
		Reason:      reason,
		Remediation: remediation,
	}
}

// bwItem is the subset of 'bw list items' output we consume.
type bwItem struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Notes string `json:"notes"`
	Login struct {
		Username string `json:"username"`
		Password string `json:"password"`
		URIs     []struct {
			URI string `json:"uri"`
		} `json:"uris"`
	} `json:"login"`
	Fields []struct {
		Name  string `json:"name"`
		Value string `json:"value"`
	} `json:"fields"`
}

func (p *BitwardenProvider) searchItems(ctx context.Context, query string) ([]bwItem, error) {
	out, err := p.runner.Run(ctx, bwBinary, "list", "items", "--search", query, "--session", p.session)
	if err != nil {
		return nil, &models.VaultUnavailableError{
			Provider:    p.Name(),
			Reason:      "item search failed: " + err.Error(),
			Remediation: "run 'bw sync' and retry",
		}
	}

	var items []bwItem
	if err := json.Unmarshal(out, &items); err != nil {
		return nil, fmt.Errorf("unexpected 'bw list items' output: %w", err)
	}
	return items, nil
}

// GetCredentials searches the vault by the configured item identifier and
// extracts the configured fields (login username/password by default, custom
// fields by label otherwise).
func (p *BitwardenProvider) GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error) {
	if cfg == nil || cfg.ItemIdentifier == "" {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	if err := p.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	items, err := p.searchItems(ctx, cfg.ItemIdentifier)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	// Prefer an exact name match, otherwise take the first search hit.
	item := items[0]
	for _, candidate := range items {
		if strings.EqualFold(candidate.Name, cfg.ItemIdentifier) || candidate.ID == cfg.ItemIdentifier {
			item = candidate
			break
		}
	}

	creds := &models.VaultCredentials{
		Username: item.Login.Username,
		Password: item.Login.Password,
	}

	custom := make(map[string]string, len(item.Fields))
	for _, f := range item.Fields {
		custom[strings.ToLower(f.Name)] = f.Value
	}
	if cfg.UsernameField != "" {
		if v, ok := custom[strings.ToLower(cfg.UsernameField)]; ok {
			creds.Username = v
		}
	}
	if cfg.PasswordField != "" {
		if v, ok := custom[strings.ToLower(cfg.PasswordField)]; ok {
			creds.Password = v
		}
	}
	if cfg.TokenField != "" {
		if v, ok := custom[strings.ToLower(cfg.TokenField)]; ok {
			creds.Token = v
		}
	}

	if creds.IsEmpty() {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	return creds, nil
}

// ListItems enumerates matching vault items for discovery.
func (p *BitwardenProvider) ListItems(ctx context.Context, siteKey string) ([]models.VaultItem, error) {
	if err := p.ensureUnlocked(ctx); err != nil {
		return nil, err
	}

	raw, err := p.searchItems(ctx, siteKey)
	if err != nil {
		return nil, err
	}

	items := make([]models.VaultItem, 0, len(raw))
	for _, r := range raw {
		item := models.VaultItem{
			ID:     r.ID,
			Name:   r.Name,
			Notes:  r.Notes,
			Fields: map[string]string{},
		}
		if len(r.Login.URIs) > 0 {
			item.URL = r.Login.URIs[0].URI
		}
		if r.Login.Username != "" {
			item.Fields["username"] = r.Login.Username
		}
		if r.Login.Password != "" {
			item.Fields["password"] = r.Login.Password
		}
		for _, f := range r.Fields {
			item.Fields[f.Name] = f.Value
		}
		if item.Matches(siteKey) {
			items = append(items, item)
		}
	}

	return items, nil
}

var _ interfaces.VaultProvider = (*BitwardenProvider)(nil)
var _ interfaces.VaultLister = (*BitwardenProvider)(nil)
