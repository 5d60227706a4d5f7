package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

const opBinary = "op"

// OnePasswordProvider resolves credentials through the 1Password CLI using
// op:// item-path addressing (op://vault/item/field).
type OnePasswordProvider struct {
	runner CommandRunner
	logger arbor.ILogger
}

// NewOnePasswordProvider creates a 1Password CLI provider.
func NewOnePasswordProvider(runner CommandRunner, logger arbor.ILogger) *OnePasswordProvider {
	return &OnePasswordProvider{runner: runner, logger: logger}
}

func (p *OnePasswordProvider) Name() models.VaultProviderName {
	return models.ProviderOnePassword
}

func (p *OnePasswordProvider) IsAvailable() bool {
	return p.runner.LookPath(opBinary)
}

// GetCredentials reads each configured field via 'op read'. The item
// identifier is either a full op:// path (fields are appended to it) or a
// bare item name (resolved in the default vault).
func (p *OnePasswordProvider) GetCredentials(ctx context.Context, site string, cfg *models.SiteConfig) (*models.VaultCredentials, error) {
	if cfg == nil || cfg.ItemIdentifier == "" {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	creds := &models.VaultCredentials{}

	fields := []struct {
		name string
		dest *string
	}{
		{fieldOrDefault(cfg.UsernameField, "username"), &creds.Username},
		{fieldOrDefault(cfg.PasswordField, "password"), &creds.Password},
		{cfg.TokenField, &creds.Token},
	}

	for _, f := range fields {
		if f.name == "" {
			continue
		}
		value, err := p.readField(ctx, cfg.ItemIdentifier, f.name)
		if err != nil {
			if isNotFound(err) {
				p.logger.Debug().Str("site", site).Str("field", f.name).Msg("1Password field not present")
				continue
			}
			return nil, err
		}
		*f.dest = value
	}

	if creds.IsEmpty() {
		return nil, &models.CredentialNotFoundError{Site: site, Provider: p.Name()}
	}

	return creds, nil
}

func (p *OnePasswordProvider) readField(ctx context.Context, item, field string) (string, error) {
	ref := item
	if strings.HasPrefix(item, "op://") {
		ref = strings.TrimSuffix(item, "/") + "/" + field
	} else {
		ref = fmt.Sprintf("op://Private/%s/%s", item, field)
	}

	out, err := p.runner.Run(ctx, opBinary, "read", ref)
	if err != nil {
		if isNotFound(err) {
			return "", err
		}
		return "", &models.VaultUnavailableError{
			Provider:    p.Name(),
			Reason:      err.Error(),
			Remediation: "run 'op signin' to authenticate the 1Password CLI",
		}
	}
	return strings.TrimSpace(string(out)), nil
}

// opItem is the subset of 'op item list --format json' output we consume.
// Parsed defensively: unknown fields are ignored, missing ones left empty.
type opItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URLs  []struct {
		Href string `json:"href"`
	} `json:"urls"`
}

// ListItems enumerates vault items for discovery, filtered by the site key.
func (p *OnePasswordProvider) ListItems(ctx context.Context, siteKey string) ([]models.VaultItem, error) {
	out, err := p.runner.Run(ctx, opBinary, "item", "list", "--format", "json")
	if err != nil {
		return nil, &models.VaultUnavailableError{
			Provider:    p.Name(),
			Reason:      err.Error(),
			Remediation: "run 'op signin' to authenticate the 1Password CLI",
		}
	}

	var raw []opItem
	if err := json.Unmarshal(out, &raw); err != nil {
		return nil, fmt.Errorf("unexpected 'op item list' output: %w", err)
	}

	items := make([]models.VaultItem, 0, len(raw))
	for _, r := range raw {
		item := models.VaultItem{ID: r.ID, Name: r.Title}
		if len(r.URLs) > 0 {
			item.URL = r.URLs[0].Href
		}
		if item.Matches(siteKey) {
			items = append(items, item)
		}
	}

	return items, nil
}

func fieldOrDefault(field, fallback string) string {
	if field != "" {
		return field
	}
	return fallback
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "isn't an item") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "doesn't exist")
}

var _ interfaces.VaultProvider = (*OnePasswordProvider)(nil)
var _ interfaces.VaultLister = (*OnePasswordProvider)(nil)
