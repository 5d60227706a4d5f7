package vault

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// maxDiscoveryResults caps the candidate list presented for selection.
const maxDiscoveryResults = 10

// domainPattern is the best-effort fallback when URL parsing fails.
var domainPattern = regexp.MustCompile(`([a-z0-9][a-z0-9-]*(?:\.[a-z0-9][a-z0-9-]*)+)`)

// ExtractDomain parses the hostname out of a URL and strips a leading
// "www.". Falls back to a regex-based best-effort extraction when URL
// parsing fails; never returns an error.
func ExtractDomain(rawURL string) string {
	candidate := strings.TrimSpace(rawURL)
	if candidate == "" {
		return ""
	}

	parseTarget := candidate
	if !strings.Contains(parseTarget, "://") {
		parseTarget = "https://" + parseTarget
	}

	if parsed, err := url.Parse(parseTarget); err == nil && parsed.Hostname() != "" {
		host := strings.ToLower(parsed.Hostname())
		return strings.TrimPrefix(host, "www.")
	}

	if match := domainPattern.FindString(strings.ToLower(candidate)); match != "" {
		return strings.TrimPrefix(match, "www.")
	}

	return strings.ToLower(candidate)
}

// ExtractSiteKey returns the second-to-last dot-separated label of a domain
// (app.example.com -> "example"). An intentionally approximate fuzzy
// matching key for discovery, not a canonical identifier.
func ExtractSiteKey(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return domain
}

// Discovery matches a URL to candidate vault items interactively and
// persists the confirmed mapping as a SiteConfig. A rare, user-supervised
// foreground flow - blocking CLI calls are acceptable here.
type Discovery struct {
	providers     []interfaces.VaultProvider // priority order: primary first, fallback second
	configService interfaces.ConfigService
	in            io.Reader
	out           io.Writer
	logger        arbor.ILogger
}

// NewDiscovery creates a discovery engine over the given providers in
// priority order. in/out carry the interactive prompts (stdin/stdout in the
// CLI, buffers in tests).
func NewDiscovery(providers []interfaces.VaultProvider, configService interfaces.ConfigService, in io.Reader, out io.Writer, logger arbor.ILogger) *Discovery {
	return &Discovery{
		providers:     providers,
		configService: configService,
		in:            in,
		out:           out,
		logger:        logger,
	}
}

// Discover finds candidate vault items for the URL's site key, presents them
// for selection, and on explicit confirmation persists the mapping. Raw
// secret values are never written to the persisted config - only field names
// and item identifiers.
func (d *Discovery) Discover(ctx context.Context, rawURL string) (*models.SiteConfig, error) {
	domain := ExtractDomain(rawURL)
	siteKey := ExtractSiteKey(domain)
	if siteKey == "" {
		return nil, fmt.Errorf("cannot derive a site key from %q", rawURL)
	}

	type candidate struct {
		provider models.VaultProviderName
		item     models.VaultItem
	}
	var candidates []candidate

	for _, provider := range d.providers {
		lister, ok := provider.(interfaces.VaultLister)
		if !ok || !provider.IsAvailable() {
			continue
		}
		items, err := lister.ListItems(ctx, siteKey)
		if err != nil {
			d.logger.Warn().Err(err).Str("provider", string(provider.Name())).Msg("Vault listing failed during discovery")
			continue
		}
		for _, item := range items {
			candidates = append(candidates, candidate{provider: provider.Name(), item: item})
			if len(candidates) >= maxDiscoveryResults {
				break
			}
		}
		if len(candidates) >= maxDiscoveryResults {
			break
		}
	}

	if len(candidates) == 0 {
		return nil, &models.CredentialNotFoundError{Site: siteKey}
	}

	reader := bufio.NewReader(d.in)

	fmt.Fprintf(d.out, "Found %d vault item(s) matching %q:\n", len(candidates), siteKey)
	for i, c := range candidates {
		fmt.Fprintf(d.out, "  [%d] %s (%s)\n", i+1, c.item.Name, c.provider)
	}
	fmt.Fprintf(d.out, "Select an item [1-%d], or 0 to cancel: ", len(candidates))

	choice, err := readInt(reader)
	if err != nil || choice < 1 || choice > len(candidates) {
		return nil, fmt.Errorf("discovery cancelled")
	}

	selected := candidates[choice-1]
	cfg := buildSiteConfig(selected.provider, selected.item)

	fmt.Fprintf(d.out, "Mapping for %q:\n", siteKey)
	fmt.Fprintf(d.out, "  provider: %s\n  item:     %s\n", cfg.Provider, cfg.ItemIdentifier)
	for label, value := range selected.item.Fields {
		fmt.Fprintf(d.out, "  %-9s %s\n", label+":", maskSecret(value))
	}
	fmt.Fprintf(d.out, "Save this mapping? [y/N]: ")

	answer, _ := reader.ReadString('\n')
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		return nil, fmt.Errorf("discovery cancelled")
	}

	if err := d.configService.SaveSiteConfig(siteKey, cfg); err != nil {
		return nil, fmt.Errorf("failed to persist discovered mapping: %w", err)
	}

	d.logger.Info().Str("site", siteKey).Str("provider", string(cfg.Provider)).Msg("Persisted discovered site mapping")
	return cfg, nil
}

// buildSiteConfig maps the item's custom fields onto credential roles by
// label-substring matching.
func buildSiteConfig(provider models.VaultProviderName, item models.VaultItem) *models.SiteConfig {
	cfg := &models.SiteConfig{
		Provider:       provider,
		ItemIdentifier: item.ID,
	}
	if cfg.ItemIdentifier == "" {
		cfg.ItemIdentifier = item.Name
	}

	for label := range item.Fields {
		lower := strings.ToLower(label)
		switch {
		case strings.Contains(lower, "user"):
			cfg.UsernameField = label
		case strings.Contains(lower, "password"):
			cfg.PasswordField = label
		case strings.Contains(lower, "token"), strings.Contains(lower, "api"), strings.Contains(lower, "key"):
			cfg.TokenField = label
		}
	}

	return cfg
}

// maskSecret renders a value for interactive confirmation without revealing
// it. No code path prints a secret.
func maskSecret(value string) string {
	if value == "" {
		return "(empty)"
	}
	n := len(value)
	if n > 8 {
		n = 8
	}
	return strings.Repeat("*", n)
}

func readInt(reader *bufio.Reader) (int, error) {
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(line))
}
