package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/kestrelsec/browservault/internal/app"
	"github.com/kestrelsec/browservault/internal/services/vault"
)

// runDiscover walks the interactive vault-item discovery flow for a URL and
// persists the confirmed mapping. Only item identifiers and field names are
// saved; secret values never leave the vault.
func runDiscover(configPath string, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	rawURL := fs.String("url", "", "Site URL to discover a vault mapping for (required)")
	timeout := fs.Duration("timeout", 2*time.Minute, "Overall discovery timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *rawURL == "" {
		fs.Usage()
		return fmt.Errorf("-url is required")
	}

	application, err := app.New(config, configPath, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg, err := application.Discovery.Discover(ctx, *rawURL)
	if err != nil {
		return err
	}

	site := vault.ExtractSiteKey(vault.ExtractDomain(*rawURL))
	fmt.Printf("Saved mapping for %q: provider=%s item=%s\n", site, cfg.Provider, cfg.ItemIdentifier)
	return nil
}
