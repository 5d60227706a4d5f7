package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/services/cache"
)

// runCache operates on the encrypted credential cache. The passphrase comes
// from the environment, falling back to a masked terminal prompt; it is
// never accepted as a command-line argument.
func runCache(args []string) error {
	fs := flag.NewFlagSet("cache", flag.ExitOnError)
	clear := fs.Bool("clear", false, "Delete the cache file and drop key material")
	check := fs.String("check", "", "Report whether a non-expired entry exists for a site key")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*clear && *check == "" {
		fs.Usage()
		return fmt.Errorf("one of -clear or -check is required")
	}

	passphrase, err := cachePassphrase()
	if err != nil {
		return err
	}

	cacheService, err := cache.NewService(common.ConfigDir(), passphrase, logger)
	if err != nil {
		return err
	}

	if *clear {
		if err := cacheService.Clear(); err != nil {
			return err
		}
		fmt.Println("Credential cache cleared")
		return nil
	}

	creds, ok := cacheService.Get(*check)
	if !ok {
		fmt.Printf("No cached entry for %q\n", *check)
		return nil
	}
	creds.Wipe()
	fmt.Printf("Valid cached entry exists for %q\n", *check)
	return nil
}

// cachePassphrase resolves the cache passphrase: environment first, masked
// prompt when running on a terminal.
func cachePassphrase() (string, error) {
	if passphrase, err := common.CachePassphrase(); err == nil {
		return passphrase, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", common.EnvCachePassphrase)
	}

	fmt.Fprint(os.Stderr, "Cache passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	if len(raw) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return string(raw), nil
}
