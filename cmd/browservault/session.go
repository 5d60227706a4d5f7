package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelsec/browservault/internal/app"
)

// runSession opens an isolated session for a site and holds it until
// interrupted or expired. Cleanup runs before audit finalization on every
// exit path, including SIGINT and SIGTERM.
func runSession(configPath string, args []string) error {
	fs := flag.NewFlagSet("session", flag.ExitOnError)
	site := fs.String("site", "", "Site key to open a session for (required)")
	duration := fs.Duration("duration", 0, "Session budget (default from config)")
	resolve := fs.Bool("resolve", false, "Resolve credentials at open to verify the vault mapping")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *site == "" {
		fs.Usage()
		return fmt.Errorf("-site is required")
	}

	application, err := app.New(config, configPath, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	sessionID, err := application.OpenSession(*site, *duration)
	if err != nil {
		return err
	}

	if *resolve {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		creds, rerr := application.ResolveCredentials(ctx, sessionID)
		cancel()
		if rerr != nil {
			// Close in the fixed order before reporting the failure.
			_ = application.CloseSession(sessionID, false)
			return rerr
		}
		creds.Wipe()
		logger.Info().Str("site", *site).Msg("Credentials resolved and verified")
	}

	sess := application.SessionService.GetSession(sessionID)
	fmt.Printf("Session %s open for %s\n", sessionID, *site)
	fmt.Printf("  workdir:    %s\n", sess.WorkDir)
	fmt.Printf("  remaining:  %s\n", application.SessionService.TimeRemaining(sessionID).Round(time.Second))
	fmt.Println("Press Ctrl+C to close")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received")
	return application.CloseSession(sessionID, false)
}
