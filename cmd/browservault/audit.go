package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/kestrelsec/browservault/internal/services/audit"
)

// runAudit inspects or rotates the audit log.
func runAudit(args []string) error {
	fs := flag.NewFlagSet("audit", flag.ExitOnError)
	list := fs.Bool("list", false, "List finalized sessions")
	session := fs.String("session", "", "Print the full record for one session id")
	rotate := fs.Bool("rotate", false, "Drop records older than the configured retention")
	retention := fs.Int("retention", 0, "Retention in days for -rotate (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	auditService := audit.NewService(config, logger)

	switch {
	case *rotate:
		days := *retention
		if days == 0 {
			days = config.Security.Audit.RetentionDays
		}
		dropped, err := auditService.Rotate(days)
		if err != nil {
			return err
		}
		fmt.Printf("Dropped %d records older than %d days\n", dropped, days)
		return nil

	case *session != "":
		records, err := auditService.ReadLog(*session)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return fmt.Errorf("no audit record for session %q", *session)
		}
		for _, r := range records {
			fmt.Printf("session %s  site=%s  started=%s  chain=%s\n",
				r.SessionID, r.Site, r.Timestamp.Format(time.RFC3339), r.ChainHash)
			fmt.Printf("  duration=%s auto_closed=%t cleanup_success=%t\n",
				r.Session.Duration.Round(time.Second), r.Session.AutoClosed, r.Session.CleanupSuccess)
			for _, a := range r.Actions {
				fmt.Printf("  %s  %s\n", a.Timestamp.Format(time.RFC3339), a.Action)
			}
		}
		return nil

	case *list:
		infos, err := auditService.ListSessions()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			fmt.Println("Audit log is empty")
			return nil
		}
		for _, info := range infos {
			fmt.Printf("%s  %-20s  %s  actions=%d auto_closed=%t\n",
				info.Timestamp.Format(time.RFC3339), info.Site, info.SessionID,
				info.ActionCount, info.AutoClosed)
		}
		return nil

	default:
		fs.Usage()
		return fmt.Errorf("one of -list, -session, or -rotate is required")
	}
}
