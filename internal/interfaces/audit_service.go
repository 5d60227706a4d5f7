package interfaces

import (
	"time"

	"github.com/kestrelsec/browservault/internal/models"
)

// AuditService maintains one in-memory audit session per secure session and
// owns the append-only, hash-chained audit log file after finalization.
type AuditService interface {
	// StartSession opens the audit session for a secure session. Exactly one
	// audit session is open per secure session.
	StartSession(sessionID, site string) *models.AuditSession

	// LogAction appends a caller-reported action to the open session.
	// Action names and details are opaque to the audit core.
	LogAction(sessionID string, action models.AuditAction) error

	// Finalize hash-chains the session record, appends it as one line to the
	// audit log, and optionally mirrors it to the configured webhook.
	// Webhook failure never rolls back or blocks the local append. A session
	// is finalized exactly once.
	Finalize(sessionID string, duration time.Duration, autoClosed, cleanupSuccess bool) error

	// ReadLog performs a full scan of the audit log with an optional
	// session-id filter. Inspection tooling only - the runtime control flow
	// never consults it.
	ReadLog(sessionID string) ([]models.AuditSession, error)

	// ListSessions returns summary rows for every finalized session in the
	// log, newest last.
	ListSessions() ([]models.AuditSessionInfo, error)

	// Rotate rewrites the log, dropping records older than retentionDays
	// based on each record's timestamp. The only operation that ever
	// rewrites the log file.
	Rotate(retentionDays int) (dropped int, err error)
}
