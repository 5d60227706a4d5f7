package models

import (
	"time"
)

// AuditAction is one caller-reported action within a session. Action names
// and detail payloads are opaque to the audit core - it never interprets
// action semantics.
type AuditAction struct {
	Action        string                 `json:"action"`
	Timestamp     time.Time              `json:"timestamp"`
	Details       map[string]interface{} `json:"details,omitempty"`
	Screenshot    string                 `json:"screenshot,omitempty"`
	UserApproved  bool                   `json:"user_approved,omitempty"`
	ApprovalToken string                 `json:"approval_token,omitempty"`
}

// AuditSessionSummary captures teardown facts recorded at finalization.
type AuditSessionSummary struct {
	Duration       time.Duration `json:"duration"`
	AutoClosed     bool          `json:"auto_closed"`
	CleanupSuccess bool          `json:"cleanup_success"`
}

// AuditSession accumulates actions in memory for the life of a browser
// session. Nothing is persisted until Finalize hash-chains the record and
// appends it to the audit log. Exactly one AuditSession is open per
// SecureSession and it is finalized exactly once.
type AuditSession struct {
	SessionID string              `json:"session_id"`
	Timestamp time.Time           `json:"timestamp"`
	Site      string              `json:"site,omitempty"`
	Actions   []AuditAction       `json:"actions"`
	Session   AuditSessionSummary `json:"session"`

	// ActionHash and ChainHash are computed at finalization. ChainHash
	// covers the previous session's chain hash, making in-process tampering
	// with any earlier session detectable.
	ActionHash string `json:"action_hash,omitempty"`
	ChainHash  string `json:"chain_hash,omitempty"`

	Finalized bool `json:"-"`
}

// AuditSessionInfo is a summary row returned by audit-log listing, used by
// inspection tooling only.
type AuditSessionInfo struct {
	SessionID   string    `json:"session_id"`
	Site        string    `json:"site,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	ActionCount int       `json:"action_count"`
	AutoClosed  bool      `json:"auto_closed"`
}
