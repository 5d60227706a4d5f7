// Package audit maintains the hash-chained, append-only action trail. One
// audit session accumulates actions in memory per secure session; nothing
// touches disk until finalization appends a single chained record.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/interfaces"
	"github.com/kestrelsec/browservault/internal/models"
)

// genesisHash seeds the chain for the first session of a process run. The
// chain provides tamper-evidence within one running process; continuity is
// not persisted across restarts.
const genesisHash = "genesis"

// Service owns the audit log file and the process-local chain state.
type Service struct {
	mu       sync.Mutex
	open     map[string]*models.AuditSession
	prevHash string

	logPath string
	webhook *webhookMirror // nil when no webhook is configured
	logger  arbor.ILogger
}

// NewService creates the audit service over the configured log path and
// optional webhook mirror.
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	var webhook *webhookMirror
	if config.Security.Audit.WebhookURL != "" {
		webhook = newWebhookMirror(
			config.Security.Audit.WebhookURL,
			config.Security.Audit.WebhookHeaders,
			config.Security.Network.WebhookTimeout,
			logger,
		)
	}

	return &Service{
		open:    make(map[string]*models.AuditSession),
		logPath: config.Security.Audit.Path,
		webhook: webhook,
		logger:  logger,
	}
}

// StartSession opens the audit session for a secure session. Exactly one
// audit session is open per secure session.
func (s *Service) StartSession(sessionID, site string) *models.AuditSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.open[sessionID]; ok {
		return existing
	}

	session := &models.AuditSession{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
		Site:      site,
		Actions:   []models.AuditAction{},
	}
	s.open[sessionID] = session
	return session
}

// LogAction appends a caller-reported action to the open session. Action
// names and detail payloads are opaque - the audit core never interprets
// action semantics, and callers must not place secret values in details.
func (s *Service) LogAction(sessionID string, action models.AuditAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.open[sessionID]
	if !ok {
		return fmt.Errorf("no open audit session for %q", sessionID)
	}
	if session.Finalized {
		return fmt.Errorf("audit session %q is already finalized", sessionID)
	}

	if action.Timestamp.IsZero() {
		action.Timestamp = time.Now().UTC()
	}
	session.Actions = append(session.Actions, action)
	return nil
}

// Finalize hash-chains the session record, appends it as one line to the
// audit log, and mirrors it to the webhook when configured. The process
// chain state advances even if the webhook fails - the mirror is
// best-effort and never rolls back or blocks the local append. The mirror
// POST runs outside the service lock so a slow endpoint cannot stall other
// sessions' logging.
func (s *Service) Finalize(sessionID string, duration time.Duration, autoClosed, cleanupSuccess bool) error {
	session, err := s.finalizeLocked(sessionID, duration, autoClosed, cleanupSuccess)
	if err != nil {
		return err
	}

	if s.webhook != nil {
		s.webhook.send(session)
	}

	s.logger.Info().
		Str("session_id", sessionID).
		Int("actions", len(session.Actions)).
		Bool("cleanup_success", cleanupSuccess).
		Msg("Audit session finalized")

	return nil
}

// finalizeLocked performs the chain computation and local append under the
// service lock. The record it returns is closed: nothing mutates it after
// finalization, so the caller may hand it to the mirror unlocked.
func (s *Service) finalizeLocked(sessionID string, duration time.Duration, autoClosed, cleanupSuccess bool) (*models.AuditSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.open[sessionID]
	if !ok {
		return nil, fmt.Errorf("no open audit session for %q", sessionID)
	}
	if session.Finalized {
		return nil, fmt.Errorf("audit session %q is already finalized", sessionID)
	}

	session.Session = models.AuditSessionSummary{
		Duration:       duration,
		AutoClosed:     autoClosed,
		CleanupSuccess: cleanupSuccess,
	}

	actionHash, err := hashJSON(session.Actions)
	if err != nil {
		return nil, fmt.Errorf("failed to hash actions: %w", err)
	}
	session.ActionHash = actionHash

	prev := s.prevHash
	if prev == "" {
		prev = genesisHash
	}
	chainHash, err := hashJSON(chainInput{
		PreviousHash: prev,
		SessionID:    session.SessionID,
		Timestamp:    session.Timestamp,
		ActionHash:   actionHash,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute chain hash: %w", err)
	}
	session.ChainHash = chainHash
	session.Finalized = true

	if err := s.appendRecord(session); err != nil {
		return nil, err
	}

	// Chain state advances only after the local append succeeded.
	s.prevHash = chainHash
	delete(s.open, sessionID)

	return session, nil
}

// chainInput is the serialized structure the chain hash covers.
type chainInput struct {
	PreviousHash string    `json:"previous_hash"`
	SessionID    string    `json:"session_id"`
	Timestamp    time.Time `json:"timestamp"`
	ActionHash   string    `json:"action_hash"`
}

func hashJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// appendRecord writes the finalized session as one line to the append-only
// log. The log is only ever rewritten by the explicit retention rotation.
func (s *Service) appendRecord(session *models.AuditSession) error {
	if err := os.MkdirAll(filepath.Dir(s.logPath), 0o700); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(s.logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// ReadLog performs a full scan of the audit log with an optional session-id
// filter. Inspection tooling only: the runtime control flow never reads its
// own writes. Unparseable lines are skipped, not fatal - a damaged line is
// exactly what the chain hashes exist to expose.
func (s *Service) ReadLog(sessionID string) ([]models.AuditSession, error) {
	f, err := os.Open(s.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []models.AuditSession
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record models.AuditSession
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			s.logger.Warn().Err(err).Msg("Skipping unparseable audit record")
			continue
		}
		if sessionID != "" && record.SessionID != sessionID {
			continue
		}
		records = append(records, record)
	}

	return records, scanner.Err()
}

// ListSessions returns summary rows for every finalized session, newest
// last.
func (s *Service) ListSessions() ([]models.AuditSessionInfo, error) {
	records, err := s.ReadLog("")
	if err != nil {
		return nil, err
	}

	infos := make([]models.AuditSessionInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, models.AuditSessionInfo{
			SessionID:   r.SessionID,
			Site:        r.Site,
			Timestamp:   r.Timestamp,
			ActionCount: len(r.Actions),
			AutoClosed:  r.Session.AutoClosed,
		})
	}
	return infos, nil
}

var _ interfaces.AuditService = (*Service)(nil)
