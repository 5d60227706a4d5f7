package audit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/common"
	"github.com/kestrelsec/browservault/internal/models"
)

func newTestAudit(t *testing.T) *Service {
	t.Helper()
	config := common.NewDefaultConfig()
	config.Security.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	return NewService(config, arbor.NewLogger())
}

func finalize(t *testing.T, svc *Service, id, site string, actions ...string) {
	t.Helper()
	svc.StartSession(id, site)
	for _, a := range actions {
		require.NoError(t, svc.LogAction(id, models.AuditAction{Action: a}))
	}
	require.NoError(t, svc.Finalize(id, time.Minute, false, true))
}

func TestLogActionRequiresOpenSession(t *testing.T) {
	svc := newTestAudit(t)
	assert.Error(t, svc.LogAction("sess_missing", models.AuditAction{Action: "navigate"}))
}

func TestStartSessionIsIdempotent(t *testing.T) {
	svc := newTestAudit(t)
	first := svc.StartSession("sess_1", "github")
	second := svc.StartSession("sess_1", "github")
	assert.Same(t, first, second)
}

func TestFinalizeAppendsChainedRecord(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github", "navigate", "fill_login")
	finalize(t, svc, "sess_2", "gitlab", "navigate")

	records, err := svc.ReadLog("")
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, second := records[0], records[1]
	assert.Len(t, first.Actions, 2)
	assert.NotEmpty(t, first.ActionHash)

	// First record chains from the genesis marker, second from the first.
	wantFirst, err := hashJSON(chainInput{
		PreviousHash: genesisHash,
		SessionID:    first.SessionID,
		Timestamp:    first.Timestamp,
		ActionHash:   first.ActionHash,
	})
	require.NoError(t, err)
	assert.Equal(t, wantFirst, first.ChainHash)

	wantSecond, err := hashJSON(chainInput{
		PreviousHash: first.ChainHash,
		SessionID:    second.SessionID,
		Timestamp:    second.Timestamp,
		ActionHash:   second.ActionHash,
	})
	require.NoError(t, err)
	assert.Equal(t, wantSecond, second.ChainHash)
}

func TestActionHashExposesTampering(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github", "navigate", "submit")

	records, err := svc.ReadLog("")
	require.NoError(t, err)
	require.Len(t, records, 1)

	tampered := records[0]
	tampered.Actions[0].Action = "exfiltrate"

	recomputed, err := hashJSON(tampered.Actions)
	require.NoError(t, err)
	assert.NotEqual(t, tampered.ActionHash, recomputed)
}

func TestFinalizeTwiceFails(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github")
	assert.Error(t, svc.Finalize("sess_1", time.Minute, false, true))
}

func TestFinalizeRecordsSessionSummary(t *testing.T) {
	svc := newTestAudit(t)
	svc.StartSession("sess_1", "github")
	require.NoError(t, svc.Finalize("sess_1", 42*time.Second, true, false))

	records, err := svc.ReadLog("sess_1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 42*time.Second, records[0].Session.Duration)
	assert.True(t, records[0].Session.AutoClosed)
	assert.False(t, records[0].Session.CleanupSuccess)
}

func TestReadLogFiltersBySession(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github")
	finalize(t, svc, "sess_2", "gitlab")

	records, err := svc.ReadLog("sess_2")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "gitlab", records[0].Site)
}

func TestReadLogSkipsUnparseableLines(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github")

	f, err := os.OpenFile(svc.logPath, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString("garbage line\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	finalize(t, svc, "sess_2", "gitlab")

	records, err := svc.ReadLog("")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestReadLogMissingFile(t *testing.T) {
	svc := newTestAudit(t)
	records, err := svc.ReadLog("")
	require.NoError(t, err)
	assert.Nil(t, records)
}

func TestListSessions(t *testing.T) {
	svc := newTestAudit(t)
	finalize(t, svc, "sess_1", "github", "navigate")
	finalize(t, svc, "sess_2", "gitlab")

	infos, err := svc.ListSessions()
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "sess_1", infos[0].SessionID)
	assert.Equal(t, 1, infos[0].ActionCount)
	assert.Equal(t, "sess_2", infos[1].SessionID)
}

func TestRotateDropsOnlyDatedOldRecords(t *testing.T) {
	svc := newTestAudit(t)

	old := models.AuditSession{SessionID: "sess_old", Site: "github", Timestamp: time.Now().AddDate(0, 0, -120)}
	fresh := models.AuditSession{SessionID: "sess_new", Site: "gitlab", Timestamp: time.Now()}

	require.NoError(t, os.MkdirAll(filepath.Dir(svc.logPath), 0o700))
	f, err := os.OpenFile(svc.logPath, os.O_CREATE|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	for _, r := range []models.AuditSession{old, fresh} {
		line, merr := json.Marshal(r)
		require.NoError(t, merr)
		_, err = f.Write(append(line, '\n'))
		require.NoError(t, err)
	}
	// Undated garbage must survive rotation untouched.
	_, err = f.WriteString("not json\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	dropped, err := svc.Rotate(90)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	data, err := os.ReadFile(svc.logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "sess_old")
	assert.Contains(t, string(data), "sess_new")
	assert.Contains(t, string(data), "not json")
}

func TestRotateRejectsNonPositiveRetention(t *testing.T) {
	svc := newTestAudit(t)
	_, err := svc.Rotate(0)
	assert.Error(t, err)
}

func TestWebhookMirrorReceivesFinalizedRecord(t *testing.T) {
	received := make(chan models.AuditSession, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var record models.AuditSession
		require.NoError(t, json.NewDecoder(r.Body).Decode(&record))
		assert.Equal(t, "secret-header", r.Header.Get("X-Audit-Key"))
		received <- record
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	config := common.NewDefaultConfig()
	config.Security.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	config.Security.Audit.WebhookURL = server.URL
	config.Security.Audit.WebhookHeaders = map[string]string{"X-Audit-Key": "secret-header"}
	svc := NewService(config, arbor.NewLogger())

	finalize(t, svc, "sess_1", "github", "navigate")

	select {
	case record := <-received:
		assert.Equal(t, "sess_1", record.SessionID)
		assert.NotEmpty(t, record.ChainHash)
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was not called")
	}
}

func TestSlowWebhookDoesNotStallOtherSessions(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()
	defer close(release)

	config := common.NewDefaultConfig()
	config.Security.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	config.Security.Audit.WebhookURL = server.URL
	svc := NewService(config, arbor.NewLogger())

	svc.StartSession("sess_1", "github")
	svc.StartSession("sess_2", "gitlab")

	done := make(chan error, 1)
	go func() {
		done <- svc.Finalize("sess_1", time.Minute, false, true)
	}()

	// Once the mirror POST is in flight, other sessions must still be able
	// to log without waiting on it.
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("webhook was never called")
	}

	logged := make(chan error, 1)
	go func() {
		logged <- svc.LogAction("sess_2", models.AuditAction{Action: "navigate"})
	}()
	select {
	case err := <-logged:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("LogAction blocked behind the webhook mirror")
	}

	release <- struct{}{}
	require.NoError(t, <-done)
}

func TestWebhookFailureDoesNotBlockFinalize(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := common.NewDefaultConfig()
	config.Security.Audit.Path = filepath.Join(t.TempDir(), "audit.log")
	config.Security.Audit.WebhookURL = server.URL
	svc := NewService(config, arbor.NewLogger())

	svc.StartSession("sess_1", "github")
	require.NoError(t, svc.Finalize("sess_1", time.Minute, false, true))

	records, err := svc.ReadLog("sess_1")
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
