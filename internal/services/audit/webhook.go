package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/kestrelsec/browservault/internal/httpclient"
	"github.com/kestrelsec/browservault/internal/models"
)

// webhookMirror POSTs finalized audit records to a configured endpoint.
// Strictly best-effort: a failed mirror is logged and never rolls back or
// blocks the local append.
type webhookMirror struct {
	url     string
	headers map[string]string
	client  *http.Client
	timeout time.Duration
	logger  arbor.ILogger
}

func newWebhookMirror(url string, headers map[string]string, timeout time.Duration, logger arbor.ILogger) *webhookMirror {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &webhookMirror{
		url:     url,
		headers: headers,
		client:  httpclient.NewDefaultHTTPClient(timeout),
		timeout: timeout,
		logger:  logger,
	}
}

func (w *webhookMirror) send(record *models.AuditSession) {
	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()

	if err := httpclient.PostJSON(ctx, w.client, w.url, w.headers, record); err != nil {
		w.logger.Warn().
			Err(err).
			Str("session_id", record.SessionID).
			Msg("Audit webhook mirror failed; local record is unaffected")
	}
}
