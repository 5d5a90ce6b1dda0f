package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/watchy-labs/watchy/internal/jobstore"
)

// webhookRetryDelays mirrors spec.md §7's 1s/5s/25s backoff schedule before
// a webhook delivery is dropped.
var webhookRetryDelays = []time.Duration{time.Second, 5 * time.Second, 25 * time.Second}

type webhookPayload struct {
	Event     string       `json:"event"`
	AuditID   string       `json:"audit_id"`
	Timestamp int64        `json:"timestamp"`
	Result    webhookScore `json:"result"`
}

type webhookScore struct {
	Status   jobstore.Status `json:"status"`
	Scores   any             `json:"scores,omitempty"`
	IPFSCID  string          `json:"ipfs_cid,omitempty"`
}

// deliverWebhook POSTs job's outcome to its callback URL, signing the raw
// body with HMAC-SHA256 over the configured webhook secret, retrying on
// failure per webhookRetryDelays before giving up silently.
func deliverWebhook(ctx context.Context, logger *logrus.Logger, secret string, job *jobstore.Job) {
	payload := webhookPayload{
		Event:     "audit.completed",
		AuditID:   job.ID,
		Timestamp: time.Now().Unix(),
		Result:    webhookScore{Status: job.Status},
	}
	if job.Result != nil {
		payload.Result.Scores = job.Result.Scores
		payload.Result.IPFSCID = job.Result.ReportCID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.WithField("audit_id", job.ID).Errorf("webhook: marshal payload: %v", err)
		return
	}

	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, job.CallbackURL, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		if secret != "" {
			req.Header.Set("X-Watchy-Signature", "sha256="+signHMAC(secret, body))
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return errStatus(resp.StatusCode)
		}
		return nil
	}

	if err := attempt(); err == nil {
		return
	}
	for _, delay := range webhookRetryDelays {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := attempt(); err == nil {
			return
		}
	}
	logger.WithField("audit_id", job.ID).Warn("webhook: delivery failed after retries, dropping")
}

func signHMAC(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

type errStatus int

func (e errStatus) Error() string { return http.StatusText(int(e)) }
