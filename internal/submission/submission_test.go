package submission

import (
	"context"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	retryDelay = time.Millisecond
}

func TestPinataUploaderRequiresAPIKey(t *testing.T) {
	u := NewPinataUploader("https://api.pinata.cloud", "")
	_, err := u.UploadJSON(context.Background(), []byte(`{}`), "report.json")
	assert.Error(t, err)
}

func TestPinataUploaderUploadsAndReturnsCID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}`))
	}))
	defer srv.Close()

	u := NewPinataUploader(srv.URL, "test-key")
	cid, err := u.UploadJSON(context.Background(), []byte(`{"a":1}`), "report.json")
	require.NoError(t, err)
	assert.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", cid)
	assert.Contains(t, u.GatewayURL(cid), cid)
}

func TestValidateCIDRejectsGarbage(t *testing.T) {
	assert.Error(t, ValidateCID("not-a-cid"))
	assert.NoError(t, ValidateCID("QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"))
}

type stubUploader struct {
	cid string
	err error
}

func (s stubUploader) UploadJSON(ctx context.Context, content []byte, name string) (string, error) {
	return s.cid, s.err
}

func (s stubUploader) UploadMarkdown(ctx context.Context, content []byte, name string) (string, error) {
	return s.cid, s.err
}

func (s stubUploader) GatewayURL(cid string) string {
	return "https://ipfs.io/ipfs/" + cid
}

func TestUploadMarkdownReportSucceeds(t *testing.T) {
	u := stubUploader{cid: "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}
	cidStr, gateway, issues := UploadMarkdownReport(context.Background(), u, []byte("# report"), "report.md")
	assert.Equal(t, u.cid, cidStr)
	assert.NotEmpty(t, gateway)
	assert.Empty(t, issues)
}

func TestPinataUploaderUploadMarkdown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"IpfsHash":"QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}`))
	}))
	defer srv.Close()

	u := NewPinataUploader(srv.URL, "test-key")
	cid, err := u.UploadMarkdown(context.Background(), []byte("# hello"), "report.md")
	require.NoError(t, err)
	assert.Equal(t, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", cid)
}

func TestUploadReportReturnsIssueOnFailure(t *testing.T) {
	u := stubUploader{err: errors.New("boom")}
	cidStr, gateway, issues := UploadReport(context.Background(), u, []byte(`{}`), "report.json")
	assert.Empty(t, cidStr)
	assert.Empty(t, gateway)
	require.Len(t, issues, 1)
	assert.Equal(t, "UPLOAD_FAILED", issues[0].Code)
}

func TestUploadReportSucceeds(t *testing.T) {
	u := stubUploader{cid: "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}
	cidStr, gateway, issues := UploadReport(context.Background(), u, []byte(`{}`), "report.json")
	assert.Equal(t, u.cid, cidStr)
	assert.NotEmpty(t, gateway)
	assert.Empty(t, issues)
}

type failingReputationClient struct{ calls int }

func (f *failingReputationClient) SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error) {
	f.calls++
	return "", errors.New("rpc down")
}

func TestSubmitFeedbackRetriesOnceThenGivesUp(t *testing.T) {
	client := &failingReputationClient{}
	tx, issues := SubmitFeedback(context.Background(), client, "https://rpc", big.NewInt(1), 90, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	assert.Empty(t, tx)
	require.Len(t, issues, 1)
	assert.Equal(t, "REPUTATION_WRITE_FAILED", issues[0].Code)
	assert.Equal(t, 2, client.calls)
}

type succeedsSecondTryClient struct{ calls int }

func (s *succeedsSecondTryClient) SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error) {
	s.calls++
	if s.calls == 1 {
		return "", errors.New("transient")
	}
	return "0xabc123", nil
}

func TestSubmitFeedbackSucceedsOnRetry(t *testing.T) {
	client := &succeedsSecondTryClient{}
	tx, issues := SubmitFeedback(context.Background(), client, "https://rpc", big.NewInt(1), 90, "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG")
	assert.Equal(t, "0xabc123", tx)
	assert.Empty(t, issues)
}
