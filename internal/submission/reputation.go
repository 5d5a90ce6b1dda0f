package submission

import (
	"context"
	"math/big"
	"time"

	"github.com/watchy-labs/watchy/internal/issue"
)

// reputationWriter is the subset of onchain.ReputationClient this package
// depends on.
type reputationWriter interface {
	SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error)
}

// retryDelay separates the two SubmitFeedback attempts. It is a var so
// tests can shrink it.
var retryDelay = 2 * time.Second

// SubmitFeedback writes an audit's score and report CID to the reputation
// registry, retrying once on failure. Neither a failed upload nor a failed
// feedback write fails the audit; both surface as an issue on the report.
func SubmitFeedback(ctx context.Context, client reputationWriter, rpc string, agentID *big.Int, score uint8, reportCID string) (txHash string, issues []issue.Issue) {
	txHash, err := client.SubmitFeedback(ctx, rpc, agentID, score, reportCID)
	if err == nil {
		return txHash, nil
	}

	select {
	case <-time.After(retryDelay):
	case <-ctx.Done():
		return "", []issue.Issue{issue.New(issue.Warning, "REPUTATION_WRITE_FAILED", "reputation feedback submission failed: "+err.Error())}
	}

	txHash, err = client.SubmitFeedback(ctx, rpc, agentID, score, reportCID)
	if err != nil {
		return "", []issue.Issue{issue.New(issue.Warning, "REPUTATION_WRITE_FAILED", "reputation feedback submission failed after retry: "+err.Error())}
	}
	return txHash, nil
}

// UploadReport uploads the JSON report under name via u, returning an
// UPLOAD_FAILED info issue on failure instead of an error.
func UploadReport(ctx context.Context, u Uploader, content []byte, name string) (cidStr string, gatewayURL string, issues []issue.Issue) {
	cidStr, err := u.UploadJSON(ctx, content, name)
	if err != nil {
		return "", "", []issue.Issue{issue.New(issue.Info, "UPLOAD_FAILED", "report upload failed: "+err.Error())}
	}
	if err := ValidateCID(cidStr); err != nil {
		return "", "", []issue.Issue{issue.New(issue.Info, "UPLOAD_FAILED", "report upload returned an invalid cid: "+err.Error())}
	}
	return cidStr, u.GatewayURL(cidStr), nil
}

// UploadMarkdownReport uploads the rendered markdown report under name via
// u, returning an UPLOAD_FAILED info issue on failure instead of an error.
func UploadMarkdownReport(ctx context.Context, u Uploader, content []byte, name string) (cidStr string, gatewayURL string, issues []issue.Issue) {
	cidStr, err := u.UploadMarkdown(ctx, content, name)
	if err != nil {
		return "", "", []issue.Issue{issue.New(issue.Info, "UPLOAD_FAILED", "markdown report upload failed: "+err.Error())}
	}
	if err := ValidateCID(cidStr); err != nil {
		return "", "", []issue.Issue{issue.New(issue.Info, "UPLOAD_FAILED", "markdown report upload returned an invalid cid: "+err.Error())}
	}
	return cidStr, u.GatewayURL(cidStr), nil
}
