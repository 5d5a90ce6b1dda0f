// Package report builds the audit report document, computes its canonical
// digest, signs and verifies that digest, and renders the human-readable
// markdown form uploaded alongside the JSON.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	canonicaljson "github.com/gibson042/canonicaljson-go"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/watchy-labs/watchy/internal/issue"
)

// AuditorInfo identifies the watchtower that produced the report.
type AuditorInfo struct {
	Name    string  `json:"name"`
	Address *string `json:"address,omitempty"`
	Version string  `json:"version"`
}

// AgentInfo is the audited agent's on-chain identity as of the audit.
// AgentID is a decimal string since agent IDs are uint256 on chain and don't
// fit a machine word.
type AgentInfo struct {
	AgentID     string  `json:"agentId"`
	Registry    string  `json:"registry"`
	MetadataURI string  `json:"metadataUri"`
	Owner       *string `json:"owner,omitempty"`
}

// Scores mirrors the scoring package's output, flattened for the report.
type Scores struct {
	Overall              int `json:"overall"`
	Metadata             int `json:"metadata"`
	Onchain              int `json:"onchain"`
	EndpointAvailability int `json:"endpointAvailability"`
	EndpointPerformance  int `json:"endpointPerformance"`
	Security             int `json:"security"`
}

// EndpointCheck is one probed service's outcome in report form.
type EndpointCheck struct {
	Service     string         `json:"service"`
	Endpoint    string         `json:"endpoint"`
	Reachable   bool           `json:"reachable"`
	ValidSchema *bool          `json:"validSchema,omitempty"`
	SkillsMatch *bool          `json:"skillsMatch,omitempty"`
	LatencyP50  *int64         `json:"latencyP50Ms,omitempty"`
	LatencyP95  *int64         `json:"latencyP95Ms,omitempty"`
	LatencyP99  *int64         `json:"latencyP99Ms,omitempty"`
	Issues      []issue.Issue  `json:"issues,omitempty"`
}

// Checks bundles every check subsystem's findings.
type Checks struct {
	MetadataIssues []issue.Issue   `json:"metadataIssues,omitempty"`
	OnchainIssues  []issue.Issue   `json:"onchainIssues,omitempty"`
	Endpoints      []EndpointCheck `json:"endpoints"`
	SecurityIssues []issue.Issue   `json:"securityIssues,omitempty"`
}

// Report is the full audit report document. Its EIP-8004 reputation feedback
// fields (AgentRegistry through Tag2) are populated by New for every report
// (Endpoint is left empty), so this struct also serves as the
// off-chain feedback file the reputation registry's reportCid points at.
type Report struct {
	// Reputation feedback fields (EIP-8004).
	AgentRegistry  string  `json:"agentRegistry"`
	AgentID        string  `json:"agentId"`
	ClientAddress  string  `json:"clientAddress"`
	CreatedAt      string  `json:"createdAt"`
	Value          int64   `json:"value"`
	ValueDecimals  uint8   `json:"valueDecimals"`
	Tag1           string  `json:"tag1,omitempty"`
	Tag2           string  `json:"tag2,omitempty"`
	Endpoint       string  `json:"endpoint,omitempty"`

	// Audit report fields.
	Version     string      `json:"version"`
	Auditor     AuditorInfo `json:"auditor"`
	Timestamp   int64       `json:"timestamp"`
	BlockNumber uint64      `json:"blockNumber"`
	Agent       AgentInfo   `json:"agent"`
	Scores      Scores      `json:"scores"`
	Checks      Checks      `json:"checks"`

	ReportMarkdownURL string `json:"reportMarkdownUrl,omitempty"`
	ReportJSONURL     string `json:"reportJsonUrl,omitempty"`
	ReportCID         string `json:"reportCid,omitempty"`
	Signature         string `json:"signature,omitempty"`

	FeedbackChainID *uint64 `json:"feedbackChainId,omitempty"`
	FeedbackTxHash  string  `json:"feedbackTxHash,omitempty"`

	// SubmissionIssues records upload/feedback-write problems encountered
	// after the report was signed. It is deliberately outside digestPayload,
	// like the URL and signature fields above, so publishing outcomes never
	// invalidate the signature over the audit findings themselves.
	SubmissionIssues []issue.Issue `json:"submissionIssues,omitempty"`
}

const engineVersion = "1.0.0"

// New assembles a Report from the caller's assembled sub-results, populating
// the reputation feedback fields directly from the overall score so the
// resulting document doubles as the feedback file for SubmitFeedback.
func New(agentRegistry string, agentID string, clientAddress common.Address, now time.Time, blockNumber uint64, agent AgentInfo, scores Scores, checks Checks) *Report {
	return &Report{
		AgentRegistry: agentRegistry,
		AgentID:       agentID,
		ClientAddress: strings.ToLower(clientAddress.Hex()),
		CreatedAt:     now.UTC().Format(time.RFC3339),
		Value:         int64(scores.Overall),
		ValueDecimals: 0,
		Tag1:          "auditScore",
		Tag2:          "infrastructure",

		Version:     engineVersion,
		Auditor:     AuditorInfo{Name: "watchy", Version: engineVersion},
		Timestamp:   now.Unix(),
		BlockNumber: blockNumber,
		Agent:       agent,
		Scores:      scores,
		Checks:      checks,
	}
}

// digestPayload is signed rather than the whole report so that the signature
// and the URLs that reference the uploaded artifact are excluded from what
// they attest to.
type digestPayload struct {
	AgentRegistry string    `json:"agentRegistry"`
	AgentID       string    `json:"agentId"`
	CreatedAt     string    `json:"createdAt"`
	Timestamp     int64     `json:"timestamp"`
	BlockNumber   uint64    `json:"blockNumber"`
	Agent         AgentInfo `json:"agent"`
	Scores        Scores    `json:"scores"`
	Checks        Checks    `json:"checks"`
}

// CanonicalJSON marshals v as RFC 8785-style canonical JSON (sorted keys,
// minimal whitespace) so hashing and signing are reproducible across
// re-serialization.
func CanonicalJSON(v any) ([]byte, error) {
	return canonicaljson.Marshal(v)
}

// Digest computes the Keccak256 hash of r's canonical JSON payload, excluding
// fields that describe where the report was published or how it was signed.
func (r *Report) Digest() ([]byte, error) {
	payload := digestPayload{
		AgentRegistry: r.AgentRegistry,
		AgentID:       r.AgentID,
		CreatedAt:     r.CreatedAt,
		Timestamp:     r.Timestamp,
		BlockNumber:   r.BlockNumber,
		Agent:         r.Agent,
		Scores:        r.Scores,
		Checks:        r.Checks,
	}
	canonical, err := CanonicalJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("report: canonicalize: %w", err)
	}
	return crypto.Keccak256(canonical), nil
}

// signer is the subset of internal/signer.Signer this package needs, kept
// narrow to avoid importing the signer package's config dependency.
type signer interface {
	SignBytes(digest []byte) (string, error)
}

// Sign computes r's digest, signs it with s using EIP-191 semantics, and
// stores the resulting hex signature on the report.
func (r *Report) Sign(s signer) error {
	digest, err := r.Digest()
	if err != nil {
		return err
	}
	sig, err := s.SignBytes(digest)
	if err != nil {
		return fmt.Errorf("report: sign: %w", err)
	}
	r.Signature = sig
	return nil
}

// Verify recovers the signer address from r.Signature over r's digest and
// reports whether it matches expected.
func Verify(r *Report, expected common.Address) (bool, error) {
	if r.Signature == "" {
		return false, fmt.Errorf("report: no signature present")
	}
	digest, err := r.Digest()
	if err != nil {
		return false, err
	}
	hash := accounts.TextHash(digest)
	sigBytes, err := hexutil.Decode(r.Signature)
	if err != nil {
		return false, fmt.Errorf("report: decode signature: %w", err)
	}
	if len(sigBytes) != 65 {
		return false, fmt.Errorf("report: signature must be 65 bytes, got %d", len(sigBytes))
	}
	// crypto.Ecrecover expects a recovery id of 0 or 1; go-ethereum's Sign
	// already returns it in that form.
	pub, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return false, fmt.Errorf("report: recover signer: %w", err)
	}
	recovered := crypto.PubkeyToAddress(*pub)
	return recovered == expected, nil
}

// MarshalJSON encodes the full report with encoding/json (e.g. for storage
// upload). These bytes include every field and are not the canonical
// payload Digest hashes.
func (r *Report) MarshalJSON() ([]byte, error) {
	type alias Report
	return json.Marshal((*alias)(r))
}
