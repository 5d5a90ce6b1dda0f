package engine

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/issue"
	"github.com/watchy-labs/watchy/internal/metadata"
	"github.com/watchy-labs/watchy/internal/onchain"
	"github.com/watchy-labs/watchy/internal/probe"
	"github.com/watchy-labs/watchy/internal/report"
	"github.com/watchy-labs/watchy/internal/scoring"
	"github.com/watchy-labs/watchy/internal/signer"
	"github.com/watchy-labs/watchy/internal/submission"
)

// auditMetadataAndEndpoints resolves the agent's off-chain metadata document,
// validates it, and probes every declared service. A metadata fetch failure
// is not fatal to the audit: it is recorded as a critical issue and scored
// accordingly, since the reference implementation still produces a report
// (with a floored metadata score) rather than aborting.
func (e *Engine) auditMetadataAndEndpoints(ctx context.Context, chainCfg chains.Config, agentID string, rec *onchain.AgentRecord) (*metadata.Document, metadata.Result, report.Checks) {
	doc, err := metadata.Fetch(ctx, e.httpClient, rec.MetadataURI)
	if err != nil {
		checks := report.Checks{
			MetadataIssues: []issue.Issue{issue.New(issue.Critical, "METADATA_UNREACHABLE", fmt.Sprintf("could not fetch metadata at %q: %v", rec.MetadataURI, err))},
			OnchainIssues:  onchainIssuesFor(rec),
		}
		return nil, metadata.Result{}, checks
	}

	ref := metadata.AgentRef{ChainID: chainCfg.ChainID, Registry: chainCfg.RegistryAddress, AgentID: agentID}
	imageReachable := e.reachable(ctx, doc.Image)
	metaResult, metaIssues := metadata.Validate(doc, ref, imageReachable)
	metaIssues = append(metaIssues, metadata.ValidateServiceDeclarations(doc.Services)...)
	if len(doc.Services) == 0 {
		metaIssues = append(metaIssues, issue.New(issue.Warning, "NO_ENDPOINTS", "agent declares no service endpoints"))
	}

	probeResults, err := e.newProber(e.proberK).ProbeAll(ctx, doc.Services)
	if err != nil {
		metaIssues = append(metaIssues, issue.New(issue.Warning, "ENDPOINT_PROBE_INCOMPLETE", "endpoint probing did not finish: "+err.Error()))
		probeResults = nil
	}

	endpoints := make([]report.EndpointCheck, len(probeResults))
	for i, r := range probeResults {
		endpoints[i] = probeResultToEndpointCheck(r)
	}

	checks := report.Checks{
		MetadataIssues: metaIssues,
		OnchainIssues:  onchainIssuesFor(rec),
		Endpoints:      endpoints,
	}
	return doc, metaResult, checks
}

func onchainIssuesFor(rec *onchain.AgentRecord) []issue.Issue {
	var issues []issue.Issue
	if rec.Wallet == nil {
		issues = append(issues, issue.New(issue.Warning, "NO_WALLET", "agent has no wallet set in the identity registry"))
	}
	if rec.URIMismatch {
		issues = append(issues, issue.New(issue.Warning, "URI_MISMATCH", "tokenURI and agentURI resolved to different values"))
	}
	return issues
}

func probeResultToEndpointCheck(r probe.Result) report.EndpointCheck {
	ep := report.EndpointCheck{
		Service:     r.Service.Name,
		Endpoint:    r.Service.Endpoint,
		Reachable:   r.Reachable,
		ValidSchema: r.ValidSchema,
		SkillsMatch: r.SkillsMatch,
		Issues:      r.Issues,
	}
	if r.Latency != nil {
		p50, p95, p99 := r.Latency.P50.Milliseconds(), r.Latency.P95.Milliseconds(), r.Latency.P99.Milliseconds()
		ep.LatencyP50, ep.LatencyP95, ep.LatencyP99 = &p50, &p95, &p99
	}
	return ep
}

// reachable performs a single bounded GET, treating any 2xx/3xx response as
// reachable. It is used only for the metadata image URL; service endpoint
// reachability is judged by the fuller probe.Prober pass instead.
func (e *Engine) reachable(ctx context.Context, url string) bool {
	if url == "" {
		return false
	}
	reqCtx, cancel := context.WithTimeout(ctx, httpCallDeadline)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := e.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 400
}

// finalize builds, signs, uploads, and publishes the audit's report, then
// records the completed job. Upload and reputation-write failures surface
// as SubmissionIssues rather than failing the audit.
func (e *Engine) finalize(ctx context.Context, auditID string, chainCfg chains.Config, agentID string, rec *onchain.AgentRecord, doc *metadata.Document, scores scoring.Scores, checks report.Checks) {
	registryRef := metadata.AgentRef{ChainID: chainCfg.ChainID, Registry: chainCfg.RegistryAddress, AgentID: agentID}

	agentInfo := report.AgentInfo{
		AgentID:     agentID,
		Registry:    registryRef.CAIP10(),
		MetadataURI: rec.MetadataURI,
	}
	if rec.Owner != (common.Address{}) {
		owner := strings.ToLower(rec.Owner.Hex())
		agentInfo.Owner = &owner
	}

	clientAddress, _ := e.signer.Address()

	rpt := report.New(registryRef.CAIP10(), agentID, clientAddress, time.Now(), rec.BlockNumber, agentInfo, toReportScores(scores), checks)

	if signer.CanSign(e.signer) {
		if err := rpt.Sign(e.signer); err != nil {
			rpt.SubmissionIssues = append(rpt.SubmissionIssues, issue.New(issue.Warning, "SIGNING_FAILED", "report signing failed: "+err.Error()))
		}
	}

	agentName := "unknown agent"
	if doc != nil && doc.Name != "" {
		agentName = doc.Name
	}

	if e.uploader != nil {
		jsonBytes, err := rpt.MarshalJSON()
		var reportCID string
		if err != nil {
			rpt.SubmissionIssues = append(rpt.SubmissionIssues, issue.New(issue.Info, "UPLOAD_FAILED", "report marshal failed: "+err.Error()))
		} else {
			cidStr, gatewayURL, upIssues := submission.UploadReport(ctx, e.uploader, jsonBytes, fmt.Sprintf("watchy-audit-%d-%s.json", chainCfg.ChainID, agentID))
			rpt.ReportJSONURL = gatewayURL
			rpt.ReportCID = cidStr
			rpt.SubmissionIssues = append(rpt.SubmissionIssues, upIssues...)
			reportCID = cidStr
		}

		markdown := report.RenderMarkdown(rpt, agentName)
		_, gatewayURL, mdIssues := submission.UploadMarkdownReport(ctx, e.uploader, []byte(markdown), fmt.Sprintf("watchy-audit-%d-%s.md", chainCfg.ChainID, agentID))
		rpt.ReportMarkdownURL = gatewayURL
		rpt.SubmissionIssues = append(rpt.SubmissionIssues, mdIssues...)

		if reportCID != "" && signer.CanSign(e.signer) {
			e.submitFeedback(ctx, chainCfg, agentID, scores.Overall, reportCID, rpt)
		}
	}

	finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = e.store.SetResult(finalCtx, auditID, rpt)
	e.notify(finalCtx, auditID)
}

func (e *Engine) submitFeedback(ctx context.Context, chainCfg chains.Config, agentID string, overall int, reportCID string, rpt *report.Report) {
	client, err := e.reputationClientFor(chainCfg, e.signer)
	if err != nil {
		rpt.SubmissionIssues = append(rpt.SubmissionIssues, issue.New(issue.Warning, "REPUTATION_WRITE_FAILED", "reputation client unavailable: "+err.Error()))
		return
	}
	rpcs := chains.AllRPCs(chainCfg.ChainID)
	if len(rpcs) == 0 {
		rpt.SubmissionIssues = append(rpt.SubmissionIssues, issue.New(issue.Warning, "REPUTATION_WRITE_FAILED", "no rpc urls configured"))
		return
	}
	id, ok := new(big.Int).SetString(agentID, 10)
	if !ok {
		rpt.SubmissionIssues = append(rpt.SubmissionIssues, issue.New(issue.Warning, "REPUTATION_WRITE_FAILED", "invalid agent id"))
		return
	}
	txHash, issues := submission.SubmitFeedback(ctx, client, rpcs[0], id, uint8(overall), reportCID)
	rpt.SubmissionIssues = append(rpt.SubmissionIssues, issues...)
	if txHash != "" {
		chainID := chainCfg.ChainID
		rpt.FeedbackChainID = &chainID
		rpt.FeedbackTxHash = txHash
	}
}

// toReportScores converts a scoring.Scores into report.Scores; the two are
// kept as distinct types so the scoring package never has to import report.
func toReportScores(s scoring.Scores) report.Scores {
	return report.Scores{
		Overall:              s.Overall,
		Metadata:             s.Metadata,
		Onchain:              s.Onchain,
		EndpointAvailability: s.EndpointAvailability,
		EndpointPerformance:  s.EndpointPerformance,
		Security:             s.Security,
	}
}
