// Package engine runs the end-to-end audit pipeline: resolve the agent
// on-chain, fetch and validate its metadata, probe its declared endpoints,
// run heuristic security checks, then score, sign, upload, and publish the
// result, grounded on the reference implementation's run_audit sequence.
package engine

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/issue"
	"github.com/watchy-labs/watchy/internal/jobstore"
	"github.com/watchy-labs/watchy/internal/metadata"
	"github.com/watchy-labs/watchy/internal/onchain"
	"github.com/watchy-labs/watchy/internal/probe"
	"github.com/watchy-labs/watchy/internal/report"
	"github.com/watchy-labs/watchy/internal/scoring"
	"github.com/watchy-labs/watchy/internal/security"
	"github.com/watchy-labs/watchy/internal/signer"
	"github.com/watchy-labs/watchy/internal/submission"
)

// auditDeadline bounds a single audit's wall-clock time from Submit to
// finalization, matching the reference engine's timeout guard.
const auditDeadline = 180 * time.Second

// httpCallDeadline bounds any single outbound HTTP call an audit makes
// outside of probe.Prober, which already enforces its own per-request
// deadline.
const httpCallDeadline = 10 * time.Second

// Notifier receives a job's state on every status transition, letting the
// API layer drive webhook delivery and websocket progress streaming without
// this package depending on either.
type Notifier interface {
	Notify(job *jobstore.Job)
}

// registryFetcher is the subset of onchain.RegistryClient the engine calls,
// narrowed so tests can substitute a stub without dialing an RPC.
type registryFetcher interface {
	FetchAgent(ctx context.Context, agentID *big.Int, rpcs []string) (*onchain.AgentRecord, error)
}

// reputationWriter mirrors internal/submission's own narrow interface over
// onchain.ReputationClient.
type reputationWriter interface {
	SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error)
}

// prober is the subset of probe.Prober the engine calls.
type prober interface {
	ProbeAll(ctx context.Context, services []metadata.Service) ([]probe.Result, error)
}

// Config configures an Engine. Store and Signer are the only required
// fields; everything else has a sensible default.
type Config struct {
	Store       jobstore.Store
	Signer      signer.Signer
	Uploader    submission.Uploader // nil disables report upload
	RateLimiter jobstore.RateLimiter // nil disables per-agent rate limiting
	Notifier    Notifier             // nil disables notifications

	MaxConcurrency   int64 // global cap on simultaneously running audits
	ProbeConcurrency int64 // per-audit endpoint probe fan-out
	WeighSecurity    bool

	HTTPClient *http.Client

	registryClientFor   func(chains.Config) (registryFetcher, error)
	reputationClientFor func(chains.Config, signer.Signer) (reputationWriter, error)
	newProber           func(int64) prober
}

// Engine orchestrates audits end to end.
type Engine struct {
	store       jobstore.Store
	signer      signer.Signer
	uploader    submission.Uploader
	rateLimiter jobstore.RateLimiter
	notifier    Notifier

	sem           *semaphore.Weighted
	proberK       int64
	weighSecurity bool
	httpClient    *http.Client

	registryClientFor   func(chains.Config) (registryFetcher, error)
	reputationClientFor func(chains.Config, signer.Signer) (reputationWriter, error)
	newProber           func(int64) prober
}

// New builds an Engine from cfg, applying defaults for anything unset.
func New(cfg Config) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 32
	}
	if cfg.ProbeConcurrency <= 0 {
		cfg.ProbeConcurrency = 8
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: httpCallDeadline}
	}
	if cfg.registryClientFor == nil {
		cfg.registryClientFor = func(c chains.Config) (registryFetcher, error) { return onchain.NewRegistryClient(c) }
	}
	if cfg.reputationClientFor == nil {
		cfg.reputationClientFor = func(c chains.Config, s signer.Signer) (reputationWriter, error) {
			return onchain.NewReputationClient(c, s)
		}
	}
	if cfg.newProber == nil {
		cfg.newProber = func(k int64) prober { return probe.New(k) }
	}

	return &Engine{
		store:               cfg.Store,
		signer:              cfg.Signer,
		uploader:            cfg.Uploader,
		rateLimiter:         cfg.RateLimiter,
		notifier:            cfg.Notifier,
		sem:                 semaphore.NewWeighted(cfg.MaxConcurrency),
		proberK:             cfg.ProbeConcurrency,
		weighSecurity:       cfg.WeighSecurity,
		httpClient:          cfg.HTTPClient,
		registryClientFor:   cfg.registryClientFor,
		reputationClientFor: cfg.reputationClientFor,
		newProber:           cfg.newProber,
	}
}

// ErrRateLimited is returned by Submit when the (chainID, agentID) pair has
// exceeded its audit rate limit.
var ErrRateLimited = fmt.Errorf("engine: audit rate limit exceeded for this agent")

// Submit validates chainID, creates a job, and starts the audit in the
// background, returning the job in its initial pending state. The audit
// itself runs detached from ctx under its own deadline, so a client
// disconnecting does not abort an in-flight audit.
func (e *Engine) Submit(ctx context.Context, chainID uint64, agentID string, callbackURL string) (*jobstore.Job, error) {
	if err := chains.Validate(chainID); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	if e.rateLimiter != nil {
		ok, err := e.rateLimiter.Allow(ctx, chainID, agentID)
		if err != nil {
			return nil, fmt.Errorf("engine: rate limit check: %w", err)
		}
		if !ok {
			return nil, ErrRateLimited
		}
	}

	job, err := e.store.Create(ctx, agentID, chainID, callbackURL)
	if err != nil {
		return nil, fmt.Errorf("engine: create job: %w", err)
	}

	go e.run(job.ID, chainID, agentID)

	return job, nil
}

// Status returns an audit job's current state.
func (e *Engine) Status(ctx context.Context, auditID string) (*jobstore.Job, error) {
	return e.store.Get(ctx, auditID)
}

// Report returns a completed audit's report, or an error if the job has not
// finished successfully.
func (e *Engine) Report(ctx context.Context, auditID string) (*report.Report, error) {
	job, err := e.store.Get(ctx, auditID)
	if err != nil {
		return nil, err
	}
	if job.Status != jobstore.StatusCompleted || job.Result == nil {
		return nil, fmt.Errorf("engine: audit %q has status %q, no report available", auditID, job.Status)
	}
	return job.Result, nil
}

// run executes one audit's full pipeline. It is detached from the request
// that submitted it, bounded instead by auditDeadline.
func (e *Engine) run(auditID string, chainID uint64, agentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), auditDeadline)
	defer cancel()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.fail(auditID, "AUDIT_TIMEOUT", "audit could not acquire a worker slot before its deadline")
		return
	}
	defer e.sem.Release(1)

	if err := e.store.UpdateStatus(ctx, auditID, jobstore.StatusInProgress); err != nil {
		return
	}
	e.progress(ctx, auditID, "onchain_fetch", 0, totalPhases)

	chainCfg, ok := chains.Get(chainID)
	if !ok {
		e.fail(auditID, "AGENT_NOT_FOUND", fmt.Sprintf("chain %d is not configured", chainID))
		return
	}

	rec, err := e.fetchOnchain(ctx, chainCfg, agentID)
	if err != nil {
		if ctx.Err() != nil {
			e.fail(auditID, "AUDIT_TIMEOUT", "on-chain lookup did not complete before the audit deadline")
			return
		}
		e.fail(auditID, "AGENT_NOT_FOUND", fmt.Sprintf("agent %s not resolvable on chain %d: %v", agentID, chainID, err))
		return
	}
	if !rec.Exists {
		e.fail(auditID, "AGENT_NOT_FOUND", fmt.Sprintf("agent %s does not exist in the identity registry on chain %d", agentID, chainID))
		return
	}

	e.progress(ctx, auditID, "metadata_and_endpoints", 1, totalPhases)
	doc, metaResult, checks := e.auditMetadataAndEndpoints(ctx, chainCfg, agentID, rec)
	if ctx.Err() != nil {
		e.fail(auditID, "AUDIT_TIMEOUT", "audit did not complete before its deadline")
		return
	}

	e.progress(ctx, auditID, "security_checks", 3, totalPhases)
	secResult, secIssues := security.Result{}, []issue.Issue(nil)
	if doc != nil {
		secResult, secIssues = security.Run(ctx, e.httpClient, doc, doc.Services)
	}
	checks.SecurityIssues = secIssues

	scores := scoring.Scores{
		Metadata: scoring.Metadata(scoring.MetadataInputs{Result: metaResult, HasCritical: issue.HasCritical(checks.MetadataIssues)}),
		Onchain: scoring.Onchain(scoring.OnchainInputs{
			Exists:                 rec.Exists,
			URIMatch:               doc != nil && !rec.URIMismatch,
			WalletSet:              rec.Wallet != nil,
			RegistrationConsistent: metaResult.RegistrationOK,
		}),
		Security: scoring.Security(secResult),
	}
	scores.EndpointAvailability, scores.EndpointPerformance = e.endpointScores(checks)
	scores.Overall = scoring.Overall(scores, e.weighSecurity)

	e.progress(ctx, auditID, "finalization", 4, totalPhases)
	e.finalize(ctx, auditID, chainCfg, agentID, rec, doc, scores, checks)
}

// totalPhases is the audit pipeline's fixed step count, surfaced on in
// progress jobs so pollers can render a phase indicator.
const totalPhases = 5

func (e *Engine) progress(ctx context.Context, auditID, phase string, completedSteps, totalSteps int) {
	if err := e.store.SetProgress(ctx, auditID, phase, completedSteps, totalSteps); err != nil {
		return
	}
	e.notify(ctx, auditID)
}

func (e *Engine) endpointScores(checks report.Checks) (availability, performance int) {
	results := make([]probe.Result, 0, len(checks.Endpoints))
	for _, ep := range checks.Endpoints {
		results = append(results, endpointCheckToProbeResult(ep))
	}
	return scoring.EndpointAvailability(results), scoring.EndpointPerformance(results)
}

// endpointCheckToProbeResult reconstructs the probe.Result shape the scoring
// package expects from the report-facing EndpointCheck, since checks are
// accumulated in report form as they're produced.
func endpointCheckToProbeResult(ep report.EndpointCheck) probe.Result {
	res := probe.Result{
		Reachable:  ep.Reachable,
		StatusCode: httpOKStatus(ep),
	}
	if ep.LatencyP95 != nil {
		res.Latency = &probe.Latency{P95: time.Duration(*ep.LatencyP95) * time.Millisecond}
	}
	return res
}

// httpOKStatus recovers a representative status code for scoring purposes:
// a probe.Result's reachability credit only distinguishes 2xx/3xx from
// 4xx from 5xx-or-unreachable, so any concrete code in the right band works.
func httpOKStatus(ep report.EndpointCheck) int {
	if !ep.Reachable {
		return 0
	}
	for _, iss := range ep.Issues {
		if iss.Code == "HTTP_ERROR_STATUS" {
			var code int
			if _, err := fmt.Sscanf(iss.Message, "endpoint returned HTTP %d", &code); err == nil && code < 500 {
				return 400
			}
			return 500
		}
	}
	return 200
}

func (e *Engine) fetchOnchain(ctx context.Context, chainCfg chains.Config, agentID string) (*onchain.AgentRecord, error) {
	client, err := e.registryClientFor(chainCfg)
	if err != nil {
		return nil, err
	}
	id, ok := new(big.Int).SetString(agentID, 10)
	if !ok {
		return nil, fmt.Errorf("engine: invalid agent id %q", agentID)
	}
	return client.FetchAgent(ctx, id, chains.AllRPCs(chainCfg.ChainID))
}

func (e *Engine) fail(auditID, code, message string) {
	finalCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.store.SetError(finalCtx, auditID, code, message)
	e.notify(finalCtx, auditID)
}

// SetNotifier attaches a notifier after construction, for callers whose
// notifier (typically an HTTP server) is itself built from the Engine.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

func (e *Engine) notify(ctx context.Context, auditID string) {
	if e.notifier == nil {
		return
	}
	job, err := e.store.Get(ctx, auditID)
	if err != nil {
		return
	}
	e.notifier.Notify(job)
}
