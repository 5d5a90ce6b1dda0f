// Package probe fetches an agent's declared service endpoints, measuring
// reachability, latency, and schema conformance, grounded on the reference
// implementation's endpoints.rs sampling and percentile logic.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/watchy-labs/watchy/internal/issue"
	"github.com/watchy-labs/watchy/internal/metadata"
)

const (
	maxBodyBytes    = 1 << 20 // 1 MiB
	perRequestDeadline = 10 * time.Second
	samplesPerEndpoint = 3
)

// Latency holds the three percentile figures computed from the raw samples.
type Latency struct {
	P50 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// Result is one endpoint's probe outcome.
type Result struct {
	Service      metadata.Service
	Reachable    bool
	StatusCode   int
	ValidSchema  *bool
	SkillsMatch  *bool
	Latency      *Latency
	ResponseBody []byte // bounded to maxBodyBytes, nil if unreachable
	Issues       []issue.Issue
}

// Prober fans out HTTP probes bounded by a per-audit weighted semaphore.
type Prober struct {
	client      *http.Client
	concurrency int64
}

// New builds a Prober with concurrency K simultaneous in-flight probes.
func New(k int64) *Prober {
	if k <= 0 {
		k = 8
	}
	return &Prober{
		client:      &http.Client{Timeout: perRequestDeadline},
		concurrency: k,
	}
}

// ProbeAll probes every service concurrently, bounded by the prober's
// semaphore; probes for the same endpoint URL are serialized by holding that
// URL's one-slot channel (taken before a semaphore slot) for the duration of
// its 3-sample run, so same-endpoint calls never interleave.
func (p *Prober) ProbeAll(ctx context.Context, services []metadata.Service) ([]Result, error) {
	sem := semaphore.NewWeighted(p.concurrency)
	results := make([]Result, len(services))

	urlSlots := make(map[string]chan struct{}, len(services))
	for _, svc := range services {
		if _, ok := urlSlots[svc.Endpoint]; !ok {
			urlSlots[svc.Endpoint] = make(chan struct{}, 1)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range services {
		i, svc := i, svc
		g.Go(func() error {
			slot := urlSlots[svc.Endpoint]
			select {
			case slot <- struct{}{}:
			case <-gctx.Done():
				return gctx.Err()
			}
			defer func() { <-slot }()
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)
			results[i] = p.probeOne(gctx, svc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Prober) probeOne(ctx context.Context, svc metadata.Service) Result {
	res := Result{Service: svc}

	if svc.Endpoint == "" {
		res.Issues = append(res.Issues, issue.New(issue.Critical, "ENDPOINT_UNREACHABLE", "service has no endpoint declared"))
		return res
	}

	total, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	samples, lastBody, lastStatus, sampleErr := p.sample(total, svc.Endpoint)
	if len(samples) == 0 {
		res.Issues = append(res.Issues, issue.New(issue.Critical, "ENDPOINT_UNREACHABLE", fmt.Sprintf("all probe attempts failed: %v", sampleErr)))
		return res
	}

	res.Reachable = true
	res.StatusCode = lastStatus
	res.ResponseBody = lastBody
	lat := percentiles(samples)
	res.Latency = &lat

	if lastStatus >= 400 {
		sev := issue.Error
		res.Issues = append(res.Issues, issue.New(sev, "HTTP_ERROR_STATUS", fmt.Sprintf("endpoint returned HTTP %d", lastStatus)))
	}

	validSchema, skillsMatch, schemaIssues := validateSchema(metadata.ServiceKind(svc.Name), svc, lastBody)
	res.ValidSchema = validSchema
	res.SkillsMatch = skillsMatch
	res.Issues = append(res.Issues, schemaIssues...)

	if lat.P95 > 2000*time.Millisecond {
		res.Issues = append(res.Issues, issue.New(issue.Warning, "HIGH_LATENCY", fmt.Sprintf("endpoint p95 latency is %dms (> 2000ms)", lat.P95.Milliseconds())))
	}

	return res
}

// sample issues up to samplesPerEndpoint sequential GET requests, returning
// every latency that succeeded plus the last successful response body/status.
func (p *Prober) sample(ctx context.Context, endpoint string) ([]time.Duration, []byte, int, error) {
	var samples []time.Duration
	var lastBody []byte
	var lastStatus int
	var lastErr error

	for i := 0; i < samplesPerEndpoint; i++ {
		reqCtx, cancel := context.WithTimeout(ctx, perRequestDeadline)
		start := time.Now()
		body, status, err := p.get(reqCtx, endpoint)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		samples = append(samples, time.Since(start))
		lastBody = body
		lastStatus = status

		if i < samplesPerEndpoint-1 {
			select {
			case <-ctx.Done():
				return samples, lastBody, lastStatus, ctx.Err()
			case <-time.After(100 * time.Millisecond):
			}
		}
	}
	return samples, lastBody, lastStatus, lastErr
}

func (p *Prober) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func percentiles(samples []time.Duration) Latency {
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	max := sorted[len(sorted)-1]
	return Latency{
		P50: sorted[len(sorted)/2],
		P95: max,
		P99: max,
	}
}

// validateSchema dispatches per service kind, checking the fetched body
// against the declared skills/tools where applicable.
func validateSchema(kind metadata.ServiceKind, svc metadata.Service, body []byte) (validSchema, skillsMatch *bool, issues []issue.Issue) {
	switch kind {
	case metadata.ServiceA2A:
		return validateA2A(svc, body)
	case metadata.ServiceMCP:
		return validateMCP(svc, body)
	case metadata.ServiceOASF:
		return validateOASF(svc, body)
	default:
		return nil, nil, nil
	}
}

func validateA2A(svc metadata.Service, body []byte) (*bool, *bool, []issue.Issue) {
	var card struct {
		Name         string        `json:"name"`
		Description  string        `json:"description"`
		Skills       []interface{} `json:"skills"`
		Capabilities interface{}   `json:"capabilities"`
	}
	falseV, trueV := false, true
	if err := json.Unmarshal(body, &card); err != nil {
		return &falseV, nil, []issue.Issue{issue.New(issue.Error, "A2A_FETCH_FAILED", "A2A agent-card response is not valid JSON")}
	}

	hasName := card.Name != ""
	hasSkills := len(card.Skills) > 0 || card.Capabilities != nil
	valid := hasName && hasSkills
	var issues []issue.Issue
	if !hasName {
		issues = append(issues, issue.New(issue.Error, "A2A_MISSING_NAME", "A2A agent card has no \"name\" field"))
	}

	var skillsMatch *bool
	if len(svc.A2ASkills) > 0 {
		match := skillsSubsetPresent(svc.A2ASkills, card.Skills)
		skillsMatch = &match
		if !match {
			issues = append(issues, issue.New(issue.Warning, "A2A_SKILLS_MISMATCH", "declared a2aSkills are not all present in the fetched agent card"))
		}
	}

	if valid {
		return &trueV, skillsMatch, issues
	}
	return &falseV, skillsMatch, issues
}

func validateMCP(svc metadata.Service, body []byte) (*bool, *bool, []issue.Issue) {
	var manifest struct {
		Tools   []struct{ Name string `json:"name"` } `json:"tools"`
		Prompts []struct{ Name string `json:"name"` } `json:"prompts"`
	}
	falseV, trueV := false, true
	if err := json.Unmarshal(body, &manifest); err != nil {
		return &falseV, nil, []issue.Issue{issue.New(issue.Error, "SCHEMA_MISMATCH", "MCP manifest response is not valid JSON")}
	}

	valid := len(manifest.Tools) > 0 || len(manifest.Prompts) > 0
	var issues []issue.Issue
	var skillsMatch *bool
	if len(svc.MCPTools) > 0 {
		names := make(map[string]bool, len(manifest.Tools))
		for _, t := range manifest.Tools {
			names[t.Name] = true
		}
		allPresent := true
		for _, want := range svc.MCPTools {
			if !names[want] {
				allPresent = false
			}
		}
		skillsMatch = &allPresent
		if !allPresent {
			issues = append(issues, issue.New(issue.Warning, "MCP_TOOLS_MISMATCH", "declared mcpTools are not all present in the fetched manifest"))
		}
	}

	if valid {
		return &trueV, skillsMatch, issues
	}
	return &falseV, skillsMatch, []issue.Issue{issue.New(issue.Error, "SCHEMA_MISMATCH", "MCP manifest exposes neither tools nor prompts")}
}

func validateOASF(svc metadata.Service, body []byte) (*bool, *bool, []issue.Issue) {
	var doc struct {
		Skills  []interface{} `json:"skills"`
		Domains []interface{} `json:"domains"`
	}
	falseV, trueV := false, true
	if err := json.Unmarshal(body, &doc); err != nil {
		return &falseV, nil, []issue.Issue{issue.New(issue.Error, "SCHEMA_MISMATCH", "OASF manifest response is not valid JSON")}
	}
	valid := len(doc.Skills) > 0 || len(doc.Domains) > 0
	if valid {
		return &trueV, nil, nil
	}
	return &falseV, nil, []issue.Issue{issue.New(issue.Error, "SCHEMA_MISMATCH", "OASF manifest exposes neither skills nor domains")}
}

// skillsSubsetPresent reports whether every declared skill name has a
// substring match (either direction) against the card's reported skills.
func skillsSubsetPresent(declared []string, actual []interface{}) bool {
	actualNames := make([]string, 0, len(actual))
	for _, a := range actual {
		switch v := a.(type) {
		case string:
			actualNames = append(actualNames, v)
		case map[string]interface{}:
			if name, ok := v["name"].(string); ok {
				actualNames = append(actualNames, name)
			}
		}
	}
	for _, want := range declared {
		found := false
		wantLower := strings.ToLower(want)
		for _, have := range actualNames {
			haveLower := strings.ToLower(have)
			if strings.Contains(wantLower, haveLower) || strings.Contains(haveLower, wantLower) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
