package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/watchy-labs/watchy/internal/issue"
)

// RenderMarkdown produces the human-readable report uploaded alongside the
// JSON document.
func RenderMarkdown(r *Report, agentName string) string {
	if agentName == "" {
		agentName = "Unknown"
	}
	ts := time.Unix(r.Timestamp, 0).UTC().Format("2006-01-02 15:04:05 UTC")

	var md strings.Builder

	fmt.Fprintf(&md, "# Watchy Audit Report\n\n## Agent #%s - %s\n\n**Overall Score: %d/100** %s\n\n**Audited on %s | Block #%d**\n\n---\n\n",
		r.Agent.AgentID, agentName, r.Scores.Overall, scoreEmoji(r.Scores.Overall), ts, r.BlockNumber)

	md.WriteString(disclaimer)

	md.WriteString("## Score Breakdown\n\n")
	fmt.Fprintf(&md, "### Overall: %d/100 %s\n\n", r.Scores.Overall, scoreEmoji(r.Scores.Overall))
	md.WriteString("| Component | Score | Weight |\n|-----------|-------|--------|\n")
	fmt.Fprintf(&md, "| Metadata | %d/100 | 30%% |\n", r.Scores.Metadata)
	fmt.Fprintf(&md, "| On-chain | %d/100 | 25%% |\n", r.Scores.Onchain)
	fmt.Fprintf(&md, "| Endpoint Availability | %d/100 | 25%% |\n", r.Scores.EndpointAvailability)
	fmt.Fprintf(&md, "| Endpoint Performance | %d/100 | 20%% |\n", r.Scores.EndpointPerformance)
	fmt.Fprintf(&md, "| Security (reported) | %d/100 | not weighted by default |\n\n", r.Scores.Security)
	fmt.Fprintf(&md, "### Verdict\n\n%s\n\n%s\n\n---\n\n", verdictText(r.Scores.Overall), verdictExplanation(r.Scores.Overall))

	md.WriteString("## Agent Identity\n\n*Verified on-chain registration information*\n\n")
	md.WriteString("| Property | Value |\n|----------|-------|\n")
	fmt.Fprintf(&md, "| **Agent ID** | `%s` |\n", r.Agent.AgentID)
	fmt.Fprintf(&md, "| **Name** | %s |\n", agentName)
	fmt.Fprintf(&md, "| **Registry** | `%s` |\n", r.Agent.Registry)
	if r.Agent.Owner != nil {
		fmt.Fprintf(&md, "| **Owner** | `%s` |\n", *r.Agent.Owner)
	}
	fmt.Fprintf(&md, "| **Metadata URI** | `%s` |\n\n---\n\n", r.Agent.MetadataURI)

	if len(r.Checks.Endpoints) > 0 {
		md.WriteString("## Endpoint Results\n\n")
		md.WriteString("| Service | Endpoint | Reachable | Schema Valid | p95 Latency |\n")
		md.WriteString("|---------|----------|-----------|---------------|-------------|\n")
		for _, ep := range r.Checks.Endpoints {
			latency := "-"
			if ep.LatencyP95 != nil {
				latency = fmt.Sprintf("%dms %s", *ep.LatencyP95, latencyRating(*ep.LatencyP95))
			}
			fmt.Fprintf(&md, "| %s | `%s` | %s | %s | %s |\n",
				ep.Service, ep.Endpoint, passFail(ep.Reachable), optionalPassFail(ep.ValidSchema), latency)
		}
		md.WriteString("\n---\n\n")
	}

	allIssues := collectIssues(r.Checks)
	counts := issue.Count(allIssues)
	total := counts[issue.Critical] + counts[issue.Error] + counts[issue.Warning] + counts[issue.Info]
	if total > 0 {
		md.WriteString("## Issues Found\n\n")
		if n := counts[issue.Critical]; n > 0 {
			fmt.Fprintf(&md, "- 🔴 **%d Critical** - must be fixed\n", n)
		}
		if n := counts[issue.Error]; n > 0 {
			fmt.Fprintf(&md, "- 🟠 **%d Errors** - should be fixed\n", n)
		}
		if n := counts[issue.Warning]; n > 0 {
			fmt.Fprintf(&md, "- 🟡 **%d Warnings** - consider fixing\n", n)
		}
		if n := counts[issue.Info]; n > 0 {
			fmt.Fprintf(&md, "- 🔵 **%d Info** - for your information\n", n)
		}
		md.WriteString("\n### All Issues\n\n| Severity | Code | Message |\n|----------|------|---------|\n")
		for _, iss := range allIssues {
			fmt.Fprintf(&md, "| %s | `%s` | %s |\n", severityEmoji(iss.Severity), iss.Code, iss.Message)
		}
		md.WriteString("\n---\n\n")
	}

	fmt.Fprintf(&md, footer, r.Auditor.Version)
	return md.String()
}

const disclaimer = `## What This Audit Covers

> **Important:** This audit verifies the *infrastructure and metadata* of an EIP-8004 agent. It does **NOT** test the actual functionality of the agent's tools or skills.

| Category | What We Check | What We DON'T Check |
|----------|---------------|---------------------|
| **Endpoints** | Reachability, latency, valid JSON response | Actual tool execution or correctness |
| **Schema** | Response structure matches expected format | Business logic or output quality |
| **Security** | TLS presence, image content type, metadata freshness | Authentication flows, access control |
| **Metadata** | Fields present, URLs valid, registration matches | Content accuracy or truthfulness |

---

`

const footer = `## About This Report

This report was automatically generated by **Watchy v%s**, an EIP-8004 agent auditing service.

### Limitations

- This audit checks **infrastructure only**, not agent behavior or output quality
- Endpoint tests verify **reachability and schema**, not functional correctness
- Security checks cover **transport-layer signals** only, not application security
- Metadata validation checks **format**, not content truthfulness

### Learn More

- [EIP-8004 Specification](https://eips.ethereum.org/EIPS/eip-8004)

---

*Report generated by Watchy*
`

func collectIssues(c Checks) []issue.Issue {
	var all []issue.Issue
	all = append(all, c.MetadataIssues...)
	all = append(all, c.OnchainIssues...)
	for _, ep := range c.Endpoints {
		all = append(all, ep.Issues...)
	}
	all = append(all, c.SecurityIssues...)
	return all
}

func scoreEmoji(score int) string {
	switch {
	case score >= 90:
		return "🏆"
	case score >= 75:
		return "✅"
	case score >= 60:
		return "⚠️"
	case score >= 40:
		return "🟠"
	default:
		return "🔴"
	}
}

func verdictText(score int) string {
	switch {
	case score >= 90:
		return "**Excellent** - agent passes all critical checks"
	case score >= 75:
		return "**Good** - agent passes most checks with minor issues"
	case score >= 60:
		return "**Fair** - agent has issues that should be addressed"
	case score >= 40:
		return "**Poor** - agent has significant problems"
	default:
		return "**Critical** - agent fails multiple critical checks"
	}
}

func verdictExplanation(score int) string {
	switch {
	case score >= 90:
		return "This agent has excellent infrastructure. All endpoints are reachable, metadata is complete, and security basics are in place."
	case score >= 75:
		return "This agent has solid infrastructure with some minor issues. Review the warnings below."
	case score >= 60:
		return "This agent has noticeable issues that may affect reliability."
	case score >= 40:
		return "This agent has significant infrastructure problems. Proceed with caution."
	default:
		return "This agent has critical problems that make it unreliable to interact with."
	}
}

func passFail(ok bool) string {
	if ok {
		return "✅ Pass"
	}
	return "❌ Fail"
}

func optionalPassFail(v *bool) string {
	if v == nil {
		return "-"
	}
	return passFail(*v)
}

func latencyRating(p95Ms int64) string {
	switch {
	case p95Ms <= 200:
		return "🟢 Excellent"
	case p95Ms <= 500:
		return "🟢 Good"
	case p95Ms <= 1000:
		return "🟡 Fair"
	case p95Ms <= 2000:
		return "🟠 Slow"
	default:
		return "🔴 Very Slow"
	}
}

func severityEmoji(s issue.Severity) string {
	switch s {
	case issue.Critical:
		return "🔴"
	case issue.Error:
		return "🟠"
	case issue.Warning:
		return "🟡"
	default:
		return "🔵"
	}
}
