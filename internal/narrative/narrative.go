// Package narrative turns a finalized audit report into a short natural
// language summary via an LLM, additive to the report's scored fields and
// never gating audit completion.
package narrative

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/watchy-labs/watchy/internal/config"
	"github.com/watchy-labs/watchy/internal/issue"
	"github.com/watchy-labs/watchy/internal/report"
)

// Client generates narrative summaries through an OpenAI-compatible
// chat-completions endpoint.
type Client struct {
	api   *openai.Client
	model string
}

// New builds a Client from cfg, returning nil (a valid, no-op receiver isn't
// possible here since Summarize has a pointer receiver) when narration is
// disabled or misconfigured; callers must nil-check before use.
func New(cfg config.LLMConfig) *Client {
	if !cfg.Enabled || cfg.Provider != "openai" || cfg.APIKey == "" {
		return nil
	}
	return &Client{api: openai.NewClient(cfg.APIKey), model: cfg.Model}
}

// Summarize asks the model for a two-or-three sentence plain-language
// verdict on the audited agent, grounded only in the report's own findings.
func (c *Client) Summarize(ctx context.Context, rpt *report.Report) (string, error) {
	prompt := buildPrompt(rpt)
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You summarize automated infrastructure audit reports for AI agents in two or three plain sentences. Do not invent findings not present in the report."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("narrative: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("narrative: no completion returned")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func buildPrompt(rpt *report.Report) string {
	var issues []issue.Issue
	issues = append(issues, rpt.Checks.MetadataIssues...)
	issues = append(issues, rpt.Checks.OnchainIssues...)
	issues = append(issues, rpt.Checks.SecurityIssues...)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Overall score: %d/100 (metadata %d, on-chain %d, endpoint availability %d, endpoint performance %d, security %d).\n",
		rpt.Scores.Overall, rpt.Scores.Metadata, rpt.Scores.Onchain, rpt.Scores.EndpointAvailability, rpt.Scores.EndpointPerformance, rpt.Scores.Security)
	fmt.Fprintf(&sb, "%d endpoints checked.\n", len(rpt.Checks.Endpoints))
	if len(issues) == 0 {
		sb.WriteString("No issues were found.")
		return sb.String()
	}
	sb.WriteString("Issues found:\n")
	for _, iss := range issues {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", iss.Severity, iss.Code, iss.Message)
	}
	return sb.String()
}
