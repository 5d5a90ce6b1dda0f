// Package jobstore tracks audit jobs across their lifecycle, behind a
// Store interface backed by an in-memory map or Redis.
package jobstore

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/watchy-labs/watchy/internal/report"
)

// Status is an audit job's lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// TTL is how long a job survives in the store after reaching a terminal
// status.
const TTL = 7 * 24 * time.Hour

// JobError is a failed job's stable code alongside a human-readable message,
// so a client can branch on Code without parsing Message.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Job is one audit's tracked state. AgentID is a decimal string since agent
// IDs are uint256 on chain and don't fit a machine word.
type Job struct {
	ID          string         `json:"id"`
	AgentID     string         `json:"agentId"`
	ChainID     uint64         `json:"chainId"`
	Status      Status         `json:"status"`
	CreatedAt   int64          `json:"createdAt"`
	CompletedAt *int64         `json:"completedAt,omitempty"`
	Result      *report.Report `json:"result,omitempty"`
	Error       *JobError      `json:"error,omitempty"`

	// CallbackURL, when set at submission time, receives a webhook once the
	// job reaches a terminal status.
	CallbackURL string `json:"callbackUrl,omitempty"`

	// Progress is populated while Status is in_progress so pollers can show
	// which of the audit's fixed phases is currently running.
	Phase          string `json:"phase,omitempty"`
	CompletedSteps int    `json:"completedSteps,omitempty"`
	TotalSteps     int    `json:"totalSteps,omitempty"`
}

// newAuditID generates an audit ID: an "aud_" prefix plus 32 hex characters
// of entropy, drawn from a v4 UUID's 16 random bytes.
func newAuditID() string {
	id := uuid.New()
	return "aud_" + hex.EncodeToString(id[:])
}

// Terminal reports whether j is in a status the TTL sweep should apply to.
func (j Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Page is one page of an agent's audit history.
type Page struct {
	Jobs   []Job `json:"jobs"`
	Total  int   `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}

// Store is the audit job persistence contract. Every method is safe for
// concurrent use.
type Store interface {
	Create(ctx context.Context, agentID string, chainID uint64, callbackURL string) (*Job, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
	SetProgress(ctx context.Context, id string, phase string, completedSteps, totalSteps int) error
	SetResult(ctx context.Context, id string, result *report.Report) error
	SetError(ctx context.Context, id string, code, message string) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByAgent(ctx context.Context, chainID uint64, agentID string, offset, limit int) (*Page, error)
}

// MaxPageLimit bounds ListByAgent's limit parameter.
const MaxPageLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
