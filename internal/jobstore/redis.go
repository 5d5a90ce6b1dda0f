package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchy-labs/watchy/internal/report"
)

// RedisStore is a Store backed by Redis, durable across process restarts.
// Job documents are canonical JSON under job:<audit_id>; a per-agent list at
// agent:<chain_id>:<agent_id> holds audit IDs newest-first for ListByAgent.
type RedisStore struct {
	client *redis.Client
}

// Connect builds a Redis client from redisURL, accepting both redis:// URLs
// and bare host:port addresses.
func Connect(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("jobstore: parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// NewRedisStore wraps an already-connected Redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string {
	return "job:" + id
}

func agentIndexKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("agent:%d:%s", chainID, agentID)
}

func (s *RedisStore) Create(ctx context.Context, agentID string, chainID uint64, callbackURL string) (*Job, error) {
	job := &Job{
		ID:          newAuditID(),
		AgentID:     agentID,
		ChainID:     chainID,
		Status:      StatusPending,
		CreatedAt:   time.Now().Unix(),
		CallbackURL: callbackURL,
	}
	if err := s.put(ctx, job); err != nil {
		return nil, err
	}
	if err := s.client.LPush(ctx, agentIndexKey(chainID, agentID), job.ID).Err(); err != nil {
		return nil, fmt.Errorf("jobstore: index job: %w", err)
	}
	return job, nil
}

func (s *RedisStore) SetProgress(ctx context.Context, id string, phase string, completedSteps, totalSteps int) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Phase = phase
	job.CompletedSteps = completedSteps
	job.TotalSteps = totalSteps
	return s.put(ctx, job)
}

func (s *RedisStore) put(ctx context.Context, job *Job) error {
	raw, err := report.CanonicalJSON(job)
	if err != nil {
		return fmt.Errorf("jobstore: marshal job: %w", err)
	}
	// Non-terminal jobs get no expiry; the TTL starts once a job completes
	// or fails so in-flight audits are never evicted mid-run.
	ttl := time.Duration(0)
	if job.Terminal() {
		ttl = TTL
	}
	if err := s.client.Set(ctx, jobKey(job.ID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("jobstore: set job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	raw, err := s.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("jobstore: job %q not found", id)
		}
		return nil, fmt.Errorf("jobstore: get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil, fmt.Errorf("jobstore: unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Status = status
	return s.put(ctx, job)
}

func (s *RedisStore) SetResult(ctx context.Context, id string, result *report.Report) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	return s.put(ctx, job)
}

func (s *RedisStore) SetError(ctx context.Context, id string, code, message string) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = &JobError{Code: code, Message: message}
	return s.put(ctx, job)
}

func (s *RedisStore) ListByAgent(ctx context.Context, chainID uint64, agentID string, offset, limit int) (*Page, error) {
	limit = clampLimit(limit)
	key := agentIndexKey(chainID, agentID)

	total, err := s.client.LLen(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore: list length: %w", err)
	}

	ids, err := s.client.LRange(ctx, key, int64(offset), int64(offset+limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore: list range: %w", err)
	}

	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			// The index outlives the job past its TTL; skip evicted entries
			// rather than failing the whole page.
			continue
		}
		jobs = append(jobs, *job)
	}

	return &Page{Jobs: jobs, Total: int(total), Offset: offset, Limit: limit}, nil
}

// RedisRateLimiter enforces a sliding-window cap on audits per
// (chainID, agentID) using a Redis counter with expiry, keyed independently
// of job storage.
type RedisRateLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisRateLimiter builds a limiter allowing limit audits per window for a
// given (chainID, agentID) pair.
func NewRedisRateLimiter(client *redis.Client, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func rateLimitKey(chainID uint64, agentID string) string {
	return fmt.Sprintf("ratelimit:%d:%s", chainID, agentID)
}

// Allow increments the window counter for (chainID, agentID) and reports
// whether the request stays within the configured limit.
func (r *RedisRateLimiter) Allow(ctx context.Context, chainID uint64, agentID string) (bool, error) {
	key := rateLimitKey(chainID, agentID)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("jobstore: rate limit incr: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("jobstore: rate limit expire: %w", err)
		}
	}
	return count <= int64(r.limit), nil
}

// Remaining reports how many audits (chainID, agentID) can still perform in
// the current window, for surfacing in an error message.
func (r *RedisRateLimiter) Remaining(ctx context.Context, chainID uint64, agentID string) (int, error) {
	raw, err := r.client.Get(ctx, rateLimitKey(chainID, agentID)).Result()
	if errors.Is(err, redis.Nil) {
		return r.limit, nil
	}
	if err != nil {
		return 0, fmt.Errorf("jobstore: rate limit get: %w", err)
	}
	used, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("jobstore: rate limit parse: %w", err)
	}
	remaining := r.limit - used
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
