package jobstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/watchy-labs/watchy/internal/report"
)

// MemoryStore is an in-process Store backed by a mutex-guarded map, with a
// background hourly sweep that evicts jobs once TTL has passed since they
// went terminal.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	done chan struct{}
}

// NewMemoryStore constructs a MemoryStore and starts its TTL sweep goroutine.
// Callers must call Close when finished to stop the sweep.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		jobs: make(map[string]*Job),
		done: make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Close stops the background sweep goroutine.
func (s *MemoryStore) Close() {
	close(s.done)
}

func (s *MemoryStore) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *MemoryStore) sweep() {
	cutoff := time.Now().Add(-TTL).Unix()
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, j := range s.jobs {
		if j.Terminal() && j.CompletedAt != nil && *j.CompletedAt < cutoff {
			delete(s.jobs, id)
		}
	}
}

func (s *MemoryStore) Create(ctx context.Context, agentID string, chainID uint64, callbackURL string) (*Job, error) {
	job := &Job{
		ID:          newAuditID(),
		AgentID:     agentID,
		ChainID:     chainID,
		Status:      StatusPending,
		CreatedAt:   time.Now().Unix(),
		CallbackURL: callbackURL,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()
	return job, nil
}

func (s *MemoryStore) SetProgress(ctx context.Context, id string, phase string, completedSteps, totalSteps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobstore: job %q not found", id)
	}
	job.Phase = phase
	job.CompletedSteps = completedSteps
	job.TotalSteps = totalSteps
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("jobstore: job %q not found", id)
	}
	cp := *job
	return &cp, nil
}

func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobstore: job %q not found", id)
	}
	job.Status = status
	return nil
}

func (s *MemoryStore) SetResult(ctx context.Context, id string, result *report.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobstore: job %q not found", id)
	}
	now := time.Now().Unix()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	return nil
}

func (s *MemoryStore) SetError(ctx context.Context, id string, code, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("jobstore: job %q not found", id)
	}
	now := time.Now().Unix()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.Error = &JobError{Code: code, Message: message}
	return nil
}

func (s *MemoryStore) ListByAgent(ctx context.Context, chainID uint64, agentID string, offset, limit int) (*Page, error) {
	limit = clampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []Job
	for _, j := range s.jobs {
		if j.ChainID == chainID && j.AgentID == agentID {
			matched = append(matched, *j)
		}
	}
	sort.Slice(matched, func(i, k int) bool { return matched[i].CreatedAt > matched[k].CreatedAt })

	total := len(matched)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return &Page{Jobs: matched[offset:end], Total: total, Offset: offset, Limit: limit}, nil
}
