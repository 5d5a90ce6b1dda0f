package jobstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/report"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	job, err := s.Create(context.Background(), "42", 8453, "")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, job.Status)
	assert.NotEmpty(t, job.ID)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
}

func TestMemoryStoreGetMissingReturnsError(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Get(context.Background(), "aud_does-not-exist")
	assert.Error(t, err)
}

func TestMemoryStoreSetResultMarksCompleted(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	job, err := s.Create(context.Background(), "1", 8453, "")
	require.NoError(t, err)

	rep := &report.Report{Scores: report.Scores{Overall: 90}}
	require.NoError(t, s.SetResult(context.Background(), job.ID, rep))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
	require.NotNil(t, got.Result)
	assert.Equal(t, 90, got.Result.Scores.Overall)
}

func TestMemoryStoreSetErrorMarksFailed(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	job, err := s.Create(context.Background(), "1", 8453, "")
	require.NoError(t, err)

	require.NoError(t, s.SetError(context.Background(), job.ID, "SOME_CODE", "boom"))

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, "SOME_CODE", got.Error.Code)
	assert.Equal(t, "boom", got.Error.Message)
}

func TestMemoryStoreListByAgentPaginates(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	var ids []string
	for i := 0; i < 5; i++ {
		job, err := s.Create(context.Background(), "7", 8453, "")
		require.NoError(t, err)
		ids = append(ids, job.ID)
	}

	page, err := s.ListByAgent(context.Background(), 8453, "7", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Len(t, page.Jobs, 2)

	page2, err := s.ListByAgent(context.Background(), 8453, "7", 4, 2)
	require.NoError(t, err)
	assert.Len(t, page2.Jobs, 1)

	_ = ids
}

func TestMemoryStoreListByAgentClampsLimit(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Create(context.Background(), "7", 8453, "")
	require.NoError(t, err)

	page, err := s.ListByAgent(context.Background(), 8453, "7", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, MaxPageLimit, page.Limit)
}

func TestMemoryStoreListByAgentIgnoresOtherAgents(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()

	_, err := s.Create(context.Background(), "1", 8453, "")
	require.NoError(t, err)
	_, err = s.Create(context.Background(), "2", 8453, "")
	require.NoError(t, err)

	page, err := s.ListByAgent(context.Background(), 8453, "1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}
