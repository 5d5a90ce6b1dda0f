package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/metadata"
)

func TestProbeAllReachableA2A(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"Test Agent","description":"d","skills":["translate","summarize"]}`))
	}))
	defer srv.Close()

	p := New(4)
	services := []metadata.Service{{Name: "A2A", Endpoint: srv.URL, Version: "1.0", A2ASkills: []string{"translate"}}}
	results, err := p.ProbeAll(context.Background(), services)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.True(t, r.Reachable)
	require.NotNil(t, r.ValidSchema)
	assert.True(t, *r.ValidSchema)
	require.NotNil(t, r.SkillsMatch)
	assert.True(t, *r.SkillsMatch)
	require.NotNil(t, r.Latency)
}

func TestProbeAllUnreachable(t *testing.T) {
	p := New(4)
	services := []metadata.Service{{Name: "web", Endpoint: "http://127.0.0.1:1"}}
	results, err := p.ProbeAll(context.Background(), services)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Reachable)
	found := false
	for _, i := range results[0].Issues {
		if i.Code == "ENDPOINT_UNREACHABLE" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestProbeAllMissingEndpoint(t *testing.T) {
	p := New(4)
	results, err := p.ProbeAll(context.Background(), []metadata.Service{{Name: "web"}})
	require.NoError(t, err)
	assert.False(t, results[0].Reachable)
}
