package engine

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/chains"
	"github.com/watchy-labs/watchy/internal/jobstore"
	"github.com/watchy-labs/watchy/internal/metadata"
	"github.com/watchy-labs/watchy/internal/onchain"
	"github.com/watchy-labs/watchy/internal/probe"
	"github.com/watchy-labs/watchy/internal/signer"
)

// testChainID is a real, statically configured EVM chain with a deployed
// registry (base-sepolia) so chains.Validate accepts it without needing any
// test-only registry hook.
const testChainID = 84532

type stubRegistry struct {
	rec *onchain.AgentRecord
	err error
}

func (s stubRegistry) FetchAgent(ctx context.Context, agentID *big.Int, rpcs []string) (*onchain.AgentRecord, error) {
	return s.rec, s.err
}

type stubReputation struct {
	txHash string
	err    error
	calls  int
}

func (s *stubReputation) SubmitFeedback(ctx context.Context, rpc string, agentID *big.Int, score uint8, reportCID string) (string, error) {
	s.calls++
	return s.txHash, s.err
}

type stubUploader struct{}

func (stubUploader) UploadJSON(ctx context.Context, content []byte, name string) (string, error) {
	return "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", nil
}
func (stubUploader) UploadMarkdown(ctx context.Context, content []byte, name string) (string, error) {
	return "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG", nil
}
func (stubUploader) GatewayURL(cid string) string { return "https://ipfs.io/ipfs/" + cid }

// noSignSigner implements signer.Signer without holding a key, exercising
// the unsigned-report path.
type noSignSigner struct{}

func (noSignSigner) Address() (common.Address, bool)    { return common.Address{}, false }
func (noSignSigner) SignBytes(_ []byte) (string, error) { return "", errors.New("no key configured") }
func (noSignSigner) PrivateKey() *ecdsa.PrivateKey       { return nil }

type fakeProber struct{}

func (fakeProber) ProbeAll(ctx context.Context, services []metadata.Service) ([]probe.Result, error) {
	results := make([]probe.Result, len(services))
	for i, s := range services {
		valid := true
		results[i] = probe.Result{
			Service:     s,
			Reachable:   true,
			StatusCode:  200,
			ValidSchema: &valid,
			Latency:     &probe.Latency{P50: 50 * time.Millisecond, P95: 90 * time.Millisecond, P99: 100 * time.Millisecond},
		}
	}
	return results, nil
}

func newTestEngine(t *testing.T, rec *onchain.AgentRecord, recErr error) (*Engine, jobstore.Store) {
	t.Helper()
	store := jobstore.NewMemoryStore()
	t.Cleanup(store.Close)

	e := New(Config{
		Store:            store,
		Signer:           noSignSigner{},
		Uploader:         stubUploader{},
		MaxConcurrency:   4,
		ProbeConcurrency: 4,
	})
	e.registryClientFor = func(c chains.Config) (registryFetcher, error) {
		return stubRegistry{rec: rec, err: recErr}, nil
	}
	e.reputationClientFor = func(c chains.Config, s signer.Signer) (reputationWriter, error) {
		return nil, errors.New("no reputation writes expected without a signer")
	}
	e.newProber = func(k int64) prober { return fakeProber{} }
	return e, store
}

func waitTerminal(t *testing.T, store jobstore.Store, id string) *jobstore.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, err := store.Get(context.Background(), id)
		require.NoError(t, err)
		if got.Status == jobstore.StatusCompleted || got.Status == jobstore.StatusFailed {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("audit did not reach a terminal status in time")
	return nil
}

func TestSubmitRejectsUnsupportedChain(t *testing.T) {
	e, _ := newTestEngine(t, nil, nil)
	_, err := e.Submit(context.Background(), 4242424242, "1", "")
	assert.Error(t, err)
}

func TestSubmitRunsAuditToCompletion(t *testing.T) {
	chainCfg, ok := chains.Get(testChainID)
	require.True(t, ok)

	metaSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img.png" {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
			return
		}
		_, _ = w.Write([]byte(`{
			"type": "https://eips.ethereum.org/EIPS/eip-8004#registration-v1",
			"name": "Test Agent",
			"description": "does testing things",
			"image": "http://` + r.Host + `/img.png",
			"active": true,
			"updatedAt": 1700000000,
			"registrations": [{"agentId": "7", "agentRegistry": "eip155:84532:0x8004a818bfb912233c491871b3d84c89a494bd9e"}],
			"services": [{"name": "web", "endpoint": "https://agent.example.com"}]
		}`))
	}))
	defer metaSrv.Close()

	rec := &onchain.AgentRecord{
		Exists:      true,
		Owner:       common.HexToAddress("0x1234567890123456789012345678901234567890"),
		MetadataURI: metaSrv.URL,
		BlockNumber: 123,
	}

	e, store := newTestEngine(t, rec, nil)

	job, err := e.Submit(context.Background(), testChainID, "7", "")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	final := waitTerminal(t, store, job.ID)
	assert.Equal(t, jobstore.StatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Greater(t, final.Result.Scores.Overall, 0)
	assert.Equal(t, chainCfg.ChainID, uint64(testChainID))
}

func TestSubmitFailsOnUnknownAgent(t *testing.T) {
	e, store := newTestEngine(t, &onchain.AgentRecord{Exists: false, BlockNumber: 1}, nil)
	job, err := e.Submit(context.Background(), testChainID, "999", "")
	require.NoError(t, err)

	final := waitTerminal(t, store, job.ID)
	assert.Equal(t, jobstore.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "AGENT_NOT_FOUND", final.Error.Code)
}

func TestSubmitFailsWhenRegistryUnreachable(t *testing.T) {
	e, store := newTestEngine(t, nil, errors.New("all RPCs exhausted"))
	job, err := e.Submit(context.Background(), testChainID, "1", "")
	require.NoError(t, err)

	final := waitTerminal(t, store, job.ID)
	assert.Equal(t, jobstore.StatusFailed, final.Status)
	require.NotNil(t, final.Error)
	assert.Equal(t, "AGENT_NOT_FOUND", final.Error.Code)
}
