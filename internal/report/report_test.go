package report

import (
	"crypto/ecdsa"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/issue"
)

const testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// realSigner mirrors internal/signer's ecdsaSigner.SignBytes without
// importing that package (which pulls in config), keeping this test
// self-contained.
type realSigner struct {
	key *ecdsa.PrivateKey
}

func (s realSigner) SignBytes(digest []byte) (string, error) {
	hash := accounts.TextHash(digest)
	sig, err := crypto.Sign(hash, s.key)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func sampleReport(t *testing.T) *Report {
	t.Helper()
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	from := crypto.PubkeyToAddress(key.PublicKey)

	agent := AgentInfo{AgentID: "42", Registry: "eip155:8453:0x8004000000000000000000000000000000000f", MetadataURI: "ipfs://bafy.../agent.json"}
	scores := Scores{Overall: 87, Metadata: 90, Onchain: 100, EndpointAvailability: 80, EndpointPerformance: 60}
	checks := Checks{
		MetadataIssues: []issue.Issue{issue.New(issue.Info, "MISSING_UPDATED_AT", "updatedAt not set")},
		Endpoints: []EndpointCheck{
			{Service: "A2A", Endpoint: "https://agent.example.com/a2a", Reachable: true},
		},
	}
	return New(agent.Registry, agent.AgentID, from, time.Unix(1700000000, 0), 12345678, agent, scores, checks)
}

func TestDigestIsDeterministic(t *testing.T) {
	r1 := sampleReport(t)
	r2 := sampleReport(t)
	d1, err := r1.Digest()
	require.NoError(t, err)
	d2, err := r2.Digest()
	require.NoError(t, err)
	assert.Equal(t, d1, d2)
}

func TestDigestExcludesSignatureAndURLs(t *testing.T) {
	r := sampleReport(t)
	before, err := r.Digest()
	require.NoError(t, err)

	r.Signature = "0xdeadbeef"
	r.ReportJSONURL = "ipfs://somewhere"
	after, err := r.Digest()
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestSignAndVerifyRoundTrip(t *testing.T) {
	r := sampleReport(t)
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)
	addr := crypto.PubkeyToAddress(key.PublicKey)

	s := realSigner{key: key}
	require.NoError(t, r.Sign(s))
	assert.NotEmpty(t, r.Signature)

	ok, err := Verify(r, addr)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyRejectsWrongSigner(t *testing.T) {
	r := sampleReport(t)
	key, err := crypto.HexToECDSA(testPrivateKeyHex)
	require.NoError(t, err)

	s := realSigner{key: key}
	require.NoError(t, r.Sign(s))

	otherKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := crypto.PubkeyToAddress(otherKey.PublicKey)

	ok, err := Verify(r, other)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRenderMarkdownIncludesScoreAndIssues(t *testing.T) {
	r := sampleReport(t)
	md := RenderMarkdown(r, "Test Agent")
	assert.Contains(t, md, "Test Agent")
	assert.Contains(t, md, "87/100")
	assert.Contains(t, md, "MISSING_UPDATED_AT")
}
