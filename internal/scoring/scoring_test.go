package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/watchy-labs/watchy/internal/metadata"
	"github.com/watchy-labs/watchy/internal/probe"
	"github.com/watchy-labs/watchy/internal/security"
)

func TestMetadataClampedByCriticalIssue(t *testing.T) {
	in := MetadataInputs{
		Result:      metadata.Result{RequiredOK: true, TypeOK: true, URLsScore: 1, RecommendedOK: 1, FormatOK: 1},
		HasCritical: true,
	}
	assert.Equal(t, 0, Metadata(in))
}

func TestMetadataPerfectScore(t *testing.T) {
	in := MetadataInputs{
		Result: metadata.Result{RequiredOK: true, TypeOK: true, URLsScore: 1, RecommendedOK: 1, FormatOK: 1},
	}
	assert.Equal(t, 100, Metadata(in))
}

func TestOnchainPartialCredit(t *testing.T) {
	got := Onchain(OnchainInputs{Exists: true, URIMatch: true, WalletSet: false, RegistrationConsistent: true})
	assert.Equal(t, 80, got)
}

func TestEndpointAvailabilityEmptyIsZero(t *testing.T) {
	assert.Equal(t, 0, EndpointAvailability(nil))
}

func TestEndpointAvailabilityAllHealthy(t *testing.T) {
	validTrue := true
	results := []probe.Result{
		{Reachable: true, StatusCode: 200, ValidSchema: &validTrue},
		{Reachable: true, StatusCode: 200, ValidSchema: &validTrue},
	}
	assert.Equal(t, 100, EndpointAvailability(results))
}

func TestEndpointPerformanceBuckets(t *testing.T) {
	cases := []struct {
		p95      time.Duration
		expected int
	}{
		{150 * time.Millisecond, 100},
		{450 * time.Millisecond, 80},
		{900 * time.Millisecond, 60},
		{1900 * time.Millisecond, 40},
		{3200 * time.Millisecond, 20},
		{6000 * time.Millisecond, 0},
	}
	for _, c := range cases {
		lat := probe.Latency{P95: c.p95}
		results := []probe.Result{{Reachable: true, Latency: &lat}}
		assert.Equal(t, c.expected, EndpointPerformance(results), "p95=%v", c.p95)
	}
}

func TestOverallMatchesSpecFormula(t *testing.T) {
	s := Scores{Metadata: 100, Onchain: 80, EndpointAvailability: 90, EndpointPerformance: 40}
	got := Overall(s, false)
	want := roundHalfToEven(0.30*100 + 0.25*80 + 0.25*90 + 0.20*40)
	assert.Equal(t, want, got)
}

func TestOverallIgnoresSecurityByDefault(t *testing.T) {
	base := Scores{Metadata: 50, Onchain: 50, EndpointAvailability: 50, EndpointPerformance: 50, Security: 0}
	withSecurity := base
	withSecurity.Security = 100
	assert.Equal(t, Overall(base, false), Overall(withSecurity, false))
}

func TestSecurityFullCredit(t *testing.T) {
	res := security.Result{TLSOnAllHTTPS: true, ImageMIMEOK: true, Fresh: true, NoBadPatterns: true}
	assert.Equal(t, 100, Security(res))
}

func TestRoundHalfToEven(t *testing.T) {
	assert.Equal(t, 2, roundHalfToEven(2.5))
	assert.Equal(t, 4, roundHalfToEven(3.5))
	assert.Equal(t, 3, roundHalfToEven(3.4))
	assert.Equal(t, 4, roundHalfToEven(3.6))
}

func TestScoresAlwaysInRange(t *testing.T) {
	got := Metadata(MetadataInputs{Result: metadata.Result{RequiredOK: true, TypeOK: true, URLsScore: 0.3, RecommendedOK: 0.5, FormatOK: 0.7}})
	assert.GreaterOrEqual(t, got, 0)
	assert.LessOrEqual(t, got, 100)
}
