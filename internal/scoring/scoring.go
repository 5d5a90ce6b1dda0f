// Package scoring computes the 0-100 category scores and the weighted
// overall grade from the sub-facts every check subsystem produces.
package scoring

import (
	"math"

	"github.com/watchy-labs/watchy/internal/metadata"
	"github.com/watchy-labs/watchy/internal/probe"
	"github.com/watchy-labs/watchy/internal/security"
)

// Scores holds every category score, all 0..100 inclusive.
type Scores struct {
	Overall              int
	Metadata             int
	Onchain              int
	EndpointAvailability int
	EndpointPerformance  int
	Security             int
}

// MetadataInputs feeds the metadata score formula.
type MetadataInputs struct {
	Result       metadata.Result
	HasCritical  bool
}

// Metadata computes 40·req_ok + 20·type_ok + 20·urls_score +
// 10·recommended_score + 10·format_score, clamped to 0 by any critical issue.
func Metadata(in MetadataInputs) int {
	if in.HasCritical {
		return 0
	}
	sum := 40*boolFactor(in.Result.RequiredOK) +
		20*boolFactor(in.Result.TypeOK) +
		20*in.Result.URLsScore +
		10*in.Result.RecommendedOK +
		10*in.Result.FormatOK
	return roundHalfToEven(sum)
}

// OnchainInputs feeds the onchain score formula.
type OnchainInputs struct {
	Exists                bool
	URIMatch               bool
	WalletSet              bool
	RegistrationConsistent bool
}

// Onchain computes 40·exists + 30·uri_match + 20·wallet_set +
// 10·registration_consistent.
func Onchain(in OnchainInputs) int {
	sum := 40*boolFactor(in.Exists) +
		30*boolFactor(in.URIMatch) +
		20*boolFactor(in.WalletSet) +
		10*boolFactor(in.RegistrationConsistent)
	return roundHalfToEven(sum)
}

// EndpointAvailability computes 60·mean(reachable) + 40·mean(valid_response)
// over results; an empty slice yields 0 (caller must also raise NO_ENDPOINTS).
func EndpointAvailability(results []probe.Result) int {
	if len(results) == 0 {
		return 0
	}
	var reachableSum, validSum float64
	for _, r := range results {
		reachableCredit := reachabilityCredit(r)
		reachableSum += reachableCredit
		if r.ValidSchema != nil && *r.ValidSchema {
			validSum += 1
		}
	}
	n := float64(len(results))
	sum := 60*(reachableSum/n) + 40*(validSum/n)
	return roundHalfToEven(sum)
}

// reachabilityCredit gives full credit for a clean 2xx/3xx response, half
// credit for a 4xx response, and zero for an unreachable endpoint or a 5xx.
func reachabilityCredit(r probe.Result) float64 {
	if !r.Reachable {
		return 0
	}
	switch {
	case r.StatusCode >= 500:
		return 0
	case r.StatusCode >= 400:
		return 0.5
	default:
		return 1
	}
}

// EndpointPerformance buckets on the worst (largest) p95 across every
// reachable result.
func EndpointPerformance(results []probe.Result) int {
	worstP95Ms := int64(-1)
	for _, r := range results {
		if r.Latency == nil {
			continue
		}
		ms := r.Latency.P95.Milliseconds()
		if ms > worstP95Ms {
			worstP95Ms = ms
		}
	}
	if worstP95Ms < 0 {
		return 0
	}
	switch {
	case worstP95Ms < 200:
		return 100
	case worstP95Ms < 500:
		return 80
	case worstP95Ms < 1000:
		return 60
	case worstP95Ms < 2000:
		return 40
	case worstP95Ms < 5000:
		return 20
	default:
		return 0
	}
}

// Security computes the four-factor 0-100 security score. It is always
// reported but only folded into Overall when weighSecurity is set.
func Security(res security.Result) int {
	sum := 40*boolFactor(res.TLSOnAllHTTPS) +
		20*boolFactor(res.ImageMIMEOK) +
		20*boolFactor(res.Fresh) +
		20*boolFactor(res.NoBadPatterns)
	return roundHalfToEven(sum)
}

// Overall applies spec's fixed weights across metadata/onchain/availability
// /performance; when weighSecurity is true the security score is folded in
// and every weight is proportionally redistributed to keep the sum at 1.0.
func Overall(s Scores, weighSecurity bool) int {
	if !weighSecurity {
		v := 0.30*float64(s.Metadata) + 0.25*float64(s.Onchain) +
			0.25*float64(s.EndpointAvailability) + 0.20*float64(s.EndpointPerformance)
		return roundHalfToEven(v)
	}
	// Base weights sum to 1.0 across five terms once security enters at 0.15,
	// redistributing proportionally from the original four.
	const secWeight = 0.15
	scale := 1 - secWeight
	v := scale*0.30*float64(s.Metadata) + scale*0.25*float64(s.Onchain) +
		scale*0.25*float64(s.EndpointAvailability) + scale*0.20*float64(s.EndpointPerformance) +
		secWeight*float64(s.Security)
	return roundHalfToEven(v)
}

func boolFactor(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// roundHalfToEven implements banker's rounding on a float already in [0,100].
func roundHalfToEven(v float64) int {
	floor := math.Floor(v)
	diff := v - floor
	switch {
	case diff < 0.5:
		return int(floor)
	case diff > 0.5:
		return int(floor) + 1
	default:
		if int64(floor)%2 == 0 {
			return int(floor)
		}
		return int(floor) + 1
	}
}
