package metadata

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/watchy-labs/watchy/internal/issue"
)

// AgentRef identifies which (chain, registry, agentId) the document is being
// validated against, for the registrations[] cross-check.
type AgentRef struct {
	ChainID  uint64
	Registry string // 0x-prefixed contract address
	AgentID  string // decimal string form of the agent's on-chain ID
}

// CAIP10 formats ref as eip155:<chainId>:<address>, lower-cased, matching
// the format registrations[].agentRegistry entries are expected to use.
func (r AgentRef) CAIP10() string {
	return fmt.Sprintf("eip155:%d:%s", r.ChainID, strings.ToLower(r.Registry))
}

// Result is the metadata check's structured outcome, independent of the
// numeric score (computed downstream in internal/scoring).
type Result struct {
	RequiredOK     bool
	TypeOK         bool
	URLsScore      float64 // fraction of required URLs reachable, ∈[0,1]
	RecommendedOK  float64 // fraction of recommended fields present, ∈[0,1]
	FormatOK       float64 // fraction of well-formed optional fields, ∈[0,1]
	RegistrationOK bool
}

// Validate checks doc against the required/recommended field rules and the
// registrations[] cross-check, returning the raw sub-facts plus every issue
// raised. imageReachable reports whether the image URL, the only required
// URL, responded; URLsScore is derived from it alone, and service endpoint
// reachability does not enter URLsScore.
func Validate(doc *Document, ref AgentRef, imageReachable bool) (Result, []issue.Issue) {
	var issues []issue.Issue
	res := Result{RequiredOK: true, TypeOK: true, RegistrationOK: true}

	if strings.TrimSpace(doc.Type) == "" {
		issues = append(issues, issue.New(issue.Critical, "MISSING_REQUIRED_FIELDS", "metadata document is missing required field \"type\"").WithPath("type"))
		res.RequiredOK = false
	} else if doc.Type != RegistrationDocType {
		issues = append(issues, issue.New(issue.Critical, "INVALID_TYPE", "metadata document \"type\" does not match the registered constant").WithPath("type"))
		res.TypeOK = false
	}

	if strings.TrimSpace(doc.Name) == "" || len(doc.Name) > 256 {
		issues = append(issues, issue.New(issue.Critical, "MISSING_REQUIRED_FIELDS", "metadata document \"name\" is empty or exceeds 256 characters").WithPath("name"))
		res.RequiredOK = false
	}

	if strings.TrimSpace(doc.Description) == "" || len(doc.Description) > 2048 {
		issues = append(issues, issue.New(issue.Critical, "MISSING_REQUIRED_FIELDS", "metadata document \"description\" is empty or exceeds 2048 characters").WithPath("description"))
		res.RequiredOK = false
	}

	imageValid := isValidURL(doc.Image)
	if !imageValid {
		issues = append(issues, issue.New(issue.Critical, "MISSING_REQUIRED_FIELDS", "metadata document \"image\" is not a syntactically valid URL").WithPath("image"))
		res.RequiredOK = false
	}

	if len(doc.Registrations) == 0 {
		issues = append(issues, issue.New(issue.Critical, "MISSING_REQUIRED_FIELDS", "metadata document has no registrations[] entries").WithPath("registrations"))
		res.RequiredOK = false
		res.RegistrationOK = false
	} else if !findsMatchingRegistration(doc.Registrations, ref) {
		issues = append(issues, issue.New(issue.Critical, "REGISTRATION_MISMATCH", "no registrations[] entry matches the requested agent/registry/chain").WithPath("registrations"))
		res.RegistrationOK = false
	}

	res.URLsScore = requiredURLsScore(imageValid, imageReachable)

	recommendedHits, recommendedTotal := 0, 4
	if doc.Active != nil {
		recommendedHits++
	} else {
		issues = append(issues, issue.New(issue.Warning, "MISSING_ACTIVE", "recommended field \"active\" is absent").WithPath("active"))
	}
	if len(doc.Services) > 0 {
		recommendedHits++
	} else {
		issues = append(issues, issue.New(issue.Warning, "MISSING_SERVICES", "recommended field \"services\" is empty").WithPath("services"))
	}
	if len(doc.SupportedTrust) > 0 && allSupportedTrustValid(doc.SupportedTrust) {
		recommendedHits++
	} else if len(doc.SupportedTrust) == 0 {
		issues = append(issues, issue.New(issue.Info, "MISSING_SUPPORTED_TRUST", "recommended field \"supportedTrust\" is absent").WithPath("supportedTrust"))
	} else {
		issues = append(issues, issue.New(issue.Warning, "INVALID_SUPPORTED_TRUST", "supportedTrust contains values outside {reputation, crypto-economic, tee-attestation}").WithPath("supportedTrust"))
	}
	if doc.UpdatedAt != nil && isFreshEpoch(*doc.UpdatedAt) {
		recommendedHits++
	} else if doc.UpdatedAt == nil {
		issues = append(issues, issue.New(issue.Info, "MISSING_UPDATED_AT", "recommended field \"updatedAt\" is absent").WithPath("updatedAt"))
	} else {
		issues = append(issues, issue.New(issue.Warning, "INVALID_UPDATED_AT", "updatedAt is not a valid epoch-seconds timestamp in (0, now]").WithPath("updatedAt"))
	}
	res.RecommendedOK = float64(recommendedHits) / float64(recommendedTotal)

	if doc.X402CasingInconsistent() {
		issues = append(issues, issue.New(issue.Info, "INCONSISTENT_CASING", "both x402Support and x402support are present; treating the field as present").WithPath("x402Support"))
	}

	res.FormatOK = formatScore(doc)

	return res, issues
}

func requiredURLsScore(imageValid, imageReachable bool) float64 {
	if !imageValid {
		return 0
	}
	if imageReachable {
		return 1
	}
	return 0
}

func findsMatchingRegistration(regs []Registration, ref AgentRef) bool {
	want := ref.CAIP10()
	for _, r := range regs {
		if r.AgentID == ref.AgentID && strings.EqualFold(r.AgentRegistry, want) {
			return true
		}
	}
	return false
}

func allSupportedTrustValid(values []string) bool {
	allowed := map[string]bool{"reputation": true, "crypto-economic": true, "tee-attestation": true}
	for _, v := range values {
		if !allowed[v] {
			return false
		}
	}
	return true
}

func isFreshEpoch(epoch int64) bool {
	if epoch <= 0 {
		return false
	}
	return epoch <= time.Now().Unix()
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// ValidateServiceDeclarations checks the declared-field requirements of
// §4.2's per-service-kind table (endpoint/version presence). Response-level
// schema conformance (does the manifest actually expose the declared
// tools/skills) is checked by internal/probe once the endpoint has been
// fetched, since it needs the live response body.
func ValidateServiceDeclarations(services []Service) []issue.Issue {
	var issues []issue.Issue
	for _, s := range services {
		path := fmt.Sprintf("services[%s]", s.Name)
		switch ServiceKind(s.Name) {
		case ServiceA2A, ServiceMCP, ServiceOASF:
			if s.Endpoint == "" || s.Version == "" {
				issues = append(issues, issue.New(issue.Error, "MISSING_SERVICE_FIELDS", fmt.Sprintf("%s service is missing endpoint or version", s.Name)).WithPath(path))
			}
		case ServiceWeb:
			if s.Endpoint == "" {
				issues = append(issues, issue.New(issue.Error, "MISSING_SERVICE_FIELDS", "web service is missing endpoint").WithPath(path))
			}
		}
	}
	return issues
}

// formatScore rewards well-formed optional structures: every declared
// service has an endpoint that at least parses as a URL, and every
// registrations[] entry carries the eip155: CAIP-10 prefix.
func formatScore(doc *Document) float64 {
	checks, ok := 0, 0
	for _, s := range doc.Services {
		checks++
		if isValidURL(s.Endpoint) {
			ok++
		}
	}
	for _, r := range doc.Registrations {
		checks++
		if strings.HasPrefix(r.AgentRegistry, "eip155:") {
			ok++
		}
	}
	if checks == 0 {
		return 1
	}
	return float64(ok) / float64(checks)
}
