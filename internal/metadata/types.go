// Package metadata parses and validates the off-chain metadata document an
// EIP-8004 agent publishes at its registered URI.
package metadata

import "encoding/json"

// RegistrationDocType is the constant "type" value a conformant document
// must declare.
const RegistrationDocType = "https://eips.ethereum.org/EIPS/eip-8004#registration-v1"

// Registration is one entry of the document's registrations[] array, tying
// the document back to a specific (chain, registry, agentId) tuple in
// eip155:<chainId>:<address> form.
type Registration struct {
	AgentID       string `json:"agentId"`
	AgentRegistry string `json:"agentRegistry"`
}

// Service describes one endpoint an agent exposes.
type Service struct {
	Name      string   `json:"name"`
	Endpoint  string   `json:"endpoint"`
	Version   string   `json:"version"`
	A2ASkills []string `json:"a2aSkills,omitempty"`
	MCPTools  []string `json:"mcpTools,omitempty"`
	MCPPrompts []string `json:"mcpPrompts,omitempty"`
	Skills    []interface{} `json:"skills,omitempty"`
	Domains   []interface{} `json:"domains,omitempty"`
}

// ServiceKind enumerates the recognized service["name"] values.
type ServiceKind string

const (
	ServiceA2A     ServiceKind = "A2A"
	ServiceMCP     ServiceKind = "MCP"
	ServiceOASF    ServiceKind = "OASF"
	ServiceWeb     ServiceKind = "web"
	ServiceTwitter ServiceKind = "twitter"
	ServiceEmail   ServiceKind = "email"
)

// Document is the parsed metadata document.
type Document struct {
	Type           string          `json:"type"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Image          string          `json:"image"`
	Registrations  []Registration  `json:"registrations"`
	Active         *bool           `json:"active,omitempty"`
	Services       []Service       `json:"services,omitempty"`
	SupportedTrust []string        `json:"supportedTrust,omitempty"`
	UpdatedAt      *int64          `json:"updatedAt,omitempty"`

	// x402Support carries both casing variants seen in the wild; Parse
	// reconciles them into this single field and reports INCONSISTENT_CASING
	// when both are present, per the tie-break rule.
	x402Support   *bool
	x402CasingHit bool

	Raw map[string]interface{} `json:"-"`
}

// Parse decodes raw JSON bytes into a Document, tolerating the x402
// casing variants the registered document may use.
func Parse(raw []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	doc.Raw = generic

	v1, ok1 := generic["x402Support"].(bool)
	v2, ok2 := generic["x402support"].(bool)
	switch {
	case ok1 && ok2:
		doc.x402Support = &v1
		doc.x402CasingHit = true
	case ok1:
		doc.x402Support = &v1
	case ok2:
		doc.x402Support = &v2
	}

	return &doc, nil
}

// X402Supported reports whether the document declares x402 payment support,
// under either casing.
func (d *Document) X402Supported() bool {
	return d.x402Support != nil && *d.x402Support
}

// X402CasingInconsistent reports whether both casing variants were present.
func (d *Document) X402CasingInconsistent() bool { return d.x402CasingHit }
