package metadata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchy-labs/watchy/internal/issue"
)

func validDoc(agentID string) *Document {
	active := true
	updatedAt := time.Now().Unix()
	doc := &Document{
		Type:        RegistrationDocType,
		Name:        "Test Agent",
		Description: "A perfectly ordinary test agent.",
		Image:       "https://example.com/image.png",
		Registrations: []Registration{
			{AgentID: agentID, AgentRegistry: "eip155:8453:0x8004a169fb4a3325136eb29fa0ceb6d2e539a432"},
		},
		Active:         &active,
		Services:       []Service{{Name: "web", Endpoint: "https://example.com"}},
		SupportedTrust: []string{"reputation"},
		UpdatedAt:      &updatedAt,
	}
	return doc
}

func TestValidateHappyPath(t *testing.T) {
	ref := AgentRef{ChainID: 8453, Registry: "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", AgentID: "17"}
	res, issues := Validate(validDoc("17"), ref, true)
	assert.True(t, res.RequiredOK)
	assert.True(t, res.TypeOK)
	assert.True(t, res.RegistrationOK)
	assert.Equal(t, float64(1), res.URLsScore)
	assert.False(t, issue.HasCritical(issues))
}

func TestValidateRegistrationMismatch(t *testing.T) {
	ref := AgentRef{ChainID: 8453, Registry: "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", AgentID: "17"}
	res, issues := Validate(validDoc("1"), ref, true)
	assert.False(t, res.RegistrationOK)
	found := false
	for _, i := range issues {
		if i.Code == "REGISTRATION_MISMATCH" {
			found = true
			assert.Equal(t, issue.Critical, i.Severity)
		}
	}
	assert.True(t, found)
}

func TestValidateMissingRequiredFields(t *testing.T) {
	doc := &Document{Type: RegistrationDocType}
	ref := AgentRef{ChainID: 8453, Registry: "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", AgentID: "17"}
	res, issues := Validate(doc, ref, false)
	assert.False(t, res.RequiredOK)
	assert.True(t, issue.HasCritical(issues))
}

func TestValidateInvalidType(t *testing.T) {
	doc := validDoc("17")
	doc.Type = "not-the-right-type"
	ref := AgentRef{ChainID: 8453, Registry: "0x8004A169FB4a3325136EB29fA0ceB6D2e539a432", AgentID: "17"}
	res, issues := Validate(doc, ref, true)
	assert.False(t, res.TypeOK)
	hasInvalidType := false
	for _, i := range issues {
		if i.Code == "INVALID_TYPE" {
			hasInvalidType = true
		}
	}
	assert.True(t, hasInvalidType)
}

func TestParseX402CasingVariants(t *testing.T) {
	raw := []byte(`{"type":"t","name":"n","description":"d","image":"https://x/y","registrations":[],"x402Support":true,"x402support":true}`)
	doc, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, doc.X402Supported())
	assert.True(t, doc.X402CasingInconsistent())
}

func TestValidateServiceDeclarationsMissingFields(t *testing.T) {
	issues := ValidateServiceDeclarations([]Service{{Name: "A2A"}})
	require.Len(t, issues, 1)
	assert.Equal(t, "MISSING_SERVICE_FIELDS", issues[0].Code)
}

func TestCAIP10Format(t *testing.T) {
	ref := AgentRef{ChainID: 8453, Registry: "0xABCDEF0000000000000000000000000000000123"}
	assert.Equal(t, "eip155:8453:0xabcdef0000000000000000000000000000000123", ref.CAIP10())
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)
}
