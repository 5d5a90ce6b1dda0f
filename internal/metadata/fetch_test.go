package metadata

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"type":"` + RegistrationDocType + `","name":"n","description":"d","image":"https://x/i.png","registrations":[{"agentId":"1","agentRegistry":"eip155:1:0xabc"}]}`))
	}))
	defer srv.Close()

	doc, err := Fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "n", doc.Name)
}

func TestFetchDataURIBase64(t *testing.T) {
	payload := `{"type":"` + RegistrationDocType + `","name":"n"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))
	uri := "data:application/json;base64," + encoded

	doc, err := Fetch(context.Background(), http.DefaultClient, uri)
	require.NoError(t, err)
	assert.Equal(t, "n", doc.Name)
}

func TestResolveURLsExpandsIPFSGateways(t *testing.T) {
	urls := resolveURLs("ipfs://bafyabc")
	assert.Len(t, urls, len(ipfsGateways))
	assert.Contains(t, urls[0], "bafyabc")
}

func TestFetchAllGatewaysFail(t *testing.T) {
	_, err := Fetch(context.Background(), http.DefaultClient, "http://127.0.0.1:1")
	assert.Error(t, err)
}
