package security

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/watchy-labs/watchy/internal/metadata"
)

func TestRunFlagsFutureTimestamp(t *testing.T) {
	future := time.Now().Add(48 * time.Hour).Unix()
	doc := &metadata.Document{UpdatedAt: &future}
	res, issues := Run(context.Background(), http.DefaultClient, doc, nil)
	assert.False(t, res.Fresh)
	found := false
	for _, i := range issues {
		if i.Code == "FUTURE_TIMESTAMP" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunFlagsNonHTTPSEndpoints(t *testing.T) {
	doc := &metadata.Document{}
	endpoints := []metadata.Service{{Name: "web", Endpoint: "http://example.com"}}
	res, issues := Run(context.Background(), http.DefaultClient, doc, endpoints)
	assert.False(t, res.TLSOnAllHTTPS)
	found := false
	for _, i := range issues {
		if i.Code == "NO_HTTPS_ENDPOINTS" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRunFlagsPlaceholderDescription(t *testing.T) {
	doc := &metadata.Document{Description: "Lorem ipsum dolor sit amet"}
	res, _ := Run(context.Background(), http.DefaultClient, doc, nil)
	assert.False(t, res.NoBadPatterns)
}

func TestImageMIMEValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	}))
	defer srv.Close()

	doc := &metadata.Document{Image: srv.URL}
	res, _ := Run(context.Background(), srv.Client(), doc, nil)
	assert.True(t, res.ImageMIMEOK)
}
