package metadata

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// maxMetadataBytes bounds a fetched metadata document; a token that points
// at something enormous does not get to burn an audit's HTTP budget.
const maxMetadataBytes = 1 << 20

// ipfsGateways are tried in order until one responds.
var ipfsGateways = []string{
	"https://dweb.link/ipfs/",
	"https://cloudflare-ipfs.com/ipfs/",
	"https://ipfs.io/ipfs/",
	"https://w3s.link/ipfs/",
	"https://gateway.pinata.cloud/ipfs/",
}

var arweaveGateways = []string{
	"https://arweave.net/",
	"https://ar-io.net/",
	"https://arweave.dev/",
}

// resolveURLs expands an ipfs://, ar://, or plain http(s) metadata URI into
// the ordered list of HTTP URLs to try.
func resolveURLs(uri string) []string {
	if cidPath, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		urls := make([]string, len(ipfsGateways))
		for i, gw := range ipfsGateways {
			urls[i] = gw + cidPath
		}
		return urls
	}
	if txID, ok := strings.CutPrefix(uri, "ar://"); ok {
		urls := make([]string, len(arweaveGateways))
		for i, gw := range arweaveGateways {
			urls[i] = gw + txID
		}
		return urls
	}
	return []string{uri}
}

// Fetch resolves uri (ipfs://, ar://, data:, or plain http(s)) and returns
// the parsed metadata document, trying every gateway fallback before giving
// up.
func Fetch(ctx context.Context, client *http.Client, uri string) (*Document, error) {
	if dataContent, ok := strings.CutPrefix(uri, "data:"); ok {
		return parseDataURI(dataContent)
	}

	urls := resolveURLs(uri)
	var lastErr error
	for _, u := range urls {
		doc, err := tryFetch(ctx, client, u)
		if err == nil {
			return doc, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("metadata: all %d gateway(s) failed for %s: %w", len(urls), uri, lastErr)
}

func tryFetch(ctx context.Context, client *http.Client, u string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, err
	}
	return Parse(body)
}

// parseDataURI handles inline data: URIs of the form
// "application/json;base64,<b64>" or "application/json,<url-encoded>".
func parseDataURI(content string) (*Document, error) {
	if b64, ok := cutAnyPrefix(content, "application/json;base64,", "application/json;charset=utf-8;base64,"); ok {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("metadata: base64 decode: %w", err)
		}
		return Parse(decoded)
	}
	if raw, ok := strings.CutPrefix(content, "application/json,"); ok {
		decoded, err := url.QueryUnescape(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata: url decode: %w", err)
		}
		return Parse([]byte(decoded))
	}
	return nil, fmt.Errorf("metadata: unsupported data uri format, expected application/json")
}

func cutAnyPrefix(s string, prefixes ...string) (string, bool) {
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(s, p); ok {
			return rest, true
		}
	}
	return "", false
}
