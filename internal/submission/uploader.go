// Package submission uploads a finalized report to off-chain storage and
// writes its result to the reputation registry, treating both as
// best-effort steps that raise an issue rather than fail the audit.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Uploader publishes report content to content-addressed storage and
// returns its CID. The JSON and markdown reports are pinned separately so
// each gets its own CID for the report's `reportJsonUrl`/`reportMarkdownUrl`
// fields.
type Uploader interface {
	UploadJSON(ctx context.Context, content []byte, name string) (cid string, err error)
	UploadMarkdown(ctx context.Context, content []byte, name string) (cid string, err error)
	GatewayURL(cid string) string
}

// PinataUploader speaks Pinata's pinJSONToIPFS API. Watchy's config also
// accepts any Pinata-compatible endpoint (self-hosted or another provider
// implementing the same route).
type PinataUploader struct {
	client  *http.Client
	apiURL  string
	apiKey  string
}

// NewPinataUploader builds an uploader against apiURL, authenticating with
// apiKey as a bearer token.
func NewPinataUploader(apiURL, apiKey string) *PinataUploader {
	return &PinataUploader{
		client: &http.Client{Timeout: 30 * time.Second},
		apiURL: apiURL,
		apiKey: apiKey,
	}
}

type pinataUpload struct {
	PinataContent  json.RawMessage `json:"pinataContent"`
	PinataMetadata pinataMetadata  `json:"pinataMetadata"`
}

type pinataMetadata struct {
	Name string `json:"name"`
}

type pinataResponse struct {
	IPFSHash string `json:"IpfsHash"`
}

// UploadJSON pins content under name, returning the resulting CID.
func (u *PinataUploader) UploadJSON(ctx context.Context, content []byte, name string) (string, error) {
	if u.apiKey == "" {
		return "", fmt.Errorf("submission: pinata api key not configured")
	}

	body, err := json.Marshal(pinataUpload{
		PinataContent:  json.RawMessage(content),
		PinataMetadata: pinataMetadata{Name: name},
	})
	if err != nil {
		return "", fmt.Errorf("submission: marshal pinata payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submission: pinata request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submission: pinata upload failed: %d %s", resp.StatusCode, string(respBody))
	}

	var parsed pinataResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("submission: parse pinata response: %w", err)
	}
	return parsed.IPFSHash, nil
}

// UploadMarkdown pins raw markdown content via Pinata's file-pinning route,
// since pinJSONToIPFS only accepts JSON bodies.
func (u *PinataUploader) UploadMarkdown(ctx context.Context, content []byte, name string) (string, error) {
	if u.apiKey == "" {
		return "", fmt.Errorf("submission: pinata api key not configured")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("submission: build multipart form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return "", fmt.Errorf("submission: write multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("submission: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.apiURL+"/pinning/pinFileToIPFS", &buf)
	if err != nil {
		return "", fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+u.apiKey)

	resp, err := u.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submission: pinata request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("submission: pinata upload failed: %d %s", resp.StatusCode, string(respBody))
	}

	var parsed pinataResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("submission: parse pinata response: %w", err)
	}
	return parsed.IPFSHash, nil
}

// GatewayURL builds a public gateway URL for a previously uploaded CID.
func (u *PinataUploader) GatewayURL(cid string) string {
	return "https://ipfs.io/ipfs/" + cid
}
