// Package security runs the audit engine's quick heuristic checks: TLS
// presence, image MIME validity, metadata freshness, and casing consistency,
// plus the content-quality signal carried forward from the reference
// implementation's consistency/content checks (see SPEC_FULL.md §5.1).
package security

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/watchy-labs/watchy/internal/issue"
	"github.com/watchy-labs/watchy/internal/metadata"
)

// Result carries the sub-facts the scoring model turns into the security
// score's four 0/1 factors.
type Result struct {
	TLSOnAllHTTPS bool
	ImageMIMEOK   bool
	Fresh         bool
	NoBadPatterns bool
}

// placeholderPhrases flags boilerplate/placeholder text a template-generated
// metadata document was never customized to remove.
var placeholderPhrases = []string{
	"lorem ipsum", "your agent description here", "todo", "insert description",
	"example agent", "changeme", "replace this",
}

// Run executes every heuristic against doc and its probed services.
func Run(ctx context.Context, client *http.Client, doc *metadata.Document, endpoints []metadata.Service) (Result, []issue.Issue) {
	var issues []issue.Issue
	res := Result{TLSOnAllHTTPS: true, ImageMIMEOK: true, Fresh: true, NoBadPatterns: true}

	httpsCount := 0
	for _, s := range endpoints {
		u, err := url.Parse(s.Endpoint)
		if err != nil || u.Scheme == "" {
			continue
		}
		if u.Scheme != "https" {
			res.TLSOnAllHTTPS = false
			issues = append(issues, issue.New(issue.Warning, "NO_TLS", "endpoint is not served over HTTPS").WithPath(s.Endpoint))
			continue
		}
		httpsCount++
	}
	if httpsCount == 0 && len(endpoints) > 0 {
		issues = append(issues, issue.New(issue.Critical, "NO_HTTPS_ENDPOINTS", "no declared endpoint is served over HTTPS"))
		res.TLSOnAllHTTPS = false
	}

	if doc.Image != "" {
		ok, err := imageMIMEValid(ctx, client, doc.Image)
		if err != nil {
			issues = append(issues, issue.New(issue.Warning, "IMAGE_UNREACHABLE", "could not fetch image URL to verify content type"))
			res.ImageMIMEOK = false
		} else if !ok {
			issues = append(issues, issue.New(issue.Warning, "INVALID_IMAGE_MIME", "image URL does not serve an image content type"))
			res.ImageMIMEOK = false
		}
	} else {
		res.ImageMIMEOK = false
	}

	if doc.UpdatedAt != nil {
		age := time.Since(time.Unix(*doc.UpdatedAt, 0))
		switch {
		case *doc.UpdatedAt > time.Now().Unix():
			issues = append(issues, issue.New(issue.Critical, "FUTURE_TIMESTAMP", "updatedAt is in the future").WithPath("updatedAt"))
			res.Fresh = false
		case age > 365*24*time.Hour:
			issues = append(issues, issue.New(issue.Info, "STALE_METADATA", "updatedAt is more than 365 days old").WithPath("updatedAt"))
			res.Fresh = false
		}
	} else {
		res.Fresh = false
	}

	if hasInconsistentCasing(doc) {
		issues = append(issues, issue.New(issue.Info, "INCONSISTENT_CASING", "metadata document mixes camelCase and lowercase field name variants"))
	}

	if placeholder, phrase := describesPlaceholderContent(doc.Description); placeholder {
		issues = append(issues, issue.New(issue.Info, "PLACEHOLDER_DESCRIPTION", "description looks like unedited template text: \""+phrase+"\""))
		res.NoBadPatterns = false
	}

	return res, issues
}

func imageMIMEValid(ctx context.Context, client *http.Client, imageURL string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	buf := make([]byte, 512)
	n, _ := resp.Body.Read(buf)
	contentType := http.DetectContentType(buf[:n])
	return strings.HasPrefix(contentType, "image/"), nil
}

func hasInconsistentCasing(doc *metadata.Document) bool {
	return doc.X402CasingInconsistent()
}

func describesPlaceholderContent(description string) (bool, string) {
	lower := strings.ToLower(description)
	for _, phrase := range placeholderPhrases {
		if strings.Contains(lower, phrase) {
			return true, phrase
		}
	}
	return false, ""
}
