package ops

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/wardenhq/warden/internal/domains"
	"github.com/wardenhq/warden/internal/errdefs"
	"github.com/wardenhq/warden/internal/scan"
	"github.com/wardenhq/warden/internal/types"
)

// navigateTimeout bounds the whole fetch.
const navigateTimeout = 30 * time.Second

// PageResult is sanitized page content returned from Navigate.
type PageResult struct {
	URL          string   `json:"url"`
	Content      string   `json:"content"`
	Truncated    bool     `json:"truncated"`
	PatternNames []string `json:"pattern_names,omitempty"`
}

// Navigate fetches a page. Validation order: URL scheme allowlist and
// metadata/private-IP denylist, domain allowlist, permission check. The
// returned content has been through page sanitization and the injection
// scanner: web content is the classic carrier for planted instructions.
func (o *Ops) Navigate(ctx context.Context, rawURL string) (*PageResult, error) {
	const op = "browser_navigate"

	if err := domains.ValidateDestination(op, rawURL); err != nil {
		return nil, err
	}
	if !o.domains.IsDomainAllowed(rawURL) {
		return nil, errdefs.AccessDenied(op, "domain is not on the allowlist")
	}
	host := hostnameOf(rawURL)
	if err := o.perms.Require(ctx, host, types.OpNavigate); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errdefs.Validation(op, "invalid URL")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errdefs.Transient(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, o.limits.MaxPageBytes+1))
	if err != nil {
		return nil, errdefs.Transient(op, err)
	}
	truncated := int64(len(body)) > o.limits.MaxPageBytes
	if truncated {
		body = body[:o.limits.MaxPageBytes]
	}

	content, names := SanitizePageContent(string(body))
	return &PageResult{URL: rawURL, Content: content, Truncated: truncated, PatternNames: names}, nil
}

func hostnameOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

var htmlCommentRe = regexp.MustCompile(`(?s)<!--.*?-->`)

// SanitizePageContent strips the places pages hide instructions from the
// humans reading them: HTML comments and zero-width characters. The result
// then goes through the injection scanner.
func SanitizePageContent(content string) (string, []string) {
	content = htmlCommentRe.ReplaceAllString(content, "")
	content = scan.StripInvisible(content)

	res := scan.ScanForInjection(content)
	if res.HasInjection {
		log.Warn("injection patterns in page content: %v", res.PatternNames)
	}
	return res.SanitizedText, res.PatternNames
}
