// Package fetcher implements the worker fetch/parse/persist pipeline.
package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Skip reasons reported for pages that were reached but not processed.
const (
	SkipReasonBodyTooLarge = "body_too_large"
	SkipReasonNonHTML      = "non_html_content"
	SkipReasonRedirectLoop = "redirect_loop"
)

// maxRedirects caps redirect following per request.
const maxRedirects = 10

// htmlContentTypes lists the media types accepted for parsing.
var htmlContentTypes = []string{"text/html", "application/xhtml+xml"}

// errRedirectLoop aborts redirect chains longer than maxRedirects.
var errRedirectLoop = errors.New("too many redirects")

// FetchOutcome is the result of one HTTP fetch. Exactly one of three shapes:
// a usable body (Skipped false, Body non-empty on success), a skip with a
// reason, or an error from Fetch itself.
type FetchOutcome struct {
	StatusCode int
	Body       string // decoded page text; empty when skipped
	Skipped    bool
	SkipReason string
}

// Client wraps an http.Client with the crawler's request policy: bounded
// body size, HTML-only content types, capped redirects, and configured
// identification headers.
type Client struct {
	httpClient       *http.Client
	userAgent        string
	acceptLanguage   string
	maxDownloadBytes int64
}

// NewClient builds a fetch client. The underlying http.Client is safe for
// concurrent use and is shared by all workers.
func NewClient(userAgent, acceptLanguage string, timeout time.Duration, maxDownloadBytes int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errRedirectLoop
				}
				return nil
			},
		},
		userAgent:        userAgent,
		acceptLanguage:   acceptLanguage,
		maxDownloadBytes: int64(maxDownloadBytes),
	}
}

// Fetch GETs the URL. Oversized bodies, non-HTML content, and redirect
// loops come back as skips; transport failures come back as errors for the
// caller to classify.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*FetchOutcome, error) {
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if reqErr != nil {
		return nil, fmt.Errorf("create request: %w", reqErr)
	}

	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", c.acceptLanguage)

	resp, doErr := c.httpClient.Do(req)
	if doErr != nil {
		if errors.Is(doErr, errRedirectLoop) {
			return &FetchOutcome{Skipped: true, SkipReason: SkipReasonRedirectLoop}, nil
		}
		return nil, fmt.Errorf("http fetch: %w", doErr)
	}
	defer resp.Body.Close()

	if resp.ContentLength > c.maxDownloadBytes {
		return &FetchOutcome{
			StatusCode: resp.StatusCode,
			Skipped:    true,
			SkipReason: SkipReasonBodyTooLarge,
		}, nil
	}

	contentType := resp.Header.Get("Content-Type")
	if !isHTMLContentType(contentType) {
		return &FetchOutcome{
			StatusCode: resp.StatusCode,
			Skipped:    true,
			SkipReason: SkipReasonNonHTML,
		}, nil
	}

	// Read one byte past the limit so streamed oversize bodies are caught
	// even without a Content-Length header.
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, c.maxDownloadBytes+1))
	if readErr != nil {
		return nil, fmt.Errorf("read response body: %w", readErr)
	}
	if int64(len(raw)) > c.maxDownloadBytes {
		return &FetchOutcome{
			StatusCode: resp.StatusCode,
			Skipped:    true,
			SkipReason: SkipReasonBodyTooLarge,
		}, nil
	}

	body := decodeBody(raw, contentType)

	return &FetchOutcome{StatusCode: resp.StatusCode, Body: body}, nil
}

// isHTMLContentType accepts text/html and application/xhtml+xml, with or
// without parameters.
func isHTMLContentType(contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	for _, accepted := range htmlContentTypes {
		if mediaType == accepted {
			return true
		}
	}
	return false
}

// decodeBody converts the raw bytes to UTF-8 using the server-declared
// encoding, falling back to sniffing and finally to the bytes as-is.
func decodeBody(raw []byte, contentType string) string {
	reader, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}

	decoded, readErr := io.ReadAll(reader)
	if readErr != nil {
		return string(raw)
	}

	return string(decoded)
}
