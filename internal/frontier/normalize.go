// Package frontier provides URL normalization and link filtering for the
// crawl frontier. URLs are normalized before insertion so the same URL
// expressed differently produces the same row.
package frontier

import (
	"net/url"
	"regexp"
	"strings"
)

// trackingParamPattern matches advertising and analytics query parameters
// that do not affect page content.
var trackingParamPattern = regexp.MustCompile(`(?i)(utm_[^=&]+|sessionid|fbclid|ref|gclid)=[^&]*`)

// multiAmpPattern collapses runs of ampersands left behind by parameter
// stripping.
var multiAmpPattern = regexp.MustCompile(`&&+`)

// multiSlashPattern collapses duplicate slashes in a path.
var multiSlashPattern = regexp.MustCompile(`/{2,}`)

// defaultPorts maps schemes to the port that may be dropped from the host.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize resolves link against base and applies deterministic cleanup:
// lowercased host, default port removed, fragment dropped, tracking
// parameters stripped, duplicate slashes collapsed, and the trailing slash
// trimmed except on the root path. Returns "" for unparsable input and for
// any scheme other than http or https. Normalize is idempotent.
func Normalize(base, link string) string {
	raw := strings.TrimSpace(link)
	if raw == "" {
		return ""
	}

	// Scheme-relative links inherit the base scheme.
	if strings.HasPrefix(raw, "//") {
		scheme := "http"
		if parsedBase, err := url.Parse(base); err == nil && parsedBase.Scheme != "" {
			scheme = parsedBase.Scheme
		}
		raw = scheme + ":" + raw
	}

	parsedBase, err := url.Parse(base)
	if err != nil {
		return ""
	}

	resolved, err := parsedBase.Parse(raw)
	if err != nil {
		return ""
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	resolved.Fragment = ""
	resolved.RawQuery = cleanTrackingParams(resolved.RawQuery)
	resolved.Host = normalizeHost(resolved)
	resolved.Path = normalizePath(resolved.Path)
	resolved.RawPath = ""

	return resolved.String()
}

// Domain returns the lowercased hostname of a URL, without the port.
// Returns "" for unparsable input.
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// cleanTrackingParams strips tracking parameters from a raw query string,
// preserving the order of the remaining parameters.
func cleanTrackingParams(query string) string {
	cleaned := trackingParamPattern.ReplaceAllString(query, "")
	cleaned = multiAmpPattern.ReplaceAllString(cleaned, "&")
	return strings.Trim(cleaned, "&")
}

// normalizeHost lowercases the host and removes the scheme's default port.
func normalizeHost(u *url.URL) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()

	if port == "" || port == defaultPorts[u.Scheme] {
		return hostname
	}

	return hostname + ":" + port
}

// normalizePath collapses duplicate slashes and trims the trailing slash,
// preserving the root "/".
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}

	p = multiSlashPattern.ReplaceAllString(p, "/")
	if p != "/" && strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}

	return p
}
