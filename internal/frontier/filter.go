package frontier

import (
	"net/url"
	"regexp"
	"strings"
)

// blockedExtensions lists asset and archive suffixes that are never crawled.
var blockedExtensions = []string{
	".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg", ".mp4", ".mp3", ".pdf",
	".zip", ".rar", ".exe", ".apk", ".iso", ".tar", ".gz", ".7z", ".css", ".js",
}

// nonNavigational matches link pseudo-schemes that never lead to pages.
var nonNavigational = regexp.MustCompile(`(?i)^(javascript:|mailto:|tel:)`)

// blockedExtensionPattern matches any blocked extension at the end of the
// path+query or immediately before a ?, # or & separator.
var blockedExtensionPattern = buildExtensionPattern()

func buildExtensionPattern() *regexp.Regexp {
	quoted := make([]string, len(blockedExtensions))
	for i, ext := range blockedExtensions {
		quoted[i] = regexp.QuoteMeta(ext)
	}
	return regexp.MustCompile(`(?:` + strings.Join(quoted, "|") + `)(?:$|[?#&])`)
}

// IsValidLink reports whether a normalized URL is worth crawling from a page
// on baseDomain. Off-domain links are rejected; subdomains deliberately
// count as off-domain.
func IsValidLink(baseDomain, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}

	combinedPath := parsed.Path
	if parsed.RawQuery != "" {
		combinedPath += "?" + parsed.RawQuery
	}
	if blockedExtensionPattern.MatchString(strings.ToLower(combinedPath)) {
		return false
	}

	if parsed.Host == "" {
		return false
	}

	if nonNavigational.MatchString(rawURL) {
		return false
	}

	return Domain(rawURL) == baseDomain
}
