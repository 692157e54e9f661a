package frontier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jooya/crawler/internal/frontier"
)

func TestIsValidLink(t *testing.T) {
	t.Parallel()

	const baseDomain = "example.com"

	tests := []struct {
		name     string
		rawURL   string
		expected bool
	}{
		{name: "same-domain page", rawURL: "https://example.com/about", expected: true},
		{name: "same-domain with query", rawURL: "https://example.com/search?q=go", expected: true},
		{name: "off-domain page", rawURL: "https://other.com/page", expected: false},
		{name: "subdomain counts as off-domain", rawURL: "https://blog.example.com/post", expected: false},
		{name: "image asset", rawURL: "https://example.com/logo.png", expected: false},
		{name: "uppercase asset extension", rawURL: "https://example.com/photo.JPG", expected: false},
		{name: "pdf document", rawURL: "https://example.com/report.pdf", expected: false},
		{name: "asset extension before query", rawURL: "https://example.com/style.css?v=3", expected: false},
		{name: "tarball", rawURL: "https://example.com/release.tar", expected: false},
		{name: "extension in the middle of the path is fine", rawURL: "https://example.com/data.csv.html", expected: true},
		{name: "page whose name merely contains an extension word", rawURL: "https://example.com/jpgs-explained", expected: true},
		{name: "ftp scheme", rawURL: "ftp://example.com/file", expected: false},
		{name: "mailto pseudo-link", rawURL: "mailto:hi@example.com", expected: false},
		{name: "no host", rawURL: "https:///path-only", expected: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, frontier.IsValidLink(baseDomain, tt.rawURL))
		})
	}
}
