package frontier_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jooya/crawler/internal/frontier"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		base     string
		link     string
		expected string
	}{
		{
			name:     "lowercases host, strips fragment, tracking params, and trailing slash",
			base:     "https://Sub.Example.com",
			link:     "https://Sub.Example.com/path/?utm_source=x#frag",
			expected: "https://sub.example.com/path",
		},
		{
			name:     "resolves relative path against base",
			base:     "https://example.com/a/b",
			link:     "../c",
			expected: "https://example.com/c",
		},
		{
			name:     "resolves scheme-relative link",
			base:     "https://example.com",
			link:     "//other.com/page",
			expected: "https://other.com/page",
		},
		{
			name:     "strips default https port",
			base:     "https://example.com",
			link:     "https://example.com:443/page",
			expected: "https://example.com/page",
		},
		{
			name:     "strips default http port",
			base:     "http://example.com",
			link:     "http://example.com:80/page",
			expected: "http://example.com/page",
		},
		{
			name:     "keeps non-default port",
			base:     "https://example.com",
			link:     "https://example.com:8080/page",
			expected: "https://example.com:8080/page",
		},
		{
			name:     "collapses duplicate slashes",
			base:     "https://example.com",
			link:     "https://example.com//a///b",
			expected: "https://example.com/a/b",
		},
		{
			name:     "empty path becomes root",
			base:     "https://example.com/page",
			link:     "https://example.com",
			expected: "https://example.com/",
		},
		{
			name:     "root path keeps its slash",
			base:     "https://example.com",
			link:     "https://example.com/",
			expected: "https://example.com/",
		},
		{
			name:     "removes fbclid and gclid but keeps real params",
			base:     "https://example.com",
			link:     "https://example.com/p?id=7&fbclid=abc&gclid=def",
			expected: "https://example.com/p?id=7",
		},
		{
			name:     "removes sessionid",
			base:     "https://example.com",
			link:     "https://example.com/p?sessionid=42",
			expected: "https://example.com/p",
		},
		{
			name:     "rejects mailto",
			base:     "https://example.com",
			link:     "mailto:someone@example.com",
			expected: "",
		},
		{
			name:     "rejects javascript",
			base:     "https://example.com",
			link:     "javascript:void(0)",
			expected: "",
		},
		{
			name:     "rejects ftp",
			base:     "https://example.com",
			link:     "ftp://example.com/file",
			expected: "",
		},
		{
			name:     "rejects empty link",
			base:     "https://example.com",
			link:     "   ",
			expected: "",
		},
		{
			name:     "fragment-only link resolves to base page",
			base:     "https://example.com/page",
			link:     "#section",
			expected: "https://example.com/page",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, frontier.Normalize(tt.base, tt.link))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"https://Sub.Example.com/path/?utm_source=x#frag",
		"https://example.com//a///b?id=7&fbclid=abc",
		"http://example.com:80/page",
		"https://example.com",
	}

	for _, input := range inputs {
		once := frontier.Normalize(input, input)
		require.NotEmpty(t, once)
		assert.Equal(t, once, frontier.Normalize(once, once), "input %q", input)
	}
}

func TestDomain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		rawURL   string
		expected string
	}{
		{name: "plain host", rawURL: "https://example.com/page", expected: "example.com"},
		{name: "uppercase host", rawURL: "https://EXAMPLE.com", expected: "example.com"},
		{name: "host with port", rawURL: "https://example.com:8080/x", expected: "example.com"},
		{name: "subdomain preserved", rawURL: "https://blog.example.com", expected: "blog.example.com"},
		{name: "invalid url", rawURL: "://nope", expected: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, frontier.Domain(tt.rawURL))
		})
	}
}
