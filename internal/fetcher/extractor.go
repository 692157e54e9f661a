package fetcher

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nonTextSelectors lists elements stripped before extracting visible text.
const nonTextSelectors = "script, style, noscript"

// ExtractTitle returns the trimmed <title> of the document, or "" when the
// document has none or cannot be parsed.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	return strings.TrimSpace(doc.Find("title").First().Text())
}

// ExtractText returns the visible text of the document with scripts and
// styles removed and whitespace collapsed. Returns "" on parse failure;
// malformed HTML never raises.
func ExtractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	doc.Find(nonTextSelectors).Remove()

	return strings.Join(strings.Fields(doc.Text()), " ")
}

// ExtractLinks returns the deduplicated absolute http(s) URLs referenced by
// <a href> elements, resolved against baseURL. Malformed HTML and
// unresolvable hrefs are skipped silently.
func ExtractLinks(baseURL, html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]struct{})
	var links []string

	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}

		absolute := resolveHref(baseURL, href)
		if absolute == "" {
			return
		}

		if _, dup := seen[absolute]; dup {
			return
		}
		seen[absolute] = struct{}{}
		links = append(links, absolute)
	})

	return links
}

// resolveHref absolutizes href against baseURL and keeps only http(s)
// results. Returns "" for anything else.
func resolveHref(baseURL, href string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		return ""
	}

	resolved, err := base.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}

	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	return resolved.String()
}
