package parser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const bookPathSegment = "/book/show/"

// HarvestBookLinks collects book detail links from a genre index page.
// Links are resolved against base, stripped of query and fragment, and
// de-duplicated in the order they appear.
func HarvestBookLinks(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if !strings.Contains(href, bookPathSegment) {
			return
		}
		link := canonicalLink(href, base)
		if link == "" {
			return
		}
		if _, ok := seen[link]; ok {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

func canonicalLink(href string, base *url.URL) string {
	parsed, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed.String()
}
