// Package discovery supplies the ordered list of candidate genre index URLs
// the crawler walks.
package discovery

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/aluiziolira/go-genre-books/genre"
)

// ParseSitemap returns the <loc> of every <url> entry in a sitemap, in
// document order. Namespaces are ignored.
func ParseSitemap(r io.Reader) ([]string, error) {
	doc, err := xmlquery.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	var locs []string
	for _, node := range xmlquery.Find(doc, "//*[local-name()='url']/*[local-name()='loc']") {
		if loc := strings.TrimSpace(node.InnerText()); loc != "" {
			locs = append(locs, loc)
		}
	}
	return locs, nil
}

// ParseList reads one URL per line. Blank lines and lines starting with '#'
// are skipped.
func ParseList(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url list: %w", err)
	}
	return urls, nil
}

// LoadSeeds reads candidate URLs from path: a sitemap when the file ends in
// .xml, a plain list otherwise.
func LoadSeeds(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seeds: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".xml") {
		return ParseSitemap(f)
	}
	return ParseList(f)
}

// GenreIndexURLs builds the canonical index URL (<base>/genres/<slug>) for
// each genre, used when no seed file is configured.
func GenreIndexURLs(baseURL string, genres []string) []string {
	base := strings.TrimRight(baseURL, "/")
	urls := make([]string, 0, len(genres))
	for _, name := range genres {
		if strings.TrimSpace(name) == "" {
			continue
		}
		urls = append(urls, base+"/genres/"+genre.Slug(strings.TrimSpace(name)))
	}
	return urls
}
