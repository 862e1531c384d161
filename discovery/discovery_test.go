package discovery

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const sitemap = `<?xml version="1.0" encoding="UTF-8"?>
<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">
  <url><loc>https://www.goodreads.com/genres/fantasy</loc><lastmod>2024-01-01</lastmod></url>
  <url><loc>
    https://www.goodreads.com/genres/science-fiction
  </loc></url>
  <url><loc></loc></url>
  <url><loc>https://www.goodreads.com/list/show/1</loc></url>
</urlset>`

func TestParseSitemap(t *testing.T) {
	got, err := ParseSitemap(strings.NewReader(sitemap))
	if err != nil {
		t.Fatalf("ParseSitemap: %v", err)
	}
	want := []string{
		"https://www.goodreads.com/genres/fantasy",
		"https://www.goodreads.com/genres/science-fiction",
		"https://www.goodreads.com/list/show/1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseSitemap() = %v, want %v", got, want)
	}
}

func TestParseSitemapWithoutNamespace(t *testing.T) {
	got, err := ParseSitemap(strings.NewReader(`<urlset><url><loc>http://a.test/genres/comics</loc></url></urlset>`))
	if err != nil {
		t.Fatalf("ParseSitemap: %v", err)
	}
	if len(got) != 1 || got[0] != "http://a.test/genres/comics" {
		t.Fatalf("ParseSitemap() = %v", got)
	}
}

func TestParseList(t *testing.T) {
	input := "# thriller first\nhttps://a.test/genres/thriller\n\n  https://a.test/genres/comics  \n#https://a.test/genres/skipped\n"
	got, err := ParseList(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParseList: %v", err)
	}
	want := []string{"https://a.test/genres/thriller", "https://a.test/genres/comics"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ParseList() = %v, want %v", got, want)
	}
}

func TestLoadSeeds(t *testing.T) {
	dir := t.TempDir()
	xmlPath := filepath.Join(dir, "sitemap.XML")
	if err := os.WriteFile(xmlPath, []byte(sitemap), 0o644); err != nil {
		t.Fatalf("write sitemap: %v", err)
	}
	txtPath := filepath.Join(dir, "seeds.txt")
	if err := os.WriteFile(txtPath, []byte("https://a.test/genres/fiction\n"), 0o644); err != nil {
		t.Fatalf("write list: %v", err)
	}

	fromXML, err := LoadSeeds(xmlPath)
	if err != nil || len(fromXML) != 3 {
		t.Fatalf("LoadSeeds(xml) = %v, %v", fromXML, err)
	}
	fromTxt, err := LoadSeeds(txtPath)
	if err != nil || !reflect.DeepEqual(fromTxt, []string{"https://a.test/genres/fiction"}) {
		t.Fatalf("LoadSeeds(txt) = %v, %v", fromTxt, err)
	}
	if _, err := LoadSeeds(filepath.Join(dir, "missing.txt")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestGenreIndexURLs(t *testing.T) {
	got := GenreIndexURLs("https://www.goodreads.com/", []string{"Science Fiction", " ", "Children's"})
	want := []string{
		"https://www.goodreads.com/genres/science-fiction",
		"https://www.goodreads.com/genres/childrens",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("GenreIndexURLs() = %v, want %v", got, want)
	}
}
