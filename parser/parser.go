// Package parser extracts book records and book links from fetched HTML.
package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-genre-books/models"
)

// ValidateBook ensures a record is fit to persist.
func ValidateBook(b *models.Book) error {
	if b == nil {
		return fmt.Errorf("book is nil")
	}
	if strings.TrimSpace(b.URL) == "" {
		return fmt.Errorf("book missing url")
	}
	if strings.TrimSpace(b.Genre) == "" {
		return fmt.Errorf("book missing genre for %s", b.URL)
	}
	return nil
}

// textOf returns the trimmed text of the first element in sel.
func textOf(sel *goquery.Selection) string {
	if sel == nil || sel.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(sel.First().Text())
}

// firstText returns the first non-empty trimmed text among the matches.
func firstText(sel *goquery.Selection) string {
	var out string
	sel.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		out = strings.TrimSpace(s.Text())
		return out == ""
	})
	return out
}
