package parser

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-genre-books/models"
)

var ratingPattern = regexp.MustCompile(`^[1-5]\.[0-9]{1,2}$`)

var ratingClasses = []string{
	"RatingStatistics__rating",
	"BookPageMetadataSection__rating",
	"DetailsLayoutRightRating__value",
}

// TitleCascade: legacy heading, redesigned heading, any heading.
func TitleCascade() Cascade {
	return Cascade{
		Selector("h1#bookTitle"),
		Selector(`h1[data-testid="bookTitle"]`),
		Selector("h1"),
	}
}

// AuthorCascade: legacy author anchor, schema.org author, first author link.
func AuthorCascade() Cascade {
	return Cascade{
		Selector("a.authorName"),
		NewStrategy("itemprop=author", func(doc *goquery.Document) string {
			var out string
			doc.Find(`[itemprop="author"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
				out = textOf(s.Find("a"))
				return out == ""
			})
			return out
		}),
		Selector(`a[href*="/author/show/"]`),
	}
}

// DescriptionCascade lists the description strategies, positional fallback last.
func DescriptionCascade() Cascade {
	return Cascade{
		NewStrategy("div#description", legacyDescription),
		Selector(`[data-testid="description"]`),
		Selector("div.BookPageMetadataSection__description"),
		Selector("div.DetailsLayoutRightParagraph__widthConstrained"),
		descriptionPath,
	}
}

// RatingCascade lists the rating strategies.
func RatingCascade() Cascade {
	return Cascade{
		Selector(`[itemprop="ratingValue"]`),
		ratingPath,
		NewStrategy("main:rating-pattern", scanRatingText),
		NewStrategy("rating-classes", func(doc *goquery.Document) string {
			for _, class := range ratingClasses {
				if value := firstText(doc.Find("." + class)); value != "" {
					return value
				}
			}
			return ""
		}),
	}
}

// legacyDescription reads the old description box, where the first span is a
// collapsed copy and the second holds the full text.
func legacyDescription(doc *goquery.Document) string {
	spans := doc.Find("div#description").First().Find("span")
	switch spans.Length() {
	case 0:
		return ""
	case 1:
		return textOf(spans)
	}
	if full := textOf(spans.Eq(1)); full != "" {
		return full
	}
	return textOf(spans.Eq(0))
}

// scanRatingText returns the first leaf div/span inside main whose text looks
// like an average rating ("4.12").
func scanRatingText(doc *goquery.Document) string {
	var out string
	doc.Find("main").First().Find("div, span").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if s.Children().Length() > 0 {
			return true
		}
		text := strings.TrimSpace(s.Text())
		if ratingPattern.MatchString(text) {
			out = text
			return false
		}
		return true
	})
	return out
}

// GenreLabels returns the text of every genre link, de-duplicated in document order.
func GenreLabels(doc *goquery.Document) []string {
	seen := make(map[string]struct{})
	var labels []string
	doc.Find(`a[href*="/genres/"]`).Each(func(_ int, s *goquery.Selection) {
		label := strings.TrimSpace(s.Text())
		if label == "" {
			return
		}
		if _, ok := seen[label]; ok {
			return
		}
		seen[label] = struct{}{}
		labels = append(labels, label)
	})
	return labels
}

// Trace records which strategy produced each field. Empty means the cascade missed.
type Trace struct {
	Title       string
	Author      string
	Description string
	Rating      string
}

// Extractor runs one cascade per field over a book detail page.
type Extractor struct {
	Title       Cascade
	Author      Cascade
	Description Cascade
	Rating      Cascade
}

// NewExtractor returns an extractor with the default cascades.
func NewExtractor() *Extractor {
	return &Extractor{
		Title:       TitleCascade(),
		Author:      AuthorCascade(),
		Description: DescriptionCascade(),
		Rating:      RatingCascade(),
	}
}

// WithoutStructuralFallbacks returns a copy that skips positional lookups.
func (e *Extractor) WithoutStructuralFallbacks() *Extractor {
	return &Extractor{
		Title:       e.Title.Without(IsStructural),
		Author:      e.Author.Without(IsStructural),
		Description: e.Description.Without(IsStructural),
		Rating:      e.Rating.Without(IsStructural),
	}
}

// Extract builds a record from doc. Fields whose cascade misses stay empty.
func (e *Extractor) Extract(doc *goquery.Document, sourceURL string) *models.Book {
	book, _ := e.ExtractWithTrace(doc, sourceURL)
	return book
}

// ExtractWithTrace is Extract plus the name of the winning strategy per field.
func (e *Extractor) ExtractWithTrace(doc *goquery.Document, sourceURL string) (*models.Book, Trace) {
	book := &models.Book{URL: sourceURL}
	var trace Trace
	if doc == nil {
		return book, trace
	}

	book.Title, trace.Title = e.Title.Run(doc)
	book.Author, trace.Author = e.Author.Run(doc)
	book.Description, trace.Description = e.Description.Run(doc)
	book.Rating, trace.Rating = e.Rating.Run(doc)
	book.GenreLabels = GenreLabels(doc)

	slog.Debug("extracted book",
		slog.String("url", sourceURL),
		slog.String("title_by", trace.Title),
		slog.String("author_by", trace.Author),
		slog.String("description_by", trace.Description),
		slog.String("rating_by", trace.Rating),
		slog.Int("genre_labels", len(book.GenreLabels)),
	)
	return book, trace
}

// ExtractHTML parses body and extracts a record. Unparseable input yields a
// record carrying only the URL.
func (e *Extractor) ExtractHTML(body []byte, sourceURL string) *models.Book {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		slog.Warn("parse book page", slog.String("url", sourceURL), slog.Any("error", err))
		return &models.Book{URL: sourceURL}
	}
	return e.Extract(doc, sourceURL)
}
