package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Strategy is one attempt at extracting a field. An empty result defers to
// the next strategy in the cascade.
type Strategy interface {
	Name() string
	Extract(doc *goquery.Document) string
}

type strategyFunc struct {
	name string
	fn   func(*goquery.Document) string
}

// NewStrategy wraps fn as a named Strategy.
func NewStrategy(name string, fn func(*goquery.Document) string) Strategy {
	return strategyFunc{name: name, fn: fn}
}

func (s strategyFunc) Name() string { return s.name }

func (s strategyFunc) Extract(doc *goquery.Document) string { return s.fn(doc) }

// Selector returns a strategy yielding the first non-empty text among
// elements matching selector.
func Selector(selector string) Strategy {
	return NewStrategy(selector, func(doc *goquery.Document) string {
		return firstText(doc.Find(selector))
	})
}

// Cascade is an ordered list of strategies; the first non-empty result wins.
type Cascade []Strategy

// Run evaluates the cascade and returns the value and the name of the
// strategy that produced it. Both are empty when every strategy missed.
func (c Cascade) Run(doc *goquery.Document) (string, string) {
	if doc == nil {
		return "", ""
	}
	for _, s := range c {
		if s == nil {
			continue
		}
		if value := strings.TrimSpace(s.Extract(doc)); value != "" {
			return value, s.Name()
		}
	}
	return "", ""
}

// Without returns a copy of the cascade minus strategies for which drop
// returns true.
func (c Cascade) Without(drop func(Strategy) bool) Cascade {
	out := make(Cascade, 0, len(c))
	for _, s := range c {
		if !drop(s) {
			out = append(out, s)
		}
	}
	return out
}
