package parser

import (
	"log/slog"

	"github.com/PuerkitoBio/goquery"
)

// StructuralPath is a last-resort positional lookup: from Root it descends
// through anonymous <div> children by index, then takes the first match of
// Leaf inside the node reached. Any layout change breaks it, so a miss is
// expected and never an error.
type StructuralPath struct {
	Label string
	Root  string
	Steps []int
	Leaf  string
	// LeafSteps descend further through direct <div> children of the leaf.
	LeafSteps []int
}

// Name implements Strategy.
func (p StructuralPath) Name() string {
	return "structural:" + p.Label
}

// Extract implements Strategy.
func (p StructuralPath) Extract(doc *goquery.Document) string {
	node := doc.Find(p.Root).First()
	node = descendDivs(node, p.Steps)
	if node.Length() == 0 {
		return ""
	}
	if p.Leaf != "" {
		node = node.Find(p.Leaf).First()
	}
	node = descendDivs(node, p.LeafSteps)
	value := textOf(node)
	if value != "" {
		slog.Debug("structural fallback matched",
			slog.String("path", p.Label),
			slog.Int("length", len(value)),
		)
	}
	return value
}

func descendDivs(node *goquery.Selection, steps []int) *goquery.Selection {
	for _, idx := range steps {
		if node.Length() == 0 {
			return node
		}
		node = node.ChildrenFiltered("div").Eq(idx)
	}
	return node
}

// IsStructural reports whether s is a positional fallback.
func IsStructural(s Strategy) bool {
	_, ok := s.(StructuralPath)
	return ok
}

var (
	descriptionPath = StructuralPath{
		Label: "description",
		Root:  "main",
		Steps: []int{1, 1, 1, 4, 0, 0, 0},
		Leaf:  "span",
	}
	ratingPath = StructuralPath{
		Label:     "rating",
		Root:      "main",
		Steps:     []int{0, 1, 2, 1, 1, 2},
		Leaf:      "a",
		LeafSteps: []int{0, 0},
	}
)
