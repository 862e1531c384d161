// Package genre holds the allowed genre set and the rules that map raw genre
// labels and index URLs onto it.
package genre

import "strings"

var apostrophes = strings.NewReplacer("'", "", "’", "")

// Normalize lower-cases s and strips apostrophes and spaces.
func Normalize(s string) string {
	s = apostrophes.Replace(strings.ToLower(s))
	return strings.ReplaceAll(s, " ", "")
}

// Slug converts a genre name to its URL path segment ("Science Fiction" -> "science-fiction").
func Slug(s string) string {
	s = apostrophes.Replace(strings.ToLower(s))
	return strings.ReplaceAll(s, " ", "-")
}

// Overlaps reports whether either name contains the other, ignoring case.
func Overlaps(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// Set is the ordered list of allowed genres. Order is also the reporting order.
type Set struct {
	names  []string
	byNorm map[string]string
}

// NewSet builds a set from names, dropping blanks and later entries that
// normalize to an earlier one.
func NewSet(names ...string) Set {
	s := Set{byNorm: make(map[string]string, len(names))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		norm := Normalize(name)
		if _, dup := s.byNorm[norm]; dup {
			continue
		}
		s.byNorm[norm] = name
		s.names = append(s.names, name)
	}
	return s
}

// Names returns the genres in set order.
func (s Set) Names() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Len returns the number of genres.
func (s Set) Len() int {
	return len(s.names)
}

// Canonical returns the allowed spelling of name when it is in the set,
// compared case-insensitively.
func (s Set) Canonical(name string) (string, bool) {
	allowed, ok := s.byNorm[Normalize(name)]
	if !ok || !strings.EqualFold(allowed, strings.TrimSpace(name)) {
		return "", false
	}
	return allowed, true
}

// Contains reports whether name is an allowed genre.
func (s Set) Contains(name string) bool {
	_, ok := s.Canonical(name)
	return ok
}

// Classify picks the genre for a page from its raw genre labels.
//
// The normalized form only locates the candidate; the label must also equal
// the allowed name ignoring case, so "sciencefiction" does not pass for
// "Science Fiction". The first accepted label wins.
func (s Set) Classify(labels []string) (string, bool) {
	for _, label := range labels {
		if allowed, ok := s.Canonical(label); ok {
			return allowed, true
		}
	}
	return "", false
}

// IndexGenres returns the genres whose index path (/genres/<slug>) occurs in
// rawURL, in set order.
func (s Set) IndexGenres(rawURL string) []string {
	lower := strings.ToLower(rawURL)
	var out []string
	for _, name := range s.names {
		if strings.Contains(lower, "/genres/"+Slug(name)) {
			out = append(out, name)
		}
	}
	return out
}
