package models

import "testing"

func TestBookDedupKey(t *testing.T) {
	base := Book{Title: "Emma", Author: "Jane Austen", URL: "http://books.test/book/show/1"}

	tests := []struct {
		name string
		book Book
		same bool
	}{
		{name: "identical", book: base, same: true},
		{name: "host case", book: Book{Title: "Emma", Author: "Jane Austen", URL: "HTTP://BOOKS.TEST/book/show/1"}, same: true},
		{name: "title case and spacing", book: Book{Title: " EMMA ", Author: "jane austen", URL: base.URL}, same: true},
		{name: "other edition", book: Book{Title: "Emma", Author: "Jane Austen", URL: "http://books.test/book/show/99"}, same: false},
		{name: "path case", book: Book{Title: "Emma", Author: "Jane Austen", URL: "http://books.test/Book/show/1"}, same: false},
		{name: "other title", book: Book{Title: "Persuasion", Author: "Jane Austen", URL: base.URL}, same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.book.DedupKey() == base.DedupKey(); got != tt.same {
				t.Fatalf("DedupKey(%+v) == DedupKey(base) is %v, want %v", tt.book, got, tt.same)
			}
		})
	}
}
