package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aluiziolira/go-genre-books/models"
)

// ReadCSV loads records written by CSVWriter. Columns are matched by header
// name, so files with reordered or extra columns still load.
func ReadCSV(filename string) ([]*models.Book, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[name] = i
	}
	if _, ok := columns["url"]; !ok {
		return nil, fmt.Errorf("csv file %s has no url column", filename)
	}

	field := func(record []string, name string) string {
		if i, ok := columns[name]; ok && i < len(record) {
			return record[i]
		}
		return ""
	}

	var books []*models.Book
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv record: %w", err)
		}
		books = append(books, &models.Book{
			Title:       field(record, "title"),
			Author:      field(record, "author"),
			URL:         field(record, "url"),
			Description: field(record, "description"),
			Rating:      field(record, "rating"),
			Genre:       field(record, "genre"),
		})
	}
	return books, nil
}

// ReadJSON loads newline-delimited records written by JSONWriter.
func ReadJSON(filename string) ([]*models.Book, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	var books []*models.Book
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var book models.Book
		if err := json.Unmarshal(scanner.Bytes(), &book); err != nil {
			return nil, fmt.Errorf("decode json line %d: %w", line, err)
		}
		books = append(books, &book)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan json file: %w", err)
	}
	return books, nil
}
