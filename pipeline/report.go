package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aluiziolira/go-genre-books/models"
)

// WriteRunReport stores report as indented JSON. The file is replaced
// atomically so readers never observe a partial report.
func WriteRunReport(filename string, report models.RunReport) error {
	if err := ensureDir(filename); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(filename), ".run-report-*")
	if err != nil {
		return fmt.Errorf("create run report: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write run report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close run report: %w", err)
	}
	if err := os.Rename(tmp.Name(), filename); err != nil {
		return fmt.Errorf("replace run report: %w", err)
	}
	return nil
}

// ReadRunReport loads a report written by WriteRunReport.
func ReadRunReport(filename string) (models.RunReport, error) {
	var report models.RunReport
	data, err := os.ReadFile(filename)
	if err != nil {
		return report, fmt.Errorf("read run report: %w", err)
	}
	if err := json.Unmarshal(data, &report); err != nil {
		return report, fmt.Errorf("decode run report: %w", err)
	}
	return report, nil
}
