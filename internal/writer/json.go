package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"dhtsim/internal/metrics"
)

// JSONResultWriter writes one ResultRecord as a single pretty-printed JSON
// document, the baseline run's output file.
type JSONResultWriter struct {
	path string
}

// NewJSONResultWriter builds a writer targeting path, creating parent
// directories as needed.
func NewJSONResultWriter(path string) (*JSONResultWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directory %q: %w", dir, err)
		}
	}
	return &JSONResultWriter{path: path}, nil
}

func (w *JSONResultWriter) WriteResult(rec metrics.ResultRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal result record: %w", err)
	}
	if err := os.WriteFile(w.path, data, 0o644); err != nil {
		return fmt.Errorf("cannot write result file %q: %w", w.path, err)
	}
	return nil
}

func (w *JSONResultWriter) Close() error { return nil }

var _ ResultWriter = (*JSONResultWriter)(nil)
