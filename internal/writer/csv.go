package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"dhtsim/internal/metrics"
)

// CSVGridWriter incrementally appends GridSummaryRow entries to a CSV file,
// writing the header once. Grounded directly on the teacher's
// writer.CSVWriter (open-or-create, write header if new, append under a
// mutex, explicit Flush/Close), generalized from its fixed
// (timestamp,node,result,delay_ms) schema to GridSummaryRow's fields.
type CSVGridWriter struct {
	mu     sync.Mutex
	file   *os.File
	w      *csv.Writer
	closed bool
}

// NewCSVGridWriter creates or appends to filename, writing the header row
// only when the file did not already exist.
func NewCSVGridWriter(filename string) (*CSVGridWriter, error) {
	dir := filepath.Dir(filename)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create directory %q: %w", dir, err)
		}
	}

	fileExists := false
	if _, err := os.Stat(filename); err == nil {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open csv file: %w", err)
	}

	w := csv.NewWriter(file)
	if !fileExists {
		header := []string{"protocol", "n", "join_leave", "k", "seed", "kquery_mean_hops", "kquery_p95_hops"}
		if err := w.Write(header); err != nil {
			file.Close()
			return nil, fmt.Errorf("cannot write header: %w", err)
		}
		w.Flush()
	}

	return &CSVGridWriter{file: file, w: w}, nil
}

func (cw *CSVGridWriter) WriteRow(row metrics.GridSummaryRow) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.closed {
		return fmt.Errorf("cannot write: writer already closed")
	}

	record := []string{
		row.Protocol,
		strconv.Itoa(row.N),
		strconv.Itoa(row.JoinLeave),
		strconv.Itoa(row.K),
		strconv.FormatInt(row.Seed, 10),
		strconv.FormatFloat(row.KQueryMeanHop, 'f', 3, 64),
		strconv.FormatFloat(row.KQueryP95Hop, 'f', 3, 64),
	}
	if err := cw.w.Write(record); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	cw.w.Flush()
	return cw.w.Error()
}

func (cw *CSVGridWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	if cw.closed {
		return nil
	}
	cw.w.Flush()
	cw.closed = true
	if err := cw.w.Error(); err != nil {
		_ = cw.file.Close()
		return fmt.Errorf("flush error: %w", err)
	}
	return cw.file.Close()
}

var _ GridWriter = (*CSVGridWriter)(nil)
