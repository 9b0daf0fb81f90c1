// Package workload drives a mixed insert/lookup/update/delete/churn/kquery
// operation stream against an overlay.Capability, recording the hop cost of
// every operation. Grounded on the teacher's tester.Tester.Run/runQueryWave
// loop, generalized from a fixed-rate gRPC lookup loop to the full phased
// workload this spec describes.
package workload

import (
	"encoding/csv"
	"fmt"
	"io"
)

// KeySource yields (key, value) pairs in a stable order; the driver reads
// at most inserts+lookups+updates+deletes items from it.
type KeySource interface {
	// Next returns the next pair, or ok=false once exhausted.
	Next() (key string, value any, ok bool)
}

// Item is one (key, value) pair for SliceKeySource.
type Item struct {
	Key   string
	Value any
}

// SliceKeySource is an in-memory KeySource, used by tests and deterministic
// fixtures.
type SliceKeySource struct {
	items []Item
	idx   int
}

// NewSliceKeySource builds a SliceKeySource over items, consumed in order.
func NewSliceKeySource(items []Item) *SliceKeySource {
	return &SliceKeySource{items: items}
}

func (s *SliceKeySource) Next() (string, any, bool) {
	if s.idx >= len(s.items) {
		return "", nil, false
	}
	it := s.items[s.idx]
	s.idx++
	return it.Key, it.Value, true
}

// CSVKeySource is a thin adapter over encoding/csv, reading instead of
// writing (the teacher's writer.CSVWriter uses the same package to write
// lookup-result rows; this mirrors it for ingestion).
type CSVKeySource struct {
	r       *csv.Reader
	header  []string
	keyCol  int
	done    bool
}

// NewCSVKeySource reads the header row from r and locates keyColumn. Each
// subsequent Next() call reads one data row, returning the key column's
// value and the full row (as a map[string]string) as the value.
func NewCSVKeySource(r io.Reader, keyColumn string) (*CSVKeySource, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("workload: failed to read csv header: %w", err)
	}
	keyCol := -1
	for i, h := range header {
		if h == keyColumn {
			keyCol = i
			break
		}
	}
	if keyCol < 0 {
		return nil, fmt.Errorf("workload: csv schema missing required column %q", keyColumn)
	}
	return &CSVKeySource{r: cr, header: header, keyCol: keyCol}, nil
}

func (s *CSVKeySource) Next() (string, any, bool) {
	if s.done {
		return "", nil, false
	}
	row, err := s.r.Read()
	if err == io.EOF {
		s.done = true
		return "", nil, false
	}
	if err != nil {
		s.done = true
		return "", nil, false
	}
	value := make(map[string]string, len(s.header))
	for i, h := range s.header {
		if i < len(row) {
			value[h] = row[i]
		}
	}
	return row[s.keyCol], value, true
}
