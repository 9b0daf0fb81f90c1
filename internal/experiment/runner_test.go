package experiment

import (
	"testing"

	"dhtsim/internal/config"
	"dhtsim/internal/workload"
)

func fixtureItems(n int) []workload.Item {
	items := make([]workload.Item, n)
	for i := 0; i < n; i++ {
		items[i] = workload.Item{Key: fixtureKey(i), Value: i}
	}
	return items
}

func fixtureKey(i int) string {
	return "key-" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Ring = config.RingConfig{Bits: 24, BaseBits: 4}
	cfg.Workload = config.Workload{N: 6, Inserts: 10, Lookups: 5, Updates: 2, Deletes: 1, JoinLeave: 1, K: 3, Seed: 7}
	return cfg
}

func TestRunBaselineProducesStatsForBothProtocols(t *testing.T) {
	r, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rec, err := r.RunBaseline(func() workload.KeySource {
		return workload.NewSliceKeySource(fixtureItems(20))
	})
	if err != nil {
		t.Fatalf("RunBaseline: %v", err)
	}

	if rec.Chord["insert"].Count == 0 {
		t.Fatalf("expected chord insert stats, got %+v", rec.Chord["insert"])
	}
	if rec.Pastry["insert"].Count == 0 {
		t.Fatalf("expected pastry insert stats, got %+v", rec.Pastry["insert"])
	}
	if rec.Params.N != 6 {
		t.Fatalf("Params.N = %d, want 6", rec.Params.N)
	}
}

func TestRunGridCoversEveryCellBothProtocols(t *testing.T) {
	cfg := testConfig()
	cfg.Grid = config.Grid{N: []int{4, 8}, JoinLeave: []int{0, 1}, K: 3, Seed: 7}
	r, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rows, err := r.RunGrid(func() workload.KeySource {
		return workload.NewSliceKeySource(fixtureItems(20))
	})
	if err != nil {
		t.Fatalf("RunGrid: %v", err)
	}

	want := len(cfg.Grid.N) * len(cfg.Grid.JoinLeave) * 2
	if len(rows) != want {
		t.Fatalf("len(rows) = %d, want %d", len(rows), want)
	}
}

func TestRunGridRejectsEmptyAxes(t *testing.T) {
	r, err := New(testConfig(), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := r.RunGrid(func() workload.KeySource { return workload.NewSliceKeySource(nil) }); err == nil {
		t.Fatalf("expected error for empty grid axes")
	}
}
