package workload

import (
	"fmt"
	"testing"

	"dhtsim/internal/bus"
	"dhtsim/internal/chord"
	"dhtsim/internal/idspace"
)

func newChordCap(t *testing.T) *chord.Overlay {
	sp, err := idspace.NewSpace(32, 4)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return chord.New(sp, 4, bus.New(false), nil)
}

func fixtureSource(n int) *SliceKeySource {
	items := make([]Item, n)
	for i := 0; i < n; i++ {
		items[i] = Item{Key: fmt.Sprintf("movie-%d", i), Value: fmt.Sprintf("value-%d", i)}
	}
	return NewSliceKeySource(items)
}

func TestDriverRunsAllPhases(t *testing.T) {
	cap := newChordCap(t)
	src := fixtureSource(200)
	desc := Descriptor{N: 10, Inserts: 50, Lookups: 50, Updates: 20, Deletes: 10, JoinLeave: 5, K: 10, Seed: 1}
	d := New(cap, src, desc)

	results, err := d.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[r.OpClass]++
	}
	if counts["insert"] != 50 {
		t.Fatalf("insert count = %d, want 50", counts["insert"])
	}
	if counts["lookup"] != 50 {
		t.Fatalf("lookup count = %d, want 50", counts["lookup"])
	}
	if counts["update"] != 20 {
		t.Fatalf("update count = %d, want 20", counts["update"])
	}
	if counts["delete"] != 10 {
		t.Fatalf("delete count = %d, want 10", counts["delete"])
	}
	if counts["kquery"] != 10 {
		t.Fatalf("kquery count = %d, want 10", counts["kquery"])
	}
}

func TestDriverDeterministicAcrossRuns(t *testing.T) {
	desc := Descriptor{N: 8, Inserts: 30, Lookups: 30, Updates: 10, Deletes: 5, JoinLeave: 3, K: 6, Seed: 42}

	run := func() []OpResult {
		cap := newChordCap(t)
		src := fixtureSource(200)
		d := New(cap, src, desc)
		results, err := d.Run()
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return results
	}

	a := run()
	b := run()
	if len(a) != len(b) {
		t.Fatalf("result length differs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].OpClass != b[i].OpClass || a[i].Hops != b[i].Hops || (a[i].Err == nil) != (b[i].Err == nil) {
			t.Fatalf("result %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestDriverSingleNodeZeroHops(t *testing.T) {
	cap := newChordCap(t)
	src := fixtureSource(20)
	desc := Descriptor{N: 1, Inserts: 10, Lookups: 10, Seed: 7}
	d := New(cap, src, desc)

	results, err := d.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, r := range results {
		if r.Hops != 0 {
			t.Fatalf("op %s hops = %d, want 0 for N=1", r.OpClass, r.Hops)
		}
	}
}
