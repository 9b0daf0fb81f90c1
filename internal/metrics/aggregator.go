// Package metrics aggregates per-operation-class hop counts into the
// summary statistics the external report consumes: count, mean, median,
// and p95.
package metrics

import (
	"math"
	"sort"
)

// Stats holds the four summary statistics for one operation class. A zero
// Count means the class was never exercised; Mean/Median/P95 are then the
// sentinel value reported as null by the external JSON serializer.
type Stats struct {
	Count  int
	Mean   float64
	Median float64
	P95    float64
	Empty  bool
}

// Aggregator accumulates hop counts per operation class.
type Aggregator struct {
	hops map[string][]int
}

// NewAggregator builds an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{hops: make(map[string][]int)}
}

// Record adds one observation for opClass.
func (a *Aggregator) Record(opClass string, hops int) {
	a.hops[opClass] = append(a.hops[opClass], hops)
}

// Stats computes the summary statistics for opClass. Median uses the lower
// of the two middle values for an even count; P95 uses nearest-rank,
// 1-indexed (ceil(0.95*n)).
func (a *Aggregator) Stats(opClass string) Stats {
	vals := a.hops[opClass]
	if len(vals) == 0 {
		return Stats{Empty: true}
	}

	sorted := make([]int, len(vals))
	copy(sorted, vals)
	sort.Ints(sorted)

	sum := 0
	for _, v := range sorted {
		sum += v
	}
	n := len(sorted)
	mean := float64(sum) / float64(n)

	var median float64
	if n%2 == 0 {
		median = float64(sorted[n/2-1])
	} else {
		median = float64(sorted[n/2])
	}

	rank := int(math.Ceil(0.95 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	p95 := float64(sorted[rank-1])

	return Stats{Count: n, Mean: mean, Median: median, P95: p95}
}

// OpClasses returns every operation class recorded so far, in a stable
// order suitable for deterministic serialization.
func (a *Aggregator) OpClasses() []string {
	classes := make([]string, 0, len(a.hops))
	for c := range a.hops {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}
