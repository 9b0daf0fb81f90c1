package workload

import "math/rand"

// splitmix64 derives a well-mixed 64-bit value from a seed, used to hand
// each concurrent K-query worker an independent RNG stream rather than
// sharing one *rand.Rand across goroutines.
func splitmix64(x uint64) uint64 {
	x += 0x9E3779B97F4A7C15
	z := x
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// childRNG returns a *rand.Rand seeded deterministically from seed and
// taskIndex, so repeated runs with the same seed reproduce identical
// per-worker random choices regardless of goroutine scheduling order.
func childRNG(seed int64, taskIndex int) *rand.Rand {
	mixed := splitmix64(uint64(seed) ^ splitmix64(uint64(taskIndex)))
	return rand.New(rand.NewSource(int64(mixed)))
}
