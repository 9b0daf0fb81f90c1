package experiment

import (
	"fmt"

	"dhtsim/internal/metrics"
	"dhtsim/internal/workload"
)

// RunGrid drives the K-query workload across every (N, join_leave) pair in
// the configured Grid, for both protocols, and returns one GridSummaryRow
// per (protocol, N, join_leave) cell. newSource is invoked once per cell
// per protocol, same contract as RunBaseline.
func (r *Runner) RunGrid(newSource func() workload.KeySource) ([]metrics.GridSummaryRow, error) {
	grid := r.cfg.Grid
	if len(grid.N) == 0 || len(grid.JoinLeave) == 0 {
		return nil, fmt.Errorf("experiment: grid requires at least one n and one join_leave value")
	}

	var rows []metrics.GridSummaryRow
	for _, protocol := range []string{"chord", "pastry"} {
		for _, n := range grid.N {
			for _, joinLeave := range grid.JoinLeave {
				desc := workload.Descriptor{
					N:         n,
					Inserts:   r.cfg.Workload.Inserts,
					Lookups:   r.cfg.Workload.Lookups,
					JoinLeave: joinLeave,
					K:         grid.K,
					Seed:      grid.Seed,
				}

				results, err := r.runProtocol(protocol, desc, newSource())
				if err != nil {
					return nil, fmt.Errorf("experiment: grid cell (%s, n=%d, join_leave=%d): %w", protocol, n, joinLeave, err)
				}

				agg := metrics.NewAggregator()
				for _, res := range results {
					if res.Err != nil {
						continue
					}
					agg.Record(res.OpClass, res.Hops)
				}
				stats := agg.Stats("kquery")

				rows = append(rows, metrics.GridSummaryRow{
					Protocol:      protocol,
					N:             n,
					JoinLeave:     joinLeave,
					K:             grid.K,
					Seed:          grid.Seed,
					KQueryMeanHop: stats.Mean,
					KQueryP95Hop:  stats.P95,
				})
			}
		}
	}
	return rows, nil
}
