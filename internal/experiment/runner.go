// Package experiment wires a config.Config, an idspace.Space, both overlay
// implementations, and a workload.Driver together into the two top-level
// runs this spec describes: a single baseline measurement and an N x
// join_leave grid sweep. Grounded on the teacher's cmd/tester/main.go
// wiring (build config -> build logger -> build tester -> run -> write
// results), generalized from "one gRPC client driving one remote ring" to
// "drive both in-process overlays and aggregate locally".
package experiment

import (
	"fmt"

	"dhtsim/internal/bus"
	"dhtsim/internal/chord"
	"dhtsim/internal/config"
	"dhtsim/internal/idspace"
	"dhtsim/internal/logger"
	"dhtsim/internal/metrics"
	"dhtsim/internal/overlay"
	"dhtsim/internal/pastry"
	"dhtsim/internal/workload"
)

// Runner owns one Config and the shared identifier space derived from it,
// and drives both protocols' baseline and grid runs.
type Runner struct {
	cfg config.Config
	sp  idspace.Space
	lgr logger.Logger
}

// New validates cfg, builds the shared identifier space, and returns a
// ready Runner.
func New(cfg config.Config, lgr logger.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	sp, err := idspace.NewSpace(cfg.Ring.Bits, cfg.Ring.BaseBits)
	if err != nil {
		return nil, fmt.Errorf("experiment: cannot build id space: %w", err)
	}
	if lgr == nil {
		lgr = logger.NopLogger{}
	}
	return &Runner{cfg: cfg, sp: sp, lgr: lgr.Named("experiment")}, nil
}

// newOverlay builds a fresh overlay for protocol ("chord" or "pastry")
// against one message bus, so hop counting spans both rings evenly.
func (r *Runner) newOverlay(protocol string, b *bus.Bus) (overlay.Capability, error) {
	switch protocol {
	case "chord":
		return chord.New(r.sp, r.cfg.Chord.SuccessorListSize, b, r.lgr.Named("chord")), nil
	case "pastry":
		return pastry.New(r.sp, r.cfg.Pastry.LeafSetSize, b, r.lgr.Named("pastry")), nil
	default:
		return nil, fmt.Errorf("experiment: unknown protocol %q", protocol)
	}
}

// descriptorFor renders the configured workload into a workload.Descriptor,
// overriding N and JoinLeave and keeping every other count fixed. RunBaseline
// uses it; RunGrid builds its own descriptor (configured inserts and lookups
// only, with the grid's K and Seed).
func (r *Runner) descriptorFor(n, joinLeave int) workload.Descriptor {
	w := r.cfg.Workload
	return workload.Descriptor{
		N:         n,
		Inserts:   w.Inserts,
		Lookups:   w.Lookups,
		Updates:   w.Updates,
		Deletes:   w.Deletes,
		JoinLeave: joinLeave,
		K:         w.K,
		Seed:      w.Seed,
	}
}

// runProtocol bootstraps N nodes of protocol, drives desc against them, and
// returns every recorded operation, each carrying its own error if it
// failed; the error tally for ResultRecord.Errors is built by recordInto.
func (r *Runner) runProtocol(protocol string, desc workload.Descriptor, src workload.KeySource) ([]workload.OpResult, error) {
	b := bus.New(r.cfg.Telemetry.Tracing.Enabled)
	cap, err := r.newOverlay(protocol, b)
	if err != nil {
		return nil, err
	}

	driver := workload.New(cap, src, desc)
	if err := driver.Bootstrap(); err != nil {
		return nil, fmt.Errorf("experiment: %s bootstrap failed: %w", protocol, err)
	}

	results, err := driver.Run()
	if err != nil {
		return nil, fmt.Errorf("experiment: %s run failed: %w", protocol, err)
	}
	return results, nil
}

// RunBaseline drives the configured workload once against both chord and
// pastry overlays built from identical parameters, and returns the
// combined ResultRecord the CLI's --out flag persists. newSource is
// called once per protocol so each gets its own fresh KeySource over the
// same underlying data.
func (r *Runner) RunBaseline(newSource func() workload.KeySource) (metrics.ResultRecord, error) {
	desc := r.descriptorFor(r.cfg.Workload.N, r.cfg.Workload.JoinLeave)
	errs := make(map[string]int)

	chordAgg := metrics.NewAggregator()
	chordResults, err := r.runProtocol("chord", desc, newSource())
	if err != nil {
		return metrics.ResultRecord{}, err
	}
	recordInto(chordAgg, errs, chordResults)

	pastryAgg := metrics.NewAggregator()
	pastryResults, err := r.runProtocol("pastry", desc, newSource())
	if err != nil {
		return metrics.ResultRecord{}, err
	}
	recordInto(pastryAgg, errs, pastryResults)

	return metrics.ResultRecord{
		Chord:  metrics.BuildOpStats(chordAgg),
		Pastry: metrics.BuildOpStats(pastryAgg),
		Params: metrics.Params{
			N:         desc.N,
			Inserts:   desc.Inserts,
			Lookups:   desc.Lookups,
			Updates:   desc.Updates,
			Deletes:   desc.Deletes,
			JoinLeave: desc.JoinLeave,
			K:         desc.K,
			Seed:      desc.Seed,
		},
		Errors: errs,
	}, nil
}

// recordInto tallies each result's hop count into agg on success, or its
// overlay.Kind into errs on failure (e.g. "RoutingDiverged", "KeyNotFound"),
// per the locally-recoverable-kind tally the result record's Errors field
// reports.
func recordInto(agg *metrics.Aggregator, errs map[string]int, results []workload.OpResult) {
	for _, res := range results {
		if res.Err != nil {
			kind, ok := overlay.KindOf(res.Err)
			if !ok {
				errs["Unknown"]++
				continue
			}
			errs[kind.String()]++
			continue
		}
		agg.Record(res.OpClass, res.Hops)
	}
}
