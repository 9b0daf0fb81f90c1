// Command run drives dhtsim's baseline and grid experiments, or opens an
// interactive console against a live overlay. Grounded on the teacher's
// cmd/tester/main.go wiring: load config, build a logger, build a writer,
// run, report elapsed time.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"dhtsim/internal/bus"
	"dhtsim/internal/chord"
	"dhtsim/internal/config"
	"dhtsim/internal/experiment"
	"dhtsim/internal/idspace"
	"dhtsim/internal/logger"
	zapfactory "dhtsim/internal/logger/zap"
	"dhtsim/internal/pastry"
	"dhtsim/internal/repl"
	"dhtsim/internal/telemetry"
	"dhtsim/internal/workload"
	"dhtsim/internal/writer"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; defaults are used otherwise)")
	csvPath := flag.String("csv", "", "grid CSV output path (overrides config.csvPath)")
	outPath := flag.String("out", "", "baseline JSON output path (overrides config.outPath)")
	n := flag.Int("N", 0, "number of nodes to bootstrap (overrides config.workload.n when > 0)")
	inserts := flag.Int("inserts", -1, "number of insert operations (overrides config.workload.inserts when >= 0)")
	lookups := flag.Int("lookups", -1, "number of lookup operations")
	updates := flag.Int("updates", -1, "number of update operations")
	deletes := flag.Int("deletes", -1, "number of delete operations")
	joinLeave := flag.Int("join_leave", -1, "number of churn join/leave pairs")
	k := flag.Int("K", -1, "number of concurrent kquery lookups")
	seed := flag.Int64("seed", 0, "workload RNG seed (overrides config.workload.seed when != 0)")
	grid := flag.Bool("grid", false, "run the N x join_leave grid sweep instead of the baseline")
	interactive := flag.Bool("interactive", false, "open an interactive console instead of running a workload")
	protocol := flag.String("protocol", "chord", "protocol for --interactive mode: chord or pastry")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("failed to load configuration from %q: %v", *configPath, err)
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg, *n, *inserts, *lookups, *updates, *deletes, *joinLeave, *k, *seed, *csvPath, *outPath)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	var lgr logger.Logger
	if cfg.Logger.Active {
		zapLog, err := zapfactory.New(cfg.Logger)
		if err != nil {
			log.Fatalf("failed to initialize logger: %v", err)
		}
		defer func() { _ = zapLog.Sync() }()
		lgr = zapfactory.NewZapAdapter(zapLog)
	} else {
		lgr = logger.NopLogger{}
	}
	fields := make([]logger.Field, 0)
	for key, v := range cfg.LogFields() {
		fields = append(fields, logger.F(key, v))
	}
	lgr.Info("configuration loaded", fields...)

	shutdown := telemetry.InitTracer(cfg.Telemetry, "dhtsim", time.Now().UTC().Format(time.RFC3339))
	defer func() { _ = shutdown(context.Background()) }()

	if *interactive {
		runInteractive(cfg, *protocol, lgr)
		return
	}

	runner, err := experiment.New(cfg, lgr)
	if err != nil {
		log.Fatalf("failed to build experiment runner: %v", err)
	}

	newSource := func() workload.KeySource {
		return syntheticSource(cfg.Workload)
	}

	start := time.Now()
	if *grid {
		runGridMode(runner, cfg, newSource)
	} else {
		runBaselineMode(runner, cfg, newSource)
	}
	lgr.Info("run finished", logger.F("elapsed", time.Since(start).String()))
}

func applyFlagOverrides(cfg *config.Config, n, inserts, lookups, updates, deletes, joinLeave, k int, seed int64, csvPath, outPath string) {
	if n > 0 {
		cfg.Workload.N = n
	}
	if inserts >= 0 {
		cfg.Workload.Inserts = inserts
	}
	if lookups >= 0 {
		cfg.Workload.Lookups = lookups
	}
	if updates >= 0 {
		cfg.Workload.Updates = updates
	}
	if deletes >= 0 {
		cfg.Workload.Deletes = deletes
	}
	if joinLeave >= 0 {
		cfg.Workload.JoinLeave = joinLeave
	}
	if k >= 0 {
		cfg.Workload.K = k
	}
	if seed != 0 {
		cfg.Workload.Seed = seed
	}
	if csvPath != "" {
		cfg.CSVPath = csvPath
	}
	if outPath != "" {
		cfg.OutPath = outPath
	}
}

// syntheticSource builds a deterministic "key-<i>" / "value-<i>" key source
// sized to cover every insert the configured workload can issue.
func syntheticSource(w config.Workload) workload.KeySource {
	total := w.Inserts
	if total <= 0 {
		total = w.N * 4
	}
	items := make([]workload.Item, total)
	for i := 0; i < total; i++ {
		items[i] = workload.Item{Key: fmt.Sprintf("key-%d", i), Value: fmt.Sprintf("value-%d", i)}
	}
	return workload.NewSliceKeySource(items)
}

func runBaselineMode(runner *experiment.Runner, cfg config.Config, newSource func() workload.KeySource) {
	rec, err := runner.RunBaseline(newSource)
	if err != nil {
		log.Fatalf("baseline run failed: %v", err)
	}
	if cfg.OutPath == "" {
		fmt.Printf("%+v\n", rec)
		return
	}
	w, err := writer.NewJSONResultWriter(cfg.OutPath)
	if err != nil {
		log.Fatalf("failed to open result writer: %v", err)
	}
	defer w.Close()
	if err := w.WriteResult(rec); err != nil {
		log.Fatalf("failed to write result: %v", err)
	}
}

func runGridMode(runner *experiment.Runner, cfg config.Config, newSource func() workload.KeySource) {
	rows, err := runner.RunGrid(newSource)
	if err != nil {
		log.Fatalf("grid run failed: %v", err)
	}
	if cfg.CSVPath == "" {
		for _, row := range rows {
			fmt.Printf("%+v\n", row)
		}
		return
	}
	w, err := writer.NewCSVGridWriter(cfg.CSVPath)
	if err != nil {
		log.Fatalf("failed to open grid writer: %v", err)
	}
	defer w.Close()
	for _, row := range rows {
		if err := w.WriteRow(row); err != nil {
			log.Fatalf("failed to write grid row: %v", err)
		}
	}
}

func runInteractive(cfg config.Config, protocol string, lgr logger.Logger) {
	sp, err := idspace.NewSpace(cfg.Ring.Bits, cfg.Ring.BaseBits)
	if err != nil {
		log.Fatalf("failed to build id space: %v", err)
	}
	b := bus.New(cfg.Telemetry.Tracing.Enabled)

	switch protocol {
	case "chord":
		ov := chord.New(sp, cfg.Chord.SuccessorListSize, b, lgr.Named("chord"))
		if _, _, err := ov.Join("bootstrap"); err != nil {
			log.Fatalf("failed to bootstrap: %v", err)
		}
		shell := repl.New(ov)
		defer shell.Close()
		shell.Run()
	case "pastry":
		ov := pastry.New(sp, cfg.Pastry.LeafSetSize, b, lgr.Named("pastry"))
		if _, _, err := ov.Join("bootstrap"); err != nil {
			log.Fatalf("failed to bootstrap: %v", err)
		}
		shell := repl.New(ov)
		defer shell.Close()
		shell.Run()
	default:
		fmt.Fprintf(os.Stderr, "unknown protocol %q (want chord or pastry)\n", protocol)
		os.Exit(1)
	}
}
