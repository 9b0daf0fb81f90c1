// Package config loads and validates experiment configuration from YAML,
// with environment-variable overrides, mirroring the teacher's
// internal/configloader + internal/client/tester/config.go validation style.
package config

import (
	"fmt"
	"strings"

	"dhtsim/internal/configloader"
)

// RingConfig sizes the shared identifier space.
type RingConfig struct {
	Bits     int `yaml:"bits"`     // m: ring width in bits (default 160)
	BaseBits int `yaml:"baseBits"` // b: Pastry digit width in bits (default 4)
}

// PastryConfig carries the Pastry-specific parameters left open by the
// protocol description.
type PastryConfig struct {
	LeafSetSize int `yaml:"leafSetSize"` // L (default 16)
}

// ChordConfig carries the Chord-specific parameters.
type ChordConfig struct {
	SuccessorListSize int `yaml:"successorListSize"` // r (default 4)
}

// Workload mirrors the §4.5 workload descriptor.
type Workload struct {
	N          int   `yaml:"n"`
	Inserts    int   `yaml:"inserts"`
	Lookups    int   `yaml:"lookups"`
	Updates    int   `yaml:"updates"`
	Deletes    int   `yaml:"deletes"`
	JoinLeave  int   `yaml:"joinLeave"`
	K          int   `yaml:"k"`
	Seed       int64 `yaml:"seed"`
}

// Grid describes the N x join_leave Cartesian product run.
type Grid struct {
	N         []int `yaml:"n"`
	JoinLeave []int `yaml:"joinLeave"`
	K         int   `yaml:"k"`
	Seed      int64 `yaml:"seed"`
}

// TracingConfig controls the optional OTel exporter.
type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "otlp"
	Endpoint string `yaml:"endpoint"` // required when exporter == "otlp"
}

// TelemetryConfig wraps tracing configuration, named after the teacher's
// internal/config.TelemetryConfig shape.
type TelemetryConfig struct {
	Tracing TracingConfig `yaml:"tracing"`
}

// Config is the top-level experiment descriptor loaded from YAML.
type Config struct {
	Logger    configloader.LoggerConfig `yaml:"logger"`
	Telemetry TelemetryConfig           `yaml:"telemetry"`
	Ring      RingConfig                `yaml:"ring"`
	Pastry    PastryConfig              `yaml:"pastry"`
	Chord     ChordConfig               `yaml:"chord"`
	Workload  Workload                  `yaml:"workload"`
	Grid      Grid                      `yaml:"grid"`
	CSVPath   string                    `yaml:"csvPath"`
	OutPath   string                    `yaml:"outPath"`
}

// Default returns a Config populated with the spec's recommended defaults
// (m=160, b=4, L=16, successor list 4).
func Default() Config {
	return Config{
		Logger: configloader.LoggerConfig{
			Active:   true,
			Level:    "info",
			Encoding: "console",
			Mode:     "stdout",
		},
		Telemetry: TelemetryConfig{
			Tracing: TracingConfig{Enabled: false, Exporter: "stdout"},
		},
		Ring:   RingConfig{Bits: 160, BaseBits: 4},
		Pastry: PastryConfig{LeafSetSize: 16},
		Chord:  ChordConfig{SuccessorListSize: 4},
		Workload: Workload{
			N: 10, Inserts: 50, Lookups: 50, K: 0, Seed: 1,
		},
	}
}

// Load reads a YAML file into a Config seeded with Default(), then applies
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := configloader.LoadYAML(path, &cfg); err != nil {
		return Config{}, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	configloader.OverrideString(&c.Logger.Level, "DHTSIM_LOG_LEVEL")
	configloader.OverrideString(&c.Logger.Mode, "DHTSIM_LOG_MODE")
	configloader.OverrideBool(&c.Telemetry.Tracing.Enabled, "DHTSIM_TRACING_ENABLED")
	configloader.OverrideString(&c.Telemetry.Tracing.Endpoint, "DHTSIM_TRACING_ENDPOINT")
	configloader.OverrideInt(&c.Workload.N, "DHTSIM_N")
	configloader.OverrideInt64(&c.Workload.Seed, "DHTSIM_SEED")
	configloader.OverrideString(&c.CSVPath, "DHTSIM_CSV_PATH")
	configloader.OverrideString(&c.OutPath, "DHTSIM_OUT_PATH")
}

// Validate aggregates every misconfiguration into a single error, in the
// teacher's tester.Config.Validate style, rather than failing on the first
// problem found.
func (c Config) Validate() error {
	var problems []string

	if c.Ring.Bits <= 0 {
		problems = append(problems, "ring.bits must be > 0")
	}
	if c.Ring.BaseBits <= 0 || c.Ring.BaseBits > c.Ring.Bits {
		problems = append(problems, "ring.baseBits must be in (0, ring.bits]")
	}
	if c.Pastry.LeafSetSize <= 0 || c.Pastry.LeafSetSize%2 != 0 {
		problems = append(problems, "pastry.leafSetSize must be a positive even number")
	}
	if c.Chord.SuccessorListSize <= 0 {
		problems = append(problems, "chord.successorListSize must be > 0")
	}
	if c.Workload.N <= 0 {
		problems = append(problems, "workload.n must be > 0")
	}
	for _, n := range []int{c.Workload.Inserts, c.Workload.Lookups, c.Workload.Updates, c.Workload.Deletes, c.Workload.JoinLeave, c.Workload.K} {
		if n < 0 {
			problems = append(problems, "workload counts must be >= 0")
			break
		}
	}
	if c.Telemetry.Tracing.Enabled {
		switch c.Telemetry.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if c.Telemetry.Tracing.Endpoint == "" {
				problems = append(problems, "telemetry.tracing.endpoint is required when exporter is otlp")
			}
		default:
			problems = append(problems, fmt.Sprintf("telemetry.tracing.exporter %q is not supported", c.Telemetry.Tracing.Exporter))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// LogFields returns the configuration rendered as structured logging
// fields, for a one-line "config loaded" log entry at startup.
func (c Config) LogFields() map[string]any {
	return map[string]any{
		"ring_bits":      c.Ring.Bits,
		"ring_base_bits": c.Ring.BaseBits,
		"pastry_leaf":    c.Pastry.LeafSetSize,
		"chord_succlist": c.Chord.SuccessorListSize,
		"workload_n":     c.Workload.N,
		"seed":           c.Workload.Seed,
	}
}

// HopBudget returns the configured protocol's divergence budget for N live
// nodes, per §5: default 2*log2(N) for chord, 4*log_{2^b}(N) for pastry,
// minimum 32.
func HopBudget(protocol string, n, baseBits int) int {
	if n <= 1 {
		return 32
	}
	logN := ceilLog2(n)
	var budget int
	switch protocol {
	case "pastry":
		logBase := ceilLogBase(n, 1<<uint(baseBits))
		budget = 4 * logBase
	default:
		budget = 2 * logN
	}
	if budget < 32 {
		return 32
	}
	return budget
}

func ceilLog2(n int) int {
	l := 0
	v := 1
	for v < n {
		v <<= 1
		l++
	}
	return l
}

func ceilLogBase(n, base int) int {
	if base <= 1 {
		return ceilLog2(n)
	}
	l := 0
	v := 1
	for v < n {
		v *= base
		l++
	}
	return l
}
