// Package config loads VM tunables from the environment so the collector's
// trigger and the REPL's prompt can be adjusted without a rebuild.
package config

import (
	"github.com/caarlos0/env/v6"
	"github.com/mna/lovm/lang/heap"
)

// Config is the environment-bindable surface of heap.Config plus the bits
// that belong to the CLI rather than the heap itself. Frame and stack
// depths are not here: §3 fixes FRAMES_MAX and STACK_MAX as invariants of
// the call-frame machinery, not knobs to tune per deployment.
type Config struct {
	GCGrowthFactor     int    `env:"LOVM_GC_GROWTH_FACTOR" envDefault:"2"`
	GCInitialThreshold int    `env:"LOVM_GC_INITIAL_THRESHOLD" envDefault:"1048576"`
	StressGC           bool   `env:"LOVM_STRESS_GC" envDefault:"false"`
	ReplPrompt         string `env:"LOVM_REPL_PROMPT" envDefault:"> "`
}

// Load parses Config from the process environment, falling back to the
// defaults above for anything unset.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// HeapConfig projects the parsed Config onto heap.Config, the shape the
// collector actually consumes.
func (c Config) HeapConfig() heap.Config {
	return heap.Config{
		GrowthFactor:     c.GCGrowthFactor,
		InitialThreshold: c.GCInitialThreshold,
		StressGC:         c.StressGC,
	}
}
