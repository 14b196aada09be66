// Package config reads the engine's process-wide configuration from
// its environment variables (spec §6.5), the one configuration
// surface a library embedded in an arbitrary host program can rely on
// without imposing a flag-parsing framework on its caller.
package config

import (
	"os"
	"strconv"
)

const envPrefix = "MEMSCOPE_"

const defaultOutputDir = "MemoryAnalysis"

// Config is the engine's init-time configuration (§6.5).
type Config struct {
	// DisableHook runs in annotation-only mode, bypassing the global
	// allocator hook (C5); only explicit Annotate calls are tracked.
	DisableHook bool

	// FastMode enables the store's fast-mode flag at init (§4.5,
	// §9): skips history insertion and per-type aggregation for
	// lower overhead at the cost of less detail.
	FastMode bool

	// OutputDir overrides the default output directory
	// (MemoryAnalysis/<project_name>/, §6.2).
	OutputDir string

	// HistoryCap overrides the store's bounded history ring size.
	// Zero means "use the store's own default."
	HistoryCap int
}

// FromEnv reads Config from MEMSCOPE_-prefixed environment variables,
// falling back to the engine's defaults for anything unset or
// unparsable. A malformed MEMSCOPE_HISTORY_CAP is treated the same as
// an unset one rather than failing init (§4.14: nothing in the core
// aborts the host process on a configuration problem).
func FromEnv() Config {
	cfg := Config{OutputDir: defaultOutputDir}

	if boolEnv(envPrefix + "DISABLE_HOOK") {
		cfg.DisableHook = true
	}
	if boolEnv(envPrefix + "FAST_MODE") {
		cfg.FastMode = true
	}
	if dir, ok := os.LookupEnv(envPrefix + "OUTPUT_DIR"); ok && dir != "" {
		cfg.OutputDir = dir
	}
	if v, ok := os.LookupEnv(envPrefix + "HISTORY_CAP"); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.HistoryCap = n
		}
	}

	return cfg
}

func boolEnv(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		// Spec's examples all use "=1"; ParseBool already accepts
		// "1", so an unparsable value (not "1"/"true"/"0"/"false"/...)
		// is treated as unset rather than an init-time error.
		return false
	}
	return b
}
