package tensor

import "github.com/kelseyhightower/envconfig"

// Config holds the process-wide flags that affect evaluation: whether to
// elide the staging buffer on readback, whether to emit benchmark timing
// queries, and the default log level. Fields are tagged for
// github.com/kelseyhightower/envconfig with prefix TENSOR (e.g.
// TENSOR_DIRECT_BUFFER, TENSOR_BENCHMARK, TENSOR_LOG_LEVEL).
type Config struct {
	// DirectBuffer is loaded from the environment but no package reads it:
	// readback always goes through the adapter's ReadBuffer, and the staging
	// buffer is not elided.
	DirectBuffer bool `envconfig:"direct_buffer" default:"false"`
	// Benchmark makes the eval pipeline log one debug record per dispatched
	// node (node id, op kind, output length). It inserts no timestamp
	// queries and prints no timings to stdout.
	Benchmark bool `envconfig:"benchmark" default:"false"`
	// LogLevel selects the default slog level when a CLI entry point wires
	// up a logger; it has no effect unless something calls SetLogger using it.
	LogLevel string `envconfig:"log_level" default:"info"`
}

// LoadConfig reads a Config from the environment using the TENSOR_ prefix.
func LoadConfig() (Config, error) {
	var c Config
	if err := envconfig.Process("tensor", &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
