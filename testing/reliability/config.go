// Package reliability holds long-running tests of the tracer under load.
// They are skipped unless SPANZ_RELIABILITY_LEVEL is "basic" or "stress".
package reliability

import (
	"testing"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Test intensity levels.
const (
	LevelBasic  = "basic"
	LevelStress = "stress"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level         string        `envconfig:"LEVEL"`
	Duration      time.Duration `envconfig:"DURATION" default:"30s"`
	MaxGoroutines int           `envconfig:"MAX_GOROUTINES" default:"100"`
	SpanBudget    int           `envconfig:"SPAN_BUDGET" default:"1000"`
}

// getReliabilityConfig reads SPANZ_RELIABILITY_* variables. Malformed values
// fail the test.
func getReliabilityConfig(t *testing.T) ReliabilityConfig {
	t.Helper()
	var cfg ReliabilityConfig
	if err := envconfig.Process("SPANZ_RELIABILITY", &cfg); err != nil {
		t.Fatalf("invalid reliability config: %v", err)
	}
	return cfg
}

// requireLevel skips t unless the configured level is one of levels.
func requireLevel(t *testing.T, levels ...string) ReliabilityConfig {
	t.Helper()
	cfg := getReliabilityConfig(t)
	for _, l := range levels {
		if cfg.Level == l {
			return cfg
		}
	}
	t.Skip("SPANZ_RELIABILITY_LEVEL not set, skipping reliability tests")
	return cfg
}
