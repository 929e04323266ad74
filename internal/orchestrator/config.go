package orchestrator

import (
	"fmt"
	"time"

	"github.com/dusk-indust/mailmerge/internal/tabular"
)

// Config holds the runtime policy for merge runs.
type Config struct {
	// Workers bounds how many rows are produced concurrently. 1 keeps the
	// loop strictly sequential.
	Workers int

	// CallTimeout bounds each adapter call.
	CallTimeout time.Duration

	// MaxAttempts is the number of tries for a transient failure.
	MaxAttempts int

	// RetryBackoff is multiplied by the attempt number between tries.
	RetryBackoff time.Duration

	// DefaultRange applies when a request names no range.
	DefaultRange string
}

// DefaultConfig returns the policy used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Workers:      1,
		CallTimeout:  30 * time.Second,
		MaxAttempts:  3,
		RetryBackoff: 500 * time.Millisecond,
		DefaultRange: tabular.DefaultRange,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = d.CallTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.RetryBackoff < 0 {
		c.RetryBackoff = 0
	}
	if c.DefaultRange == "" {
		c.DefaultRange = d.DefaultRange
	}
	return c
}

// Validate rejects a policy the runner cannot honour.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("orchestrator: workers must be positive, got %d", c.Workers)
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("orchestrator: maxAttempts must be positive, got %d", c.MaxAttempts)
	}
	if c.DefaultRange != "" {
		if _, err := tabular.ParseRange(c.DefaultRange); err != nil {
			return fmt.Errorf("orchestrator: default range: %w", err)
		}
	}
	return nil
}
