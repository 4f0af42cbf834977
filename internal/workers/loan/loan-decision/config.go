// internal/workers/loan/loan-decision/config.go
package loandecision

import "time"

// Decision thresholds live in code, not config: they are pinned by the
// property tests and changing them is a product decision.
type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
