// internal/workers/loan/risk-monitoring/config.go
package riskmonitoring

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
