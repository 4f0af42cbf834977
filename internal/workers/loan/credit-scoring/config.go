// internal/workers/loan/credit-scoring/config.go
package creditscoring

import "time"

const (
	ProviderRules    = "rules"
	ProviderExternal = "external"
)

type Config struct {
	Timeout  time.Duration
	Provider string
	External ExternalConfig
}

type ExternalConfig struct {
	BaseURL    string
	Model      string
	APIKey     string
	Timeout    time.Duration
	MaxRetries int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:  10 * time.Second,
		Provider: ProviderRules,
		External: ExternalConfig{
			Model:      "llama-3.1-8b-instant",
			Timeout:    8 * time.Second,
			MaxRetries: 2,
		},
	}
}
