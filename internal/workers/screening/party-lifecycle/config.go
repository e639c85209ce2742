// internal/workers/screening/party-lifecycle/config.go
package partylifecycle

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
