// internal/workers/screening/long-running/config.go
package longrunning

import "time"

type Config struct {
	Timeout time.Duration
	// SLA is how long a request may stay pending before operations is told.
	SLA time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
		SLA:     48 * time.Hour,
	}
}
