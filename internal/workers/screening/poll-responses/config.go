// internal/workers/screening/poll-responses/config.go
package pollresponses

import "time"

type Config struct {
	Timeout time.Duration
	// MaxPerRun caps how many pending requests one poll job re-queries.
	MaxPerRun int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:   60 * time.Second,
		MaxPerRun: 50,
	}
}
