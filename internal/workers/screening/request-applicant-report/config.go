// internal/workers/screening/request-applicant-report/config.go
package requestapplicantreport

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
