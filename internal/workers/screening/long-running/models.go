// internal/workers/screening/long-running/models.go
package longrunning

type Input struct {
	MsgID string `json:"msgId,omitempty"`
	// SLAHours overrides the configured SLA when set.
	SLAHours int `json:"slaHours,omitempty"`
}

type Output struct {
	Processed   bool `json:"processed"`
	LongRunning int  `json:"longRunning"`
	Alerted     int  `json:"alerted"`
}
