// internal/workers/screening/poll-responses/models.go
package pollresponses

type Input struct {
	TenantID string `json:"tenantId"`
	MsgID    string `json:"msgId,omitempty"`
}

type Output struct {
	Processed bool `json:"processed"`
	Pending   int  `json:"pending"`
	Requeried int  `json:"requeried"`
	Failed    int  `json:"failed"`
}
