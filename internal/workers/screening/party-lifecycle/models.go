// internal/workers/screening/party-lifecycle/models.go
package partylifecycle

type Input struct {
	TenantID string `json:"tenantId"`
	PartyID  string `json:"partyId"`
	MsgID    string `json:"msgId,omitempty"`
}

type Output struct {
	Processed bool  `json:"processed"`
	Retired   int64 `json:"retired"`
}
