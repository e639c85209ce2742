// internal/models/notification.go
package models

// ApplicationUpdated is published after every successful dispatch, before any
// response has come back. Downstream consumers must be idempotent; duplicates
// are expected and harmless.
type ApplicationUpdated struct {
	TenantID  string   `json:"tenantId"`
	PartyID   string   `json:"partyId"`
	PersonIDs []string `json:"personIds"`
}

// LongRunningAlert is mailed to operations when a request exceeds the
// pending SLA without a provider response.
type LongRunningAlert struct {
	ScreeningRequestID string `json:"screeningRequestId"`
	TenantID           string `json:"tenantId"`
	PartyID            string `json:"partyId"`
	RequestType        string `json:"requestType"`
	TransactionNumber  string `json:"transactionNumber"`
	PendingFor         string `json:"pendingFor"`
}
