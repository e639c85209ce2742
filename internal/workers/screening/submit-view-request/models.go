// internal/workers/screening/submit-view-request/models.go
package submitviewrequest

type Input struct {
	TenantID   string `json:"tenantId"`
	PartyID    string `json:"partyId"`
	PersonID   string `json:"personId,omitempty"`
	ReportName string `json:"reportName,omitempty"`
}

type Output struct {
	Processed          bool   `json:"processed"`
	Skipped            bool   `json:"skipped,omitempty"`
	SkipReason         string `json:"skipReason,omitempty"`
	ScreeningRequestID string `json:"screeningRequestId,omitempty"`
}
