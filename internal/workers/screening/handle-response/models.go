// internal/workers/screening/handle-response/models.go
package handleresponse

import "github.com/max-tl-2000/red-sub014/internal/models"

type Input = models.ResponseReceivedMessage

type Output struct {
	Processed           bool   `json:"processed"`
	ScreeningResponseID string `json:"screeningResponseId,omitempty"`
	ScreeningRequestID  string `json:"screeningRequestId,omitempty"`
	Status              string `json:"status,omitempty"`
	ApplicationDecision string `json:"applicationDecision,omitempty"`
}
