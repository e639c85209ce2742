// internal/workers/screening/submit-request/models.go
package submitrequest

import "github.com/max-tl-2000/red-sub014/internal/models"

// Input is the common trigger message shape. Every trigger topic shares it;
// the topic itself decides how the message maps to screening parameters.
type Input = models.ScreeningEventMessage

type Output struct {
	Processed          bool   `json:"processed"`
	Skipped            bool   `json:"skipped,omitempty"`
	SkipReason         string `json:"skipReason,omitempty"`
	ScreeningRequestID string `json:"screeningRequestId,omitempty"`
	RequestType        string `json:"requestType,omitempty"`
}
