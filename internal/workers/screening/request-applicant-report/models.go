// internal/workers/screening/request-applicant-report/models.go
package requestapplicantreport

import "github.com/max-tl-2000/red-sub014/internal/models"

type Input = models.ApplicantReportMessage

type Output struct {
	Processed          bool   `json:"processed"`
	Skipped            bool   `json:"skipped,omitempty"`
	SkipReason         string `json:"skipReason,omitempty"`
	ScreeningRequestID string `json:"screeningRequestId,omitempty"`
	RequestType        string `json:"requestType,omitempty"`
}
