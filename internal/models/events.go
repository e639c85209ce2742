// internal/models/events.go
package models

// Inbound event topics. Each topic is consumed by an independent job worker.
const (
	TopicPaymentProcessed           = "screening.payment-processed"
	TopicQuotePublished             = "screening.quote-published"
	TopicApplicantDataUpdated       = "screening.applicant-data-updated"
	TopicApplicationHoldChanged     = "screening.application-hold-status-changed"
	TopicPartyMembersChanged        = "screening.party-members-changed"
	TopicApplicantMemberTypeChanged = "screening.applicant-member-type-changed"
	TopicForceRescreening           = "screening.force-rescreening-requested"
	TopicSendSsnChanged             = "screening.send-ssn-changed"
	TopicStuckRequestDetected       = "screening.stuck-request-detected"
	TopicRerunExpiredScreening      = "screening.rerun-expired-screening"
	TopicResponseReceived           = "screening.response-received"
	TopicSubmitViewRequest          = "screening.submit-view-request"
	TopicPollUnreceivedResponses    = "screening.poll-unreceived-responses"
	TopicLongRunningRequests        = "screening.long-running-requests"
	TopicRequestApplicantReport     = "screening.request-applicant-report"
	TopicPartyClosed                = "screening.party-closed"
	TopicPartyArchived              = "screening.party-archived"
)

// OriginRecovery labels responses obtained by the recovery sweep rather than
// by an inbound event.
const OriginRecovery = "screening.recovery"

// ScreeningEventMessage is the common inbound message body. TenantID is
// required on every topic; the rest is event specific.
type ScreeningEventMessage struct {
	TenantID               string    `json:"tenantId"`
	MsgID                  string    `json:"msgId,omitempty"`
	PartyID                string    `json:"partyId,omitempty"`
	PersonID               string    `json:"personId,omitempty"`
	EventType              string    `json:"eventType,omitempty"`
	ScreeningTypeRequested string    `json:"screeningTypeRequested,omitempty"`
	RentData               *RentData `json:"rentData,omitempty"`
}

// ResponseReceivedMessage carries a provider push response body.
type ResponseReceivedMessage struct {
	TenantID           string `json:"tenantId"`
	MsgID              string `json:"msgId,omitempty"`
	ScreeningRequestID string `json:"screeningRequestId,omitempty"`
	ResponseXML        string `json:"responseXml"`
	Origin             string `json:"origin,omitempty"`
}

// ApplicantReportMessage is the v2 per-person report request.
type ApplicantReportMessage struct {
	TenantID        string                 `json:"tenantId"`
	MsgID           string                 `json:"msgId,omitempty"`
	PersonID        string                 `json:"personId"`
	PartyID         string                 `json:"partyId,omitempty"`
	ReportName      string                 `json:"reportName"`
	ForceNew        bool                   `json:"forceNew,omitempty"`
	ApplicationData map[string]interface{} `json:"applicationData,omitempty"`
}

// HandlerResult is returned by every message handler; Processed=true tells
// the queue runtime to acknowledge, false to redeliver.
type HandlerResult struct {
	Processed bool `json:"processed"`
}
