// internal/models/screening.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type SchemaVersion string

const (
	SchemaV1 SchemaVersion = "v1"
	SchemaV2 SchemaVersion = "v2"
)

// RequestType is the provider-side request mode.
type RequestType string

const (
	RequestTypeNew         RequestType = "New"
	RequestTypeModify      RequestType = "Modify"
	RequestTypeView        RequestType = "View"
	RequestTypeResetCredit RequestType = "ResetCredit"
)

type MemberType string

const (
	MemberTypeResident  MemberType = "Resident"
	MemberTypeGuarantor MemberType = "Guarantor"
	MemberTypeOccupant  MemberType = "Occupant"
)

type ScreeningStatus string

const (
	StatusComplete                   ScreeningStatus = "COMPLETE"
	StatusIncomplete                 ScreeningStatus = "INCOMPLETE"
	StatusIncompleteIncorrectMembers ScreeningStatus = "INCOMPLETE_INCORRECT_MEMBERS"
	StatusError                      ScreeningStatus = "ERROR"
)

type ApplicationDecision string

const (
	DecisionApproved          ApplicationDecision = "APPROVED"
	DecisionApprovedWithCond  ApplicationDecision = "APPROVED_WITH_COND"
	DecisionDeclined          ApplicationDecision = "DECLINED"
	DecisionFurtherReview     ApplicationDecision = "FURTHER_REVIEW"
	DecisionGuarantorRequired ApplicationDecision = "GUARANTOR_REQUIRED"
	DecisionGuarantorDenied   ApplicationDecision = "GUARANTOR_DENIED"
	DecisionPending           ApplicationDecision = "PENDING"
	DecisionScreeningDelayed  ApplicationDecision = "SCREENING_DELAYED"
	DecisionErrorAddress      ApplicationDecision = "ERROR_ADDRESS_UNPARSABLE"
	DecisionErrorOther        ApplicationDecision = "ERROR_OTHER"
)

type BlockedReason string

const (
	BlockedReasonUnknown BlockedReason = "UNKNOWN"
	BlockedReasonAddress BlockedReason = "ADDRESS"
	BlockedReasonCredit  BlockedReason = "CREDIT_FREEZE"
	BlockedReasonDispute BlockedReason = "DISPUTE"
	BlockedReasonSSN     BlockedReason = "SSN"
)

// Report type codes understood by the provider.
const (
	ReportCodeDefault  = "01"
	ReportCodeCredit   = "CR"
	ReportCodeCriminal = "CM"
)

const (
	ReportNameCredit   = "credit"
	ReportNameCriminal = "criminal"
)

type Address struct {
	Line1           string `json:"line1,omitempty"`
	Line2           string `json:"line2,omitempty"`
	City            string `json:"city,omitempty"`
	State           string `json:"state,omitempty"`
	PostalCode      string `json:"postalCode,omitempty"`
	UnparsedAddress string `json:"unparsedAddress,omitempty"`
	International   bool   `json:"international,omitempty"`
}

// ApplicantSnapshot is the per-applicant slice of the data actually sent to
// the provider. A persisted or logged copy always carries masked SSN/ITIN.
type ApplicantSnapshot struct {
	ApplicantID                string           `json:"applicantId"`
	PersonID                   string           `json:"personId"`
	Type                       MemberType       `json:"type"`
	FirstName                  string           `json:"firstName"`
	MiddleName                 string           `json:"middleName,omitempty"`
	LastName                   string           `json:"lastName"`
	Email                      string           `json:"email,omitempty"`
	DateOfBirth                string           `json:"dateOfBirth,omitempty"`
	SocSecNumber               string           `json:"socSecNumber,omitempty"`
	ItinNumber                 string           `json:"itin,omitempty"`
	Address                    Address          `json:"address"`
	GrossIncomeMonthly         decimal.Decimal  `json:"grossIncomeMonthly"`
	OriginalGrossIncomeMonthly *decimal.Decimal `json:"originalGrossIncomeMonthly,omitempty"`
	GuaranteedBy               string           `json:"guaranteedBy,omitempty"`
}

func (a ApplicantSnapshot) FullName() string {
	name := a.FirstName
	if a.MiddleName != "" {
		name += " " + a.MiddleName
	}
	if a.LastName != "" {
		name += " " + a.LastName
	}
	return name
}

type RentData struct {
	Rent            decimal.Decimal `json:"rent"`
	LeaseTermMonths int             `json:"leaseTermMonths"`
	LeaseNameID     string          `json:"leaseNameId,omitempty"`
	Deposit         decimal.Decimal `json:"deposit"`
	QuoteID         string          `json:"quoteId,omitempty"`
}

type ApplicantData struct {
	TenantID           string              `json:"tenantId"`
	PartyApplicationID string              `json:"partyApplicationId"`
	Applicants         []ApplicantSnapshot `json:"applicants"`
}

// PersonIDs returns the person ids of all applicants, in list order.
func (d ApplicantData) PersonIDs() []string {
	ids := make([]string, 0, len(d.Applicants))
	for _, a := range d.Applicants {
		ids = append(ids, a.PersonID)
	}
	return ids
}

// ScreeningRequest is the tracking record for one outbound provider request.
// It is created once, mutated only to attach the external report id, terminal
// timestamps and the obsolete flag, and never deleted.
type ScreeningRequest struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenantId"`
	PartyID            string         `json:"partyId"`
	PartyApplicationID string         `json:"partyApplicationId"`
	PersonID           string         `json:"personId,omitempty"`   // v2 subject
	ReportName         string         `json:"reportName,omitempty"` // v2 subject
	RequestType        RequestType    `json:"requestType"`
	ExternalReportID   *string        `json:"externalReportId,omitempty"`
	RentData           *RentData      `json:"rentData,omitempty"`
	ApplicantData      *ApplicantData `json:"applicantData,omitempty"`
	RawRequest         string         `json:"rawRequest,omitempty"`
	Origin             string         `json:"origin,omitempty"`
	ParentRequestID    *string        `json:"parentRequestId,omitempty"`
	RequestDataDiff    *string        `json:"requestDataDiff,omitempty"`
	IsObsolete         bool           `json:"isObsolete"`
	HasTimedOut        bool           `json:"hasTimedOut"`
	RequestResult      string         `json:"requestResult,omitempty"`
	CreatedAt          time.Time      `json:"createdAt"`
	RequestEndedAt     *time.Time     `json:"requestEndedAt,omitempty"`
}

// CriteriaResult holds one provider criterion and the per-applicant outcomes,
// keyed by provider-side applicant id until the correlator maps them to
// person ids.
type CriteriaResult struct {
	CriteriaID          string            `json:"criteriaId"`
	CriteriaType        string            `json:"criteriaType,omitempty"`
	CriteriaDescription string            `json:"criteriaDescription,omitempty"`
	PassFail            string            `json:"passFail,omitempty"`
	ApplicantResults    map[string]string `json:"applicantResults,omitempty"`
}

const (
	CriteriaPass = "P"
	CriteriaFail = "F"
)

// Pseudo-criteria synthesized by the response interpreter when the provider
// reported no (or partial) per-applicant results.
const (
	CriteriaAwaitingScreening     = "AWAITING_SCREENING"
	CriteriaScreeningNotCompleted = "SCREENING_NOT_COMPLETED"
)

// ScreeningResponse is immutable once written. Multiple responses may exist
// for one request; the latest by CreatedAt is authoritative for decisioning.
type ScreeningResponse struct {
	ID                    string                    `json:"id"`
	SubmissionRequestID   string                    `json:"submissionRequestId"`
	RawResponse           string                    `json:"rawResponse,omitempty"`
	Status                ScreeningStatus           `json:"status"`
	ApplicationDecision   ApplicationDecision       `json:"applicationDecision,omitempty"`
	BlockedReason         *BlockedReason            `json:"blockedReason,omitempty"`
	CriteriaResult        map[string]CriteriaResult `json:"criteriaResult,omitempty"`
	RecommendedConditions []string                  `json:"recommendedConditions,omitempty"`
	HasCreditThinFile     bool                      `json:"hasCreditThinFile,omitempty"`
	ExternalID            string                    `json:"externalId,omitempty"`
	Origin                string                    `json:"origin,omitempty"`
	CreatedAt             time.Time                 `json:"createdAt"`
}

// IncomePolicy values for roommates and guarantors.
type IncomePolicy string

const (
	IncomePolicyIndividual   IncomePolicy = "INDIVIDUAL"
	IncomePolicyCombined     IncomePolicy = "COMBINED"
	IncomePolicyProratedPool IncomePolicy = "PRORATED_POOL"
)
