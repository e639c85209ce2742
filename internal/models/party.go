// internal/models/party.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PartyMember is the slice of the leasing data model the screening engine
// reads. Members with an EndDate are no longer active.
type PartyMember struct {
	ID           string     `json:"id"`
	PersonID     string     `json:"personId"`
	MemberType   MemberType `json:"memberType"`
	FullName     string     `json:"fullName"`
	GuaranteedBy string     `json:"guaranteedBy,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
}

func (m PartyMember) Active() bool { return m.EndDate == nil }

// PersonApplicationData is the applicant-entered form data.
type PersonApplicationData struct {
	FirstName                string          `json:"firstName"`
	MiddleName               string          `json:"middleName,omitempty"`
	LastName                 string          `json:"lastName"`
	Email                    string          `json:"email,omitempty"`
	DateOfBirth              string          `json:"dateOfBirth,omitempty"`
	SocSecNumber             string          `json:"socSecNumber,omitempty"`
	ItinNumber               string          `json:"itin,omitempty"`
	GrossIncomeMonthly       decimal.Decimal `json:"grossIncomeMonthly"`
	Address                  Address         `json:"address"`
	HaveInternationalAddress bool            `json:"haveInternationalAddress,omitempty"`
}

type PersonApplication struct {
	ID                 string                `json:"id"`
	PersonID           string                `json:"personId"`
	PartyID            string                `json:"partyId"`
	PartyApplicationID string                `json:"partyApplicationId"`
	PaymentCompleted   bool                  `json:"paymentCompleted"`
	ApplicationData    PersonApplicationData `json:"applicationData"`
}

// LeaseTypeCorporate marks parties that lease as a business entity and are
// never screened through the consumer provider flow.
const LeaseTypeCorporate = "corporate"

// PartyApplication is the per-party application record; carries the hold
// state and the operator override for the new-request rate limit.
type PartyApplication struct {
	ID                     string `json:"id"`
	PartyID                string `json:"partyId"`
	LeaseType              string `json:"leaseType,omitempty"`
	IsHeld                 bool   `json:"isHeld"`
	HoldReason             string `json:"holdReason,omitempty"`
	OverrideNewCountChecks bool   `json:"overrideNewCountChecks,omitempty"`
}

// QuoteRentData is one published quote + lease term combination.
type QuoteRentData struct {
	QuoteID         string          `json:"quoteId"`
	LeaseNameID     string          `json:"leaseNameId,omitempty"`
	LeaseTermMonths int             `json:"leaseTermMonths"`
	Rent            decimal.Decimal `json:"rent"`
	Deposit         decimal.Decimal `json:"deposit"`
}

// PropertySettings carries the per-property screening configuration.
type PropertySettings struct {
	PropertyID               string       `json:"propertyId"`
	IncomePolicyRoommates    IncomePolicy `json:"incomePolicyRoommates"`
	IncomePolicyGuarantors   IncomePolicy `json:"incomePolicyGuarantors"`
	MailingAddress           Address      `json:"mailingAddress"`
	PartyLevelGuarantor      bool         `json:"partyLevelGuarantor"`
	RecommendDeclineCriteria []string     `json:"recommendDeclineCriteria,omitempty"`
}
