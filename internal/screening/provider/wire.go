// Package provider is the FADV client: it serializes the assembled payload
// into the provider's XML dialect, posts it, and hands raw response bodies
// to the response package. Credentials are injected here and nowhere else.
package provider

import "encoding/xml"

// Custom record names echoed back by the provider on every response. They
// are the only correlation mechanism for asynchronous push responses.
const (
	CustomRecordRequestID   = "screeningRequestId"
	CustomRecordTenantID    = "tenantId"
	CustomRecordVersion     = "version"
	CustomRecordEnvironment = "environment"
)

// Provider-side request status values.
const (
	WireStatusComplete   = "Complete"
	WireStatusIncomplete = "Incomplete"
	WireStatusError      = "Error"
)

// ==========================
// Request document
// ==========================

type RequestEnvelope struct {
	XMLName       xml.Name        `xml:"ApplicantScreening"`
	Request       RequestBlock    `xml:"Request"`
	LeaseTerms    LeaseTerms      `xml:"LeaseTerms"`
	Applicants    []WireApplicant `xml:"Applicant"`
	CustomRecords CustomRecords   `xml:"CustomRecords"`
}

// RequestBlock carries credentials plus the request mode. ReportID is only
// set for MODIFY/VIEW continuations of an existing provider report.
type RequestBlock struct {
	OriginatorID  string   `xml:"OriginatorId"`
	UserName      string   `xml:"UserName"`
	Password      string   `xml:"Password"`
	MarketingName string   `xml:"MarketingName,omitempty"`
	PropertyID    string   `xml:"PropertyID"`
	RequestType   string   `xml:"RequestType"`
	ReportID      string   `xml:"ReportID,omitempty"`
	ReportOptions []string `xml:"ReportOptions>ReportName,omitempty"`
}

type LeaseTerms struct {
	MonthlyRent     string `xml:"MonthlyRent"`
	LeaseTermMonths int    `xml:"LeaseMonths,omitempty"`
	Deposit         string `xml:"Deposit,omitempty"`
}

// WireApplicant is one screened person. Identifier is the external
// applicant id in tenantId:applicantId form; the provider echoes it back
// and the correlator prefers it over name matching.
type WireApplicant struct {
	AS_Information ApplicantInformation `xml:"AS_Information"`
	Name           ApplicantName        `xml:"Name"`
	SocSecNumber   string               `xml:"SocSecNumber,omitempty"`
	Itin           string               `xml:"Itin,omitempty"`
	BirthDate      string               `xml:"BirthDate,omitempty"`
	Email          string               `xml:"EMail,omitempty"`
	Address        WireAddress          `xml:"Address"`
	Income         ApplicantIncome      `xml:"Income"`
}

type ApplicantInformation struct {
	ApplicantType       string `xml:"ApplicantType"`
	ApplicantIdentifier string `xml:"ApplicantIdentifier"`
	GuarantorFor        string `xml:"GuarantorFor,omitempty"`
}

type ApplicantName struct {
	FirstName  string `xml:"FirstName"`
	MiddleName string `xml:"MiddleName,omitempty"`
	LastName   string `xml:"LastName"`
}

type WireAddress struct {
	Line1      string `xml:"StreetAddress1"`
	Line2      string `xml:"StreetAddress2,omitempty"`
	City       string `xml:"City"`
	State      string `xml:"State"`
	PostalCode string `xml:"PostalCode"`
}

type ApplicantIncome struct {
	GrossMonthly string `xml:"GrossMonthlyIncome"`
	Period       string `xml:"IncomePeriod,omitempty"`
}

type CustomRecords struct {
	Records []CustomRecord `xml:"Record"`
}

type CustomRecord struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

// Value returns the named custom record value or empty.
func (c CustomRecords) Value(name string) string {
	for _, r := range c.Records {
		if r.Name == name {
			return r.Value
		}
	}
	return ""
}

// ==========================
// Response document
// ==========================

type ResponseEnvelope struct {
	XMLName       xml.Name            `xml:"ApplicantScreening"`
	Response      ResponseBlock       `xml:"Response"`
	LeaseTerms    LeaseTerms          `xml:"LeaseTerms"`
	Applicants    []ResponseApplicant `xml:"Applicant"`
	Criteria      []WireCriteria      `xml:"CriteriaInformation>Criteria"`
	Instructions  Instructions        `xml:"Instructions"`
	CustomRecords CustomRecords       `xml:"CustomRecords"`
}

type ResponseBlock struct {
	Status              string `xml:"Status"`
	TransactionNumber   string `xml:"TransactionNumber"`
	RequestIDReturned   string `xml:"RequestID_Returned"`
	ReportDate          string `xml:"ReportDate,omitempty"`
	ApplicationDecision string `xml:"ApplicationDecision"`
	BlockedStatus       string `xml:"BlockedStatus,omitempty"`
	ErrorCode           string `xml:"ErrorCode,omitempty"`
	ErrorDescription    string `xml:"ErrorDescription,omitempty"`
}

type ResponseApplicant struct {
	AS_Information ApplicantInformation `xml:"AS_Information"`
	Name           ApplicantName        `xml:"Name"`
	CreditScore    string               `xml:"CreditScore,omitempty"`
	Decision       string               `xml:"ApplicantDecision,omitempty"`
}

// ReportedName renders the provider's view of the applicant name.
func (a ResponseApplicant) ReportedName() string {
	name := a.Name.FirstName
	if a.Name.MiddleName != "" {
		name += " " + a.Name.MiddleName
	}
	if a.Name.LastName != "" {
		name += " " + a.Name.LastName
	}
	return name
}

// WireCriteria is one screening criterion with per-applicant outcomes.
// ApplicantResults entries pair the provider-side applicant identifier with
// a P/F value.
type WireCriteria struct {
	CriteriaID          string                `xml:"CriteriaID"`
	CriteriaType        string                `xml:"CriteriaType,omitempty"`
	CriteriaDescription string                `xml:"CriteriaDescription,omitempty"`
	PassFail            string                `xml:"PassFail,omitempty"`
	ApplicantResults    []WireApplicantResult `xml:"ApplicantResults>Applicant"`
}

type WireApplicantResult struct {
	ApplicantID string `xml:"ApplicantID,attr"`
	Result      string `xml:",chardata"`
}

type Instructions struct {
	Disclosures     []string         `xml:"Disclosure,omitempty"`
	Recommendations []Recommendation `xml:"Recommendation,omitempty"`
}

// Recommendation is a provider override note, e.g. "provide deposit or
// guarantor".
type Recommendation struct {
	ID   string `xml:"ID"`
	Text string `xml:"Text"`
}
