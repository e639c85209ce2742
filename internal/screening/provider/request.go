package provider

import (
	"encoding/xml"
	"fmt"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/validation"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

// BuildParams is everything the builder needs for one outbound document.
// ReportID must be set for Modify/View and empty for New.
type BuildParams struct {
	ScreeningRequestID string
	TenantID           string
	RequestType        models.RequestType
	ReportID           string
	PropertyID         string
	RentData           models.RentData
	Applicants         []models.ApplicantSnapshot
	ReportName         string // v2: "credit" or "criminal" narrows report options
	Version            string
}

// RequestBuilder turns assembled party data into the provider's XML
// document. Credentials come from config and are injected at build time so
// tracking rows never see them.
type RequestBuilder struct {
	cfg config.ProviderConfig
}

func NewRequestBuilder(cfg config.ProviderConfig) *RequestBuilder {
	return &RequestBuilder{cfg: cfg}
}

// Build renders the request document. The returned string is the exact
// payload posted to the provider, credentials included. Callers must run it
// through validation.ObscureXMLPayload before logging or persisting a copy
// anywhere other than the raw_request column.
func (b *RequestBuilder) Build(p BuildParams) (string, error) {
	if p.ScreeningRequestID == "" || p.TenantID == "" {
		return "", fmt.Errorf("build request: screening request id and tenant id are required")
	}
	if (p.RequestType == models.RequestTypeModify || p.RequestType == models.RequestTypeView) && p.ReportID == "" {
		return "", fmt.Errorf("build request: %s requires a report id", p.RequestType)
	}

	env := RequestEnvelope{
		Request: RequestBlock{
			OriginatorID:  b.cfg.OriginatorID,
			UserName:      b.cfg.UserName,
			Password:      b.cfg.Password,
			MarketingName: b.cfg.MarketingName,
			PropertyID:    p.PropertyID,
			RequestType:   string(p.RequestType),
			ReportID:      p.ReportID,
			ReportOptions: reportOptions(p.ReportName),
		},
		LeaseTerms: LeaseTerms{
			MonthlyRent:     p.RentData.Rent.StringFixed(2),
			LeaseTermMonths: p.RentData.LeaseTermMonths,
			Deposit:         depositOrEmpty(p.RentData),
		},
		CustomRecords: CustomRecords{Records: []CustomRecord{
			{Name: CustomRecordRequestID, Value: p.ScreeningRequestID},
			{Name: CustomRecordTenantID, Value: p.TenantID},
			{Name: CustomRecordVersion, Value: p.Version},
			{Name: CustomRecordEnvironment, Value: b.cfg.Environment},
		}},
	}

	for _, a := range p.Applicants {
		env.Applicants = append(env.Applicants, buildApplicant(p.TenantID, a))
	}

	body, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", fmt.Errorf("build request: marshal: %w", err)
	}
	return xml.Header + string(body), nil
}

// ExternalApplicantID is the identifier echoed by the provider per
// applicant. Response correlation splits on the colon.
func ExternalApplicantID(tenantID, applicantID string) string {
	return tenantID + ":" + applicantID
}

func buildApplicant(tenantID string, a models.ApplicantSnapshot) WireApplicant {
	wa := WireApplicant{
		AS_Information: ApplicantInformation{
			ApplicantType:       string(a.Type),
			ApplicantIdentifier: ExternalApplicantID(tenantID, a.ApplicantID),
			GuarantorFor:        a.GuaranteedBy,
		},
		Name: ApplicantName{
			FirstName:  a.FirstName,
			MiddleName: a.MiddleName,
			LastName:   a.LastName,
		},
		SocSecNumber: a.SocSecNumber,
		Itin:         a.ItinNumber,
		BirthDate:    a.DateOfBirth,
		Email:        a.Email,
		Address: WireAddress{
			Line1:      a.Address.Line1,
			Line2:      a.Address.Line2,
			City:       a.Address.City,
			State:      a.Address.State,
			PostalCode: a.Address.PostalCode,
		},
		Income: ApplicantIncome{
			GrossMonthly: a.GrossIncomeMonthly.StringFixed(2),
			Period:       "Monthly",
		},
	}
	return wa
}

// reportOptions maps a v2 report name to provider report codes. Empty name
// means the full v1 bundle.
func reportOptions(reportName string) []string {
	switch reportName {
	case models.ReportNameCredit:
		return []string{models.ReportCodeDefault, models.ReportCodeCredit}
	case models.ReportNameCriminal:
		return []string{models.ReportCodeDefault, models.ReportCodeCriminal}
	default:
		return []string{models.ReportCodeDefault, models.ReportCodeCredit, models.ReportCodeCriminal}
	}
}

func depositOrEmpty(rd models.RentData) string {
	if rd.Deposit.IsZero() {
		return ""
	}
	return rd.Deposit.StringFixed(2)
}

// Obscure returns the payload with SSN/ITIN values and credentials masked.
// Every logged or audited copy of a request document goes through here.
func Obscure(payload string) string {
	return validation.ObscureXMLPayload(payload)
}
