// Package assembler builds the provider-agnostic request payload (rent
// terms plus the applicant list) from the party's leasing data. Income
// aggregation is delegated to the income package.
package assembler

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/income"
)

// PartyDataSource loads the leasing-side records the assembler needs.
type PartyDataSource interface {
	GetActivePartyMembers(ctx context.Context, tenantID, partyID string) ([]models.PartyMember, error)
	GetPersonApplicationsByParty(ctx context.Context, tenantID, partyID string) ([]models.PersonApplication, error)
	GetPartyApplication(ctx context.Context, tenantID, partyID string) (*models.PartyApplication, error)
	GetPublishedQuotes(ctx context.Context, tenantID, partyID string) ([]models.QuoteRentData, error)
	GetPropertySettings(ctx context.Context, tenantID, partyID string) (*models.PropertySettings, error)
}

// Assembled is the full payload handed to the provider client.
type Assembled struct {
	RentData      models.RentData
	PropertyID    string
	ApplicantData models.ApplicantData
}

type Assembler struct {
	source PartyDataSource
	log    logger.Logger
}

func New(source PartyDataSource, log logger.Logger) *Assembler {
	return &Assembler{source: source, log: log}
}

// Assemble validates the party and produces the rent and applicant payload.
// When priorRequest is non-nil its applicant ids are reused for the same
// person ids, so MODIFY and VIEW continuations keep a stable identity at
// the provider. The caller decides the request type afterwards and re-mints
// the ids when it lands on NEW.
func (a *Assembler) Assemble(
	ctx context.Context,
	tenantID, partyID string,
	rentData *models.RentData,
	priorRequest *models.ScreeningRequest,
) (*Assembled, error) {
	members, err := a.source.GetActivePartyMembers(ctx, tenantID, partyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get party members", err)
	}
	if len(members) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeNoPartyMembers,
			fmt.Sprintf("party %s has no active members", partyID))
	}

	applications, err := a.source.GetPersonApplicationsByParty(ctx, tenantID, partyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get person applications", err)
	}
	appsByPerson := make(map[string]models.PersonApplication, len(applications))
	for _, app := range applications {
		appsByPerson[app.PersonID] = app
	}

	settings, err := a.source.GetPropertySettings(ctx, tenantID, partyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get property settings", err)
	}
	if settings == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidMessage,
			fmt.Sprintf("party %s has no assigned property, cannot resolve screening settings", partyID))
	}

	if !settings.PartyLevelGuarantor {
		if err := validateGuarantorLinks(members); err != nil {
			return nil, err
		}
	}

	resolvedRent, err := a.resolveRentData(ctx, tenantID, partyID, rentData)
	if err != nil {
		return nil, err
	}

	partyApp, err := a.source.GetPartyApplication(ctx, tenantID, partyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get party application", err)
	}

	applicants := make([]*models.ApplicantSnapshot, 0, len(members))
	for _, member := range members {
		app, ok := appsByPerson[member.PersonID]
		if !ok {
			return nil, errors.NewValidationError(errors.ErrCodeMissingApplication,
				fmt.Sprintf("no person application for member %s", member.ID))
		}
		if !app.PaymentCompleted {
			return nil, errors.NewValidationError(errors.ErrCodeUnpaidMembers,
				fmt.Sprintf("member %s has not completed the application payment", member.ID))
		}

		snapshot := buildSnapshot(member, app, priorRequest)
		if snapshot.Address.International || snapshot.Address.Line1 == "" {
			// The provider cannot parse international addresses; fall
			// back to the property's mailing address.
			snapshot.Address = settings.MailingAddress
		}
		applicants = append(applicants, snapshot)
	}

	income.Apply(applicants, income.Policies{
		Roommates:  settings.IncomePolicyRoommates,
		Guarantors: settings.IncomePolicyGuarantors,
	})

	out := make([]models.ApplicantSnapshot, len(applicants))
	for i, s := range applicants {
		out[i] = *s
	}

	return &Assembled{
		RentData:   *resolvedRent,
		PropertyID: settings.PropertyID,
		ApplicantData: models.ApplicantData{
			TenantID:           tenantID,
			PartyApplicationID: partyApp.ID,
			Applicants:         out,
		},
	}, nil
}

// resolveRentData returns the caller-supplied rent terms or, absent those,
// the most expensive published quote for the party.
func (a *Assembler) resolveRentData(ctx context.Context, tenantID, partyID string, override *models.RentData) (*models.RentData, error) {
	if override != nil {
		return override, nil
	}

	quotes, err := a.source.GetPublishedQuotes(ctx, tenantID, partyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get published quotes", err)
	}
	if len(quotes) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidMessage,
			fmt.Sprintf("party %s has no published quotes and no rent data was supplied", partyID))
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Rent.GreaterThan(quotes[j].Rent)
	})
	top := quotes[0]

	return &models.RentData{
		Rent:            top.Rent,
		LeaseTermMonths: top.LeaseTermMonths,
		LeaseNameID:     top.LeaseNameID,
		Deposit:         top.Deposit,
		QuoteID:         top.QuoteID,
	}, nil
}

func buildSnapshot(member models.PartyMember, app models.PersonApplication, prior *models.ScreeningRequest) *models.ApplicantSnapshot {
	data := app.ApplicationData
	return &models.ApplicantSnapshot{
		ApplicantID:        resolveApplicantID(member.PersonID, prior),
		PersonID:           member.PersonID,
		Type:               member.MemberType,
		FirstName:          data.FirstName,
		MiddleName:         data.MiddleName,
		LastName:           data.LastName,
		Email:              data.Email,
		DateOfBirth:        data.DateOfBirth,
		SocSecNumber:       data.SocSecNumber,
		ItinNumber:         data.ItinNumber,
		Address:            withInternationalFlag(data.Address, data.HaveInternationalAddress),
		GrossIncomeMonthly: data.GrossIncomeMonthly,
	}
}

func resolveApplicantID(personID string, prior *models.ScreeningRequest) string {
	if prior != nil && prior.ApplicantData != nil {
		for _, prev := range prior.ApplicantData.Applicants {
			if prev.PersonID == personID {
				return prev.ApplicantID
			}
		}
	}
	return uuid.NewString()
}

func withInternationalFlag(addr models.Address, international bool) models.Address {
	if international {
		addr.International = true
	}
	return addr
}

// validateGuarantorLinks fails when a guarantor is not linked to any
// resident. This is a data precondition, never silently fixed here.
func validateGuarantorLinks(members []models.PartyMember) error {
	linked := make(map[string]bool)
	for _, m := range members {
		if m.MemberType == models.MemberTypeResident && m.GuaranteedBy != "" {
			linked[m.GuaranteedBy] = true
		}
	}
	for _, m := range members {
		if m.MemberType == models.MemberTypeGuarantor && !linked[m.ID] {
			return errors.NewValidationError(errors.ErrCodeGuarantorUnlinked,
				fmt.Sprintf("guarantor %s is not linked to any resident", m.ID))
		}
	}
	return nil
}
