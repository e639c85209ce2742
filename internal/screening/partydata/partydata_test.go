package partydata

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func newMockSource(t *testing.T) (*Source, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	return New(db, logger.NewNoOpLogger()), mock, func() { db.Close() }
}

// ==========================
// GetActivePartyMembers
// ==========================

func TestGetActivePartyMembers(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "person_id", "member_type", "full_name", "guaranteed_by", "end_date"}).
		AddRow("pm-1", "p1", "Resident", "Ada Lovelace", "", nil).
		AddRow("pm-2", "p2", "Guarantor", "Grace Hopper", "pm-1", nil)

	mock.ExpectQuery(`SELECT .+ FROM party_members\s+WHERE tenant_id = \$1 AND party_id = \$2 AND end_date IS NULL`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(rows)

	members, err := src.GetActivePartyMembers(context.Background(), "tenant-1", "party-1")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, models.MemberTypeGuarantor, members[1].MemberType)
	assert.Equal(t, "pm-1", members[1].GuaranteedBy)
	assert.True(t, members[0].Active())
}

// ==========================
// GetPersonApplicationsByParty
// ==========================

func TestGetPersonApplicationsByParty_DecodesApplicationData(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	data := `{"firstName":"Ada","lastName":"Lovelace","grossIncomeMonthly":"2500","address":{"line1":"1 Main St","city":"Austin","state":"TX","postalCode":"78701"}}`
	rows := sqlmock.NewRows([]string{"id", "person_id", "party_id", "party_application_id", "payment_completed", "application_data"}).
		AddRow("app-1", "p1", "party-1", "pa-1", true, []byte(data))

	mock.ExpectQuery(`SELECT .+ FROM person_applications\s+WHERE tenant_id = \$1 AND party_id = \$2`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(rows)

	apps, err := src.GetPersonApplicationsByParty(context.Background(), "tenant-1", "party-1")
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, "Ada", apps[0].ApplicationData.FirstName)
	assert.Equal(t, "2500", apps[0].ApplicationData.GrossIncomeMonthly.String())
	assert.Equal(t, "Austin", apps[0].ApplicationData.Address.City)
	assert.True(t, apps[0].PaymentCompleted)
}

// ==========================
// GetPartyApplication
// ==========================

func TestGetPartyApplication_ReturnsHoldState(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "party_id", "lease_type", "is_held", "hold_reason", "override_new_count_checks"}).
		AddRow("pa-1", "party-1", "traditional", true, "INTERNATIONAL", false)

	mock.ExpectQuery(`SELECT .+ FROM party_applications\s+WHERE tenant_id = \$1 AND party_id = \$2`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(rows)

	app, err := src.GetPartyApplication(context.Background(), "tenant-1", "party-1")
	require.NoError(t, err)
	require.NotNil(t, app)
	assert.True(t, app.IsHeld)
	assert.Equal(t, "INTERNATIONAL", app.HoldReason)
}

func TestGetPartyApplication_NoRowsReturnsNil(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT .+ FROM party_applications`).
		WithArgs("tenant-1", "party-x").
		WillReturnRows(sqlmock.NewRows([]string{"id", "party_id", "lease_type", "is_held", "hold_reason", "override_new_count_checks"}))

	app, err := src.GetPartyApplication(context.Background(), "tenant-1", "party-x")
	require.NoError(t, err)
	assert.Nil(t, app)
}

// ==========================
// GetPublishedQuotes
// ==========================

func TestGetPublishedQuotes_OneRowPerLeaseTerm(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	rows := sqlmock.NewRows([]string{"id", "lease_name_id", "term_months", "rent", "deposit"}).
		AddRow("q1", "ln-1", 12, "1700", "500").
		AddRow("q1", "ln-1", 6, "1850", "500")

	mock.ExpectQuery(`SELECT .+ FROM quotes q\s+JOIN quote_lease_terms lt ON lt\.quote_id = q\.id\s+WHERE q\.tenant_id = \$1 AND q\.party_id = \$2 AND q\.published_at IS NOT NULL`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(rows)

	quotes, err := src.GetPublishedQuotes(context.Background(), "tenant-1", "party-1")
	require.NoError(t, err)
	require.Len(t, quotes, 2)
	assert.Equal(t, "1700", quotes[0].Rent.String())
	assert.Equal(t, 6, quotes[1].LeaseTermMonths)
}

// ==========================
// GetPropertySettings
// ==========================

func TestGetPropertySettings_DecodesScreeningSection(t *testing.T) {
	src, mock, closeFn := newMockSource(t)
	defer closeFn()

	settings := `{"partyLevelGuarantor":true,"recommendDeclineCriteria":["CR101"]}`
	rows := sqlmock.NewRows([]string{"id", "screening_settings"}).
		AddRow("prop-1", []byte(settings))

	mock.ExpectQuery(`SELECT .+ FROM properties p\s+JOIN parties pa ON pa\.assigned_property_id = p\.id`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(rows)

	got, err := src.GetPropertySettings(context.Background(), "tenant-1", "party-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "prop-1", got.PropertyID)
	assert.True(t, got.PartyLevelGuarantor)
	assert.Equal(t, []string{"CR101"}, got.RecommendDeclineCriteria)
}
