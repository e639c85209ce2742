package income

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func makeApplicant(personID string, memberType models.MemberType, monthlyIncome float64) *models.ApplicantSnapshot {
	return &models.ApplicantSnapshot{
		ApplicantID:        "app-" + personID,
		PersonID:           personID,
		Type:               memberType,
		GrossIncomeMonthly: decimal.NewFromFloat(monthlyIncome),
	}
}

func income(a *models.ApplicantSnapshot) float64 {
	f, _ := a.GrossIncomeMonthly.Float64()
	return f
}

// ==========================
// Combined Roommates
// ==========================

func TestApply_CombinedRoommates(t *testing.T) {
	residents := []*models.ApplicantSnapshot{
		makeApplicant("p1", models.MemberTypeResident, 2000),
		makeApplicant("p2", models.MemberTypeResident, 3000),
		makeApplicant("p3", models.MemberTypeResident, 4000),
	}

	Apply(residents, Policies{Roommates: models.IncomePolicyCombined, Guarantors: models.IncomePolicyIndividual})

	declared := []float64{2000, 3000, 4000}
	for i, r := range residents {
		assert.Equal(t, 3000.0, income(r), "resident %s", r.PersonID)
		require.NotNil(t, r.OriginalGrossIncomeMonthly)
		orig, _ := r.OriginalGrossIncomeMonthly.Float64()
		assert.Equal(t, declared[i], orig)
	}
}

func TestApply_CombinedRoommates_IgnoresGuarantorsAndOccupants(t *testing.T) {
	applicants := []*models.ApplicantSnapshot{
		makeApplicant("p1", models.MemberTypeResident, 1000),
		makeApplicant("p2", models.MemberTypeResident, 3000),
		makeApplicant("g1", models.MemberTypeGuarantor, 9000),
		makeApplicant("o1", models.MemberTypeOccupant, 500),
	}

	Apply(applicants, Policies{Roommates: models.IncomePolicyCombined, Guarantors: models.IncomePolicyIndividual})

	assert.Equal(t, 2000.0, income(applicants[0]))
	assert.Equal(t, 2000.0, income(applicants[1]))
	assert.Equal(t, 9000.0, income(applicants[2]))
	assert.Nil(t, applicants[2].OriginalGrossIncomeMonthly)
	assert.Equal(t, 500.0, income(applicants[3]))
}

func TestApply_IndividualPolicies_NoChanges(t *testing.T) {
	applicants := []*models.ApplicantSnapshot{
		makeApplicant("p1", models.MemberTypeResident, 2000),
		makeApplicant("g1", models.MemberTypeGuarantor, 8000),
	}

	Apply(applicants, Policies{Roommates: models.IncomePolicyIndividual, Guarantors: models.IncomePolicyIndividual})

	assert.Equal(t, 2000.0, income(applicants[0]))
	assert.Equal(t, 8000.0, income(applicants[1]))
	assert.Empty(t, applicants[0].GuaranteedBy)
	assert.Nil(t, applicants[0].OriginalGrossIncomeMonthly)
}

// ==========================
// Prorated Guarantor Pool
// ==========================

func TestApply_ProratedPool_SingleGuarantor(t *testing.T) {
	applicants := []*models.ApplicantSnapshot{
		makeApplicant("p1", models.MemberTypeResident, 2000),
		makeApplicant("p2", models.MemberTypeResident, 2500),
		makeApplicant("p3", models.MemberTypeResident, 1800),
		makeApplicant("p4", models.MemberTypeResident, 2200),
		makeApplicant("g1", models.MemberTypeGuarantor, 9000),
	}

	Apply(applicants, Policies{Roommates: models.IncomePolicyIndividual, Guarantors: models.IncomePolicyProratedPool})

	// Single guarantor keeps its own income and covers everyone.
	assert.Equal(t, 9000.0, income(applicants[4]))
	for _, r := range applicants[:4] {
		assert.Equal(t, "g1", r.GuaranteedBy)
	}
}

func TestApply_ProratedPool_TwoGuarantorsFourRoommates(t *testing.T) {
	applicants := []*models.ApplicantSnapshot{
		makeApplicant("p1", models.MemberTypeResident, 2000),
		makeApplicant("p2", models.MemberTypeResident, 2000),
		makeApplicant("p3", models.MemberTypeResident, 2000),
		makeApplicant("p4", models.MemberTypeResident, 2000),
		makeApplicant("g1", models.MemberTypeGuarantor, 6000),
		makeApplicant("g2", models.MemberTypeGuarantor, 4000),
	}

	Apply(applicants, Policies{Roommates: models.IncomePolicyIndividual, Guarantors: models.IncomePolicyProratedPool})

	// First guarantor covers 4-2+1=3 residents: 10000 * 3/4 = 7500.
	// Second covers the remaining resident: (10000-7500)/1 = 2500.
	assert.Equal(t, 7500.0, income(applicants[4]))
	assert.Equal(t, 2500.0, income(applicants[5]))

	assert.Equal(t, "g1", applicants[0].GuaranteedBy)
	assert.Equal(t, "g1", applicants[1].GuaranteedBy)
	assert.Equal(t, "g1", applicants[2].GuaranteedBy)
	assert.Equal(t, "g2", applicants[3].GuaranteedBy)

	require.NotNil(t, applicants[4].OriginalGrossIncomeMonthly)
	orig, _ := applicants[4].OriginalGrossIncomeMonthly.Float64()
	assert.Equal(t, 6000.0, orig)
}

func TestApply_ProratedPool_Deterministic(t *testing.T) {
	build := func() []*models.ApplicantSnapshot {
		return []*models.ApplicantSnapshot{
			makeApplicant("p1", models.MemberTypeResident, 1500),
			makeApplicant("p2", models.MemberTypeResident, 2500),
			makeApplicant("p3", models.MemberTypeResident, 3500),
			makeApplicant("g1", models.MemberTypeGuarantor, 5000),
			makeApplicant("g2", models.MemberTypeGuarantor, 7000),
		}
	}
	policies := Policies{Roommates: models.IncomePolicyCombined, Guarantors: models.IncomePolicyProratedPool}

	first := build()
	second := build()
	Apply(first, policies)
	Apply(second, policies)

	for i := range first {
		assert.True(t, first[i].GrossIncomeMonthly.Equal(second[i].GrossIncomeMonthly))
		assert.Equal(t, first[i].GuaranteedBy, second[i].GuaranteedBy)
	}
}

// ==========================
// Edge Cases
// ==========================

func TestApply_EdgeCases(t *testing.T) {
	t.Run("no applicants", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Apply(nil, Policies{Roommates: models.IncomePolicyCombined, Guarantors: models.IncomePolicyProratedPool})
		})
	})

	t.Run("no guarantors with prorated pool", func(t *testing.T) {
		applicants := []*models.ApplicantSnapshot{
			makeApplicant("p1", models.MemberTypeResident, 2000),
		}
		Apply(applicants, Policies{Roommates: models.IncomePolicyIndividual, Guarantors: models.IncomePolicyProratedPool})
		assert.Equal(t, 2000.0, income(applicants[0]))
		assert.Empty(t, applicants[0].GuaranteedBy)
	})

	t.Run("more guarantors than residents links one each", func(t *testing.T) {
		applicants := []*models.ApplicantSnapshot{
			makeApplicant("p1", models.MemberTypeResident, 2000),
			makeApplicant("g1", models.MemberTypeGuarantor, 4000),
			makeApplicant("g2", models.MemberTypeGuarantor, 6000),
		}
		Apply(applicants, Policies{Roommates: models.IncomePolicyIndividual, Guarantors: models.IncomePolicyProratedPool})
		assert.Equal(t, "g1", applicants[0].GuaranteedBy)
	})
}
