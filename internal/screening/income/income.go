// Package income applies household income aggregation policies to the
// applicant list before it is serialized into a provider request. The
// engine is pure computation over the in-memory applicant slice; callers
// pass the list in party-member order and the same order always yields
// the same result, because guarantor linkage depends on list position.
package income

import (
	"github.com/shopspring/decimal"

	"github.com/max-tl-2000/red-sub014/internal/models"
)

// Policies holds the two per-property aggregation settings.
type Policies struct {
	Roommates  models.IncomePolicy
	Guarantors models.IncomePolicy
}

// Apply mutates the applicants in place according to the configured
// policies. Residents are affected by the roommate policy, guarantors by
// the guarantor policy; occupants are never touched.
func Apply(applicants []*models.ApplicantSnapshot, policies Policies) {
	if policies.Roommates == models.IncomePolicyCombined {
		combineRoommateIncomes(applicants)
	}
	if policies.Guarantors == models.IncomePolicyProratedPool {
		prorateGuarantorIncomes(applicants)
	}
}

// combineRoommateIncomes replaces every resident's income with the
// arithmetic mean of all residents' declared incomes, keeping the declared
// value in OriginalGrossIncomeMonthly.
func combineRoommateIncomes(applicants []*models.ApplicantSnapshot) {
	residents := filterByType(applicants, models.MemberTypeResident)
	if len(residents) == 0 {
		return
	}

	total := decimal.Zero
	for _, r := range residents {
		total = total.Add(r.GrossIncomeMonthly)
	}
	mean := total.Div(decimal.NewFromInt(int64(len(residents))))

	for _, r := range residents {
		declared := r.GrossIncomeMonthly
		r.OriginalGrossIncomeMonthly = &declared
		r.GrossIncomeMonthly = mean
	}
}

// prorateGuarantorIncomes links every resident to exactly one guarantor and
// redistributes the guarantor income pool. The first guarantor covers the
// first (numResidents - numGuarantors + 1) residents; the remaining
// residents go one per guarantor, in list order. With a single guarantor
// no redistribution happens: it covers everyone at its own income.
func prorateGuarantorIncomes(applicants []*models.ApplicantSnapshot) {
	residents := filterByType(applicants, models.MemberTypeResident)
	guarantors := filterByType(applicants, models.MemberTypeGuarantor)
	if len(guarantors) == 0 || len(residents) == 0 {
		return
	}

	coveredByFirst := len(residents) - len(guarantors) + 1
	redistribute := len(guarantors) > 1
	if coveredByFirst < 1 {
		// More guarantors than residents. Linkage degrades to one
		// resident per guarantor and no income moves.
		coveredByFirst = 1
		redistribute = false
	}

	for i, r := range residents {
		if i < coveredByFirst {
			r.GuaranteedBy = guarantors[0].PersonID
			continue
		}
		idx := 1 + (i - coveredByFirst)
		if idx >= len(guarantors) {
			idx = len(guarantors) - 1
		}
		r.GuaranteedBy = guarantors[idx].PersonID
	}

	if !redistribute {
		return
	}

	total := decimal.Zero
	for _, g := range guarantors {
		total = total.Add(g.GrossIncomeMonthly)
	}

	firstIncome := total.
		Mul(decimal.NewFromInt(int64(coveredByFirst))).
		Div(decimal.NewFromInt(int64(len(residents))))
	restIncome := total.
		Sub(firstIncome).
		Div(decimal.NewFromInt(int64(len(guarantors) - 1)))

	for i, g := range guarantors {
		declared := g.GrossIncomeMonthly
		g.OriginalGrossIncomeMonthly = &declared
		if i == 0 {
			g.GrossIncomeMonthly = firstIncome
		} else {
			g.GrossIncomeMonthly = restIncome
		}
	}
}

func filterByType(applicants []*models.ApplicantSnapshot, t models.MemberType) []*models.ApplicantSnapshot {
	var out []*models.ApplicantSnapshot
	for _, a := range applicants {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}
