// Package response turns parsed provider documents into ScreeningResponse
// records: it correlates the echoed custom records back to a tracking row,
// maps provider-side applicants to party members, translates criteria
// results to person ids and applies the decision overrides.
package response

import (
	"strconv"
	"strings"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
)

// Recommendation id FADV attaches when a deposit or guarantor would turn a
// Guarantor Required into an approval.
const recommendationProvideDepositOrGuarantor = "705"

const disclosureReviewNote = "Check the information disclosed by the applicants before taking a decision."

// Correlation is the subject identity echoed back in the custom records.
type Correlation struct {
	ScreeningRequestID string
	TenantID           string
	Version            string
	Environment        string
}

// Correlate extracts the correlation custom records. A document without a
// screening request id cannot be mapped to any subject and is rejected as
// non-retryable.
func Correlate(env *provider.ResponseEnvelope) (Correlation, error) {
	c := Correlation{
		ScreeningRequestID: env.CustomRecords.Value(provider.CustomRecordRequestID),
		TenantID:           env.CustomRecords.Value(provider.CustomRecordTenantID),
		Version:            env.CustomRecords.Value(provider.CustomRecordVersion),
		Environment:        env.CustomRecords.Value(provider.CustomRecordEnvironment),
	}
	if c.ScreeningRequestID == "" {
		return c, errors.NewResponseUnparsableError("missing screeningRequestId custom record")
	}
	if c.Version == "" {
		c.Version = string(models.SchemaV1)
	}
	return c, nil
}

// Interpreter builds ScreeningResponse records from provider documents.
type Interpreter struct {
	log logger.Logger
}

func NewInterpreter(log logger.Logger) *Interpreter {
	return &Interpreter{log: log.WithFields(map[string]interface{}{"component": "response-interpreter"})}
}

// InterpretParams carries the request-side context the document is judged
// against. Members is the current active roster, used for the incomplete
// pseudo-criteria; DeclineCriteria is the property's recommend-decline list.
type InterpretParams struct {
	Request         *models.ScreeningRequest
	Members         []models.PartyMember
	DeclineCriteria []string
	Origin          string
}

// Interpret maps one parsed document to a ScreeningResponse. The returned
// record carries the raw payload unmasked; the store scrubs it on write.
func (i *Interpreter) Interpret(raw string, env *provider.ResponseEnvelope, p InterpretParams) *models.ScreeningResponse {
	status := mapStatus(env.Response.Status)
	decision := MapDecision(env.Response.ApplicationDecision)

	idToPerson := i.mapApplicants(env, p.Request)
	criteria := translateCriteria(env.Criteria, idToPerson)

	// A completed report that no longer covers the current roster cannot
	// drive decisioning; the roster moved underneath it.
	if status == models.StatusComplete && len(env.Applicants) > 0 && !coversActiveMembers(idToPerson, p.Members) {
		status = models.StatusIncompleteIncorrectMembers
	}

	switch {
	case strings.TrimSpace(env.Response.Status) == "":
		// A document with no status at all means the bureaus have not
		// answered yet; surface it as a delayed screening.
		status = models.StatusIncomplete
		decision = models.DecisionScreeningDelayed
	case status == models.StatusError:
		decision = errorDecision(env.Response)
	case decision == models.DecisionPending && status != models.StatusIncomplete:
		// FADV sometimes sends a Complete status with a PENDING decision;
		// the report is not actually done in that case.
		status = models.StatusIncomplete
	}

	hasGuarantor := requestHasGuarantor(p.Request)
	decision = overrideDecision(decision, criteria, p.DeclineCriteria, hasGuarantor)

	var conditions []string
	if isGuarantorRecommendation(env.Instructions.Recommendations) && decision == models.DecisionGuarantorRequired {
		decision = models.DecisionApprovedWithCond
	}
	if len(env.Instructions.Disclosures) > 0 {
		conditions = append(conditions, disclosureReviewNote)
		if decision == models.DecisionApproved {
			decision = models.DecisionApprovedWithCond
		}
	}

	resp := &models.ScreeningResponse{
		SubmissionRequestID:   p.Request.ID,
		RawResponse:           raw,
		Status:                status,
		ApplicationDecision:   decision,
		CriteriaResult:        criteria,
		RecommendedConditions: conditions,
		HasCreditThinFile:     hasThinFile(env.Applicants),
		ExternalID:            env.Response.RequestIDReturned,
		Origin:                p.Origin,
	}
	if env.Response.BlockedStatus != "" {
		reason := blockedReason(env.Response.BlockedStatus)
		resp.BlockedReason = &reason
	}

	switch {
	case status == models.StatusIncomplete || status == models.StatusIncompleteIncorrectMembers:
		i.renderIncomplete(resp, p.Members)
	case len(criteria) == 0:
		renderNotCompleted(resp, p.Members)
	}
	return resp
}

// renderNotCompleted synthesizes a fail-per-member pseudo-criterion for a
// terminal response that carried no criteria results at all, so the UI
// still has something per-applicant to show.
func renderNotCompleted(resp *models.ScreeningResponse, members []models.PartyMember) {
	if len(members) == 0 {
		return
	}
	pseudo := models.CriteriaResult{
		CriteriaID:          models.CriteriaScreeningNotCompleted,
		CriteriaDescription: "Screening not completed",
		ApplicantResults:    make(map[string]string, len(members)),
	}
	for _, m := range members {
		pseudo.ApplicantResults[m.PersonID] = models.CriteriaFail
	}
	resp.CriteriaResult = map[string]models.CriteriaResult{pseudo.CriteriaID: pseudo}
}

// mapApplicants resolves provider-side applicant identifiers to person ids.
// Preference order: exact external identifier, exact normalized full name,
// then best token overlap. Unmatched applicants are logged and skipped.
func (i *Interpreter) mapApplicants(env *provider.ResponseEnvelope, req *models.ScreeningRequest) map[string]string {
	out := make(map[string]string)
	if req.ApplicantData == nil {
		return out
	}
	snapshots := req.ApplicantData.Applicants

	for _, ra := range env.Applicants {
		key := ra.AS_Information.ApplicantIdentifier
		if key == "" {
			key = ra.ReportedName()
		}

		if applicantID, err := ParseExternalApplicantID(ra.AS_Information.ApplicantIdentifier); err == nil {
			if snap := findByApplicantID(snapshots, applicantID); snap != nil {
				out[key] = snap.PersonID
				continue
			}
		}

		if snap := findByExactName(snapshots, ra.ReportedName()); snap != nil {
			out[key] = snap.PersonID
			continue
		}

		if snap := findByTokenOverlap(snapshots, ra.ReportedName()); snap != nil {
			out[key] = snap.PersonID
			continue
		}

		i.log.Warn("provider applicant could not be matched to any party member", map[string]interface{}{
			"screening_request_id": req.ID,
			"reported_name":        ra.ReportedName(),
		})
	}
	return out
}

// coversActiveMembers reports whether every active party member appears in
// the set of persons the response applicants resolved to.
func coversActiveMembers(idToPerson map[string]string, members []models.PartyMember) bool {
	covered := make(map[string]bool, len(idToPerson))
	for _, personID := range idToPerson {
		covered[personID] = true
	}
	for _, m := range members {
		if !covered[m.PersonID] {
			return false
		}
	}
	return true
}

// renderIncomplete appends the progress pseudo-criterion: one fail entry per
// member already present in the results plus awaiting/completed notes, so a
// partial report still renders per-applicant progress.
func (i *Interpreter) renderIncomplete(resp *models.ScreeningResponse, members []models.PartyMember) {
	screened := make(map[string]bool)
	for _, cr := range resp.CriteriaResult {
		for personID := range cr.ApplicantResults {
			screened[personID] = true
		}
	}

	pseudo := models.CriteriaResult{
		CriteriaID:          models.CriteriaAwaitingScreening,
		CriteriaDescription: "Awaiting screening for applicant",
		ApplicantResults:    make(map[string]string),
	}
	for _, m := range members {
		if screened[m.PersonID] {
			resp.RecommendedConditions = append(resp.RecommendedConditions, "Screening completed for "+m.FullName)
			pseudo.ApplicantResults[m.PersonID] = models.CriteriaFail
		} else {
			resp.RecommendedConditions = append(resp.RecommendedConditions, "Awaiting screening for "+m.FullName)
		}
	}

	if resp.CriteriaResult == nil {
		resp.CriteriaResult = make(map[string]models.CriteriaResult)
	}
	resp.CriteriaResult[pseudo.CriteriaID] = pseudo
}

// ParseExternalApplicantID splits an echoed applicant identifier. Two
// segments is the current tenantId:applicantId form; three segments is the
// legacy tenantId:partyApplicationId:personId form.
func ParseExternalApplicantID(identifier string) (string, error) {
	parts := strings.Split(identifier, ":")
	switch len(parts) {
	case 2:
		return parts[1], nil
	case 3:
		return parts[1] + ":" + parts[2], nil
	default:
		return "", errors.NewResponseUnparsableError("applicant identifier must be tenantId:applicantId")
	}
}

func findByApplicantID(snapshots []models.ApplicantSnapshot, applicantID string) *models.ApplicantSnapshot {
	for idx := range snapshots {
		if snapshots[idx].ApplicantID == applicantID {
			return &snapshots[idx]
		}
	}
	return nil
}

func findByExactName(snapshots []models.ApplicantSnapshot, reported string) *models.ApplicantSnapshot {
	want := normalizeName(reported)
	if want == "" {
		return nil
	}
	for idx := range snapshots {
		if normalizeName(snapshots[idx].FullName()) == want {
			return &snapshots[idx]
		}
	}
	return nil
}

// findByTokenOverlap picks the snapshot whose full name shares the most
// whitespace tokens with the reported name. Ties keep the first candidate;
// zero shared tokens means no match.
func findByTokenOverlap(snapshots []models.ApplicantSnapshot, reported string) *models.ApplicantSnapshot {
	reportedTokens := nameTokens(reported)
	if len(reportedTokens) == 0 {
		return nil
	}

	var best *models.ApplicantSnapshot
	bestScore := 0
	for idx := range snapshots {
		score := 0
		for token := range nameTokens(snapshots[idx].FullName()) {
			if reportedTokens[token] {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = &snapshots[idx]
		}
	}
	return best
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

func nameTokens(name string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range strings.Fields(strings.ToLower(name)) {
		tokens[t] = true
	}
	return tokens
}

// translateCriteria rekeys per-applicant results from provider applicant
// ids to person ids. Results for unmatched applicants are dropped.
func translateCriteria(criteria []provider.WireCriteria, idToPerson map[string]string) map[string]models.CriteriaResult {
	if len(criteria) == 0 {
		return nil
	}
	out := make(map[string]models.CriteriaResult, len(criteria))
	for _, c := range criteria {
		cr := models.CriteriaResult{
			CriteriaID:          c.CriteriaID,
			CriteriaType:        c.CriteriaType,
			CriteriaDescription: c.CriteriaDescription,
			PassFail:            c.PassFail,
			ApplicantResults:    make(map[string]string),
		}
		for _, ar := range c.ApplicantResults {
			if personID, ok := idToPerson[ar.ApplicantID]; ok {
				cr.ApplicantResults[personID] = strings.TrimSpace(ar.Result)
			}
		}
		out[c.CriteriaID] = cr
	}
	return out
}

// The provider has been inconsistent with ApplicationDecision spellings, so
// every known variant maps to one canonical decision.
var decisionVariants = map[models.ApplicationDecision][]string{
	models.DecisionFurtherReview:     {"FURTHER_REVIEW", "FURTHER REVIEW"},
	models.DecisionApprovedWithCond:  {"APPROVED_WITH_COND", "APPRVD W/COND", "APPROVED WITH CONDITIONS"},
	models.DecisionGuarantorRequired: {"GUARANTOR REQUIRED", "GUARANTOR_REQUIRED"},
	models.DecisionApproved:          {"APPROVED"},
	models.DecisionDeclined:          {"DECLINED"},
	models.DecisionPending:           {"PENDING", ""},
}

// MapDecision normalizes a provider decision string. Unknown values pass
// through unchanged so an unexpected spelling is visible downstream.
func MapDecision(raw string) models.ApplicationDecision {
	needle := strings.ToUpper(strings.TrimSpace(raw))
	for decision, variants := range decisionVariants {
		for _, v := range variants {
			if v == needle {
				return decision
			}
		}
	}
	return models.ApplicationDecision(needle)
}

// overrideDecision applies the two decision overrides: any failed criterion
// on the recommend-decline list forces DECLINED, and GUARANTOR_REQUIRED for
// an application that already has a guarantor becomes GUARANTOR_DENIED.
func overrideDecision(decision models.ApplicationDecision, criteria map[string]models.CriteriaResult, declineCriteria []string, hasGuarantor bool) models.ApplicationDecision {
	if decision == models.DecisionGuarantorRequired && hasGuarantor {
		return models.DecisionGuarantorDenied
	}
	for _, code := range declineCriteria {
		if cr, ok := criteria[code]; ok && criterionFailed(cr) {
			return models.DecisionDeclined
		}
	}
	return decision
}

func criterionFailed(cr models.CriteriaResult) bool {
	if cr.PassFail == models.CriteriaFail {
		return true
	}
	for _, result := range cr.ApplicantResults {
		if result == models.CriteriaFail {
			return true
		}
	}
	return false
}

func requestHasGuarantor(req *models.ScreeningRequest) bool {
	if req.ApplicantData == nil {
		return false
	}
	for _, a := range req.ApplicantData.Applicants {
		if a.Type == models.MemberTypeGuarantor {
			return true
		}
	}
	return false
}

func isGuarantorRecommendation(recs []provider.Recommendation) bool {
	return len(recs) > 0 && recs[0].ID == recommendationProvideDepositOrGuarantor
}

// hasThinFile reports whether any applicant's credit score parsed to
// exactly zero. A non-numeric score is a no-file, not a thin file.
func hasThinFile(applicants []provider.ResponseApplicant) bool {
	for _, a := range applicants {
		score, err := strconv.Atoi(strings.TrimSpace(a.CreditScore))
		if err == nil && score == 0 {
			return true
		}
	}
	return false
}

func mapStatus(raw string) models.ScreeningStatus {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "COMPLETE":
		return models.StatusComplete
	case "INCOMPLETE":
		return models.StatusIncomplete
	case "INCOMPLETE_INCORRECT_MEMBERS":
		return models.StatusIncompleteIncorrectMembers
	default:
		return models.StatusError
	}
}

// errorDecision classifies an error response by its description. Address
// errors are actionable by the applicant; everything else needs an agent.
func errorDecision(res provider.ResponseBlock) models.ApplicationDecision {
	desc := strings.ToUpper(strings.TrimSpace(res.ErrorDescription))
	if strings.HasPrefix(desc, "WRONG ADDRESS") || strings.HasPrefix(desc, "WRONG_ADDRESS") {
		return models.DecisionErrorAddress
	}
	return models.DecisionErrorOther
}

func blockedReason(blockedStatus string) models.BlockedReason {
	needle := strings.ToUpper(blockedStatus)
	switch {
	case strings.Contains(needle, "ADDRESS"):
		return models.BlockedReasonAddress
	case strings.Contains(needle, "FREEZE"):
		return models.BlockedReasonCredit
	case strings.Contains(needle, "DISPUTE"):
		return models.BlockedReasonDispute
	case strings.Contains(needle, "SSN"):
		return models.BlockedReasonSSN
	default:
		return models.BlockedReasonUnknown
	}
}
