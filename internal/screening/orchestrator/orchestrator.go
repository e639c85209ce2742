// Package orchestrator drives the screening request lifecycle: request-type
// decision, rate limiting, obsolescence, provider dispatch and response
// handling. All coordination between concurrent handlers goes through the
// tracking store plus a per-subject lock; the orchestrator itself keeps no
// mutable state.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/metrics"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/assembler"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
	"github.com/max-tl-2000/red-sub014/internal/screening/response"
	"github.com/max-tl-2000/red-sub014/internal/screening/store"
)

// TrackingStore is the slice of the store the orchestrator mutates.
type TrackingStore interface {
	GetLatestRequest(ctx context.Context, subject store.Subject) (*models.ScreeningRequest, error)
	GetRequestByID(ctx context.Context, requestID string) (*models.ScreeningRequest, error)
	CreateRequest(ctx context.Context, subject store.Subject, req models.ScreeningRequest) (*models.ScreeningRequest, error)
	MarkAllObsoleteForSubject(ctx context.Context, subject store.Subject) (int64, error)
	CountRecentNewRequests(ctx context.Context, subject store.Subject, window time.Duration) (int, error)
	LastRequestsWereStuckOrigin(ctx context.Context, subject store.Subject, n int) (bool, error)
	ListScreenedRentData(ctx context.Context, subject store.Subject) ([]models.RentData, error)
	AttachResponseMetadata(ctx context.Context, requestID, externalReportID string, endedAt time.Time) error
	MarkRequestEnded(ctx context.Context, requestID string, endedAt time.Time) error
	MarkTimedOut(ctx context.Context, requestID string) error
	SaveResponse(ctx context.Context, resp models.ScreeningResponse) (*models.ScreeningResponse, error)
	GetLatestResponse(ctx context.Context, requestID string) (*models.ScreeningResponse, error)
}

// ProviderClient posts a built document to the screening provider.
type ProviderClient interface {
	Submit(ctx context.Context, rawXML string, requestType models.RequestType) (*provider.SubmitResult, error)
}

// SubjectLocker serializes mutations per screening subject.
type SubjectLocker interface {
	AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, owner string) error
}

// Notifier publishes the application-updated event after a dispatch.
type Notifier interface {
	NotifyApplicationUpdated(ctx context.Context, event models.ApplicationUpdated) error
}

// AuditIndexer stores a masked copy of every provider response.
type AuditIndexer interface {
	IndexDocument(ctx context.Context, index, docID string, doc interface{}) error
}

type Orchestrator struct {
	cfg      *config.Config
	store    TrackingStore
	party    assembler.PartyDataSource
	asm      *assembler.Assembler
	builder  *provider.RequestBuilder
	client   ProviderClient
	interp   *response.Interpreter
	locks    SubjectLocker
	notifier Notifier
	audit    AuditIndexer
	log      logger.Logger
}

type Deps struct {
	Config   *config.Config
	Store    TrackingStore
	Party    assembler.PartyDataSource
	Client   ProviderClient
	Locks    SubjectLocker
	Notifier Notifier
	Audit    AuditIndexer
	Logger   logger.Logger
}

func New(d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:      d.Config,
		store:    d.Store,
		party:    d.Party,
		asm:      assembler.New(d.Party, d.Logger),
		builder:  provider.NewRequestBuilder(d.Config.Provider),
		client:   d.Client,
		interp:   response.NewInterpreter(d.Logger),
		locks:    d.Locks,
		notifier: d.Notifier,
		audit:    d.Audit,
		log:      d.Logger.WithFields(map[string]interface{}{"component": "orchestrator"}),
	}
}

// ScreenParams describes one screening trigger.
type ScreenParams struct {
	TenantID string
	PartyID  string

	// PersonID and ReportName narrow the subject for v2 tenants.
	PersonID   string
	ReportName string

	// Origin is the inbound topic that triggered this screening.
	Origin string

	// RentData overrides quote resolution when the event carries rent terms.
	RentData *models.RentData

	// ForceNew skips the MODIFY reuse path and the pending-request guard.
	ForceNew bool

	// TypeHint honors an explicit View or ResetCredit request.
	TypeHint models.RequestType

	// ObsoleteExisting marks every live request for the subject obsolete
	// before the new one is created. Set for roster and data change topics.
	ObsoleteExisting bool
}

// ScreenResult reports what Screen did. Skipped is set when the trigger was
// judged and deliberately not acted on (pending request in flight).
type ScreenResult struct {
	Request    *models.ScreeningRequest
	Response   *models.ScreeningResponse
	Skipped    bool
	SkipReason string
}

// Screen runs the full request pipeline for one subject. Concurrency is
// serialized through a per-subject lock; competing handlers get a retryable
// lock contention error and are redelivered.
func (o *Orchestrator) Screen(ctx context.Context, p ScreenParams) (*ScreenResult, error) {
	if p.TenantID == "" {
		return nil, errors.NewMissingTenantError(p.Origin)
	}
	if p.PartyID == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingParty, "screening trigger has no partyId")
	}

	partyApp, err := o.party.GetPartyApplication(ctx, p.TenantID, p.PartyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get party application", err)
	}
	if partyApp == nil {
		return nil, errors.NewValidationError(errors.ErrCodeMissingApplication,
			fmt.Sprintf("party %s has no application record", p.PartyID))
	}
	if partyApp.LeaseType == models.LeaseTypeCorporate {
		o.log.Info("corporate party, skipping screening", map[string]interface{}{
			"tenant_id": p.TenantID, "party_id": p.PartyID,
		})
		return &ScreenResult{Skipped: true, SkipReason: "corporate lease"}, nil
	}
	if partyApp.IsHeld {
		o.log.Info("party application is on hold, skipping screening", map[string]interface{}{
			"tenant_id": p.TenantID, "party_id": p.PartyID, "hold_reason": partyApp.HoldReason,
		})
		return &ScreenResult{Skipped: true, SkipReason: "application on hold"}, nil
	}

	subject := store.Subject{
		TenantID:           p.TenantID,
		PartyID:            p.PartyID,
		PartyApplicationID: partyApp.ID,
		PersonID:           p.PersonID,
		ReportName:         p.ReportName,
	}

	owner := uuid.NewString()
	lockKey := subjectLockKey(subject)
	acquired, err := o.locks.AcquireLock(ctx, lockKey, owner, o.subjectLockTTL())
	if err != nil {
		// The lock only guards the rate-limit threshold; a dead lock
		// backend must not stop screening.
		o.log.Warn("subject lock unavailable, proceeding unlocked", map[string]interface{}{
			"lock_key": lockKey, "error": err.Error(),
		})
		return o.screenLocked(ctx, subject, partyApp, p)
	}
	if !acquired {
		return nil, errors.NewLockContentionError(lockKey)
	}
	defer func() {
		if releaseErr := o.locks.ReleaseLock(context.WithoutCancel(ctx), lockKey, owner); releaseErr != nil {
			o.log.Warn("failed to release subject lock", map[string]interface{}{
				"lock_key": lockKey, "error": releaseErr.Error(),
			})
		}
	}()

	return o.screenLocked(ctx, subject, partyApp, p)
}

func (o *Orchestrator) screenLocked(ctx context.Context, subject store.Subject, partyApp *models.PartyApplication, p ScreenParams) (*ScreenResult, error) {
	prior, err := o.store.GetLatestRequest(ctx, subject)
	if err != nil {
		return nil, err
	}

	// A report past its validity window cannot be amended by data updates;
	// the rerun-expired flow owns the subject from here.
	if !p.ForceNew && dataUpdateOrigin(p.Origin) && o.resultsExpired(prior) {
		o.log.Info("existing screening results are expired, skipping data-update trigger", map[string]interface{}{
			"tenant_id": p.TenantID, "party_id": p.PartyID, "prior_request_id": prior.ID,
		})
		return &ScreenResult{Skipped: true, SkipReason: "screening results expired"}, nil
	}

	rentData := p.RentData
	if rentData == nil && quoteDriven(p.Origin) {
		level, exhausted, err := o.nextRentLevel(ctx, subject)
		if err != nil {
			return nil, err
		}
		if exhausted {
			o.log.Info("every published rent level is already screened", map[string]interface{}{
				"tenant_id": p.TenantID, "party_id": p.PartyID,
			})
			return &ScreenResult{Skipped: true, SkipReason: "all published rent levels screened"}, nil
		}
		rentData = level
	}

	assembled, err := o.asm.Assemble(ctx, p.TenantID, p.PartyID, rentData, prior)
	if err != nil {
		// Unpaid members pause screening until payment clears; the next
		// trigger event retries the whole pipeline.
		if std, ok := errors.AsStandardError(err); ok && std.Code == errors.ErrCodeUnpaidMembers {
			o.log.Info("party has unpaid members, skipping screening", map[string]interface{}{
				"tenant_id": p.TenantID, "party_id": p.PartyID,
			})
			return &ScreenResult{Skipped: true, SkipReason: "unpaid party members"}, nil
		}
		return nil, err
	}

	requestType, reportID, err := o.decideRequestType(ctx, prior, assembled, p)
	if err != nil {
		return nil, err
	}
	if requestType == "" {
		return &ScreenResult{Skipped: true, SkipReason: "pending request still within the response window"}, nil
	}

	if requestType == models.RequestTypeNew {
		if err := o.enforceRateLimit(ctx, subject, partyApp, p.Origin); err != nil {
			return nil, err
		}
		// A NEW request starts a fresh provider identity per applicant;
		// only MODIFY and VIEW continuations keep the prior ids.
		if prior != nil {
			for i := range assembled.ApplicantData.Applicants {
				assembled.ApplicantData.Applicants[i].ApplicantID = uuid.NewString()
			}
		}
	}

	if p.ObsoleteExisting || requestType == models.RequestTypeNew {
		n, err := o.store.MarkAllObsoleteForSubject(ctx, subject)
		if err != nil {
			return nil, err
		}
		if n > 0 {
			metrics.ScreeningRequestsObsoleted.WithLabelValues(p.Origin).Add(float64(n))
		}
	}

	requestID := uuid.NewString()
	rawRequest, err := o.builder.Build(provider.BuildParams{
		ScreeningRequestID: requestID,
		TenantID:           p.TenantID,
		RequestType:        requestType,
		ReportID:           reportID,
		PropertyID:         assembled.PropertyID,
		RentData:           assembled.RentData,
		Applicants:         assembled.ApplicantData.Applicants,
		ReportName:         p.ReportName,
		Version:            string(o.schemaVersion(p.TenantID)),
	})
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	created, err := o.store.CreateRequest(ctx, subject, models.ScreeningRequest{
		ID:               requestID,
		RequestType:      requestType,
		ExternalReportID: nullableReportID(reportID),
		RentData:         &assembled.RentData,
		ApplicantData:    &assembled.ApplicantData,
		RawRequest:       rawRequest,
		Origin:           p.Origin,
	})
	if err != nil {
		return nil, err
	}
	metrics.ScreeningRequestsCreated.WithLabelValues(string(requestType)).Inc()
	o.log.Info("screening request created", map[string]interface{}{
		"screening_request_id": created.ID,
		"tenant_id":            p.TenantID,
		"party_id":             p.PartyID,
		"request_type":         string(requestType),
		"origin":               p.Origin,
	})

	result := &ScreenResult{Request: created}

	submit, err := o.client.Submit(ctx, rawRequest, requestType)
	if err != nil {
		// The tracking row exists, so the recovery sweep will retransmit.
		o.log.Error("provider dispatch failed, leaving request for recovery", map[string]interface{}{
			"screening_request_id": created.ID,
			"error":                err.Error(),
		})
		return result, err
	}

	o.notifyDispatched(ctx, p, assembled)

	switch {
	case submit.Parsed != nil:
		resp, err := o.handleParsedResponse(ctx, submit.Raw, submit.Parsed, created, p.Origin)
		if err != nil {
			return result, err
		}
		result.Response = resp
	case submit.ParseErr != nil:
		// The provider answered with something, just not a parseable
		// document. Record the terminal error; only an empty ack body
		// means "response comes later".
		resp, err := o.persistUnparsable(ctx, submit.Raw, created, p.Origin)
		if err != nil {
			return result, err
		}
		result.Response = resp
	}
	return result, nil
}

// dataUpdateOrigin reports whether the trigger is a party-data change rather
// than a quote or force event. SSN changes are excluded because they must
// always reach the provider.
func dataUpdateOrigin(origin string) bool {
	switch origin {
	case models.TopicApplicantDataUpdated, models.TopicPartyMembersChanged, models.TopicApplicantMemberTypeChanged:
		return true
	}
	return false
}

func (o *Orchestrator) resultsExpired(prior *models.ScreeningRequest) bool {
	if prior == nil || prior.RequestEndedAt == nil {
		return false
	}
	days := o.cfg.Screening.ExpirationDays
	if days <= 0 {
		return false
	}
	return time.Since(*prior.RequestEndedAt) > time.Duration(days)*24*time.Hour
}

// quoteDriven reports whether the trigger progresses through published rent
// levels rather than re-screening the current terms.
func quoteDriven(origin string) bool {
	switch origin {
	case models.TopicQuotePublished, models.TopicResponseReceived, models.TopicRerunExpiredScreening:
		return true
	}
	return false
}

// nextRentLevel picks the cheapest published quote lease term the subject has
// not been screened against yet. exhausted is true when every published level
// was already submitted.
func (o *Orchestrator) nextRentLevel(ctx context.Context, subject store.Subject) (level *models.RentData, exhausted bool, err error) {
	quotes, err := o.party.GetPublishedQuotes(ctx, subject.TenantID, subject.PartyID)
	if err != nil {
		return nil, false, errors.NewDatabaseError("get published quotes", err)
	}
	if len(quotes) == 0 {
		// The assembler reports the missing-quote condition.
		return nil, false, nil
	}

	screened, err := o.store.ListScreenedRentData(ctx, subject)
	if err != nil {
		return nil, false, err
	}
	submitted := make(map[string]bool, len(screened))
	for _, rd := range screened {
		submitted[rentLevelKey(rd.QuoteID, rd.LeaseTermMonths)] = true
	}

	sort.SliceStable(quotes, func(i, j int) bool {
		return quotes[i].Rent.LessThan(quotes[j].Rent)
	})
	for _, q := range quotes {
		if submitted[rentLevelKey(q.QuoteID, q.LeaseTermMonths)] {
			continue
		}
		return &models.RentData{
			Rent:            q.Rent,
			LeaseTermMonths: q.LeaseTermMonths,
			LeaseNameID:     q.LeaseNameID,
			Deposit:         q.Deposit,
			QuoteID:         q.QuoteID,
		}, false, nil
	}
	return nil, true, nil
}

func rentLevelKey(quoteID string, termMonths int) string {
	return fmt.Sprintf("%s:%d", quoteID, termMonths)
}

// decideRequestType picks NEW, MODIFY or the hinted mode. An empty request
// type means the trigger should be skipped because a pending request is
// still inside the response window.
func (o *Orchestrator) decideRequestType(ctx context.Context, prior *models.ScreeningRequest, assembled *assembler.Assembled, p ScreenParams) (models.RequestType, string, error) {
	if p.TypeHint == models.RequestTypeView || p.TypeHint == models.RequestTypeResetCredit {
		if prior == nil || prior.ExternalReportID == nil {
			return "", "", errors.NewValidationError(errors.ErrCodeInvalidMessage,
				fmt.Sprintf("%s requested but no prior request with an external report id exists", p.TypeHint))
		}
		return p.TypeHint, *prior.ExternalReportID, nil
	}

	if p.ForceNew || prior == nil {
		return models.RequestTypeNew, "", nil
	}

	if pending(prior) {
		switch {
		case quoteDriven(p.Origin):
			if time.Since(prior.CreatedAt) < o.cfg.Screening.PendingTimeout() {
				return "", "", nil
			}
			// The pending wait expired without a response; label it and start over.
			if err := o.store.MarkTimedOut(ctx, prior.ID); err != nil {
				return "", "", err
			}
			o.log.Warn("pending request timed out, forcing a new request", map[string]interface{}{
				"screening_request_id": prior.ID,
			})
			return models.RequestTypeNew, "", nil
		case dataUpdateOrigin(p.Origin):
			// The first response for the subject has not arrived yet; the
			// data change is picked up once it does.
			return "", "", nil
		}
	}

	if rosterChanged(prior, assembled) {
		return models.RequestTypeNew, "", nil
	}

	if prior.ExternalReportID == nil || *prior.ExternalReportID == "" {
		return models.RequestTypeNew, "", nil
	}

	// A MODIFY cannot finish a report the provider closed as incomplete;
	// start a fresh one.
	latest, err := o.store.GetLatestResponse(ctx, prior.ID)
	if err != nil {
		return "", "", err
	}
	if latest != nil && (latest.Status == models.StatusIncomplete || latest.Status == models.StatusIncompleteIncorrectMembers) {
		return models.RequestTypeNew, "", nil
	}

	return models.RequestTypeModify, *prior.ExternalReportID, nil
}

// rosterChanged reports whether an applicant was removed or switched role
// since the prior request. The provider cannot modify a report across a
// roster change, so these force a NEW request.
func rosterChanged(prior *models.ScreeningRequest, assembled *assembler.Assembled) bool {
	if prior == nil || prior.ApplicantData == nil {
		return false
	}
	current := make(map[string]models.MemberType, len(assembled.ApplicantData.Applicants))
	for _, a := range assembled.ApplicantData.Applicants {
		current[a.PersonID] = a.Type
	}
	for _, a := range prior.ApplicantData.Applicants {
		role, stillPresent := current[a.PersonID]
		if !stillPresent || role != a.Type {
			return true
		}
	}
	return false
}

// enforceRateLimit counts NEW requests inside the window and applies the
// operator override plus the stuck-origin storm guard. The storm guard wins
// over the override: three consecutive stuck-origin NEW requests stop a
// fourth regardless of flags.
func (o *Orchestrator) enforceRateLimit(ctx context.Context, subject store.Subject, partyApp *models.PartyApplication, origin string) error {
	if origin == models.TopicStuckRequestDetected {
		storm, err := o.store.LastRequestsWereStuckOrigin(ctx, subject, 3)
		if err != nil {
			return err
		}
		if storm {
			return errors.NewStuckRetryStormError(subject.PartyID)
		}
	}

	count, err := o.store.CountRecentNewRequests(ctx, subject, o.cfg.Screening.NewRequestWindow())
	if err != nil {
		return err
	}
	if count >= o.cfg.Screening.NewRequestThreshold && !partyApp.OverrideNewCountChecks {
		metrics.ScreeningRateLimited.WithLabelValues(subject.TenantID).Inc()
		return errors.NewRateLimitedError(subject.PartyID, count, o.cfg.Screening.NewRequestThreshold)
	}
	return nil
}

// ==========================
// Response handling
// ==========================

// ResponseParams carries one inbound provider response.
type ResponseParams struct {
	TenantID string
	RawXML   string

	// ScreeningRequestIDHint is the caller-supplied request id, used when
	// the echoed custom records are absent (legacy format ambiguity).
	ScreeningRequestIDHint string
	Origin                 string
}

// HandleResponse implements the push/poll response path: correlate, map,
// persist. An unparsable document with a known request id still produces a
// terminal ERROR response so the UI never shows silence.
func (o *Orchestrator) HandleResponse(ctx context.Context, p ResponseParams) (*models.ScreeningResponse, error) {
	parsed, err := provider.Parse(p.RawXML)
	if err != nil {
		if p.ScreeningRequestIDHint == "" {
			return nil, err
		}
		req, lookupErr := o.store.GetRequestByID(ctx, p.ScreeningRequestIDHint)
		if lookupErr != nil || req == nil {
			return nil, err
		}
		return o.persistUnparsable(ctx, p.RawXML, req, p.Origin)
	}

	corr, err := response.Correlate(parsed)
	requestID := corr.ScreeningRequestID
	if err != nil {
		if p.ScreeningRequestIDHint == "" {
			return nil, err
		}
		requestID = p.ScreeningRequestIDHint
	}

	req, err := o.store.GetRequestByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req == nil && p.ScreeningRequestIDHint != "" && p.ScreeningRequestIDHint != requestID {
		req, err = o.store.GetRequestByID(ctx, p.ScreeningRequestIDHint)
		if err != nil {
			return nil, err
		}
	}
	if req == nil {
		return nil, errors.NewValidationError(errors.ErrCodeUncorrelatedResponse,
			fmt.Sprintf("no submission request matches response correlation id %s", requestID))
	}

	return o.handleParsedResponse(ctx, p.RawXML, parsed, req, p.Origin)
}

func (o *Orchestrator) handleParsedResponse(ctx context.Context, raw string, parsed *provider.ResponseEnvelope, req *models.ScreeningRequest, origin string) (*models.ScreeningResponse, error) {
	members, err := o.party.GetActivePartyMembers(ctx, req.TenantID, req.PartyID)
	if err != nil {
		return nil, errors.NewDatabaseError("get party members", err)
	}

	var declineCriteria []string
	if settings, err := o.party.GetPropertySettings(ctx, req.TenantID, req.PartyID); err == nil && settings != nil {
		declineCriteria = settings.RecommendDeclineCriteria
	}

	resp := o.interp.Interpret(raw, parsed, response.InterpretParams{
		Request:         req,
		Members:         members,
		DeclineCriteria: declineCriteria,
		Origin:          origin,
	})

	latest, err := o.store.GetLatestResponse(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if latest != nil && sameScreeningResult(latest, resp) {
		o.log.Info("response matches the stored latest result, not re-persisting", map[string]interface{}{
			"screening_request_id": req.ID,
			"response_id":          latest.ID,
		})
		return latest, nil
	}

	if terminal(resp.Status) {
		if parsed.Response.TransactionNumber != "" {
			externalID := parsed.Response.RequestIDReturned
			if externalID == "" {
				externalID = parsed.Response.TransactionNumber
			}
			if err := o.store.AttachResponseMetadata(ctx, req.ID, externalID, time.Now().UTC()); err != nil {
				return nil, err
			}
		} else if err := o.store.MarkRequestEnded(ctx, req.ID, time.Now().UTC()); err != nil {
			return nil, err
		}
	}

	saved, err := o.store.SaveResponse(ctx, *resp)
	if err != nil {
		return nil, err
	}
	metrics.ScreeningResponsesReceived.WithLabelValues(string(saved.Status)).Inc()

	if req.IsObsolete {
		o.log.Info("response stored for an obsolete request, audit only", map[string]interface{}{
			"screening_request_id": req.ID,
			"response_id":          saved.ID,
		})
	}

	o.indexAudit(ctx, saved)
	return saved, nil
}

// HandleRecoveredResult runs a response the provider returned inline on a
// recovery retransmission or re-query through the same persistence path as
// any other response. A nil result response means the provider answered with
// a bare ack and a push or poll must finish the job.
func (o *Orchestrator) HandleRecoveredResult(ctx context.Context, req *models.ScreeningRequest, result *provider.SubmitResult) (*models.ScreeningResponse, error) {
	switch {
	case result.Parsed != nil:
		return o.handleParsedResponse(ctx, result.Raw, result.Parsed, req, models.OriginRecovery)
	case result.ParseErr != nil:
		return o.persistUnparsable(ctx, result.Raw, req, models.OriginRecovery)
	}
	return nil, nil
}

// persistUnparsable records a terminal ERROR response so the subject still
// shows a user-visible state, then treats the message as handled.
func (o *Orchestrator) persistUnparsable(ctx context.Context, raw string, req *models.ScreeningRequest, origin string) (*models.ScreeningResponse, error) {
	reason := models.BlockedReasonUnknown
	saved, err := o.store.SaveResponse(ctx, models.ScreeningResponse{
		SubmissionRequestID: req.ID,
		RawResponse:         raw,
		Status:              models.StatusError,
		BlockedReason:       &reason,
		Origin:              origin,
	})
	if err != nil {
		return nil, err
	}
	if err := o.store.MarkRequestEnded(ctx, req.ID, time.Now().UTC()); err != nil {
		return nil, err
	}
	metrics.ScreeningResponsesReceived.WithLabelValues(string(models.StatusError)).Inc()
	o.log.Error("stored unparsable provider response as terminal error", map[string]interface{}{
		"screening_request_id": req.ID,
		"response_id":          saved.ID,
	})
	o.indexAudit(ctx, saved)
	return saved, nil
}

// sameScreeningResult reports whether two responses carry the same outcome.
// Raw payload and timestamps are ignored; a re-delivered identical result
// must not grow the response history.
func sameScreeningResult(a, b *models.ScreeningResponse) bool {
	return a.Status == b.Status &&
		a.ApplicationDecision == b.ApplicationDecision &&
		cmp.Equal(a.CriteriaResult, b.CriteriaResult)
}

func (o *Orchestrator) indexAudit(ctx context.Context, resp *models.ScreeningResponse) {
	if o.audit == nil {
		return
	}
	index := o.cfg.Database.Elasticsearch.AuditIndex
	if err := o.audit.IndexDocument(ctx, index, resp.ID, resp); err != nil {
		o.log.Warn("failed to index response in audit store", map[string]interface{}{
			"response_id": resp.ID,
			"error":       err.Error(),
		})
	}
}

func (o *Orchestrator) notifyDispatched(ctx context.Context, p ScreenParams, assembled *assembler.Assembled) {
	if o.notifier == nil {
		return
	}
	err := o.notifier.NotifyApplicationUpdated(ctx, models.ApplicationUpdated{
		TenantID:  p.TenantID,
		PartyID:   p.PartyID,
		PersonIDs: assembled.ApplicantData.PersonIDs(),
	})
	if err != nil {
		o.log.Warn("failed to publish application updated notification", map[string]interface{}{
			"tenant_id": p.TenantID,
			"party_id":  p.PartyID,
			"error":     err.Error(),
		})
	}
}

// ==========================
// Helpers
// ==========================

func (o *Orchestrator) schemaVersion(tenantID string) models.SchemaVersion {
	if o.cfg.Screening.IsV2Tenant(tenantID) {
		return models.SchemaV2
	}
	return models.SchemaV1
}

func (o *Orchestrator) subjectLockTTL() time.Duration {
	ttl := time.Duration(o.cfg.Screening.SubjectLockTTLSec) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return ttl
}

func subjectLockKey(s store.Subject) string {
	parts := []string{"screening", "lock", s.TenantID, s.PartyID}
	if s.V2() {
		parts = append(parts, s.PersonID, s.ReportName)
	}
	return strings.Join(parts, ":")
}

// pending reports whether the request was dispatched but never terminally
// resolved nor already labeled as timed out.
func pending(req *models.ScreeningRequest) bool {
	return req.RequestEndedAt == nil && !req.HasTimedOut && !req.IsObsolete
}

// terminal statuses end the request: complete, incomplete or error.
func terminal(status models.ScreeningStatus) bool {
	return status == models.StatusComplete || status == models.StatusIncomplete ||
		status == models.StatusIncompleteIncorrectMembers || status == models.StatusError
}

func nullableReportID(reportID string) *string {
	if reportID == "" {
		return nil
	}
	return &reportID
}
