// Package store is the request tracking store: the durable record of every
// outbound screening request and every provider response. It is the only
// shared mutable state in the engine; all cross-handler coordination goes
// through it.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/validation"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

// Subject identifies what a screening request is about. A v1 subject is a
// party application; a v2 subject is one person plus one report name.
type Subject struct {
	TenantID           string
	PartyID            string
	PartyApplicationID string
	PersonID           string
	ReportName         string
}

// V2 reports whether the subject addresses a per-person report.
func (s Subject) V2() bool { return s.PersonID != "" }

const requestResultTimeout = "Time out"

type Store struct {
	db  *sql.DB
	log logger.Logger
}

func New(db *sql.DB, log logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// ==========================
// Request writes
// ==========================

// CreateRequest persists a new tracking record. The request data diff is
// computed against the latest non-obsolete request for the same subject and
// that prior request becomes the parent. Returns the stored request with
// its id assigned.
func (s *Store) CreateRequest(ctx context.Context, subject Subject, req models.ScreeningRequest) (*models.ScreeningRequest, error) {
	prior, err := s.GetLatestRequest(ctx, subject)
	if err != nil {
		return nil, err
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.TenantID = subject.TenantID
	req.PartyID = subject.PartyID
	req.PartyApplicationID = subject.PartyApplicationID
	req.PersonID = subject.PersonID
	req.ReportName = subject.ReportName
	req.CreatedAt = time.Now().UTC()

	maskedApplicants := maskApplicantData(req.ApplicantData)

	if prior != nil {
		req.ParentRequestID = &prior.ID
		// Prior rows come back masked, so diff against the masked copy;
		// otherwise every pair shows a spurious identifier change.
		if diff := requestDataDiff(prior.RentData, prior.ApplicantData, req.RentData, maskedApplicants); diff != "" {
			req.RequestDataDiff = &diff
		}
	}

	applicantJSON, err := marshalJSON(maskedApplicants)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	rentJSON, err := marshalJSON(req.RentData)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	const q = `
		INSERT INTO submission_requests
			(id, tenant_id, party_id, party_application_id, person_id, report_name,
			 request_type, external_report_id, rent_data, applicant_data, raw_request,
			 origin, parent_request_id, request_data_diff, is_obsolete, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,false,$15)`

	// person_id, report_name, raw_request and origin are NOT NULL with an
	// empty-string default; a v1 subject stores '' and the v2 partial index
	// keys on person_id <> ''.
	_, err = s.db.ExecContext(ctx, q,
		req.ID, req.TenantID, req.PartyID, req.PartyApplicationID,
		req.PersonID, req.ReportName,
		string(req.RequestType), req.ExternalReportID,
		rentJSON, applicantJSON, req.RawRequest,
		req.Origin, req.ParentRequestID, req.RequestDataDiff,
		req.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("create request", err)
	}

	return &req, nil
}

// MarkAllObsoleteForSubject flips isObsolete on every live request for the
// subject. Called immediately before creating a NEW request so a late
// response for a predecessor can never drive user-visible state.
func (s *Store) MarkAllObsoleteForSubject(ctx context.Context, subject Subject) (int64, error) {
	q := `UPDATE submission_requests
		SET is_obsolete = true
		WHERE tenant_id = $1 AND party_id = $2 AND is_obsolete = false`
	args := []interface{}{subject.TenantID, subject.PartyID}

	if subject.V2() {
		q += ` AND person_id = $3 AND report_name = $4`
		args = append(args, subject.PersonID, subject.ReportName)
	}

	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, errors.NewDatabaseError("mark obsolete", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AttachResponseMetadata records the provider-assigned report id and the
// terminal timestamp. The write is one-time: a second call carrying a
// different external report id is a programming error and is rejected.
func (s *Store) AttachResponseMetadata(ctx context.Context, requestID, externalReportID string, endedAt time.Time) error {
	var current sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT external_report_id FROM submission_requests WHERE id = $1`,
		requestID,
	).Scan(&current)
	if err == sql.ErrNoRows {
		return errors.NewValidationError(errors.ErrCodeUncorrelatedResponse,
			fmt.Sprintf("no submission request %s", requestID))
	}
	if err != nil {
		return errors.NewDatabaseError("load request for metadata attach", err)
	}

	if current.Valid && current.String != "" {
		if current.String != externalReportID {
			return errors.NewInternalError(fmt.Errorf(
				"request %s already holds external report id %s, refusing to overwrite with %s",
				requestID, current.String, externalReportID))
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE submission_requests
		 SET external_report_id = $2,
		     request_ended_at = COALESCE(request_ended_at, $3)
		 WHERE id = $1`,
		requestID, externalReportID, endedAt.UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("attach response metadata", err)
	}
	return nil
}

// MarkRequestEnded stamps the terminal timestamp without a report id, for
// error responses and timeouts. The write is one-time; an already-ended
// request is untouched.
func (s *Store) MarkRequestEnded(ctx context.Context, requestID string, endedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submission_requests
		 SET request_ended_at = $2
		 WHERE id = $1 AND request_ended_at IS NULL`,
		requestID, endedAt.UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("mark request ended", err)
	}
	return nil
}

// MarkTimedOut records that the pending wait for a request expired without
// a provider response. The timeout is the request's terminal event, so the
// ended timestamp is stamped here too unless a response beat it.
func (s *Store) MarkTimedOut(ctx context.Context, requestID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE submission_requests
		 SET has_timed_out = true, request_result = $2,
		     request_ended_at = COALESCE(request_ended_at, $3)
		 WHERE id = $1`,
		requestID, requestResultTimeout, time.Now().UTC(),
	)
	if err != nil {
		return errors.NewDatabaseError("mark timed out", err)
	}
	return nil
}

// ==========================
// Request reads
// ==========================

const requestColumns = `id, tenant_id, party_id, party_application_id,
	COALESCE(person_id, ''), COALESCE(report_name, ''), request_type,
	external_report_id, rent_data, applicant_data, COALESCE(raw_request, ''),
	COALESCE(origin, ''), parent_request_id, request_data_diff,
	is_obsolete, has_timed_out, COALESCE(request_result, ''),
	created_at, request_ended_at`

// GetLatestRequest returns the newest non-obsolete request for the subject,
// or nil when the subject has never been screened.
func (s *Store) GetLatestRequest(ctx context.Context, subject Subject) (*models.ScreeningRequest, error) {
	q := `SELECT ` + requestColumns + `
		FROM submission_requests
		WHERE tenant_id = $1 AND party_id = $2 AND is_obsolete = false`
	args := []interface{}{subject.TenantID, subject.PartyID}

	if subject.V2() {
		q += ` AND person_id = $3 AND report_name = $4`
		args = append(args, subject.PersonID, subject.ReportName)
	}
	q += ` ORDER BY created_at DESC LIMIT 1`

	req, err := s.scanOne(ctx, q, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("get latest request", err)
	}
	return req, nil
}

// GetRequestByID loads one request; returns nil when absent.
func (s *Store) GetRequestByID(ctx context.Context, requestID string) (*models.ScreeningRequest, error) {
	req, err := s.scanOne(ctx,
		`SELECT `+requestColumns+` FROM submission_requests WHERE id = $1`,
		requestID,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("get request by id", err)
	}
	return req, nil
}

// ListScreenedRentData returns the rent terms of every request ever created
// for the subject, obsolete rows included. A rent level counts as screened
// even when its request was later superseded.
func (s *Store) ListScreenedRentData(ctx context.Context, subject Subject) ([]models.RentData, error) {
	q := `SELECT rent_data FROM submission_requests
		WHERE tenant_id = $1 AND party_id = $2 AND rent_data IS NOT NULL`
	args := []interface{}{subject.TenantID, subject.PartyID}
	if subject.V2() {
		q += ` AND person_id = $3 AND report_name = $4`
		args = append(args, subject.PersonID, subject.ReportName)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.NewDatabaseError("list screened rent data", err)
	}
	defer rows.Close()

	var out []models.RentData
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, errors.NewDatabaseError("scan rent data", err)
		}
		if len(data) == 0 {
			continue
		}
		var rd models.RentData
		if err := json.Unmarshal(data, &rd); err != nil {
			return nil, fmt.Errorf("corrupt rent_data: %w", err)
		}
		out = append(out, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate rent data", err)
	}
	return out, nil
}

// CountRecentNewRequests counts NEW requests created for the subject inside
// the rate-limit window, obsolete ones included: the limiter guards provider
// traffic, not live state.
func (s *Store) CountRecentNewRequests(ctx context.Context, subject Subject, window time.Duration) (int, error) {
	q := `SELECT COUNT(*) FROM submission_requests
		WHERE tenant_id = $1 AND party_id = $2
		  AND request_type = $3 AND created_at > $4`
	args := []interface{}{
		subject.TenantID, subject.PartyID,
		string(models.RequestTypeNew), time.Now().UTC().Add(-window),
	}
	if subject.V2() {
		q += ` AND person_id = $5 AND report_name = $6`
		args = append(args, subject.PersonID, subject.ReportName)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, errors.NewDatabaseError("count recent new requests", err)
	}
	return count, nil
}

// LastRequestsWereStuckOrigin reports whether the subject's latest n
// requests are all stuck-detection NEW requests. Used to break retry storms.
func (s *Store) LastRequestsWereStuckOrigin(ctx context.Context, subject Subject, n int) (bool, error) {
	q := `SELECT request_type, COALESCE(origin, '')
		FROM submission_requests
		WHERE tenant_id = $1 AND party_id = $2`
	args := []interface{}{subject.TenantID, subject.PartyID}
	if subject.V2() {
		q += ` AND person_id = $3 AND report_name = $4`
		args = append(args, subject.PersonID, subject.ReportName)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, n)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return false, errors.NewDatabaseError("load recent requests", err)
	}
	defer rows.Close()

	seen := 0
	for rows.Next() {
		var reqType, origin string
		if err := rows.Scan(&reqType, &origin); err != nil {
			return false, errors.NewDatabaseError("scan recent request", err)
		}
		if reqType != string(models.RequestTypeNew) || origin != models.TopicStuckRequestDetected {
			return false, nil
		}
		seen++
	}
	if err := rows.Err(); err != nil {
		return false, errors.NewDatabaseError("iterate recent requests", err)
	}
	return seen == n, nil
}

// FindOrphaned returns live requests whose age falls inside the polling
// window and that still have no terminal timestamp.
func (s *Store) FindOrphaned(ctx context.Context, minAge, maxAge time.Duration) ([]models.ScreeningRequest, error) {
	now := time.Now().UTC()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+`
		 FROM submission_requests
		 WHERE is_obsolete = false AND request_ended_at IS NULL
		   AND created_at BETWEEN $1 AND $2
		 ORDER BY created_at ASC`,
		now.Add(-maxAge), now.Add(-minAge),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("find orphaned requests", err)
	}
	return s.scanAll(rows)
}

// FindStuck returns live requests older than the SLA with no terminal state,
// whether or not the provider ever assigned a report id.
func (s *Store) FindStuck(ctx context.Context, sla time.Duration) ([]models.ScreeningRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+`
		 FROM submission_requests
		 WHERE is_obsolete = false AND request_ended_at IS NULL
		   AND created_at < $1
		 ORDER BY created_at ASC`,
		time.Now().UTC().Add(-sla),
	)
	if err != nil {
		return nil, errors.NewDatabaseError("find stuck requests", err)
	}
	return s.scanAll(rows)
}

// FindPendingWithReportID returns live requests that already hold an
// external report id but have not ended; the poll worker re-queries these.
func (s *Store) FindPendingWithReportID(ctx context.Context, tenantID string) ([]models.ScreeningRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+requestColumns+`
		 FROM submission_requests
		 WHERE tenant_id = $1 AND is_obsolete = false
		   AND external_report_id IS NOT NULL AND request_ended_at IS NULL
		 ORDER BY created_at ASC`,
		tenantID,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("find pending requests", err)
	}
	return s.scanAll(rows)
}

// ==========================
// Responses
// ==========================

// SaveResponse persists a provider response. Responses are immutable once
// written; the raw payload is scrubbed of identifiers and credentials first.
func (s *Store) SaveResponse(ctx context.Context, resp models.ScreeningResponse) (*models.ScreeningResponse, error) {
	resp.ID = uuid.NewString()
	resp.CreatedAt = time.Now().UTC()
	resp.RawResponse = validation.ObscureXMLPayload(resp.RawResponse)

	criteriaJSON, err := marshalJSON(resp.CriteriaResult)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}
	conditionsJSON, err := marshalJSON(resp.RecommendedConditions)
	if err != nil {
		return nil, errors.NewInternalError(err)
	}

	var blockedReason *string
	if resp.BlockedReason != nil {
		v := string(*resp.BlockedReason)
		blockedReason = &v
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO submission_responses
			(id, submission_request_id, raw_response, status, application_decision,
			 blocked_reason, criteria_result, recommended_conditions,
			 has_credit_thin_file, external_id, origin, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		resp.ID, resp.SubmissionRequestID, nullable(resp.RawResponse),
		string(resp.Status), nullable(string(resp.ApplicationDecision)),
		blockedReason, criteriaJSON, conditionsJSON,
		resp.HasCreditThinFile, nullable(resp.ExternalID), nullable(resp.Origin),
		resp.CreatedAt,
	)
	if err != nil {
		return nil, errors.NewDatabaseError("save response", err)
	}
	return &resp, nil
}

// GetLatestResponse returns the newest response for a request, or nil.
func (s *Store) GetLatestResponse(ctx context.Context, requestID string) (*models.ScreeningResponse, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, submission_request_id, COALESCE(raw_response, ''), status,
			COALESCE(application_decision, ''), blocked_reason,
			criteria_result, recommended_conditions, has_credit_thin_file,
			COALESCE(external_id, ''), COALESCE(origin, ''), created_at
		 FROM submission_responses
		 WHERE submission_request_id = $1
		 ORDER BY created_at DESC LIMIT 1`,
		requestID,
	)

	resp, err := scanResponse(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.NewDatabaseError("get latest response", err)
	}
	return resp, nil
}

// ==========================
// Scanning helpers
// ==========================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanOne(ctx context.Context, q string, args ...interface{}) (*models.ScreeningRequest, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, q, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Store) scanAll(rows *sql.Rows) ([]models.ScreeningRequest, error) {
	defer rows.Close()

	var out []models.ScreeningRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, errors.NewDatabaseError("scan request", err)
		}
		out = append(out, *req)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseError("iterate requests", err)
	}
	return out, nil
}

func scanRequest(row rowScanner) (*models.ScreeningRequest, error) {
	var (
		req              models.ScreeningRequest
		requestType      string
		externalReportID sql.NullString
		rentJSON         []byte
		applicantJSON    []byte
		parentID         sql.NullString
		dataDiff         sql.NullString
		endedAt          sql.NullTime
	)

	err := row.Scan(
		&req.ID, &req.TenantID, &req.PartyID, &req.PartyApplicationID,
		&req.PersonID, &req.ReportName, &requestType,
		&externalReportID, &rentJSON, &applicantJSON, &req.RawRequest,
		&req.Origin, &parentID, &dataDiff,
		&req.IsObsolete, &req.HasTimedOut, &req.RequestResult,
		&req.CreatedAt, &endedAt,
	)
	if err != nil {
		return nil, err
	}

	req.RequestType = models.RequestType(requestType)
	if externalReportID.Valid {
		req.ExternalReportID = &externalReportID.String
	}
	if parentID.Valid {
		req.ParentRequestID = &parentID.String
	}
	if dataDiff.Valid {
		req.RequestDataDiff = &dataDiff.String
	}
	if endedAt.Valid {
		t := endedAt.Time
		req.RequestEndedAt = &t
	}
	if len(rentJSON) > 0 {
		if err := json.Unmarshal(rentJSON, &req.RentData); err != nil {
			return nil, fmt.Errorf("corrupt rent_data for request %s: %w", req.ID, err)
		}
	}
	if len(applicantJSON) > 0 {
		if err := json.Unmarshal(applicantJSON, &req.ApplicantData); err != nil {
			return nil, fmt.Errorf("corrupt applicant_data for request %s: %w", req.ID, err)
		}
	}
	return &req, nil
}

func scanResponse(row rowScanner) (*models.ScreeningResponse, error) {
	var (
		resp           models.ScreeningResponse
		status         string
		decision       string
		blockedReason  sql.NullString
		criteriaJSON   []byte
		conditionsJSON []byte
	)

	err := row.Scan(
		&resp.ID, &resp.SubmissionRequestID, &resp.RawResponse, &status,
		&decision, &blockedReason, &criteriaJSON, &conditionsJSON,
		&resp.HasCreditThinFile, &resp.ExternalID, &resp.Origin, &resp.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	resp.Status = models.ScreeningStatus(status)
	resp.ApplicationDecision = models.ApplicationDecision(decision)
	if blockedReason.Valid {
		br := models.BlockedReason(blockedReason.String)
		resp.BlockedReason = &br
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &resp.CriteriaResult); err != nil {
			return nil, fmt.Errorf("corrupt criteria_result for response %s: %w", resp.ID, err)
		}
	}
	if len(conditionsJSON) > 0 {
		if err := json.Unmarshal(conditionsJSON, &resp.RecommendedConditions); err != nil {
			return nil, fmt.Errorf("corrupt recommended_conditions for response %s: %w", resp.ID, err)
		}
	}
	return &resp, nil
}

// ==========================
// Serialization helpers
// ==========================

var decimalComparer = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// requestDataDiff renders a structural diff between the prior and new rent
// plus applicant payloads. Both sides carry masked identifiers, so the
// diff is safe to persist.
func requestDataDiff(priorRent *models.RentData, priorApplicants *models.ApplicantData, nextRent *models.RentData, nextApplicants *models.ApplicantData) string {
	type payload struct {
		Rent       *models.RentData
		Applicants *models.ApplicantData
	}
	return cmp.Diff(
		payload{priorRent, priorApplicants},
		payload{nextRent, nextApplicants},
		decimalComparer,
	)
}

// maskApplicantData masks SSN/ITIN values before the snapshot is written.
// The raw wire payload keeps original values in raw_request because orphan
// recovery retransmits it verbatim.
func maskApplicantData(data *models.ApplicantData) *models.ApplicantData {
	if data == nil {
		return nil
	}
	masked := *data
	masked.Applicants = make([]models.ApplicantSnapshot, len(data.Applicants))
	for i, a := range data.Applicants {
		a.SocSecNumber = validation.MaskSocSecNumber(a.SocSecNumber)
		a.ItinNumber = validation.MaskSocSecNumber(a.ItinNumber)
		masked.Applicants[i] = a
	}
	return &masked
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
