// test/e2e/e2e_test.go
//
// End-to-end flows through the real orchestrator, tracking store, request
// builder and provider client. The leasing data source is an in-memory
// fixture, the tracking database is sqlmock, the subject lock runs on an
// embedded redis and the provider endpoint is an httptest server speaking
// the FADV XML dialect.
package e2e

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/database"
	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
	"github.com/max-tl-2000/red-sub014/internal/screening/store"

	hr "github.com/max-tl-2000/red-sub014/internal/workers/screening/handle-response"
	sr "github.com/max-tl-2000/red-sub014/internal/workers/screening/submit-request"
)

// ==========================
// Leasing data fixture
// ==========================

type partyFixture struct {
	members  []models.PartyMember
	apps     []models.PersonApplication
	partyApp *models.PartyApplication
	quotes   []models.QuoteRentData
	settings *models.PropertySettings
}

func (f *partyFixture) GetActivePartyMembers(ctx context.Context, tenantID, partyID string) ([]models.PartyMember, error) {
	return f.members, nil
}

func (f *partyFixture) GetPersonApplicationsByParty(ctx context.Context, tenantID, partyID string) ([]models.PersonApplication, error) {
	return f.apps, nil
}

func (f *partyFixture) GetPartyApplication(ctx context.Context, tenantID, partyID string) (*models.PartyApplication, error) {
	return f.partyApp, nil
}

func (f *partyFixture) GetPublishedQuotes(ctx context.Context, tenantID, partyID string) ([]models.QuoteRentData, error) {
	return f.quotes, nil
}

func (f *partyFixture) GetPropertySettings(ctx context.Context, tenantID, partyID string) (*models.PropertySettings, error) {
	return f.settings, nil
}

func singleResidentFixture() *partyFixture {
	return &partyFixture{
		members: []models.PartyMember{{
			ID:         "pm-1",
			PersonID:   "p1",
			MemberType: models.MemberTypeResident,
			FullName:   "Ada Lovelace",
		}},
		apps: []models.PersonApplication{{
			ID:                 "app-person-1",
			PersonID:           "p1",
			PartyID:            "party-1",
			PartyApplicationID: "pa-1",
			PaymentCompleted:   true,
			ApplicationData: models.PersonApplicationData{
				FirstName:          "Ada",
				LastName:           "Lovelace",
				Email:              "ada@example.com",
				DateOfBirth:        "1990-12-10",
				SocSecNumber:       "123-45-6789",
				GrossIncomeMonthly: decimal.NewFromInt(5200),
				Address: models.Address{
					Line1:      "100 Congress Ave",
					City:       "Austin",
					State:      "TX",
					PostalCode: "78701",
				},
			},
		}},
		partyApp: &models.PartyApplication{ID: "pa-1", PartyID: "party-1"},
		quotes: []models.QuoteRentData{{
			QuoteID:         "q1",
			LeaseTermMonths: 12,
			Rent:            decimal.NewFromInt(1500),
			Deposit:         decimal.NewFromInt(500),
		}},
		settings: &models.PropertySettings{
			PropertyID:             "prop-1",
			IncomePolicyRoommates:  models.IncomePolicyIndividual,
			IncomePolicyGuarantors: models.IncomePolicyIndividual,
			MailingAddress: models.Address{
				Line1:      "1 Property Office Way",
				City:       "Austin",
				State:      "TX",
				PostalCode: "78701",
			},
		},
	}
}

// ==========================
// Engine harness
// ==========================

type engine struct {
	orch        *orchestrator.Orchestrator
	mock        sqlmock.Sqlmock
	redis       *database.RedisClient
	mr          *miniredis.Miniredis
	lastWireDoc atomic.Value // string, last request body the provider saw
	calls       atomic.Int64
}

// completeResponder answers a submission with a terminal Complete document
// echoing back the custom records and the applicant identifiers, the way the
// provider's synchronous path behaves.
func (e *engine) completeResponder(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	e.lastWireDoc.Store(string(body))
	e.calls.Add(1)

	var req provider.RequestEnvelope
	if err := xml.Unmarshal(body, &req); err != nil {
		http.Error(w, "bad document", http.StatusBadRequest)
		return
	}

	applicantID := ""
	if len(req.Applicants) > 0 {
		applicantID = req.Applicants[0].AS_Information.ApplicantIdentifier
	}
	reportID := req.Request.ReportID
	if reportID == "" {
		reportID = "RPT-100"
	}

	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?>
<ApplicantScreening>
  <Response>
    <Status>Complete</Status>
    <TransactionNumber>TX-100</TransactionNumber>
    <RequestID_Returned>%s</RequestID_Returned>
    <ApplicationDecision>Approved</ApplicationDecision>
  </Response>
  <LeaseTerms>
    <MonthlyRent>%s</MonthlyRent>
  </LeaseTerms>
  <Applicant>
    <AS_Information>
      <ApplicantType>Resident</ApplicantType>
      <ApplicantIdentifier>%s</ApplicantIdentifier>
    </AS_Information>
    <Name><FirstName>Ada</FirstName><LastName>Lovelace</LastName></Name>
    <CreditScore>712</CreditScore>
  </Applicant>
  <CriteriaInformation>
    <Criteria>
      <CriteriaID>305</CriteriaID>
      <CriteriaDescription>Credit history</CriteriaDescription>
      <PassFail>P</PassFail>
      <ApplicantResults>
        <Applicant ApplicantID="%s">P</Applicant>
      </ApplicantResults>
    </Criteria>
  </CriteriaInformation>
  <CustomRecords>
    <Record><Name>screeningRequestId</Name><Value>%s</Value></Record>
    <Record><Name>tenantId</Name><Value>%s</Value></Record>
  </CustomRecords>
</ApplicantScreening>`,
		reportID,
		req.LeaseTerms.MonthlyRent,
		applicantID,
		applicantID,
		req.CustomRecords.Value(provider.CustomRecordRequestID),
		req.CustomRecords.Value(provider.CustomRecordTenantID),
	)
}

func newEngine(t *testing.T, party *partyFixture) (*engine, func()) {
	t.Helper()

	e := &engine{}

	srv := httptest.NewServer(http.HandlerFunc(e.completeResponder))

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	e.mock = mock

	e.mr = miniredis.RunT(t)
	e.redis, err = database.NewRedis(config.RedisConfig{Address: e.mr.Addr()})
	require.NoError(t, err)

	cfg := &config.Config{
		Provider: config.ProviderConfig{
			URL:          srv.URL,
			OriginatorID: "orig-42",
			UserName:     "fadv-user",
			Password:     "fadv-secret",
			Environment:  "test",
			Timeout:      2000,
		},
		Screening: config.ScreeningConfig{
			NewRequestThreshold: 5,
			NewRequestWindowMin: 30,
			PendingTimeoutMin:   30,
			SubjectLockTTLSec:   30,
		},
	}

	log := logger.NewNoOpLogger()
	e.orch = orchestrator.New(orchestrator.Deps{
		Config: cfg,
		Store:  store.New(db, log),
		Party:  party,
		Client: provider.NewClient(cfg.Provider, log),
		Locks:  e.redis,
		Logger: log,
	})

	cleanup := func() {
		srv.Close()
		e.redis.Close()
		db.Close()
	}
	return e, cleanup
}

func (e *engine) wireDoc() string {
	doc, _ := e.lastWireDoc.Load().(string)
	return doc
}

var requestCols = []string{
	"id", "tenant_id", "party_id", "party_application_id",
	"person_id", "report_name", "request_type",
	"external_report_id", "rent_data", "applicant_data", "raw_request",
	"origin", "parent_request_id", "request_data_diff",
	"is_obsolete", "has_timed_out", "request_result",
	"created_at", "request_ended_at",
}

func priorCompletedRow(id, reportID string, endedAt time.Time) *sqlmock.Rows {
	rentJSON := `{"rent":"1500","leaseTermMonths":12,"deposit":"500","quoteId":"q1"}`
	applicantJSON := `{"tenantId":"tenant-1","partyApplicationId":"pa-1","applicants":[{"applicantId":"app-1","personId":"p1","type":"Resident","firstName":"Ada","lastName":"Lovelace","address":{},"grossIncomeMonthly":"5200"}]}`
	return sqlmock.NewRows(requestCols).AddRow(
		id, "tenant-1", "party-1", "pa-1",
		"", "", "New",
		reportID, []byte(rentJSON), []byte(applicantJSON), "<ApplicantScreening/>",
		models.TopicQuotePublished, nil, nil,
		false, false, "",
		endedAt.Add(-time.Hour), endedAt,
	)
}

// ==========================
// Submission flows
// ==========================

func TestQuotePublished_FirstSubmissionRoundTrip(t *testing.T) {
	e, cleanup := newEngine(t, singleResidentFixture())
	defer cleanup()

	// No prior request for the subject, no rent level screened yet.
	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(sqlmock.NewRows(requestCols))
	e.mock.ExpectQuery(`SELECT rent_data FROM submission_requests`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(sqlmock.NewRows([]string{"rent_data"}))
	e.mock.ExpectQuery(`SELECT COUNT\(\*\) FROM submission_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	e.mock.ExpectExec(`UPDATE submission_requests\s+SET is_obsolete = true`).
		WithArgs("tenant-1", "party-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(sqlmock.NewRows(requestCols))
	e.mock.ExpectExec(`INSERT INTO submission_requests`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// The synchronous Complete answer is correlated and persisted in the
	// same pass: dedup lookup, report id attach, then the response row.
	e.mock.ExpectQuery(`SELECT .+ FROM submission_responses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	e.mock.ExpectQuery(`SELECT external_report_id FROM submission_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"external_report_id"}).AddRow(nil))
	e.mock.ExpectExec(`UPDATE submission_requests\s+SET external_report_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO submission_responses`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := sr.NewHandler(&sr.Config{Timeout: 5 * time.Second}, models.TopicQuotePublished, e.orch, logger.NewNoOpLogger())
	out, err := worker.Execute(context.Background(), &sr.Input{
		TenantID: "tenant-1",
		PartyID:  "party-1",
		MsgID:    "msg-1",
	})
	require.NoError(t, err)

	assert.True(t, out.Processed)
	assert.False(t, out.Skipped)
	assert.Equal(t, "New", out.RequestType)
	assert.NotEmpty(t, out.ScreeningRequestID)

	// The wire payload carries credentials and the raw SSN; the provider
	// needs both verbatim.
	doc := e.wireDoc()
	assert.Contains(t, doc, "<UserName>fadv-user</UserName>")
	assert.Contains(t, doc, "<Password>fadv-secret</Password>")
	assert.Contains(t, doc, "<SocSecNumber>123-45-6789</SocSecNumber>")
	assert.Contains(t, doc, "<RequestType>New</RequestType>")
	assert.Contains(t, doc, "<MonthlyRent>1500.00</MonthlyRent>")

	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestQuotePublished_SecondTriggerReusesReportAsModify(t *testing.T) {
	e, cleanup := newEngine(t, singleResidentFixture())
	defer cleanup()

	endedAt := time.Now().UTC().Add(-2 * time.Hour)
	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(priorCompletedRow("req-prior", "RPT-1", endedAt))
	e.mock.ExpectQuery(`SELECT .+ FROM submission_responses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests`).
		WithArgs("tenant-1", "party-1").
		WillReturnRows(priorCompletedRow("req-prior", "RPT-1", endedAt))
	e.mock.ExpectExec(`INSERT INTO submission_requests`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectQuery(`SELECT .+ FROM submission_responses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	e.mock.ExpectQuery(`SELECT external_report_id FROM submission_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"external_report_id"}).AddRow(nil))
	e.mock.ExpectExec(`UPDATE submission_requests\s+SET external_report_id`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO submission_responses`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := sr.NewHandler(&sr.Config{Timeout: 5 * time.Second}, models.TopicQuotePublished, e.orch, logger.NewNoOpLogger())
	out, err := worker.Execute(context.Background(), &sr.Input{
		TenantID: "tenant-1",
		PartyID:  "party-1",
		RentData: &models.RentData{Rent: decimal.NewFromInt(1650), LeaseTermMonths: 12},
	})
	require.NoError(t, err)

	assert.Equal(t, "Modify", out.RequestType)

	doc := e.wireDoc()
	assert.Contains(t, doc, "<RequestType>Modify</RequestType>")
	assert.Contains(t, doc, "<ReportID>RPT-1</ReportID>")
	// The continuation keeps the applicant identity the provider already has.
	assert.Contains(t, doc, "<ApplicantIdentifier>tenant-1:app-1</ApplicantIdentifier>")

	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestApplicationOnHold_SubmissionSkipped(t *testing.T) {
	fixture := singleResidentFixture()
	fixture.partyApp.IsHeld = true
	fixture.partyApp.HoldReason = "INTERNATIONAL"

	e, cleanup := newEngine(t, fixture)
	defer cleanup()

	worker := sr.NewHandler(&sr.Config{Timeout: 5 * time.Second}, models.TopicQuotePublished, e.orch, logger.NewNoOpLogger())
	out, err := worker.Execute(context.Background(), &sr.Input{
		TenantID: "tenant-1",
		PartyID:  "party-1",
	})
	require.NoError(t, err)

	assert.True(t, out.Skipped)
	assert.Equal(t, "application on hold", out.SkipReason)
	assert.Equal(t, int64(0), e.calls.Load(), "provider must not be called while on hold")
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestSubjectLockContention_IsRetryable(t *testing.T) {
	e, cleanup := newEngine(t, singleResidentFixture())
	defer cleanup()

	// A competing handler already holds the subject lock.
	held, err := e.redis.AcquireLock(context.Background(), "screening:lock:tenant-1:party-1", "other-handler", time.Minute)
	require.NoError(t, err)
	require.True(t, held)

	worker := sr.NewHandler(&sr.Config{Timeout: 5 * time.Second}, models.TopicQuotePublished, e.orch, logger.NewNoOpLogger())
	_, err = worker.Execute(context.Background(), &sr.Input{
		TenantID: "tenant-1",
		PartyID:  "party-1",
	})
	require.Error(t, err)

	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeLockContention, stdErr.Code)
	assert.False(t, errors.IsNoRetry(err), "contention must be redelivered, not acknowledged")
	assert.Equal(t, int64(0), e.calls.Load())
}

// ==========================
// Response flows
// ==========================

func TestPushResponse_DeliveredAndPersisted(t *testing.T) {
	e, cleanup := newEngine(t, singleResidentFixture())
	defer cleanup()

	responseXML := `<?xml version="1.0" encoding="UTF-8"?>
<ApplicantScreening>
  <Response>
    <Status>Complete</Status>
    <TransactionNumber>TX-9</TransactionNumber>
    <RequestID_Returned>RPT-9</RequestID_Returned>
    <ApplicationDecision>Approved</ApplicationDecision>
  </Response>
  <LeaseTerms><MonthlyRent>1500.00</MonthlyRent></LeaseTerms>
  <Applicant>
    <AS_Information>
      <ApplicantType>Resident</ApplicantType>
      <ApplicantIdentifier>tenant-1:app-1</ApplicantIdentifier>
    </AS_Information>
    <Name><FirstName>Ada</FirstName><LastName>Lovelace</LastName></Name>
    <CreditScore>712</CreditScore>
  </Applicant>
  <CustomRecords>
    <Record><Name>screeningRequestId</Name><Value>req-prior</Value></Record>
    <Record><Name>tenantId</Name><Value>tenant-1</Value></Record>
  </CustomRecords>
</ApplicantScreening>`

	pendingRow := sqlmock.NewRows(requestCols).AddRow(
		"req-prior", "tenant-1", "party-1", "pa-1",
		"", "", "New",
		nil, []byte(`{"rent":"1500","leaseTermMonths":12}`),
		[]byte(`{"tenantId":"tenant-1","partyApplicationId":"pa-1","applicants":[{"applicantId":"app-1","personId":"p1","type":"Resident","firstName":"Ada","lastName":"Lovelace","address":{},"grossIncomeMonthly":"5200"}]}`),
		"<ApplicantScreening/>", models.TopicQuotePublished, nil, nil,
		false, false, "",
		time.Now().Add(-time.Hour), nil,
	)

	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests WHERE id = \$1`).
		WithArgs("req-prior").
		WillReturnRows(pendingRow)
	e.mock.ExpectQuery(`SELECT .+ FROM submission_responses`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	e.mock.ExpectQuery(`SELECT external_report_id FROM submission_requests`).
		WillReturnRows(sqlmock.NewRows([]string{"external_report_id"}).AddRow(nil))
	e.mock.ExpectExec(`UPDATE submission_requests\s+SET external_report_id`).
		WithArgs("req-prior", "RPT-9", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	e.mock.ExpectExec(`INSERT INTO submission_responses`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	worker := hr.NewHandler(&hr.Config{Timeout: 5 * time.Second}, e.orch, logger.NewNoOpLogger())
	out, err := worker.Execute(context.Background(), &hr.Input{
		TenantID:    "tenant-1",
		ResponseXML: responseXML,
	})
	require.NoError(t, err)

	assert.True(t, out.Processed)
	assert.Equal(t, "req-prior", out.ScreeningRequestID)
	assert.Equal(t, string(models.StatusComplete), out.Status)
	assert.Equal(t, string(models.DecisionApproved), out.ApplicationDecision)
	assert.NoError(t, e.mock.ExpectationsWereMet())
}

func TestPushResponse_UncorrelatedIsNotRedelivered(t *testing.T) {
	e, cleanup := newEngine(t, singleResidentFixture())
	defer cleanup()

	responseXML := `<?xml version="1.0" encoding="UTF-8"?>
<ApplicantScreening>
  <Response>
    <Status>Complete</Status>
    <TransactionNumber>TX-1</TransactionNumber>
    <ApplicationDecision>Approved</ApplicationDecision>
  </Response>
  <LeaseTerms><MonthlyRent>1500.00</MonthlyRent></LeaseTerms>
  <CustomRecords>
    <Record><Name>screeningRequestId</Name><Value>req-unknown</Value></Record>
  </CustomRecords>
</ApplicantScreening>`

	e.mock.ExpectQuery(`SELECT .+ FROM submission_requests WHERE id = \$1`).
		WithArgs("req-unknown").
		WillReturnRows(sqlmock.NewRows(requestCols))

	worker := hr.NewHandler(&hr.Config{Timeout: 5 * time.Second}, e.orch, logger.NewNoOpLogger())
	_, err := worker.Execute(context.Background(), &hr.Input{
		TenantID:    "tenant-1",
		ResponseXML: responseXML,
	})
	require.Error(t, err)

	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeUncorrelatedResponse, stdErr.Code)
	assert.True(t, errors.IsNoRetry(err))
	assert.NoError(t, e.mock.ExpectationsWereMet())
}
