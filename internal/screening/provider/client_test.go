package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

const sampleResponseXML = `<?xml version="1.0"?>
<ApplicantScreening>
  <Response>
    <Status>Complete</Status>
    <TransactionNumber>TXN-77</TransactionNumber>
    <RequestID_Returned>RPT-42</RequestID_Returned>
    <ApplicationDecision>Approved</ApplicationDecision>
  </Response>
  <LeaseTerms>
    <MonthlyRent>1650.00</MonthlyRent>
  </LeaseTerms>
  <CustomRecords>
    <Record><Name>screeningRequestId</Name><Value>req-001</Value></Record>
    <Record><Name>tenantId</Name><Value>tenant-1</Value></Record>
  </CustomRecords>
</ApplicantScreening>`

func newTestClient(url string) *Client {
	cfg := testProviderConfig()
	cfg.URL = url
	return NewClient(cfg, logger.NewNoOpLogger())
}

func TestSubmitParsesInlineResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.Header.Get("Content-Type"), "text/xml")
		w.Write([]byte(sampleResponseXML))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeNew)
	require.NoError(t, err)
	require.NotNil(t, result.Parsed)
	assert.Equal(t, "req-001", result.ScreeningRequestID)
	assert.Equal(t, "RPT-42", result.Parsed.Response.RequestIDReturned)
	assert.Equal(t, "TXN-77", result.Parsed.Response.TransactionNumber)
	assert.Equal(t, sampleResponseXML, result.Raw)
}

func TestSubmitRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(sampleResponseXML))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeNew)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.NotNil(t, result.Parsed)
}

func TestSubmitExhaustsRetries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeNew)
	require.Error(t, err)

	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeProviderTransport, stdErr.Code)
	// MaxRetries=2 means three attempts total
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestSubmitDoesNotRetryRejections(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeNew)
	require.Error(t, err)

	stdErr, ok := errors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeProviderBusiness, stdErr.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestSubmitAckWithoutDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("  \n"))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeView)
	require.NoError(t, err)
	assert.Nil(t, result.Parsed)
	assert.Nil(t, result.ParseErr)
}

func TestSubmitUnparsableBodyIsNotAnAck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<ApplicantScreening><Respon"))
	}))
	defer srv.Close()

	result, err := newTestClient(srv.URL).Submit(context.Background(), "<ApplicantScreening/>", models.RequestTypeNew)
	require.NoError(t, err)
	assert.Nil(t, result.Parsed)
	require.NotNil(t, result.ParseErr)
	assert.Equal(t, "<ApplicantScreening><Respon", result.Raw)
}

func TestParseRejectsIncompleteDocuments(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not xml", "definitely not xml <"},
		{"missing decision", `<ApplicantScreening><Response><Status>Complete</Status></Response><LeaseTerms><MonthlyRent>1650</MonthlyRent></LeaseTerms></ApplicantScreening>`},
		{"missing rent", `<ApplicantScreening><Response><ApplicationDecision>Approved</ApplicationDecision></Response></ApplicantScreening>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			require.Error(t, err)
			stdErr, ok := errors.AsStandardError(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeResponseUnparsable, stdErr.Code)
		})
	}
}
