package recovery

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
)

type fakeStore struct {
	orphaned []models.ScreeningRequest
	stuck    []models.ScreeningRequest
	err      error
}

func (f *fakeStore) FindOrphaned(ctx context.Context, minAge, maxAge time.Duration) ([]models.ScreeningRequest, error) {
	return f.orphaned, f.err
}

func (f *fakeStore) FindStuck(ctx context.Context, sla time.Duration) ([]models.ScreeningRequest, error) {
	return f.stuck, f.err
}

type fakeClient struct {
	mu        sync.Mutex
	submitted []submission
	result    *provider.SubmitResult
	err       error
}

type submission struct {
	raw         string
	requestType models.RequestType
}

func (f *fakeClient) Submit(ctx context.Context, rawXML string, requestType models.RequestType) (*provider.SubmitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.submitted = append(f.submitted, submission{raw: rawXML, requestType: requestType})
	if f.result != nil {
		return f.result, nil
	}
	return &provider.SubmitResult{Raw: "OK"}, nil
}

type fakeSink struct {
	mu       sync.Mutex
	received []string
	err      error
}

func (f *fakeSink) HandleRecoveredResult(ctx context.Context, req *models.ScreeningRequest, result *provider.SubmitResult) (*models.ScreeningResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.received = append(f.received, req.ID)
	if result.Parsed == nil {
		return nil, nil
	}
	return &models.ScreeningResponse{ID: "resp-1", SubmissionRequestID: req.ID, Status: models.StatusComplete}, nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []map[string]interface{}
	err       error
}

func (f *fakePublisher) PublishMessage(ctx context.Context, messageName, correlationKey string, variables map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	variables["_message"] = messageName
	variables["_key"] = correlationKey
	f.published = append(f.published, variables)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Provider = config.ProviderConfig{
		URL: "https://fadv.test", OriginatorID: "12345",
		UserName: "u", Password: "p", Environment: "test",
	}
	cfg.Screening.OrphanMinAgeMin = 10
	cfg.Screening.OrphanMaxAgeMin = 120
	cfg.Screening.StuckSLAMin = 60
	cfg.Screening.RecoveryConcurrency = 2
	return cfg
}

func newScheduler(store *fakeStore, client *fakeClient, pub *fakePublisher) *Scheduler {
	return New(testConfig(), store, client, pub, &fakeSink{}, logger.NewNoOpLogger())
}

func TestSweepRetransmitsOrphansWithoutReportID(t *testing.T) {
	client := &fakeClient{}
	store := &fakeStore{orphaned: []models.ScreeningRequest{
		{ID: "req-1", TenantID: "tenant-1", RequestType: models.RequestTypeNew, RawRequest: "<ApplicantScreening>original</ApplicantScreening>"},
	}}

	newScheduler(store, client, &fakePublisher{}).Sweep(context.Background())

	require.Len(t, client.submitted, 1)
	// exact retransmission, no reassembly
	assert.Equal(t, "<ApplicantScreening>original</ApplicantScreening>", client.submitted[0].raw)
	assert.Equal(t, models.RequestTypeNew, client.submitted[0].requestType)
}

func TestSweepRequeriesOrphansWithReportID(t *testing.T) {
	client := &fakeClient{}
	reportID := "RPT-42"
	store := &fakeStore{orphaned: []models.ScreeningRequest{
		{
			ID: "req-1", TenantID: "tenant-1",
			RequestType:      models.RequestTypeNew,
			ExternalReportID: &reportID,
			RawRequest:       "<ApplicantScreening>original</ApplicantScreening>",
			ApplicantData: &models.ApplicantData{Applicants: []models.ApplicantSnapshot{
				{ApplicantID: "app-1", PersonID: "person-1", Type: models.MemberTypeResident, FirstName: "Trisha", LastName: "Dean"},
			}},
		},
	}}

	newScheduler(store, client, &fakePublisher{}).Sweep(context.Background())

	require.Len(t, client.submitted, 1)
	assert.Equal(t, models.RequestTypeView, client.submitted[0].requestType)
	assert.Contains(t, client.submitted[0].raw, "<ReportID>RPT-42</ReportID>")
	assert.Contains(t, client.submitted[0].raw, "<RequestType>View</RequestType>")
}

func TestSweepFeedsInlineResponsesToTheSink(t *testing.T) {
	parsed := &provider.SubmitResult{
		Raw: "<ApplicantScreening/>",
		Parsed: &provider.ResponseEnvelope{
			Response: provider.ResponseBlock{Status: "Complete", TransactionNumber: "TXN-1"},
		},
	}

	t.Run("retransmission answered with the document", func(t *testing.T) {
		client := &fakeClient{result: parsed}
		sink := &fakeSink{}
		store := &fakeStore{orphaned: []models.ScreeningRequest{
			{ID: "req-1", TenantID: "tenant-1", RequestType: models.RequestTypeNew, RawRequest: "<a/>"},
		}}

		s := New(testConfig(), store, client, &fakePublisher{}, sink, logger.NewNoOpLogger())
		s.Sweep(context.Background())

		assert.Equal(t, []string{"req-1"}, sink.received)
	})

	t.Run("requery answered with the document", func(t *testing.T) {
		client := &fakeClient{result: parsed}
		sink := &fakeSink{}
		reportID := "RPT-42"
		store := &fakeStore{orphaned: []models.ScreeningRequest{
			{
				ID: "req-1", TenantID: "tenant-1",
				RequestType:      models.RequestTypeNew,
				ExternalReportID: &reportID,
				RawRequest:       "<a/>",
				ApplicantData: &models.ApplicantData{Applicants: []models.ApplicantSnapshot{
					{ApplicantID: "app-1", PersonID: "person-1", Type: models.MemberTypeResident},
				}},
			},
		}}

		s := New(testConfig(), store, client, &fakePublisher{}, sink, logger.NewNoOpLogger())
		s.Sweep(context.Background())

		assert.Equal(t, []string{"req-1"}, sink.received)
	})

	t.Run("bare ack leaves the orphan for push or poll", func(t *testing.T) {
		client := &fakeClient{}
		sink := &fakeSink{}
		store := &fakeStore{orphaned: []models.ScreeningRequest{
			{ID: "req-1", TenantID: "tenant-1", RequestType: models.RequestTypeNew, RawRequest: "<a/>"},
		}}

		s := New(testConfig(), store, client, &fakePublisher{}, sink, logger.NewNoOpLogger())
		s.Sweep(context.Background())

		// the sink saw the ack but had nothing to persist
		assert.Equal(t, []string{"req-1"}, sink.received)
	})
}

func TestSweepReportsStuckRequests(t *testing.T) {
	pub := &fakePublisher{}
	store := &fakeStore{stuck: []models.ScreeningRequest{
		{ID: "req-1", TenantID: "tenant-1", PartyID: "party-1"},
		{ID: "req-2", TenantID: "tenant-1", PartyID: "party-2", PersonID: "person-9", ReportName: "credit"},
	}}

	newScheduler(store, &fakeClient{}, pub).Sweep(context.Background())

	require.Len(t, pub.published, 2)
	for _, vars := range pub.published {
		assert.Equal(t, models.TopicStuckRequestDetected, vars["_message"])
	}
}

func TestSweepFailureOnOneRecordDoesNotAbortBatch(t *testing.T) {
	pub := &fakePublisher{err: fmt.Errorf("gateway unavailable")}
	client := &fakeClient{}
	store := &fakeStore{
		orphaned: []models.ScreeningRequest{
			{ID: "req-1", TenantID: "tenant-1", RequestType: models.RequestTypeNew, RawRequest: "<a/>"},
			{ID: "req-2", TenantID: "tenant-1", RequestType: models.RequestTypeNew, RawRequest: "<b/>"},
		},
		stuck: []models.ScreeningRequest{
			{ID: "req-3", TenantID: "tenant-1", PartyID: "party-1"},
		},
	}

	// stuck publishing fails for every record, orphans still go out
	newScheduler(store, client, pub).Sweep(context.Background())
	assert.Len(t, client.submitted, 2)
	assert.Empty(t, pub.published)
}

func TestSweepSkipsOrphanWithoutStoredPayload(t *testing.T) {
	client := &fakeClient{}
	store := &fakeStore{orphaned: []models.ScreeningRequest{
		{ID: "req-1", TenantID: "tenant-1", RequestType: models.RequestTypeNew},
	}}

	newScheduler(store, client, &fakePublisher{}).Sweep(context.Background())
	assert.Empty(t, client.submitted)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	store := &fakeStore{}
	s := newScheduler(store, &fakeClient{}, &fakePublisher{})

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
