// internal/workers/screening/poll-responses/handler_test.go
package pollresponses

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeFinder struct {
	pending []models.ScreeningRequest
	err     error
}

func (f *fakeFinder) FindPendingWithReportID(_ context.Context, _ string) ([]models.ScreeningRequest, error) {
	return f.pending, f.err
}

type fakeScreener struct {
	params  []orchestrator.ScreenParams
	failFor map[string]error
}

func (f *fakeScreener) Screen(_ context.Context, p orchestrator.ScreenParams) (*orchestrator.ScreenResult, error) {
	f.params = append(f.params, p)
	if err, ok := f.failFor[p.PartyID]; ok {
		return nil, err
	}
	return &orchestrator.ScreenResult{Request: &models.ScreeningRequest{ID: "req-view"}}, nil
}

func pendingRequest(id, partyID string) models.ScreeningRequest {
	reportID := "RPT-" + id
	return models.ScreeningRequest{
		ID:               id,
		TenantID:         "tenant-1",
		PartyID:          partyID,
		RequestType:      models.RequestTypeNew,
		ExternalReportID: &reportID,
	}
}

// ==========================
// Execute
// ==========================

func TestExecute_RequeriesEveryPendingRequest(t *testing.T) {
	finder := &fakeFinder{pending: []models.ScreeningRequest{
		pendingRequest("r1", "party-1"),
		pendingRequest("r2", "party-2"),
	}}
	screener := &fakeScreener{}
	h := NewHandler(LoadConfig(), finder, screener, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Pending)
	assert.Equal(t, 2, out.Requeried)
	assert.Equal(t, 0, out.Failed)

	require.Len(t, screener.params, 2)
	for _, p := range screener.params {
		assert.Equal(t, models.RequestTypeView, p.TypeHint)
		assert.Equal(t, TaskType, p.Origin)
	}
}

func TestExecute_OneFailureDoesNotAbortBatch(t *testing.T) {
	finder := &fakeFinder{pending: []models.ScreeningRequest{
		pendingRequest("r1", "party-1"),
		pendingRequest("r2", "party-2"),
		pendingRequest("r3", "party-3"),
	}}
	screener := &fakeScreener{failFor: map[string]error{
		"party-2": errors.NewProviderTransportError(fmt.Errorf("gateway timeout")),
	}}
	h := NewHandler(LoadConfig(), finder, screener, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Requeried)
	assert.Equal(t, 1, out.Failed)
}

func TestExecute_CapsBatchSize(t *testing.T) {
	var pending []models.ScreeningRequest
	for i := 0; i < 5; i++ {
		pending = append(pending, pendingRequest(fmt.Sprintf("r%d", i), fmt.Sprintf("party-%d", i)))
	}
	finder := &fakeFinder{pending: pending}
	screener := &fakeScreener{}

	cfg := LoadConfig()
	cfg.MaxPerRun = 3
	h := NewHandler(cfg, finder, screener, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), &Input{TenantID: "tenant-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, out.Requeried)
	assert.Len(t, screener.params, 3)
}

func TestExecute_MissingTenantIsRejected(t *testing.T) {
	h := NewHandler(LoadConfig(), &fakeFinder{}, &fakeScreener{}, logger.NewNoOpLogger())

	_, err := h.Execute(context.Background(), &Input{})
	require.Error(t, err)
	assert.True(t, errors.IsNoRetry(err))
}
