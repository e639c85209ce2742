// internal/workers/screening/request-applicant-report/handler_test.go
package requestapplicantreport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
)

type fakeScreener struct {
	lastParams orchestrator.ScreenParams
	calls      int
}

func (f *fakeScreener) Screen(_ context.Context, p orchestrator.ScreenParams) (*orchestrator.ScreenResult, error) {
	f.calls++
	f.lastParams = p
	return &orchestrator.ScreenResult{
		Request: &models.ScreeningRequest{ID: "req-v2", RequestType: models.RequestTypeNew},
	}, nil
}

func validInput() *Input {
	return &Input{
		TenantID:   "tenant-v2",
		PartyID:    "party-1",
		PersonID:   "p1",
		ReportName: models.ReportNameCriminal,
	}
}

func TestExecute_ScreensPersonReportSubject(t *testing.T) {
	screener := &fakeScreener{}
	h := NewHandler(LoadConfig(), screener, logger.NewNoOpLogger())

	out, err := h.Execute(context.Background(), validInput())
	require.NoError(t, err)
	assert.Equal(t, "req-v2", out.ScreeningRequestID)

	assert.Equal(t, "p1", screener.lastParams.PersonID)
	assert.Equal(t, models.ReportNameCriminal, screener.lastParams.ReportName)
	assert.Equal(t, TaskType, screener.lastParams.Origin)
}

func TestExecute_ForceNewPassesThrough(t *testing.T) {
	screener := &fakeScreener{}
	h := NewHandler(LoadConfig(), screener, logger.NewNoOpLogger())

	input := validInput()
	input.ForceNew = true
	_, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.True(t, screener.lastParams.ForceNew)
}

func TestExecute_MissingPersonIsRejected(t *testing.T) {
	screener := &fakeScreener{}
	h := NewHandler(LoadConfig(), screener, logger.NewNoOpLogger())

	input := validInput()
	input.PersonID = ""
	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.IsNoRetry(err))
	assert.Equal(t, 0, screener.calls)
}

func TestExecute_UnknownReportNameIsRejected(t *testing.T) {
	screener := &fakeScreener{}
	h := NewHandler(LoadConfig(), screener, logger.NewNoOpLogger())

	input := validInput()
	input.ReportName = "eviction"
	_, err := h.Execute(context.Background(), input)
	require.Error(t, err)
	assert.True(t, errors.IsNoRetry(err))
}
