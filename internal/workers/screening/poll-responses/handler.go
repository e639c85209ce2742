// internal/workers/screening/poll-responses/handler.go
package pollresponses

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/metrics"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
)

const TaskType = models.TopicPollUnreceivedResponses

// PendingFinder lists submitted requests that hold a provider report id but
// have no terminal response yet.
type PendingFinder interface {
	FindPendingWithReportID(ctx context.Context, tenantID string) ([]models.ScreeningRequest, error)
}

type Screener interface {
	Screen(ctx context.Context, p orchestrator.ScreenParams) (*orchestrator.ScreenResult, error)
}

// Handler re-queries pending reports with a View request. The provider does
// not always push responses reliably; polling closes the gap for requests
// that already have a report on file.
type Handler struct {
	cfg        *Config
	finder     PendingFinder
	screener   Screener
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, finder PendingFinder, screener Screener, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		finder:     finder,
		screener:   screener,
		errHandler: errors.NewErrorHandler(log),
		logger:     log.WithFields(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job,
			errors.NewValidationError(errors.ErrCodeInvalidMessage, err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.cfg.Timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errHandler.HandleJobError(context.Background(), client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err = cmd.Send(context.Background()); err != nil {
		h.logger.Error("failed to complete job", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input.TenantID == "" {
		return nil, errors.NewMissingTenantError(TaskType)
	}

	pending, err := h.finder.FindPendingWithReportID(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}
	metrics.ScreeningPendingRequests.WithLabelValues(input.TenantID).Set(float64(len(pending)))

	if len(pending) > h.cfg.MaxPerRun {
		pending = pending[:h.cfg.MaxPerRun]
	}

	out := &Output{Processed: true, Pending: len(pending)}
	for _, req := range pending {
		_, err := h.screener.Screen(ctx, orchestrator.ScreenParams{
			TenantID:   req.TenantID,
			PartyID:    req.PartyID,
			PersonID:   req.PersonID,
			ReportName: req.ReportName,
			Origin:     TaskType,
			TypeHint:   models.RequestTypeView,
		})
		if err != nil {
			// A single stubborn report must not starve the rest of the batch.
			h.logger.Warn("poll re-query failed", map[string]interface{}{
				"screeningRequestId": req.ID,
				"error":              err.Error(),
			})
			out.Failed++
			continue
		}
		out.Requeried++
	}

	h.logger.Info("poll sweep finished", map[string]interface{}{
		"tenantId":  input.TenantID,
		"pending":   out.Pending,
		"requeried": out.Requeried,
		"failed":    out.Failed,
	})
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
