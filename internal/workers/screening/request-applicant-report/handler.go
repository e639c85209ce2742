// internal/workers/screening/request-applicant-report/handler.go
package requestapplicantreport

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/orchestrator"
)

const TaskType = models.TopicRequestApplicantReport

type Screener interface {
	Screen(ctx context.Context, p orchestrator.ScreenParams) (*orchestrator.ScreenResult, error)
}

// Handler runs the per-person report flow for v2 tenants. The subject is a
// single person and report name rather than the whole party.
type Handler struct {
	cfg        *Config
	screener   Screener
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, screener Screener, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
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
	if input.PersonID == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidMessage, "applicant report message has no personId")
	}
	if input.ReportName != models.ReportNameCredit && input.ReportName != models.ReportNameCriminal {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidMessage,
			"unknown report name: "+input.ReportName)
	}

	result, err := h.screener.Screen(ctx, orchestrator.ScreenParams{
		TenantID:   input.TenantID,
		PartyID:    input.PartyID,
		PersonID:   input.PersonID,
		ReportName: input.ReportName,
		Origin:     TaskType,
		ForceNew:   input.ForceNew,
	})
	if err != nil {
		return nil, err
	}
	if result.Skipped {
		return &Output{Processed: true, Skipped: true, SkipReason: result.SkipReason}, nil
	}

	out := &Output{Processed: true}
	if result.Request != nil {
		out.ScreeningRequestID = result.Request.ID
		out.RequestType = string(result.Request.RequestType)
	}
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
