// internal/workers/screening/handle-response/handler.go
package handleresponse

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

const TaskType = models.TopicResponseReceived

// Responder is the slice of the orchestrator this worker drives.
type Responder interface {
	HandleResponse(ctx context.Context, p orchestrator.ResponseParams) (*models.ScreeningResponse, error)
}

type Handler struct {
	cfg        *Config
	responder  Responder
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, responder Responder, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		responder:  responder,
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
	if input.ResponseXML == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidMessage, "response message has no payload")
	}

	origin := input.Origin
	if origin == "" {
		origin = TaskType
	}

	resp, err := h.responder.HandleResponse(ctx, orchestrator.ResponseParams{
		TenantID:               input.TenantID,
		RawXML:                 input.ResponseXML,
		ScreeningRequestIDHint: input.ScreeningRequestID,
		Origin:                 origin,
	})
	if err != nil {
		return nil, err
	}

	return &Output{
		Processed:           true,
		ScreeningResponseID: resp.ID,
		ScreeningRequestID:  resp.SubmissionRequestID,
		Status:              string(resp.Status),
		ApplicationDecision: string(resp.ApplicationDecision),
	}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
