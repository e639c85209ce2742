// internal/workers/screening/party-lifecycle/handler.go
package partylifecycle

import (
	"context"
	"encoding/json"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/store"
)

// LifecycleTopics are the party end-of-life events. Both retire every live
// screening request for the party; an archived or closed party must never
// receive another submission.
var LifecycleTopics = []string{
	models.TopicPartyClosed,
	models.TopicPartyArchived,
}

type Obsoleter interface {
	MarkAllObsoleteForSubject(ctx context.Context, subject store.Subject) (int64, error)
}

type Handler struct {
	cfg        *Config
	topic      string
	tracking   Obsoleter
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, topic string, tracking Obsoleter, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		topic:      topic,
		tracking:   tracking,
		errHandler: errors.NewErrorHandler(log),
		logger:     log.WithFields(map[string]interface{}{"taskType": topic}),
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
		return nil, errors.NewMissingTenantError(h.topic)
	}
	if input.PartyID == "" {
		return nil, errors.NewValidationError(errors.ErrCodeMissingParty, "lifecycle event has no partyId")
	}

	n, err := h.tracking.MarkAllObsoleteForSubject(ctx, store.Subject{
		TenantID: input.TenantID,
		PartyID:  input.PartyID,
	})
	if err != nil {
		return nil, err
	}

	h.logger.Info("retired screening requests for party", map[string]interface{}{
		"tenantId": input.TenantID,
		"partyId":  input.PartyID,
		"retired":  n,
	})
	return &Output{Processed: true, Retired: n}, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
