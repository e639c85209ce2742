// internal/workers/screening/submit-request/handler.go
package submitrequest

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

// TriggerTopics lists every inbound topic this worker subscribes to. One
// handler instance is registered per topic.
var TriggerTopics = []string{
	models.TopicPaymentProcessed,
	models.TopicQuotePublished,
	models.TopicApplicantDataUpdated,
	models.TopicApplicationHoldChanged,
	models.TopicPartyMembersChanged,
	models.TopicApplicantMemberTypeChanged,
	models.TopicForceRescreening,
	models.TopicSendSsnChanged,
	models.TopicStuckRequestDetected,
	models.TopicRerunExpiredScreening,
}

// Screener is the slice of the orchestrator this worker drives.
type Screener interface {
	Screen(ctx context.Context, p orchestrator.ScreenParams) (*orchestrator.ScreenResult, error)
}

type Handler struct {
	cfg        *Config
	topic      string
	screener   Screener
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, topic string, screener Screener, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		topic:      topic,
		screener:   screener,
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
	params, act := ParamsForTopic(h.topic, input)
	if !act {
		h.logger.Debug("topic requires no screening action", map[string]interface{}{
			"tenantId": input.TenantID,
			"partyId":  input.PartyID,
		})
		return &Output{Processed: true, Skipped: true, SkipReason: "no screening action for topic"}, nil
	}

	result, err := h.screener.Screen(ctx, params)
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

// ParamsForTopic maps an inbound trigger onto screening parameters. The
// second return is false when the topic needs no provider interaction.
//
// Roster and applicant-data changes invalidate every live request for the
// subject, so those topics set ObsoleteExisting. Forced rescreens
// additionally bypass the pending-request guard.
func ParamsForTopic(topic string, msg *models.ScreeningEventMessage) (orchestrator.ScreenParams, bool) {
	p := orchestrator.ScreenParams{
		TenantID: msg.TenantID,
		PartyID:  msg.PartyID,
		PersonID: msg.PersonID,
		Origin:   topic,
		RentData: msg.RentData,
	}

	switch topic {
	case models.TopicPaymentProcessed:
		// Payment alone never triggers a submission; screening starts when
		// a quote is published.
		return p, false

	case models.TopicQuotePublished, models.TopicApplicationHoldChanged:
		return p, true

	case models.TopicApplicantDataUpdated,
		models.TopicPartyMembersChanged,
		models.TopicApplicantMemberTypeChanged,
		models.TopicSendSsnChanged:
		p.ObsoleteExisting = true
		return p, true

	case models.TopicForceRescreening:
		p.ObsoleteExisting = true
		p.ForceNew = true
		p.TypeHint = typeHint(msg.ScreeningTypeRequested)
		return p, true

	case models.TopicStuckRequestDetected:
		p.ObsoleteExisting = true
		p.ForceNew = true
		return p, true

	case models.TopicRerunExpiredScreening:
		p.ForceNew = true
		return p, true
	}

	return p, false
}

func typeHint(requested string) models.RequestType {
	switch models.RequestType(requested) {
	case models.RequestTypeView:
		return models.RequestTypeView
	case models.RequestTypeResetCredit:
		return models.RequestTypeResetCredit
	}
	return ""
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
