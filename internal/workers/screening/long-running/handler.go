// internal/workers/screening/long-running/handler.go
package longrunning

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/metrics"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

const TaskType = models.TopicLongRunningRequests

// StuckFinder lists requests pending past the given SLA.
type StuckFinder interface {
	FindStuck(ctx context.Context, sla time.Duration) ([]models.ScreeningRequest, error)
}

// AlertSender mails operations about a request stuck past the SLA.
type AlertSender interface {
	SendLongRunningAlert(ctx context.Context, alert models.LongRunningAlert) error
}

type Handler struct {
	cfg        *Config
	finder     StuckFinder
	alerts     AlertSender
	errHandler *errors.ErrorHandler
	logger     logger.Logger
}

func NewHandler(cfg *Config, finder StuckFinder, alerts AlertSender, log logger.Logger) *Handler {
	return &Handler{
		cfg:        cfg,
		finder:     finder,
		alerts:     alerts,
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
	sla := h.cfg.SLA
	if input.SLAHours > 0 {
		sla = time.Duration(input.SLAHours) * time.Hour
	}

	stuck, err := h.finder.FindStuck(ctx, sla)
	if err != nil {
		return nil, err
	}

	out := &Output{Processed: true, LongRunning: len(stuck)}
	byTenant := map[string]int{}
	now := time.Now().UTC()

	for _, req := range stuck {
		byTenant[req.TenantID]++

		alert := models.LongRunningAlert{
			ScreeningRequestID: req.ID,
			TenantID:           req.TenantID,
			PartyID:            req.PartyID,
			RequestType:        string(req.RequestType),
			PendingFor:         now.Sub(req.CreatedAt).Round(time.Minute).String(),
		}
		if req.ExternalReportID != nil {
			alert.TransactionNumber = *req.ExternalReportID
		}

		if err := h.alerts.SendLongRunningAlert(ctx, alert); err != nil {
			// The next sweep will alert again; a mail failure is not worth a
			// redelivery of the whole sweep.
			h.logger.Warn("failed to send long-running alert", map[string]interface{}{
				"screeningRequestId": req.ID,
				"error":              err.Error(),
			})
			continue
		}
		out.Alerted++
	}

	for tenantID, n := range byTenant {
		metrics.ScreeningPendingRequests.WithLabelValues(tenantID).Set(float64(n))
	}

	if len(stuck) > 0 {
		h.logger.Warn(fmt.Sprintf("⚠️ %d screening requests pending past SLA", len(stuck)), map[string]interface{}{
			"sla":     sla.String(),
			"alerted": out.Alerted,
		})
	}
	return out, nil
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
