// internal/common/errors/handler.go
package errors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// ErrorHandler maps handler errors onto the queue runtime. Non-retryable
// errors acknowledge the message (complete the job with processed=true) so it
// is never redelivered; retryable errors fail the job with the remaining
// budget so the broker redelivers it.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// HandleJobError handles any error raised by a message handler.
func (h *ErrorHandler) HandleJobError(ctx context.Context, client worker.JobClient, job entities.Job, err error) {
	stdErr := h.normalizeError(err)
	h.logError(job, stdErr)

	retries := GetRetryCount(stdErr.Code)
	if stdErr.Retryable && retries > 0 && job.Retries > 0 {
		h.failJobWithRetries(ctx, client, job, stdErr, retries)
		return
	}
	h.acknowledgeJob(ctx, client, job, stdErr)
}

// normalizeError ensures we always have a StandardError.
func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func (h *ErrorHandler) failJobWithRetries(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError, maxRetries int) {
	retriesToUse := maxRetries
	if job.Retries > 0 && int(job.Retries) < maxRetries {
		retriesToUse = int(job.Retries)
	}

	_, _ = client.NewFailJobCommand().
		JobKey(job.Key).
		Retries(int32(retriesToUse)).
		ErrorMessage(stdErr.Message).
		Send(ctx)
}

// acknowledgeJob completes the job with processed=true. The error context is
// carried in the completion variables so downstream steps can see what broke.
func (h *ErrorHandler) acknowledgeJob(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *StandardError) {
	vars := map[string]interface{}{
		"processed":    true,
		"errorCode":    string(stdErr.Code),
		"errorMessage": stdErr.Message,
	}
	varsJSON, _ := json.Marshal(vars)

	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromString(string(varsJSON))
	if err != nil {
		_, _ = client.NewCompleteJobCommand().JobKey(job.Key).Send(ctx)
		return
	}
	_, _ = cmd.Send(ctx)
}

func (h *ErrorHandler) logError(job entities.Job, stdErr *StandardError) {
	h.logger.Error("Job failed", map[string]interface{}{
		"jobKey":        job.Key,
		"jobType":       job.Type,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"retries":       GetRetryCount(stdErr.Code),
		"errorCategory": GetErrorCategory(stdErr.Code),
	})
}
