// Package recovery is the recurring sweep over the tracking store: orphaned
// requests are retransmitted or re-queried, stuck requests are reported back
// into the orchestration pipeline as stuck-request-detected events.
package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/metrics"
	"github.com/max-tl-2000/red-sub014/internal/models"
	"github.com/max-tl-2000/red-sub014/internal/screening/provider"
)

// Store is the slice of the tracking store the sweep reads.
type Store interface {
	FindOrphaned(ctx context.Context, minAge, maxAge time.Duration) ([]models.ScreeningRequest, error)
	FindStuck(ctx context.Context, sla time.Duration) ([]models.ScreeningRequest, error)
}

// ProviderClient retransmits orphaned requests.
type ProviderClient interface {
	Submit(ctx context.Context, rawXML string, requestType models.RequestType) (*provider.SubmitResult, error)
}

// EventPublisher pushes stuck-request events back into the pipeline.
type EventPublisher interface {
	PublishMessage(ctx context.Context, messageName, correlationKey string, variables map[string]interface{}) error
}

// ResponseSink persists responses the provider returns inline on a recovery
// submission, so the sweep itself can resolve an orphan.
type ResponseSink interface {
	HandleRecoveredResult(ctx context.Context, req *models.ScreeningRequest, result *provider.SubmitResult) (*models.ScreeningResponse, error)
}

type Scheduler struct {
	cfg       *config.Config
	store     Store
	client    ProviderClient
	events    EventPublisher
	responses ResponseSink
	builder   *provider.RequestBuilder
	log       logger.Logger
}

func New(cfg *config.Config, store Store, client ProviderClient, events EventPublisher, responses ResponseSink, log logger.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		client:    client,
		events:    events,
		responses: responses,
		builder:   provider.NewRequestBuilder(cfg.Provider),
		log:       log.WithFields(map[string]interface{}{"component": "recovery-scheduler"}),
	}
}

// Run sweeps on the configured interval until the context is canceled. One
// sweep runs immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	interval := s.cfg.Screening.RecoveryInterval()
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	s.log.Info("🔄 Recovery scheduler started", map[string]interface{}{
		"interval": interval.String(),
	})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("recovery scheduler stopped", nil)
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one full pass. Failures on individual records are logged and
// never abort the batch.
func (s *Scheduler) Sweep(ctx context.Context) {
	s.sweepOrphaned(ctx)
	s.sweepStuck(ctx)
}

func (s *Scheduler) sweepOrphaned(ctx context.Context) {
	minAge, maxAge := s.cfg.Screening.OrphanWindow()
	orphans, err := s.store.FindOrphaned(ctx, minAge, maxAge)
	if err != nil {
		s.log.Error("failed to load orphaned requests", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(orphans) == 0 {
		return
	}
	s.log.Info("recovering orphaned requests", map[string]interface{}{"count": len(orphans)})

	s.forEach(ctx, orphans, func(ctx context.Context, req models.ScreeningRequest) {
		if req.ExternalReportID != nil && *req.ExternalReportID != "" {
			s.requeryOrphan(ctx, req)
		} else {
			s.retransmitOrphan(ctx, req)
		}
	})
}

// retransmitOrphan resends the stored wire payload verbatim. No reassembly:
// the provider must see the exact bytes of the original dispatch.
func (s *Scheduler) retransmitOrphan(ctx context.Context, req models.ScreeningRequest) {
	if req.RawRequest == "" {
		s.log.Warn("orphaned request has no stored payload, cannot retransmit", map[string]interface{}{
			"screening_request_id": req.ID,
		})
		return
	}
	result, err := s.client.Submit(ctx, req.RawRequest, req.RequestType)
	if err != nil {
		s.log.Error("orphan retransmission failed", map[string]interface{}{
			"screening_request_id": req.ID,
			"error":                err.Error(),
		})
		return
	}
	metrics.ScreeningRecoveredRequests.WithLabelValues("orphan_retransmit").Inc()
	s.log.Info("orphaned request retransmitted", map[string]interface{}{
		"screening_request_id": req.ID,
	})
	s.handleInline(ctx, req, result)
}

// requeryOrphan asks the provider for the existing report again with a VIEW
// request built from the stored applicant data.
func (s *Scheduler) requeryOrphan(ctx context.Context, req models.ScreeningRequest) {
	var rentData models.RentData
	if req.RentData != nil {
		rentData = *req.RentData
	}
	var applicants []models.ApplicantSnapshot
	if req.ApplicantData != nil {
		applicants = req.ApplicantData.Applicants
	}

	raw, err := s.builder.Build(provider.BuildParams{
		ScreeningRequestID: req.ID,
		TenantID:           req.TenantID,
		RequestType:        models.RequestTypeView,
		ReportID:           *req.ExternalReportID,
		RentData:           rentData,
		Applicants:         applicants,
		ReportName:         req.ReportName,
		Version:            schemaVersion(s.cfg, req.TenantID),
	})
	if err != nil {
		s.log.Error("failed to build view re-query", map[string]interface{}{
			"screening_request_id": req.ID,
			"error":                err.Error(),
		})
		return
	}
	result, err := s.client.Submit(ctx, raw, models.RequestTypeView)
	if err != nil {
		s.log.Error("orphan re-query failed", map[string]interface{}{
			"screening_request_id": req.ID,
			"error":                err.Error(),
		})
		return
	}
	metrics.ScreeningRecoveredRequests.WithLabelValues("orphan_requery").Inc()
	s.log.Info("orphaned request re-queried", map[string]interface{}{
		"screening_request_id": req.ID,
		"external_report_id":   *req.ExternalReportID,
	})
	s.handleInline(ctx, req, result)
}

// handleInline feeds an inline recovery response through response handling.
// Most provider modes answer the submission with the document itself, so
// this is how the sweep actually resolves orphans.
func (s *Scheduler) handleInline(ctx context.Context, req models.ScreeningRequest, result *provider.SubmitResult) {
	if s.responses == nil || result == nil {
		return
	}
	resp, err := s.responses.HandleRecoveredResult(ctx, &req, result)
	if err != nil {
		s.log.Error("failed to persist recovered response", map[string]interface{}{
			"screening_request_id": req.ID,
			"error":                err.Error(),
		})
		return
	}
	if resp != nil {
		s.log.Info("orphaned request resolved by inline response", map[string]interface{}{
			"screening_request_id": req.ID,
			"status":               string(resp.Status),
		})
	}
}

// sweepStuck emits a stuck-request-detected event per request past the SLA.
// The normal NEW/MODIFY decision and rate limiting run when the event comes
// back through the pipeline; nothing is retried from here directly.
func (s *Scheduler) sweepStuck(ctx context.Context) {
	stuck, err := s.store.FindStuck(ctx, s.cfg.Screening.StuckSLA())
	if err != nil {
		s.log.Error("failed to load stuck requests", map[string]interface{}{"error": err.Error()})
		return
	}
	if len(stuck) == 0 {
		return
	}
	s.log.Info("reporting stuck requests", map[string]interface{}{"count": len(stuck)})

	s.forEach(ctx, stuck, func(ctx context.Context, req models.ScreeningRequest) {
		err := s.events.PublishMessage(ctx, models.TopicStuckRequestDetected, req.PartyID, map[string]interface{}{
			"tenantId":           req.TenantID,
			"partyId":            req.PartyID,
			"personId":           req.PersonID,
			"reportName":         req.ReportName,
			"screeningRequestId": req.ID,
		})
		if err != nil {
			s.log.Error("failed to publish stuck request event", map[string]interface{}{
				"screening_request_id": req.ID,
				"error":                err.Error(),
			})
			return
		}
		metrics.ScreeningRecoveredRequests.WithLabelValues("stuck_reported").Inc()
	})
}

// forEach fans the batch out over a bounded worker pool.
func (s *Scheduler) forEach(ctx context.Context, reqs []models.ScreeningRequest, fn func(context.Context, models.ScreeningRequest)) {
	concurrency := s.cfg.Screening.RecoveryConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	for _, req := range reqs {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(req models.ScreeningRequest) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(ctx, req)
		}(req)
	}
	wg.Wait()
}

func schemaVersion(cfg *config.Config, tenantID string) string {
	if cfg.Screening.IsV2Tenant(tenantID) {
		return string(models.SchemaV2)
	}
	return string(models.SchemaV1)
}
