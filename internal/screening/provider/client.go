package provider

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/max-tl-2000/red-sub014/internal/common/config"
	"github.com/max-tl-2000/red-sub014/internal/common/errors"
	commonhttp "github.com/max-tl-2000/red-sub014/internal/common/http"
	"github.com/max-tl-2000/red-sub014/internal/common/logger"
	"github.com/max-tl-2000/red-sub014/internal/common/metrics"
	"github.com/max-tl-2000/red-sub014/internal/models"
)

const maxResponseBytes = 4 << 20

// SubmitResult is what a successful POST hands back. Raw is the verbatim
// response body; Parsed is nil when the body was not a screening document.
// An empty body is a bare ack (some gateways answer submissions that way);
// a non-empty body that failed to parse sets ParseErr so the caller can
// persist a terminal error instead of treating it as an ack.
type SubmitResult struct {
	Raw                string
	Parsed             *ResponseEnvelope
	ParseErr           error
	ScreeningRequestID string
}

// Client posts request documents to FADV. Transport failures are retried
// with a short backoff up to cfg.MaxRetries; anything the provider actually
// answered is returned as-is and judged by the response package.
type Client struct {
	cfg  config.ProviderConfig
	http *commonhttp.Client
	log  logger.Logger
}

func NewClient(cfg config.ProviderConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.Timeout) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: commonhttp.NewClient(timeout),
		log:  log.WithFields(map[string]interface{}{"component": "provider-client"}),
	}
}

// Submit posts the raw XML document. requestType only labels metrics and
// logs; the document itself carries the mode.
func (c *Client) Submit(ctx context.Context, rawXML string, requestType models.RequestType) (*SubmitResult, error) {
	start := time.Now()
	defer func() {
		metrics.ScreeningProviderDuration.WithLabelValues(string(requestType)).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(500*(1<<(attempt-1))) * time.Millisecond
			c.log.Warn("retrying provider call", map[string]interface{}{
				"attempt":      attempt,
				"request_type": string(requestType),
				"backoff_ms":   backoff.Milliseconds(),
			})
			select {
			case <-ctx.Done():
				return nil, errors.NewProviderTransportError(ctx.Err())
			case <-time.After(backoff):
			}
		}

		result, err := c.post(ctx, rawXML)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.IsNoRetry(err) {
			return nil, err
		}
	}
	return nil, errors.NewProviderTransportError(
		fmt.Errorf("provider call failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr))
}

func (c *Client) post(ctx context.Context, rawXML string) (*SubmitResult, error) {
	req, err := http.NewRequest(http.MethodPost, c.cfg.URL, strings.NewReader(rawXML))
	if err != nil {
		return nil, errors.NewInternalError(fmt.Errorf("provider request: %w", err))
	}
	req.Header.Set("Content-Type", "text/xml; charset=utf-8")
	req.Header.Set("Accept", "text/xml")

	resp, err := c.http.DoWithContext(ctx, req)
	if err != nil {
		return nil, errors.NewProviderTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewProviderTransportError(err)
	}

	if resp.StatusCode >= 500 {
		return nil, errors.NewProviderTransportError(
			fmt.Errorf("provider returned status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, errors.NewProviderBusinessError("",
			fmt.Sprintf("provider rejected request with status %d", resp.StatusCode))
	}

	raw := string(body)
	result := &SubmitResult{Raw: raw}
	if strings.TrimSpace(raw) == "" {
		return result, nil
	}
	parsed, perr := Parse(raw)
	if perr != nil {
		result.ParseErr = perr
		return result, nil
	}
	result.Parsed = parsed
	result.ScreeningRequestID = parsed.CustomRecords.Value(CustomRecordRequestID)
	return result, nil
}

// Parse decodes a provider document and checks the fields every usable
// response must carry. An envelope that decodes but fails the shape check
// comes back with ErrCodeResponseUnparsable.
func Parse(raw string) (*ResponseEnvelope, error) {
	var env ResponseEnvelope
	if err := xml.Unmarshal([]byte(raw), &env); err != nil {
		return nil, errors.NewResponseUnparsableError(err.Error())
	}
	if env.Response.ApplicationDecision == "" {
		return nil, errors.NewResponseUnparsableError("missing ApplicationDecision")
	}
	if env.LeaseTerms.MonthlyRent == "" {
		return nil, errors.NewResponseUnparsableError("missing LeaseTerms.MonthlyRent")
	}
	return &env, nil
}
