// Package errors provides standardized error handling for the screening
// message pipeline.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Non-retryable input errors. The message is acknowledged and dropped.
	ErrCodeMissingTenant        ErrorCode = "MISSING_TENANT_ID"
	ErrCodeMissingParty         ErrorCode = "MISSING_PARTY_ID"
	ErrCodeNoPartyMembers       ErrorCode = "NO_PARTY_MEMBERS"
	ErrCodeGuarantorUnlinked    ErrorCode = "GUARANTOR_WITHOUT_RESIDENT_LINK"
	ErrCodeMissingApplication   ErrorCode = "MISSING_PERSON_APPLICATION"
	ErrCodeUnpaidMembers        ErrorCode = "UNPAID_PARTY_MEMBERS"
	ErrCodeInvalidMessage       ErrorCode = "INVALID_MESSAGE_PAYLOAD"
	ErrCodeMalformedIdentifier  ErrorCode = "MALFORMED_APPLICANT_IDENTIFIER"
	ErrCodeUncorrelatedResponse ErrorCode = "UNCORRELATED_RESPONSE"

	// Provider errors.
	ErrCodeResponseUnparsable ErrorCode = "ERROR_RESPONSE_UNPARSABLE"
	ErrCodeProviderBusiness   ErrorCode = "PROVIDER_BUSINESS_ERROR"
	ErrCodeProviderTransport  ErrorCode = "PROVIDER_TRANSPORT_ERROR"

	// Infrastructure errors.
	ErrCodeBroker          ErrorCode = "BROKER_ERROR"
	ErrCodeDatabase        ErrorCode = "DATABASE_ERROR"
	ErrCodeLockContention  ErrorCode = "SUBJECT_LOCK_CONTENTION"
	ErrCodeRateLimited     ErrorCode = "NEW_REQUEST_RATE_LIMITED"
	ErrCodeStuckRetryStorm ErrorCode = "STUCK_RETRY_STORM"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// AsStandardError unwraps err into a *StandardError when possible.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	ok := errors.As(err, &stdErr)
	return stdErr, ok
}

// IsNoRetry reports whether err must never be redelivered. Unknown error
// kinds are retryable by default; only a StandardError can opt out.
func IsNoRetry(err error) bool {
	if stdErr, ok := AsStandardError(err); ok {
		return !stdErr.Retryable
	}
	return false
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable input error.
func NewValidationError(code ErrorCode, message string) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMissingTenantError flags a message that arrived without a tenant id.
func NewMissingTenantError(topic string) *StandardError {
	return &StandardError{
		Code:      ErrCodeMissingTenant,
		Message:   "message has no tenantId",
		Details:   fmt.Sprintf("topic: %s", topic),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewResponseUnparsableError marks a provider reply that cannot be parsed.
// Redelivery will not make it parsable, so it is terminal.
func NewResponseUnparsableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeResponseUnparsable,
		Message:   "provider response could not be parsed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderBusinessError wraps a provider-declared error (address
// unparsable, blocked report). Requires human correction, never retried.
func NewProviderBusinessError(decision, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderBusiness,
		Message:   "provider declared a business error",
		Details:   details,
		Retryable: false,
		Metadata:  map[string]interface{}{"decision": decision},
		Timestamp: time.Now().UTC(),
	}
}

// NewProviderTransportError wraps a transient network failure talking to the
// provider. Retried a bounded number of times by the provider client; past
// that the recovery sweep picks the request up.
func NewProviderTransportError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeProviderTransport,
		Message:   "provider call failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBrokerError wraps a Zeebe gateway failure after the client exhausted
// its own retries.
func NewBrokerError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeBroker,
		Message:   "broker operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError wraps a tracking-store failure.
func NewDatabaseError(op string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabase,
		Message:   "tracking store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLockContentionError signals another handler holds the subject lock.
// Redelivery retries once the competing mutation finished.
func NewLockContentionError(subject string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLockContention,
		Message:   "subject is being screened by a concurrent handler",
		Details:   fmt.Sprintf("subject: %s", subject),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRateLimitedError signals the NEW-request threshold was hit for a party.
func NewRateLimitedError(partyID string, count, threshold int) *StandardError {
	return &StandardError{
		Code:      ErrCodeRateLimited,
		Message:   "new screening request threshold exceeded",
		Details:   fmt.Sprintf("partyId: %s, count: %d, threshold: %d", partyID, count, threshold),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStuckRetryStormError refuses a fourth consecutive stuck-origin NEW request.
func NewStuckRetryStormError(partyID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeStuckRetryStorm,
		Message:   "previous three requests were stuck-origin NEW requests",
		Details:   fmt.Sprintf("partyId: %s", partyID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Retry Policy
// ==========================

// GetRetryCount returns the redelivery budget per error code. Transient
// transport errors deliberately get no queue-level retries: the provider
// client already retried and the recovery scheduler revisits the request,
// so aggressive redelivery would only dead-letter the message.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabase, ErrCodeBroker:
		return 3
	case ErrCodeLockContention:
		return 5
	case ErrCodeProviderTransport:
		return 0
	default:
		return 0
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "MISSING") || strings.Contains(codeStr, "INVALID") ||
		strings.Contains(codeStr, "MALFORMED") || strings.Contains(codeStr, "NO_PARTY") ||
		strings.Contains(codeStr, "GUARANTOR"):
		return "VALIDATION"
	case strings.Contains(codeStr, "PROVIDER") || strings.Contains(codeStr, "RESPONSE"):
		return "PROVIDER"
	case strings.Contains(codeStr, "DATABASE"):
		return "DATABASE"
	case strings.Contains(codeStr, "RATE") || strings.Contains(codeStr, "STUCK"):
		return "THROTTLING"
	default:
		return "OTHER"
	}
}
