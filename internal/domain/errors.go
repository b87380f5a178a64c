package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   []string  `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput       = "INVALID_INPUT"
	ErrValidation         = "VALIDATION_ERROR"
	ErrPredictionService  = "PREDICTION_SERVICE_ERROR"
	ErrRateLimit          = "RATE_LIMIT_EXCEEDED"
	ErrServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrRequestCancelled   = "REQUEST_CANCELLED"
	ErrInternalServer     = "INTERNAL_SERVER_ERROR"
)

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message string, details []string, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// ValidationError represents an input validation error for one visit feature.
// Visit is 1-based to match how clinicians number visits.
type ValidationError struct {
	Visit   int         `json:"visit"`
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Visit > 0 {
		return fmt.Sprintf("visit #%d, field '%s': %s", e.Visit, e.Field, e.Message)
	}
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new ValidationError
func NewValidationError(visit int, field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Visit:   visit,
		Field:   field,
		Message: message,
		Value:   value,
	}
}

// ValidationErrors collects every problem found in a sequence.
type ValidationErrors []*ValidationError

// Error implements the error interface
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

// Messages returns one line per validation problem.
func (v ValidationErrors) Messages() []string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return msgs
}

// ErrorKind discriminates the ways a prediction submission can fail.
type ErrorKind string

const (
	KindTransportUnreachable    ErrorKind = "TransportUnreachable"
	KindMalformedResponse       ErrorKind = "MalformedResponse"
	KindUnstructuredHTTPFailure ErrorKind = "UnstructuredHttpFailure"
	KindServiceValidationError  ErrorKind = "ServiceValidationError"
	KindRateLimited             ErrorKind = "RateLimited"
	KindUnclassifiedHTTPError   ErrorKind = "UnclassifiedHttpError"
	KindContractViolation       ErrorKind = "ContractViolation"
	KindRetriesExhausted        ErrorKind = "RetriesExhausted"
	KindCancelled               ErrorKind = "Cancelled"
)

// Retryable reports whether an attempt failing with this kind may be retried.
// Only rate limiting is retried; everything else is surfaced immediately.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited
}

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	return string(k)
}

// SubmissionError is the single error type returned by a prediction submission.
// StatusCode is zero when no response was received.
type SubmissionError struct {
	Kind       ErrorKind `json:"kind"`
	StatusCode int       `json:"status_code,omitempty"`
	Message    string    `json:"message"`
	Details    []string  `json:"details,omitempty"`
	Attempts   int       `json:"attempts"`
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *SubmissionError) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(e.Details, "; "))
	}
	return b.String()
}

// Unwrap exposes the underlying cause.
func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// NewSubmissionError creates a SubmissionError of the given kind.
func NewSubmissionError(kind ErrorKind, statusCode int, message string, details []string, cause error) *SubmissionError {
	return &SubmissionError{
		Kind:       kind,
		StatusCode: statusCode,
		Message:    message,
		Details:    details,
		Err:        cause,
	}
}

// KindOf extracts the ErrorKind from err, if it wraps a SubmissionError.
func KindOf(err error) (ErrorKind, bool) {
	var subErr *SubmissionError
	if errors.As(err, &subErr) {
		return subErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err wraps a SubmissionError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}
