package tap

import (
	"net/http"
	"time"
)

// ErrorType groups failures by how clients should react to them.
type ErrorType string

const (
	InvalidRequest     ErrorType = "invalid_request"     // Missing or malformed field; never retried.
	PaymentRequired    ErrorType = "payment_required"    // Payment proof missing or rejected.
	ProcessingError    ErrorType = "processing_error"    // Unexpected merchant-side failure.
	ServiceUnavailable ErrorType = "service_unavailable" // Transient outage; safe to retry.
)

// ErrorCode is a machine-readable identifier for the specific failure.
type ErrorCode string

const (
	MalformedSignature     ErrorCode = "malformed_signature"     // Signature header grammar violation.
	UnknownAgent           ErrorCode = "unknown_agent"           // No trusted key for the presented agent identifier.
	SignatureExpired       ErrorCode = "signature_expired"       // Outside the created..expires window; re-sign with fresh timestamps.
	InvalidSignature       ErrorCode = "invalid_signature"       // Cryptographic mismatch; logged as a tampering signal.
	SignatureRequired      ErrorCode = "signature_required"      // Signed requests are enforced but headers were missing.
	CartNotFound           ErrorCode = "cart_not_found"          // No cart with the given identifier.
	CartEmpty              ErrorCode = "cart_empty"              // Cart has no line items to pay for.
	SessionNotFound        ErrorCode = "session_not_found"       // Payment session unknown, consumed, or expired; re-finalize.
	InvalidCard            ErrorCode = "invalid_card"            // Card failed Luhn, expiry, or CVV validation.
	PaymentDeclined        ErrorCode = "payment_declined"        // Processor rejected the charge.
	SettlementDenied       ErrorCode = "settlement_denied"       // Facilitator explicitly refused the delegated settlement.
	FacilitatorUnreachable ErrorCode = "facilitator_unreachable" // Facilitator down or timed out; retry the cycle.
)

// Error is the structured payload returned on every failed request.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Param   *string   `json:"param,omitempty"`

	status     int           `json:"-"`
	retryAfter time.Duration `json:"-"`
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// StatusCode returns the HTTP status the error maps to.
func (e *Error) StatusCode() int {
	if e == nil || e.status == 0 {
		return http.StatusInternalServerError
	}
	return e.status
}

// RetryAfter returns the duration clients should wait before retrying.
func (e *Error) RetryAfter() time.Duration {
	if e == nil {
		return 0
	}
	return e.retryAfter
}

type errorOption func(*Error)

// WithOffendingParam sets the JSON path for the field that triggered the error.
func WithOffendingParam(jsonPath string) errorOption {
	return func(er *Error) {
		er.Param = &jsonPath
	}
}

// WithStatusCode overrides the HTTP status code returned to the client.
func WithStatusCode(status int) errorOption {
	return func(er *Error) {
		er.status = status
	}
}

// WithRetryAfter specifies how long clients should wait before retrying.
func WithRetryAfter(d time.Duration) errorOption {
	return func(er *Error) {
		er.retryAfter = d
	}
}

// NewInvalidRequestError builds a Bad Request error payload.
func NewInvalidRequestError(message string, opts ...errorOption) *Error {
	return newError(InvalidRequest, ErrorCode(InvalidRequest), message, append([]errorOption{WithStatusCode(http.StatusBadRequest)}, opts...)...)
}

// NewNotFoundError builds a Not Found error payload with the given code.
func NewNotFoundError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(InvalidRequest, code, message, append([]errorOption{WithStatusCode(http.StatusNotFound)}, opts...)...)
}

// NewPaymentRequiredError builds a 402 Payment Required error payload.
func NewPaymentRequiredError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(PaymentRequired, code, message, append([]errorOption{WithStatusCode(http.StatusPaymentRequired)}, opts...)...)
}

// NewServiceUnavailableError builds a Service Unavailable error payload.
func NewServiceUnavailableError(code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(ServiceUnavailable, code, message, append([]errorOption{WithStatusCode(http.StatusServiceUnavailable)}, opts...)...)
}

// NewProcessingError builds an Internal Server Error payload.
func NewProcessingError(message string, opts ...errorOption) *Error {
	return newError(ProcessingError, ErrorCode(ProcessingError), message, append([]errorOption{WithStatusCode(http.StatusInternalServerError)}, opts...)...)
}

// NewHTTPError allows callers to control the status code explicitly.
func NewHTTPError(status int, typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	return newError(typ, code, message, append(opts, WithStatusCode(status))...)
}

func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	errPayload := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(errPayload)
	}
	return errPayload
}
