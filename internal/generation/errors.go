package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure. Kinds marked terminal can never be
// resolved by retrying the same request.
type Kind string

const (
	KindInvalidInput            Kind = "invalid_input"
	KindConfigurationError      Kind = "configuration_error"
	KindInvalidCredential       Kind = "invalid_credential"
	KindQuotaExceeded           Kind = "quota_exceeded"
	KindRateLimitExceeded       Kind = "rate_limit_exceeded"
	KindInvalidUpstreamResponse Kind = "invalid_upstream_response"
	KindUpstreamError           Kind = "upstream_error"
	KindNetworkError            Kind = "network_error"
	KindAllRetriesExhausted     Kind = "all_retries_exhausted"
)

// Error is the structured failure surfaced by the orchestrator. Every error
// returned from Generate carries one.
type Error struct {
	Kind Kind
	// Message is the human-readable summary returned to the caller.
	Message string
	// UserMessage carries the longer remediation text for quota failures.
	UserMessage string
	// RetryAfterSeconds suggests a wait for retryable failures.
	RetryAfterSeconds int
	// Details preserves the upstream error payload when one was decoded.
	Details map[string]any
	// Status is the upstream HTTP status that produced the failure, when any.
	Status int
}

func (e *Error) Error() string {
	return fmt.Sprintf("generation: %s: %s", e.Kind, e.Message)
}

// NewError builds an Error with just a kind and message.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// AsError unwraps a *generation.Error from err, synthesizing a generic
// upstream failure when the chain holds none.
func AsError(err error) *Error {
	var genErr *Error
	if errors.As(err, &genErr) {
		return genErr
	}
	return &Error{Kind: KindUpstreamError, Message: err.Error()}
}
