// Package errors defines the storefront failure taxonomy: transport failures,
// backend application errors, order validation rejections and domain
// invariant violations. Every type carries a message that is safe to show to
// the buyer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
)

// Re-exports so callers need a single errors import.
var (
	Is  = stderrors.Is
	As  = stderrors.As
	New = stderrors.New
)

// ErrCircuitOpen is wrapped by a TransportError when the backend circuit is open.
var ErrCircuitOpen = stderrors.New("circuit breaker is open")

// Detail is a single application-level error reported by the backend.
type Detail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// UserFacing is implemented by errors that carry a buyer-readable message.
type UserFacing interface {
	UserMessage() string
}

// =============================================================================
// Transport
// =============================================================================

// TransportError is a network failure, timeout or non-2xx HTTP response.
type TransportError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Err        error
}

// Transport builds a TransportError.
func Transport(op string, status int, err error) *TransportError {
	return &TransportError{Op: op, StatusCode: status, Err: err}
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transport: status %d (%s)", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("%s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage implements UserFacing.
func (e *TransportError) UserMessage() string {
	return "The store could not be reached. Check your connection and try again."
}

// =============================================================================
// Backend
// =============================================================================

// BackendError is a well-formed response whose top-level errors list is not empty.
type BackendError struct {
	Op      string
	Details []Detail
}

// Backend builds a BackendError.
func Backend(op string, details ...Detail) *BackendError {
	return &BackendError{Op: op, Details: details}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: backend: %s", e.Op, joinMessages(e.Details, "unknown error"))
}

// UserMessage implements UserFacing.
func (e *BackendError) UserMessage() string {
	return "The store reported an error: " + joinMessages(e.Details, "unknown error")
}

// =============================================================================
// Validation
// =============================================================================

// ValidationError is an order submission rejected for specific lines or fields.
type ValidationError struct {
	Op      string
	Details []Detail
}

// Validation builds a ValidationError.
func Validation(op string, details ...Detail) *ValidationError {
	return &ValidationError{Op: op, Details: details}
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		if d.Field != "" {
			parts = append(parts, d.Field+": "+d.Message)
		} else {
			parts = append(parts, d.Message)
		}
	}
	return fmt.Sprintf("%s: validation: %s", e.Op, strings.Join(parts, "; "))
}

// UserMessage implements UserFacing.
func (e *ValidationError) UserMessage() string {
	return "Order rejected: " + joinMessages(e.Details, "the order is invalid")
}

// =============================================================================
// Domain invariants
// =============================================================================

// InvariantViolation reports an operation that the domain rules forbid, such
// as carting a product without a resolved variant or price.
type InvariantViolation struct {
	Op     string
	Reason string
}

// Invariant builds an InvariantViolation.
func Invariant(op, reason string) *InvariantViolation {
	return &InvariantViolation{Op: op, Reason: reason}
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("%s: invariant: %s", e.Op, e.Reason)
}

// UserMessage implements UserFacing.
func (e *InvariantViolation) UserMessage() string {
	return e.Reason
}

// =============================================================================
// Helpers
// =============================================================================

// UserMessage returns the buyer-readable message carried by err, or fallback
// when err has none.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var uf UserFacing
	if stderrors.As(err, &uf) {
		if msg := strings.TrimSpace(uf.UserMessage()); msg != "" {
			return msg
		}
	}
	return fallback
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return stderrors.As(err, &te)
}

// IsBackend reports whether err is or wraps a BackendError.
func IsBackend(err error) bool {
	var be *BackendError
	return stderrors.As(err, &be)
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return stderrors.As(err, &ve)
}

// IsInvariant reports whether err is or wraps an InvariantViolation.
func IsInvariant(err error) bool {
	var iv *InvariantViolation
	return stderrors.As(err, &iv)
}

func joinMessages(details []Detail, fallback string) string {
	msgs := make([]string, 0, len(details))
	for _, d := range details {
		if m := strings.TrimSpace(d.Message); m != "" {
			msgs = append(msgs, m)
		}
	}
	if len(msgs) == 0 {
		return fallback
	}
	return strings.Join(msgs, "; ")
}
