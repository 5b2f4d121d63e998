// Package apperrors defines the typed error kinds that flow between the
// core components, and the JSON envelope the control surface returns on
// failure.
package apperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purposes of retry/propagation decisions
// described in the error-handling design.
type Kind string

const (
	KindTransport        Kind = "transport"
	KindUpstreamRejected  Kind = "upstream_rejected"
	KindUpstreamServer    Kind = "upstream_server"
	KindTaskTimeout       Kind = "task_timeout"
	KindTaskCancelled     Kind = "task_cancelled"
	KindHandlerFailure    Kind = "handler_failure"
	KindConfigInvalid     Kind = "config_invalid"
	KindStore             Kind = "store"
	KindAuthExhausted     Kind = "auth_exhausted"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
)

// Error is a typed, wrapped error carrying a Kind for callers that need to
// branch on error category (Backoff, Dispatcher handlers, HTTP responses).
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a typed Error.
func New(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Is reports whether err wraps an *Error of the given Kind (found with
// errors.As), for callers that only have a Kind to compare against.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// HTTPErrorResponse is the JSON body returned by the control surface on
// failure: {"status":"error","message":"..."}.
type HTTPErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// WriteHTTP writes a structured error body with the given status code.
func WriteHTTP(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Status: "error", Message: message})
}

// StatusFor maps an error Kind to a reasonable HTTP status code.
func StatusFor(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindConfigInvalid:
		return http.StatusBadRequest
	case KindTaskTimeout, KindUpstreamServer, KindTransport:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
