package dispatch

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoFallbackAvailable is the only failure that reaches clients as an error
// status: the live chain failed and the source has nothing to substitute.
var ErrNoFallbackAvailable = errors.New("no fallback available")

// NoFallbackError carries the HTTP status and body details for a source without a
// fallback.
type NoFallbackError struct {
	Source  string
	Status  int
	Message string
	Details map[string]any
	Cause   error
}

func (e *NoFallbackError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Source, ErrNoFallbackAvailable, e.Cause)
}

func (e *NoFallbackError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrNoFallbackAvailable}
	}
	return []error{ErrNoFallbackAvailable, e.Cause}
}

// Body is the JSON body sent to the client.
func (e *NoFallbackError) Body() map[string]any {
	body := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		body[k] = v
	}
	body["error"] = e.Message
	return body
}

// RequestError rejects a request before any upstream work happens.
type RequestError struct {
	Message string
	Details map[string]any
}

func (e *RequestError) Error() string { return e.Message }

// BadRequest builds a RequestError answered with 400.
func BadRequest(message string, details map[string]any) error {
	return &RequestError{Message: message, Details: details}
}
