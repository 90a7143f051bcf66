package portalapi

import (
	"errors"
	"fmt"
)

// APIError is a response the API answered but did not accept: a non-2xx
// status or a body with success=false.
type APIError struct {
	Operation  string
	StatusCode int
	// Message is the server-supplied message, shown to the patient verbatim.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("portalapi: %s: status %d: %s", e.Operation, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("portalapi: %s: status %d", e.Operation, e.StatusCode)
}

// Unauthorized reports whether the API rejected the session.
func (e *APIError) Unauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// ServerMessage returns the API's message for err, if err is an APIError that
// carries one.
func ServerMessage(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	return "", false
}

// IsRejection reports whether err came from the API answering, as opposed to
// the request failing in transit.
func IsRejection(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}
