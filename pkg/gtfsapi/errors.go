package gtfsapi

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument is returned before any request is sent when a
	// required parameter is empty.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNoShape means the route detail arrived without shape points, so
	// there is nothing to draw.
	ErrNoShape = errors.New("route detail has no shape")
)

// APIError is an application-level failure reported by the upstream API
// through an {"error": "..."} body. The message is meant for the user as is.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// TransportError covers network failures, non-2xx responses without an
// error body, and bodies that cannot be decoded.
type TransportError struct {
	Op         string
	StatusCode int
	Status     string
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode != 0:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: unexpected status: %s", e.Op, e.Status)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAPIError reports whether err carries an upstream application error and
// returns its message.
func IsAPIError(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message, true
	}
	return "", false
}
