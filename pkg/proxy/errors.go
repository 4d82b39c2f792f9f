package proxy

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransportError means the request got no response: the proxy could
// not be reached, or the connection failed or timed out. It is worth
// trying again later.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Err)
}

// ResponseError means the proxy answered, and refused the request.
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("proxy responded %d: %s", e.StatusCode, e.Body)
}

// IsTransient reports whether the error is one that may go away by
// itself; anything else is final for the request that caused it.
func IsTransient(err error) bool {
	_, ok := errors.Cause(err).(*TransportError)
	return ok
}
