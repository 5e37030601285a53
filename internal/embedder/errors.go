package embedder

import (
	"errors"
	"net/http"
)

// ErrTransient marks embedding failures that are worth retrying: network
// errors, timeouts, rate limiting, and server-side errors. Callers retry
// these with backoff up to a configured cap.
var ErrTransient = errors.New("transient embedding failure")

// ErrPermanent marks embedding failures that will not succeed on retry,
// such as oversized input, a rejected request, or bad credentials. Callers
// surface these immediately.
var ErrPermanent = errors.New("permanent embedding failure")

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// classifyStatus maps an HTTP status code to the retry classification.
func classifyStatus(code int) error {
	switch {
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return ErrTransient
	default:
		return ErrPermanent
	}
}
