package llm

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Sentinel errors used to classify completion failures. Providers wrap the
// underlying error with one of these so callers can match with errors.Is.
var (
	// ErrConnection marks failures to reach the backend at all (DNS,
	// refused connections, TLS failures).
	ErrConnection = errors.New("llm: connection failed")

	// ErrTimeout marks requests that were given up on after the deadline.
	ErrTimeout = errors.New("llm: request timed out")
)

// Classify inspects err and returns the matching sentinel, or nil when the
// error is neither a connection nor a timeout failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrTimeout
		}
		return ErrConnection
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return ErrTimeout
		}
		return ErrConnection
	}
	return nil
}
