package resilience

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/sells-group/lineage/internal/store"
)

// TransientError marks an error as safe to retry, such as a 5xx from an
// alert webhook.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"i/o timeout",
	"no such host",
	"temporary failure in name resolution",
}

// IsTransient reports whether err is worth retrying: store write conflicts
// (SQLite busy/locked, Postgres serialization failure or deadlock), explicit
// TransientErrors, and network timeouts or resets.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if store.IsRetryable(err) {
		return true
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus reports whether an HTTP status is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return statusCode >= 500 && statusCode != http.StatusNotImplemented
}
