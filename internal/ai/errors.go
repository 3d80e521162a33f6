package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"docqa/internal/resilience"
)

// ProviderError is a non-2xx answer from the model provider.
type ProviderError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s response status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Temporary reports whether retrying the same request may succeed.
func (e *ProviderError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient separates provider outages from permanent request errors.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		return perr.Temporary()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr)
}

// ClassifyError feeds IsTransient into the resilience executor. Permanent
// errors do not count against the breaker.
func ClassifyError(err error) resilience.ErrorClassification {
	transient := IsTransient(err)
	return resilience.ErrorClassification{
		Retryable:     transient,
		RecordFailure: transient,
	}
}
