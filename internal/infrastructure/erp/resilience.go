package erp

import (
	"context"
	"errors"
	"net/http"

	"github.com/arkeyez/arkdoc/internal/infrastructure/resilience"
)

// ClassifyError decides whether a failed push should be retried. Transport
// failures and 5xx/429 replies are transient; any other 4xx means the
// payload itself is rejected and retrying cannot help.
func ClassifyError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{
			Retryable:     true,
			RecordFailure: true,
		}
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		retryable := httpErr.StatusCode >= http.StatusInternalServerError ||
			httpErr.StatusCode == http.StatusTooManyRequests
		return resilience.ErrorClassification{
			Retryable:     retryable,
			RecordFailure: true,
		}
	}

	// Anything else is a transport-level failure (DNS, refused connection,
	// client timeout) and worth another attempt.
	return resilience.ErrorClassification{
		Retryable:     true,
		RecordFailure: true,
	}
}
