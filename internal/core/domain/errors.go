package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModelLoad marks a failed vision model load. Non-fatal: classification
	// continues in simulation mode.
	ErrModelLoad = errors.New("model load failure")
	// ErrExtractionUnavailable marks a missing or uninitialized OCR engine.
	ErrExtractionUnavailable = errors.New("extraction unavailable")
	// ErrExtraction marks a failed extraction on an otherwise valid page.
	ErrExtraction = errors.New("extraction error")
	// ErrMalformedInput marks an unreadable or zero-page document. Fatal for
	// that document; no record is created.
	ErrMalformedInput = errors.New("malformed input")
	// ErrRecordNotFound marks a lookup miss in the record store.
	ErrRecordNotFound = errors.New("record not found")
	// ErrUnauthorized marks a rejected caller identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTemporary marks a retryable infrastructure failure.
	ErrTemporary = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
