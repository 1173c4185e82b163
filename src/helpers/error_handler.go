package helpers

import (
	"fmt"
	"time"

	"market-pulse/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type StreamError struct {
	Message string
	Cause   error
}

func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *StreamError) Unwrap() error {
	return e.Cause
}

// Distinct error classes for type assertions at call sites.
type FeedError struct{ StreamError }
type StorageError struct{ StreamError }
type AuthError struct{ StreamError }
type ProtocolError struct{ StreamError }
type ConfigurationError struct{ StreamError }

func NewFeedError(msg string, cause error) *FeedError {
	return &FeedError{StreamError{Message: msg, Cause: cause}}
}

func NewStorageError(msg string, cause error) *StorageError {
	return &StorageError{StreamError{Message: msg, Cause: cause}}
}

func NewAuthError(msg string, cause error) *AuthError {
	return &AuthError{StreamError{Message: msg, Cause: cause}}
}

func NewProtocolError(msg string, cause error) *ProtocolError {
	return &ProtocolError{StreamError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff.
func RetryWithBackoff(log *logger.Logger, operation string, maxRetries int, baseDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == maxRetries-1 {
			break
		}

		delay := baseDelay * (1 << attempt)
		log.Warning("Attempt %d/%d failed for %s: %v. Retrying in %v", attempt+1, maxRetries, operation, err, delay)
		time.Sleep(delay)
	}

	return &StreamError{Message: fmt.Sprintf("%s failed after %d attempts", operation, maxRetries), Cause: lastErr}
}
