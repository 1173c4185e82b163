package helpers

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-pulse/src/logger"
)

func TestStreamError_Formatting(t *testing.T) {
	bare := &StreamError{Message: "feed is down"}
	assert.Equal(t, "feed is down", bare.Error())
	assert.Nil(t, bare.Unwrap())

	cause := fmt.Errorf("connection reset")
	wrapped := &StreamError{Message: "feed is down", Cause: cause}
	assert.Equal(t, "feed is down: connection reset", wrapped.Error())
	assert.Same(t, cause, wrapped.Unwrap())
}

func TestErrorClasses(t *testing.T) {
	cause := fmt.Errorf("bad signature")
	err := NewAuthError("invalid token", cause)

	var authErr *AuthError
	require.True(t, errors.As(err, &authErr))
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "invalid token: bad signature", err.Error())

	// The classes stay distinct under errors.As.
	var feedErr *FeedError
	assert.False(t, errors.As(err, &feedErr))

	var storageErr *StorageError
	assert.True(t, errors.As(NewStorageError("write failed", nil), &storageErr))
	var protocolErr *ProtocolError
	assert.True(t, errors.As(NewProtocolError("bad frame", nil), &protocolErr))
	var anotherFeedErr *FeedError
	assert.True(t, errors.As(NewFeedError("dial failed", nil), &anotherFeedErr))
}

func TestRetryWithBackoff(t *testing.T) {
	log := logger.NewLogger("retry-test")

	// Immediate success calls the operation exactly once.
	calls := 0
	err := RetryWithBackoff(log, "noop", 3, time.Millisecond, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// Transient failures are retried until they clear.
	calls = 0
	err = RetryWithBackoff(log, "flaky", 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	log := logger.NewLogger("retry-test")

	cause := fmt.Errorf("permanent")
	calls := 0
	err := RetryWithBackoff(log, "doomed", 3, time.Millisecond, func() error {
		calls++
		return cause
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "doomed failed after 3 attempts")
	assert.True(t, errors.Is(err, cause))
}
