package earthengine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noSleepPolicy() (RetryPolicy, *[]time.Duration) {
	waits := &[]time.Duration{}
	policy := RetryPolicy{
		Delay: time.Second,
		Sleep: func(d time.Duration) { *waits = append(*waits, d) },
	}
	return policy, waits
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	policy, waits := noSleepPolicy()

	calls := 0
	result, err := Retry(policy, "collection size", func() (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRetryRecoversFromTransientFailure(t *testing.T) {
	policy, waits := noSleepPolicy()

	calls := 0
	result, err := Retry(policy, "ndvi statistics", func() (float64, error) {
		calls++
		if calls < 3 {
			return 0, &ProviderError{Op: "reduceRegion", Message: "computation timeout"}
		}
		return 0.61, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 0.61, result)
	assert.Equal(t, 3, calls)
	// Exponential backoff: delay * 2^attempt.
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *waits)
}

func TestRetryExhaustsAndTagsError(t *testing.T) {
	policy, _ := noSleepPolicy()

	calls := 0
	_, err := Retry(policy, "thumbnail", func() (string, error) {
		calls++
		return "", &ProviderError{Op: "thumbnail", Message: "user quota exceeded"}
	})

	require.Error(t, err)
	assert.Equal(t, DefaultMaxRetries, calls)

	var exhausted *RetryExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "thumbnail", exhausted.Op)
	assert.Equal(t, DefaultMaxRetries, exhausted.Attempts)

	var providerErr *ProviderError
	assert.ErrorAs(t, err, &providerErr)
}

func TestRetryPropagatesNonRetryableImmediately(t *testing.T) {
	policy, waits := noSleepPolicy()

	boom := errors.New("invalid band name")
	calls := 0
	_, err := Retry(policy, "reduce region", func() (int, error) {
		calls++
		return 0, boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
}

func TestRetryNonRetryableProviderError(t *testing.T) {
	policy, _ := noSleepPolicy()

	calls := 0
	_, err := Retry(policy, "reduce region", func() (int, error) {
		calls++
		return 0, &ProviderError{Op: "reduceRegion", StatusCode: 400, Message: "geometry exceeds size limit"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var exhausted *RetryExhaustedError
	assert.False(t, errors.As(err, &exhausted))
}

func TestIsRetryableClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"timeout", &ProviderError{Message: "Computation Timeout"}, true},
		{"rate limit", &ProviderError{Message: "Rate limit exceeded"}, true},
		{"quota", &ProviderError{Message: "daily quota exhausted"}, true},
		{"other provider error", &ProviderError{Message: "band not found"}, false},
		{"non-provider error", errors.New("connection timeout"), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.retryable, IsRetryable(tc.err))
		})
	}
}
