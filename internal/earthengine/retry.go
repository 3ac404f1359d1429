package earthengine

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Default retry behavior for provider calls.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// RetryPolicy configures the resilient executor. The zero value uses the
// defaults and a blocking time.Sleep between attempts.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration

	// Retryable classifies errors; defaults to IsRetryable.
	Retryable func(error) bool

	// Sleep is injectable for tests; defaults to time.Sleep. The wait
	// blocks the calling goroutine entirely, matching the synchronous
	// single-operation-at-a-time execution model.
	Sleep func(time.Duration)

	Logger *zap.Logger
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.Delay <= 0 {
		p.Delay = DefaultRetryDelay
	}
	if p.Retryable == nil {
		p.Retryable = IsRetryable
	}
	if p.Sleep == nil {
		p.Sleep = time.Sleep
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

// RetryExhaustedError wraps the last observed retryable error once all
// attempts are spent, tagged with the operation name and attempt count.
type RetryExhaustedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Op, e.Attempts, e.Err)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Err
}

// Retry executes a deferred remote call, retrying with exponential
// backoff (delay * 2^attempt) while the failure is classified retryable.
// Any other failure propagates immediately on first occurrence. The
// executor knows nothing about the operation's semantics; it is reused
// across every remote statistics call.
func Retry[T any](policy RetryPolicy, op string, call func() (T, error)) (T, error) {
	policy = policy.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		result, err := call()
		if err == nil {
			return result, nil
		}

		if !policy.Retryable(err) {
			return zero, err
		}
		lastErr = err

		if attempt < policy.MaxRetries-1 {
			wait := policy.Delay * (1 << attempt)
			policy.Logger.Warn("retryable provider failure",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Int("maxRetries", policy.MaxRetries),
				zap.Duration("backoff", wait),
				zap.Error(err))
			policy.Sleep(wait)
		}
	}

	return zero, &RetryExhaustedError{Op: op, Attempts: policy.MaxRetries, Err: lastErr}
}
