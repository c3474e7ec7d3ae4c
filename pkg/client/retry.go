package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	apiRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_api_retries_total",
		Help: "Total number of retry attempts after 5xx responses",
	})

	apiRetryBackoffSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "storefront_api_retry_backoff_seconds",
		Help:    "Backoff duration before a retry",
		Buckets: []float64{0.1, 0.5, 1, 2, 3, 5},
	})

	apiRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "storefront_api_retry_exhausted_total",
		Help: "Total number of requests that exhausted their retry attempts",
	})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including the initial request).
	MaxAttempts int

	// BaseBackoff is the unit of the linear backoff: attempt n waits n*BaseBackoff.
	BaseBackoff time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 1 * time.Second,
	}
}

// backoffFor returns the wait after the given (1-based) failed attempt.
func (c RetryConfig) backoffFor(attempt int) time.Duration {
	return time.Duration(attempt) * c.BaseBackoff
}

// retryWithBackoff executes fn until it succeeds, returns a non-retryable
// error, or MaxAttempts is reached. Only errors carrying a retryable
// ErrorClass (see shouldRetry) are retried. The wait between attempts grows
// linearly and respects context cancellation.
func retryWithBackoff(ctx context.Context, config RetryConfig, fn func(attempt int) error) error {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				log.Info().
					Int("attempt", attempt).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		lastErr = err

		var apiErr *APIError
		if !errors.As(err, &apiErr) || !shouldRetry(apiErr.ErrorClass) {
			return lastErr
		}

		// If this was the last attempt, don't wait
		if attempt >= config.MaxAttempts {
			break
		}

		apiRetriesTotal.Inc()
		backoff := config.backoffFor(attempt)
		apiRetryBackoffSeconds.Observe(backoff.Seconds())

		log.Debug().
			Str("error_class", string(apiErr.ErrorClass)).
			Int("attempt", attempt).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Warn().
				Int("attempt", attempt).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	apiRetryExhaustedTotal.Inc()
	log.Warn().
		Int("max_attempts", config.MaxAttempts).
		Msg("Retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, config.MaxAttempts, lastErr)
}
