// Package ratelimit implements a sliding-window attempt limiter shared through
// Redis. It bounds how often a visitor may repeat an action, such as placing
// an order, within a time window.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix namespaces attempt windows in Redis.
const RedisKeyPrefix = "storefront:rate_limit:"

// Default limits for order placement.
const (
	// CheckoutKey is the limiter key used for order attempts.
	CheckoutKey = "checkout"

	// CheckoutMaxAttempts is the number of order attempts allowed per window.
	CheckoutMaxAttempts = 5

	// CheckoutWindow is the sliding window for order attempts.
	CheckoutWindow = time.Minute
)

// WindowState describes the attempts recorded for one key.
type WindowState struct {
	// Attempts is the number of attempts inside the current window.
	Attempts int `json:"attempts"`

	// Max is the number of attempts allowed per window.
	Max int `json:"max"`

	// ResetAt is when the oldest attempt leaves the window.
	// Zero when no attempts are recorded.
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many attempts are still allowed.
func (s *WindowState) Remaining() int {
	if s.Attempts >= s.Max {
		return 0
	}
	return s.Max - s.Attempts
}

// Blocked reports whether the next attempt would be rejected.
func (s *WindowState) Blocked() bool {
	return s.Remaining() == 0
}

// TimeUntilReset returns the duration until an attempt frees up.
// Returns 0 if nothing is pending.
func (s *WindowState) TimeUntilReset() time.Duration {
	if s.ResetAt.IsZero() {
		return 0
	}
	duration := time.Until(s.ResetAt)
	if duration < 0 {
		return 0
	}
	return duration
}
