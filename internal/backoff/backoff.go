// Package backoff implements the exponential retry/backoff policy shared
// by the fetcher's upstream HTTP calls.
package backoff

import (
	"math/rand"
	"net/http"
	"time"
)

// Policy is a mutable retry counter plus the parameters governing delay
// growth. It is not safe for concurrent use; callers own one Policy per
// in-flight request sequence.
type Policy struct {
	BaseDelay     time.Duration
	MaxRetries    int
	JitterEnabled bool

	retryCount int
}

// Default returns the policy yielding the 1s/4s/16s/64s sequence.
func Default() *Policy {
	return &Policy{
		BaseDelay:     time.Second,
		MaxRetries:    4,
		JitterEnabled: true,
	}
}

// RetryCount reports how many retries have been consumed so far.
func (p *Policy) RetryCount() int {
	return p.retryCount
}

// ShouldRetry reports whether another attempt is warranted for the given
// HTTP status (0 if none was received) and transport-level error.
func (p *Policy) ShouldRetry(statusCode int, transportErr error) bool {
	if p.retryCount >= p.MaxRetries {
		return false
	}
	if transportErr != nil {
		return true
	}
	switch {
	case statusCode == http.StatusTooManyRequests:
		return true
	case statusCode >= 500:
		return true
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		// Caller additionally rotates auth on these.
		return true
	default:
		return false
	}
}

// GetDelay returns the delay for the current retry count:
// base_delay * 4^retry_count, with up to 10% uniform jitter when enabled.
func (p *Policy) GetDelay() time.Duration {
	delay := p.BaseDelay
	for i := 0; i < p.retryCount; i++ {
		delay *= 4
	}
	if p.JitterEnabled {
		jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
		delay += jitter
	}
	return delay
}

// WaitAndIncrement sleeps for the current delay, then increments
// retry_count, returning the delay actually waited. Once retry_count has
// reached MaxRetries it returns 0 without sleeping or incrementing further.
func (p *Policy) WaitAndIncrement() time.Duration {
	if p.retryCount >= p.MaxRetries {
		return 0
	}
	delay := p.GetDelay()
	time.Sleep(delay)
	p.retryCount++
	return delay
}

// Reset zeroes the retry counter.
func (p *Policy) Reset() {
	p.retryCount = 0
}
