package backoff

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	p := Default()
	assert.Equal(t, time.Second, p.BaseDelay)
	assert.Equal(t, 4, p.MaxRetries)
	assert.True(t, p.JitterEnabled)
	assert.Equal(t, 0, p.RetryCount())
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name       string
		status     int
		transport  error
		wantRetry  bool
	}{
		{"transport error always retries", 0, assertErr{}, true},
		{"429 retries", http.StatusTooManyRequests, nil, true},
		{"5xx retries", http.StatusBadGateway, nil, true},
		{"401 retries for auth rotation", http.StatusUnauthorized, nil, true},
		{"403 retries for auth rotation", http.StatusForbidden, nil, true},
		{"404 does not retry", http.StatusNotFound, nil, false},
		{"200 does not retry", http.StatusOK, nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := Default()
			assert.Equal(t, tc.wantRetry, p.ShouldRetry(tc.status, tc.transport))
		})
	}
}

func TestShouldRetryStopsAtMaxRetries(t *testing.T) {
	p := Default()
	p.MaxRetries = 2
	p.retryCount = 2
	assert.False(t, p.ShouldRetry(http.StatusBadGateway, nil))
}

func TestGetDelayGrowsExponentially(t *testing.T) {
	p := &Policy{BaseDelay: time.Second, MaxRetries: 4, JitterEnabled: false}
	require.Equal(t, time.Second, p.GetDelay())
	p.retryCount = 1
	require.Equal(t, 4*time.Second, p.GetDelay())
	p.retryCount = 2
	require.Equal(t, 16*time.Second, p.GetDelay())
	p.retryCount = 3
	require.Equal(t, 64*time.Second, p.GetDelay())
}

func TestGetDelayWithJitterNeverShrinksBelowBase(t *testing.T) {
	p := &Policy{BaseDelay: time.Second, MaxRetries: 4, JitterEnabled: true}
	for i := 0; i < 20; i++ {
		d := p.GetDelay()
		assert.GreaterOrEqual(t, d, time.Second)
		assert.Less(t, d, time.Second+time.Second/10+1)
	}
}

func TestWaitAndIncrement(t *testing.T) {
	p := &Policy{BaseDelay: time.Millisecond, MaxRetries: 4, JitterEnabled: false}
	waited := p.WaitAndIncrement()
	assert.Equal(t, time.Millisecond, waited)
	assert.Equal(t, 1, p.RetryCount())
}

func TestWaitAndIncrementReturnsZeroPastMaxRetries(t *testing.T) {
	p := &Policy{BaseDelay: time.Millisecond, MaxRetries: 4, JitterEnabled: false}
	for i := 0; i < 4; i++ {
		p.WaitAndIncrement()
	}
	require.Equal(t, 4, p.RetryCount())

	waited := p.WaitAndIncrement()
	assert.Equal(t, time.Duration(0), waited)
	assert.Equal(t, 4, p.RetryCount())
}

func TestReset(t *testing.T) {
	p := Default()
	p.retryCount = 3
	p.Reset()
	assert.Equal(t, 0, p.RetryCount())
}

type assertErr struct{}

func (assertErr) Error() string { return "transport failure" }
