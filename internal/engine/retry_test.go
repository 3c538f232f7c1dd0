package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{6, 16 * time.Second},
		{7, 30 * time.Second},
		{1000, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicy_FixedDelay(t *testing.T) {
	p := RetryPolicy{Base: 100 * time.Millisecond, Multiplier: 1}
	assert.Equal(t, 100*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 100*time.Millisecond, p.Backoff(50))

	p.Multiplier = 0
	assert.Equal(t, 100*time.Millisecond, p.Backoff(3), "multiplier below one means fixed")
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3}
	assert.False(t, p.Exhausted(1))
	assert.False(t, p.Exhausted(2))
	assert.True(t, p.Exhausted(3))

	assert.False(t, RetryPolicy{}.Exhausted(1000), "zero means unlimited")
	assert.True(t, RetryPolicy{MaxAttempts: 1}.Exhausted(1), "one disables retries")
}
