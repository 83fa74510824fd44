package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicyDelay(t *testing.T) {
	p := Policy{Base: 60 * time.Second, MaxRetries: 5}

	expected := []time.Duration{
		60 * time.Second,
		120 * time.Second,
		240 * time.Second,
		480 * time.Second,
		960 * time.Second,
	}
	for attempt, want := range expected {
		assert.Equal(t, want, p.Delay(attempt+1), "attempt %d", attempt+1)
	}

	t.Run("clamps out-of-range attempts", func(t *testing.T) {
		assert.Equal(t, 60*time.Second, p.Delay(0))
		assert.Equal(t, 960*time.Second, p.Delay(6))
	})
}

func TestPolicyExhausted(t *testing.T) {
	p := Policy{Base: time.Second, MaxRetries: 5}

	for attempt := 1; attempt <= 5; attempt++ {
		assert.False(t, p.Exhausted(attempt), "attempt %d", attempt)
	}
	assert.True(t, p.Exhausted(6))

	t.Run("zero MaxRetries never exhausts", func(t *testing.T) {
		unbounded := Policy{Base: time.Second}
		assert.False(t, unbounded.Exhausted(100))
	})
}
