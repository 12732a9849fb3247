package websocket

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff(5 * time.Second)
	for attempt := 0; attempt < 10; attempt++ {
		assert.Equal(t, 5*time.Second, b.Next(attempt))
	}
	assert.Equal(t, DefaultReconnectDelay, FixedBackoff(0).Next(1))
}

func TestBackoffExponential(t *testing.T) {
	b := Backoff{Min: 100 * time.Millisecond, Max: time.Second, Factor: 2}
	assert.Equal(t, 100*time.Millisecond, b.Next(1))
	assert.Equal(t, 200*time.Millisecond, b.Next(2))
	assert.Equal(t, 400*time.Millisecond, b.Next(3))
	assert.Equal(t, 800*time.Millisecond, b.Next(4))
	assert.Equal(t, time.Second, b.Next(5))
	assert.Equal(t, time.Second, b.Next(50))
}

func TestBackoffJitterBounds(t *testing.T) {
	b := Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second, Jitter: 0.2}
	for i := 0; i < 100; i++ {
		d := b.Next(1)
		assert.GreaterOrEqual(t, d, 200*time.Millisecond)
		assert.LessOrEqual(t, d, 300*time.Millisecond)
	}
}
