package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// samples every 1ms for 500ms into a 100ms window
func TestThrottleTrailingEdge(t *testing.T) {
	emitted := []int{}
	throttle := NewThrottle(func(v int) {
		emitted = append(emitted, v)
	})

	window := 100
	for ms := 0; ms < 500; ms += 1 {
		throttle.Push(ms)
		if (ms+1)%window == 0 {
			throttle.Flush()
		}
	}
	throttle.Flush()

	assert.LessOrEqual(t, len(emitted), 5)
	require.NotEmpty(t, emitted)
	assert.Equal(t, 499, emitted[len(emitted)-1])
	assert.Equal(t, []int{99, 199, 299, 399, 499}, emitted)
}

func TestThrottleKeepsFinalSampleOfBurst(t *testing.T) {
	emitted := []int{}
	throttle := NewThrottle(func(v int) {
		emitted = append(emitted, v)
	})

	throttle.Push(1)
	throttle.Flush()
	throttle.Push(2)
	throttle.Push(3)
	assert.True(t, throttle.Pending())
	throttle.Flush()

	assert.Equal(t, []int{1, 3}, emitted)
	assert.False(t, throttle.Pending())
}

func TestThrottleFlushWithoutPending(t *testing.T) {
	calls := 0
	throttle := NewThrottle(func(v int) { calls += 1 })

	assert.False(t, throttle.Flush())
	throttle.Push(1)
	assert.True(t, throttle.Flush())
	assert.False(t, throttle.Flush())
	assert.Equal(t, 1, calls)
}
