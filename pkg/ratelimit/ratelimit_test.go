package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlidingWindow_Admission(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, err := New(&Config{MaxRequests: 3, Window: time.Minute}, clock)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		assert.True(t, w.Allow(), "request %d", i)
		clock.Advance(time.Second)
	}
	assert.False(t, w.Allow())
	assert.Equal(t, 0, w.Remaining())

	// 最早一条在 t=0，当前 t=3s
	assert.Equal(t, 57*time.Second, w.RetryAfter())

	clock.Advance(57 * time.Second)
	assert.True(t, w.Allow())
	assert.False(t, w.Allow())
}

func TestSlidingWindow_Defaults(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w, err := New(nil, clock)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.True(t, w.Allow())
	}
	assert.False(t, w.Allow())
	assert.Equal(t, 60*time.Second, w.RetryAfter())

	w.Reset()
	assert.Equal(t, time.Duration(0), w.RetryAfter())
	assert.True(t, w.Allow())
}

func TestSlidingWindow_InvalidConfig(t *testing.T) {
	_, err := New(&Config{MaxRequests: -1}, nil)
	assert.Error(t, err)
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	w, err := New(&Config{MaxRequests: 50, Window: time.Hour}, clockwork.NewFakeClock())
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Allow() {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, allowed)
}
