package websocket

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHeartbeat(t *testing.T) (*HeartbeatManager, *clockwork.FakeClock, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cfg := DefaultHeartbeatConfig()
	h := NewHeartbeatManager(&cfg, clock, nil)

	var pings, timeouts atomic.Int32
	h.SetOnPing(func() error {
		pings.Add(1)
		return nil
	})
	h.SetOnTimeout(func() {
		timeouts.Add(1)
	})
	t.Cleanup(h.Stop)
	return h, clock, &pings, &timeouts
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func TestHeartbeat_TimeoutFiresOnce(t *testing.T) {
	h, clock, pings, timeouts := newTestHeartbeat(t)
	h.Start()
	assert.True(t, h.IsAlive())

	blockUntil(t, clock, 1)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return pings.Load() == 1 && h.Pending() }, time.Second, time.Millisecond)

	blockUntil(t, clock, 1)
	clock.Advance(10 * time.Second)
	require.Eventually(t, func() bool { return timeouts.Load() == 1 }, time.Second, time.Millisecond)

	assert.False(t, h.IsRunning())
	assert.False(t, h.IsAlive())

	// 超时后不会自动重启
	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), pings.Load())
	assert.Equal(t, int32(1), timeouts.Load())
}

func TestHeartbeat_PongPreventsTimeout(t *testing.T) {
	h, clock, pings, timeouts := newTestHeartbeat(t)
	h.Start()

	for round := int32(1); round <= 3; round++ {
		blockUntil(t, clock, 1)
		clock.Advance(30 * time.Second)
		require.Eventually(t, func() bool { return pings.Load() == round && h.Pending() }, time.Second, time.Millisecond)

		clock.Advance(9 * time.Second)
		h.PongReceived()
		assert.False(t, h.Pending())
		assert.Equal(t, clock.Now(), h.LastPong())
	}

	assert.Equal(t, int32(0), timeouts.Load())
	assert.True(t, h.IsAlive())
}

func TestHeartbeat_NoOverlappingRounds(t *testing.T) {
	h, clock, pings, _ := newTestHeartbeat(t)
	h.Start()

	blockUntil(t, clock, 1)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return h.Pending() }, time.Second, time.Millisecond)

	// 等待 pong 期间不会发出下一次 ping
	clock.Advance(9 * time.Second)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), pings.Load())
}

func TestHeartbeat_StopCancelsTimers(t *testing.T) {
	h, clock, pings, timeouts := newTestHeartbeat(t)
	h.Start()

	blockUntil(t, clock, 1)
	clock.Advance(30 * time.Second)
	require.Eventually(t, func() bool { return h.Pending() }, time.Second, time.Millisecond)

	h.Stop()
	h.Stop()

	clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), pings.Load())
	assert.Equal(t, int32(0), timeouts.Load())
	assert.False(t, h.IsAlive())
}

func TestHeartbeat_UnsolicitedPong(t *testing.T) {
	h, clock, pings, _ := newTestHeartbeat(t)
	h.Start()

	blockUntil(t, clock, 1)
	clock.Advance(10 * time.Second)
	h.PongReceived()

	clock.Advance(20 * time.Second)
	require.Eventually(t, func() bool { return pings.Load() == 1 }, time.Second, time.Millisecond)
}
