package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testServer 记录连接数与收到的帧，handler 决定如何响应
type testServer struct {
	*httptest.Server
	connections atomic.Int32
	frames      chan Frame
	authHeaders chan string

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newTestServer(t *testing.T, answerPings bool) *testServer {
	t.Helper()
	ts := &testServer{
		frames:      make(chan Frame, 64),
		authHeaders: make(chan string, 16),
	}
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer conn.Close()
		ts.connections.Add(1)
		ts.authHeaders <- r.Header.Get("Authorization")
		ts.mu.Lock()
		ts.conns = append(ts.conns, conn)
		ts.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f Frame
			if err := json.Unmarshal(data, &f); err != nil {
				continue
			}
			ts.frames <- f
			if f.Type == FrameTypePing && answerPings {
				ts.write(conn, `{"type":"pong","timestamp":1}`)
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) write(conn *websocket.Conn, msg string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	_ = conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

// broadcast 向最新的连接写入一条消息
func (ts *testServer) broadcast(msg string) {
	ts.mu.Lock()
	conn := ts.conns[len(ts.conns)-1]
	ts.mu.Unlock()
	ts.write(conn, msg)
}

// dropAll 断开所有服务端连接
func (ts *testServer) dropAll() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, c := range ts.conns {
		_ = c.Close()
	}
	ts.conns = nil
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func newTestClient(t *testing.T, url string, opts ...ClientOption) (*Client, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.DialTimeout = 2 * time.Second
	opts = append([]ClientOption{WithClock(clock)}, opts...)
	c, err := NewClient(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, clock
}

func nextEvent(t *testing.T, ch <-chan Event, kind EventKind) Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event channel closed")
			if ev.Kind == kind {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func nextFrame(t *testing.T, ch <-chan Frame, frameType string) Frame {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case f := <-ch:
			if f.Type == frameType {
				return f
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s frame", frameType)
		}
	}
}

func TestClient_ConnectSendReceive(t *testing.T) {
	ts := newTestServer(t, true)
	c, _ := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	ev := nextEvent(t, events, EventConnect)
	assert.Equal(t, StateOpen, ev.State)
	assert.True(t, c.IsConnected())
	assert.True(t, c.IsAlive())

	assert.ErrorIs(t, c.Connect(context.Background()), ErrAlreadyConnected)

	require.NoError(t, c.Send(context.Background(), "subscribe", map[string]string{"channel": "alerts"}))
	f := nextFrame(t, ts.frames, "subscribe")
	assert.JSONEq(t, `{"channel":"alerts"}`, string(f.Payload))

	ts.broadcast(`{"type":"alert","payload":{"level":"high"},"timestamp":1700000000000}`)
	ev = nextEvent(t, events, EventMessage)
	require.NotNil(t, ev.Frame)
	assert.Equal(t, "alert", ev.Frame.Type)
}

func TestClient_SendWhenNotConnected(t *testing.T) {
	c, _ := newTestClient(t, "ws://127.0.0.1:1/ws")
	assert.ErrorIs(t, c.Send(context.Background(), "x", nil), ErrNotConnected)
}

func TestClient_ParseErrorKeepsSocketOpen(t *testing.T) {
	ts := newTestServer(t, true)
	c, _ := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)

	ts.broadcast(`not json`)
	ev := nextEvent(t, events, EventError)
	var perr *ParseError
	assert.True(t, errors.As(ev.Err, &perr))
	assert.False(t, ev.Fatal)

	ts.broadcast(`{"type":"alert","timestamp":1}`)
	nextEvent(t, events, EventMessage)
	assert.Equal(t, StateOpen, c.State())
}

func TestClient_AnswersPeerPing(t *testing.T) {
	ts := newTestServer(t, true)
	c, _ := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(16)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)

	ts.broadcast(`{"type":"ping","timestamp":1}`)
	nextFrame(t, ts.frames, FrameTypePong)
}

func TestClient_HandshakeAuthorization(t *testing.T) {
	ts := newTestServer(t, true)
	c, _ := newTestClient(t, ts.wsURL(), WithTokenProvider(staticToken("abc")))

	require.NoError(t, c.Connect(context.Background()))
	select {
	case h := <-ts.authHeaders:
		assert.Equal(t, "Bearer abc", h)
	case <-time.After(2 * time.Second):
		t.Fatal("no handshake recorded")
	}
}

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// TestClient_HeartbeatTimeoutReconnect 心跳超时后按 1s 延迟重连，而不是立即重连
func TestClient_HeartbeatTimeoutReconnect(t *testing.T) {
	ts := newTestServer(t, false)
	c, clock := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(32)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)

	blockUntil(t, clock, 1)
	clock.Advance(30 * time.Second)
	nextFrame(t, ts.frames, FrameTypePing)

	blockUntil(t, clock, 1)
	clock.Advance(10 * time.Second)

	ev := nextEvent(t, events, EventDisconnect)
	assert.False(t, ev.Intentional)
	assert.ErrorIs(t, ev.Err, ErrHeartbeatTimeout)

	require.Eventually(t, func() bool { return c.ReconnectAttempts() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, StateConnecting, c.State())

	// 重连计时器已挂起，未到 1s 不会拨号
	blockUntil(t, clock, 1)
	clock.Advance(999 * time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.connections.Load())

	clock.Advance(time.Millisecond)
	nextEvent(t, events, EventConnect)
	require.Eventually(t, func() bool { return ts.connections.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, c.ReconnectAttempts())
}

func TestClient_ServerDropReconnects(t *testing.T) {
	ts := newTestServer(t, true)
	c, clock := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(32)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)

	ts.dropAll()
	nextEvent(t, events, EventDisconnect)

	// 心跳计时器已停止，只剩重连计时器
	blockUntil(t, clock, 1)
	clock.Advance(time.Second)
	nextEvent(t, events, EventConnect)
	assert.True(t, c.IsConnected())
}

func TestClient_RetryBudgetExhausted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cfg := DefaultClientConfig()
	cfg.URL = "ws://127.0.0.1:1/ws"
	cfg.DialTimeout = time.Second
	cfg.Reconnect.MaxAttempts = 2
	c, err := NewClient(cfg, WithClock(clock))
	require.NoError(t, err)
	defer c.Close()

	events, unsubscribe := c.Subscribe(32)
	defer unsubscribe()

	var cerr *ConnectionError
	err = c.Connect(context.Background())
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, "dial", cerr.Op)
	assert.Equal(t, StateConnecting, c.State())

	nextEvent(t, events, EventError)
	for _, delay := range []time.Duration{time.Second, 2 * time.Second} {
		blockUntil(t, clock, 1)
		clock.Advance(delay)
		ev := nextEvent(t, events, EventError)
		if ev.Fatal {
			t.Fatalf("unexpected fatal error after %s", delay)
		}
	}

	ev := nextEvent(t, events, EventError)
	assert.True(t, ev.Fatal)
	assert.ErrorIs(t, ev.Err, ErrMaxRetriesExceeded)
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_DisconnectStopsEverything(t *testing.T) {
	ts := newTestServer(t, false)
	c, clock := newTestClient(t, ts.wsURL())
	events, unsubscribe := c.Subscribe(32)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)
	blockUntil(t, clock, 1)

	require.NoError(t, c.Disconnect())
	ev := nextEvent(t, events, EventDisconnect)
	assert.True(t, ev.Intentional)
	assert.Equal(t, StateClosed, c.State())

	// 所有计时器已取消
	clock.Advance(time.Hour)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), ts.connections.Load())
	assert.Equal(t, StateClosed, c.State())

	// 重新连接开始新的一轮
	require.NoError(t, c.Connect(context.Background()))
	nextEvent(t, events, EventConnect)
	require.Eventually(t, func() bool { return ts.connections.Load() == 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestClient_DisconnectDoesNotOverrideNewerConnect(t *testing.T) {
	c, _ := newTestClient(t, "ws://127.0.0.1:1/live")

	// 模拟 Disconnect 关闭旧连接期间另一个 Connect 已经开始
	c.mu.Lock()
	c.generation = 5
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	assert.False(t, c.markClosed(4))
	assert.Equal(t, StateConnecting, c.State())

	assert.True(t, c.markClosed(5))
	assert.Equal(t, StateClosed, c.State())
}

func TestClient_OnCallbacksInOrder(t *testing.T) {
	ts := newTestServer(t, true)
	c, _ := newTestClient(t, ts.wsURL())

	var (
		mu    sync.Mutex
		order []string
	)
	record := func(name string) func(Event) {
		return func(Event) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		}
	}
	c.On(EventConnect, record("first"))
	off := c.On(EventConnect, record("second"))
	c.On(EventMessage, record("message"))

	require.NoError(t, c.Connect(context.Background()))
	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, order)
	mu.Unlock()

	off()
	require.NoError(t, c.Disconnect())
	require.NoError(t, c.Connect(context.Background()))
	mu.Lock()
	assert.Equal(t, []string{"first", "second", "first"}, order)
	mu.Unlock()
}

func TestClient_SlowSubscriberDropsEvents(t *testing.T) {
	ts := newTestServer(t, true)
	registry := prometheus.NewRegistry()
	c, _ := newTestClient(t, ts.wsURL(), WithClientMetricsRegisterer(registry))

	slow, unsubscribe := c.Subscribe(1)
	defer unsubscribe()

	require.NoError(t, c.Connect(context.Background()))
	for i := 0; i < 5; i++ {
		ts.broadcast(`{"type":"tick","timestamp":1}`)
	}

	require.Eventually(t, func() bool {
		families, err := registry.Gather()
		if err != nil {
			return false
		}
		for _, mf := range families {
			if mf.GetName() == "livesync_websocket_events_dropped_total" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	ev := <-slow
	assert.Equal(t, EventConnect, ev.Kind)
}

func TestClient_CloseClosesSubscribers(t *testing.T) {
	c, _ := newTestClient(t, "ws://127.0.0.1:1/ws")
	events, _ := c.Subscribe(1)

	require.NoError(t, c.Close())
	_, ok := <-events
	assert.False(t, ok)
	assert.ErrorIs(t, c.Connect(context.Background()), ErrClientClosed)
}

func TestClientConfig_Validate(t *testing.T) {
	cfg := &ClientConfig{URL: "http://example.com"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidURL)

	cfg = &ClientConfig{URL: "wss://example.com/live"}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.False(t, cfg.Heartbeat.Enable)
}
