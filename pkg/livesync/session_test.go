package livesync

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	gorilla "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []map[string]string
	errs    []error
}

func (r *recordingReporter) ReportFatal(_ context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
	r.reports = append(r.reports, tags)
}

func (r *recordingReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// backend 同时提供 GraphQL、刷新接口与 WebSocket
type backend struct {
	*httptest.Server
	authHeaders chan string
	validToken  string
}

func newBackend(t *testing.T, validToken string) *backend {
	t.Helper()
	b := &backend{authHeaders: make(chan string, 8), validToken: validToken}
	upgrader := gorilla.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.validToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"me":"u1"}}`))
	})
	mux.HandleFunc("/auth/refresh", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		b.authHeaders <- r.Header.Get("Authorization")
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func newTestSession(t *testing.T, b *backend, opts ...Option) *Session {
	t.Helper()
	cfg := DefaultConfig()
	cfg.WebSocket.URL = "ws" + strings.TrimPrefix(b.URL, "http") + "/live"
	cfg.WebSocket.Heartbeat.Enable = false
	cfg.GraphQL.Endpoint = b.URL + "/graphql"
	cfg.Auth.RefreshEndpoint = b.URL + "/auth"

	s, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNew_NilConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrNilConfig)
}

func TestNew_InvalidComponentConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GraphQL.Endpoint = "http://localhost/graphql"
	cfg.WebSocket.URL = "http://not-a-socket"
	_, err := New(cfg)
	assert.True(t, errors.Is(err, websocket.ErrInvalidURL))
}

func TestSession_ConnectSendsBearer(t *testing.T) {
	b := newBackend(t, "access-1")
	s := newTestSession(t, b, WithMetricsRegisterer(prometheus.NewRegistry()))
	ctx := context.Background()
	require.NoError(t, s.SignIn(ctx, "access-1", "refresh-1"))

	events, cancel := s.Events(8)
	defer cancel()
	require.NoError(t, s.Connect(ctx))

	select {
	case h := <-b.authHeaders:
		assert.Equal(t, "Bearer access-1", h)
	case <-time.After(2 * time.Second):
		t.Fatal("no handshake")
	}
	select {
	case ev := <-events:
		assert.Equal(t, websocket.EventConnect, ev.Kind)
	case <-time.After(2 * time.Second):
		t.Fatal("no connect event")
	}
	status, err := s.Status()
	assert.Equal(t, StatusOK, status)
	assert.NoError(t, err)

	data, err := s.Request(ctx, "{ me }", nil, graphql.WithCache())
	require.NoError(t, err)
	assert.JSONEq(t, `{"me":"u1"}`, string(data))
	assert.Equal(t, 1, s.Cache().Len())

	require.NoError(t, s.SignOut(ctx))
	assert.Equal(t, 0, s.Cache().Len())
	assert.Equal(t, websocket.StateClosed, s.Socket().State())
	token, _ := s.Auth().Token(ctx)
	assert.Empty(t, token)
}

func TestSession_SignInRequiredIsReported(t *testing.T) {
	b := newBackend(t, "valid")
	reporter := &recordingReporter{}
	s := newTestSession(t, b, WithFatalReporter(reporter))
	ctx := context.Background()
	require.NoError(t, s.SignIn(ctx, "expired", "refresh-1"))

	var seen []Status
	var mu sync.Mutex
	s.OnStatus(func(st Status, _ error) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	_, err := s.Request(ctx, "{ me }", nil)
	require.Error(t, err)
	assert.Equal(t, StatusSignInRequired, Classify(err))

	status, serr := s.Status()
	assert.Equal(t, StatusSignInRequired, status)
	assert.Error(t, serr)
	require.Equal(t, 1, reporter.count())
	assert.Equal(t, "sign_in_required", reporter.reports[0]["status"])

	// 重新登录后恢复
	require.NoError(t, s.SignIn(ctx, "valid", "refresh-2"))
	status, _ = s.Status()
	assert.Equal(t, StatusOK, status)

	mu.Lock()
	assert.Equal(t, []Status{StatusSignInRequired, StatusOK}, seen)
	mu.Unlock()
}

func TestSession_SocketEvents(t *testing.T) {
	b := newBackend(t, "t")
	reporter := &recordingReporter{}
	s := newTestSession(t, b, WithFatalReporter(reporter), WithClock(clockwork.NewFakeClock()))

	s.handleSocketEvent(websocket.Event{Kind: websocket.EventDisconnect, Err: websocket.ErrHeartbeatTimeout})
	status, err := s.Status()
	assert.Equal(t, StatusReconnecting, status)
	assert.ErrorIs(t, err, websocket.ErrHeartbeatTimeout)

	s.handleSocketEvent(websocket.Event{Kind: websocket.EventError, Err: &websocket.ParseError{Raw: []byte("x")}})
	status, _ = s.Status()
	assert.Equal(t, StatusReconnecting, status, "non-fatal errors do not change status")
	assert.Zero(t, reporter.count())

	s.handleSocketEvent(websocket.Event{Kind: websocket.EventError, Err: websocket.ErrMaxRetriesExceeded, Fatal: true})
	status, _ = s.Status()
	assert.Equal(t, StatusFatal, status)
	require.Equal(t, 1, reporter.count())
	assert.Equal(t, "fatal", reporter.reports[0]["status"])

	s.handleSocketEvent(websocket.Event{Kind: websocket.EventConnect})
	status, _ = s.Status()
	assert.Equal(t, StatusOK, status)
}

func TestSession_ConnectRefusedKeepsRetrying(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebSocket.URL = "ws://127.0.0.1:1/live"
	cfg.WebSocket.Heartbeat.Enable = false
	cfg.GraphQL.Endpoint = "http://127.0.0.1:1/graphql"
	cfg.Auth.RefreshEndpoint = "http://127.0.0.1:1/auth"

	// 假时钟下重连定时器不会触发，状态停留在首次拨号失败之后
	s, err := New(cfg, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Connect(context.Background()))

	status, serr := s.Status()
	assert.Equal(t, StatusReconnecting, status)
	var cerr *websocket.ConnectionError
	require.True(t, errors.As(serr, &cerr))
	assert.Equal(t, "dial", cerr.Op)

	assert.ErrorIs(t, s.Connect(context.Background()), websocket.ErrAlreadyConnected)
}

func TestSession_RateLimitedSharedLimiter(t *testing.T) {
	b := newBackend(t, "t")
	cfg := DefaultConfig()
	cfg.WebSocket.URL = "ws" + strings.TrimPrefix(b.URL, "http") + "/live"
	cfg.GraphQL.Endpoint = b.URL + "/graphql"
	cfg.RateLimit.MaxRequests = 1
	s, err := New(cfg, WithClock(clockwork.NewFakeClock()))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.SignIn(ctx, "t", ""))

	_, err = s.Request(ctx, "{ me }", nil)
	require.NoError(t, err)
	_, err = s.Request(ctx, "{ me }", nil)
	assert.Equal(t, StatusRetryLater, Classify(err))
	assert.Equal(t, 0, s.Limiter().Remaining())
}
