// Package livesync 组装实时连接、请求编排与凭证管理，作为展示层的唯一入口
package livesync

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/livesync/pkg/auth"
	"github.com/lk2023060901/livesync/pkg/cache"
	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/logger"
	"github.com/lk2023060901/livesync/pkg/ratelimit"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

// ErrNilConfig 未提供配置
var ErrNilConfig = errors.New("livesync: nil config")

// FatalReporter 接收会话无法自行恢复的错误
type FatalReporter interface {
	ReportFatal(ctx context.Context, err error, tags map[string]string)
}

// StatusListener 状态变化回调，err 为导致变化的错误
type StatusListener func(status Status, err error)

// Session 持有一组互相注入的组件，没有包级单例
type Session struct {
	logger   logger.Logger
	reporter FatalReporter

	auth    *auth.Manager
	cache   *cache.RequestCache
	limiter *ratelimit.SlidingWindow
	gql     *graphql.Client
	socket  *websocket.Client

	mu        sync.Mutex
	status    Status
	lastErr   error
	nextID    uint64
	listeners map[uint64]StatusListener

	unsubscribe []func()
	closeOnce   sync.Once
}

type options struct {
	logger     logger.Logger
	clock      clockwork.Clock
	registerer prometheus.Registerer
	tracer     trace.TracerProvider
	reporter   FatalReporter
	store      auth.TokenStore
	refresher  auth.Refresher
	httpClient *http.Client
}

// Option 会话选项
type Option func(*options)

func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithClock 所有组件共享的时钟
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

func WithMetricsRegisterer(r prometheus.Registerer) Option {
	return func(o *options) { o.registerer = r }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracer = tp }
}

// WithFatalReporter 致命错误与需要重新登录时上报
func WithFatalReporter(r FatalReporter) Option {
	return func(o *options) { o.reporter = r }
}

// WithTokenStore 覆盖 Auth.Store 配置
func WithTokenStore(s auth.TokenStore) Option {
	return func(o *options) { o.store = s }
}

func WithRefresher(r auth.Refresher) Option {
	return func(o *options) { o.refresher = r }
}

// WithHTTPClient GraphQL 请求使用的 HTTP 客户端
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// New 按依赖顺序创建组件：凭证、缓存、限流、请求编排、实时连接
func New(cfg *Config, opts ...Option) (*Session, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	o := options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(&o)
	}
	log := logger.OrNoop(o.logger)

	authOpts := []auth.Option{auth.WithClock(o.clock), auth.WithLogger(log)}
	if o.store != nil {
		authOpts = append(authOpts, auth.WithStore(o.store))
	}
	if o.refresher != nil {
		authOpts = append(authOpts, auth.WithRefresher(o.refresher))
	}
	authCfg := cfg.Auth
	manager, err := auth.NewManager(&authCfg, authOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "livesync: auth")
	}

	cacheCfg := cfg.Cache
	rc, err := cache.New(&cacheCfg, cache.WithClock(o.clock), cache.WithLogger(log))
	if err != nil {
		_ = manager.Close()
		return nil, errors.Wrap(err, "livesync: cache")
	}

	limitCfg := cfg.RateLimit
	limiter, err := ratelimit.New(&limitCfg, o.clock)
	if err != nil {
		_ = rc.Close()
		_ = manager.Close()
		return nil, errors.Wrap(err, "livesync: ratelimit")
	}

	gqlOpts := []graphql.Option{
		graphql.WithAuthenticator(manager),
		graphql.WithResponseCache(rc),
		graphql.WithLimiter(limiter),
		graphql.WithLogger(log),
		graphql.WithMetricsRegisterer(o.registerer),
	}
	if o.tracer != nil {
		gqlOpts = append(gqlOpts, graphql.WithTracerProvider(o.tracer))
	}
	if o.httpClient != nil {
		gqlOpts = append(gqlOpts, graphql.WithHTTPClient(o.httpClient))
	}
	gqlCfg := cfg.GraphQL
	gql, err := graphql.NewClient(&gqlCfg, gqlOpts...)
	if err != nil {
		_ = rc.Close()
		_ = manager.Close()
		return nil, errors.Wrap(err, "livesync: graphql")
	}

	wsCfg := cfg.WebSocket
	socket, err := websocket.NewClient(&wsCfg,
		websocket.WithClientLogger(log),
		websocket.WithClock(o.clock),
		websocket.WithTokenProvider(manager),
		websocket.WithClientMetricsRegisterer(o.registerer),
	)
	if err != nil {
		_ = rc.Close()
		_ = manager.Close()
		return nil, errors.Wrap(err, "livesync: websocket")
	}

	s := &Session{
		logger:    log.Named("session"),
		reporter:  o.reporter,
		auth:      manager,
		cache:     rc,
		limiter:   limiter,
		gql:       gql,
		socket:    socket,
		listeners: make(map[uint64]StatusListener),
	}
	s.unsubscribe = append(s.unsubscribe,
		socket.On(websocket.EventConnect, s.handleSocketEvent),
		socket.On(websocket.EventDisconnect, s.handleSocketEvent),
		socket.On(websocket.EventError, s.handleSocketEvent),
		manager.Subscribe(s.handleCredential),
	)
	return s, nil
}

// Connect 打开实时连接。
// 首次拨号失败不返回错误：客户端已安排重连，失败原因通过 Status 报告为 StatusReconnecting。
// 仅 ErrClientClosed、ErrAlreadyConnected 等无法自行恢复的错误返回给调用方。
func (s *Session) Connect(ctx context.Context) error {
	err := s.socket.Connect(ctx)
	var cerr *websocket.ConnectionError
	if errors.As(err, &cerr) {
		s.logger.Warn("initial connect failed, retrying", "error", err)
		return nil
	}
	return err
}

// Disconnect 主动断开，不会触发重连
func (s *Session) Disconnect() error {
	return s.socket.Disconnect()
}

// Send 通过实时连接发送一帧
func (s *Session) Send(ctx context.Context, frameType string, payload any) error {
	return s.socket.Send(ctx, frameType, payload)
}

// Events 订阅连接事件
func (s *Session) Events(buffer int) (<-chan websocket.Event, func()) {
	return s.socket.Subscribe(buffer)
}

// Request 执行 GraphQL 请求，需要重新登录时更新状态并上报
func (s *Session) Request(ctx context.Context, query string, variables map[string]any, opts ...graphql.RequestOption) (json.RawMessage, error) {
	data, err := s.gql.Request(ctx, query, variables, opts...)
	if err != nil && Classify(err) == StatusSignInRequired {
		s.setStatus(StatusSignInRequired, err)
		s.report(ctx, err, StatusSignInRequired)
	}
	return data, err
}

// SignIn 保存登录得到的凭证
func (s *Session) SignIn(ctx context.Context, accessToken, refreshToken string) error {
	return s.auth.SetToken(ctx, accessToken, refreshToken)
}

// SignOut 清除凭证并断开连接
func (s *Session) SignOut(ctx context.Context) error {
	err := s.auth.ClearToken(ctx)
	if derr := s.socket.Disconnect(); derr != nil && !errors.Is(derr, websocket.ErrNotConnected) {
		err = errors.CombineErrors(err, derr)
	}
	s.cache.Invalidate("")
	return err
}

// Status 最近一次状态与导致它的错误
func (s *Session) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.lastErr
}

// OnStatus 注册状态变化回调
func (s *Session) OnStatus(fn StatusListener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) Auth() *auth.Manager               { return s.auth }
func (s *Session) Socket() *websocket.Client         { return s.socket }
func (s *Session) GraphQL() *graphql.Client          { return s.gql }
func (s *Session) Cache() *cache.RequestCache        { return s.cache }
func (s *Session) Limiter() *ratelimit.SlidingWindow { return s.limiter }

// Close 停止连接并释放所有组件
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		for _, fn := range s.unsubscribe {
			fn()
		}
		if cerr := s.socket.Close(); cerr != nil && !errors.Is(cerr, websocket.ErrClientClosed) {
			err = errors.CombineErrors(err, cerr)
		}
		err = errors.CombineErrors(err, s.cache.Close())
		err = errors.CombineErrors(err, s.auth.Close())
	})
	return err
}

func (s *Session) handleSocketEvent(ev websocket.Event) {
	switch ev.Kind {
	case websocket.EventConnect:
		s.setStatus(StatusOK, nil)
	case websocket.EventDisconnect:
		if ev.Intentional {
			s.setStatus(StatusOK, nil)
			return
		}
		cause := ev.Err
		if cause == nil {
			cause = websocket.ErrConnectionClosed
		}
		s.setStatus(StatusReconnecting, cause)
	case websocket.EventError:
		if !ev.Fatal {
			if ev.State == websocket.StateConnecting {
				s.setStatus(StatusReconnecting, ev.Err)
			}
			return
		}
		s.setStatus(StatusFatal, ev.Err)
		s.report(context.Background(), ev.Err, StatusFatal)
	}
}

func (s *Session) handleCredential(cred *auth.Credential) {
	if cred != nil {
		s.mu.Lock()
		signedOut := s.status == StatusSignInRequired
		s.mu.Unlock()
		if signedOut {
			s.setStatus(StatusOK, nil)
		}
	}
}

func (s *Session) setStatus(status Status, err error) {
	s.mu.Lock()
	changed := s.status != status
	s.status = status
	s.lastErr = err
	listeners := make([]StatusListener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	if !changed {
		return
	}
	s.logger.Info("session status changed", "status", status.String(), "error", err)
	for _, fn := range listeners {
		fn(status, err)
	}
}

func (s *Session) report(ctx context.Context, err error, status Status) {
	if s.reporter == nil || err == nil {
		return
	}
	s.reporter.ReportFatal(ctx, err, map[string]string{"status": status.String()})
}
