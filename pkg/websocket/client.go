package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/lk2023060901/livesync/pkg/logger"
)

// TokenProvider 提供握手时使用的 bearer token
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Client 带自动重连与心跳的 WebSocket 客户端
//
// 状态转换都在 mu 下完成。generation 在每次 Connect 与 Disconnect 时递增，
// 计时器与读循环的回调都携带创建时的 generation，过期的回调直接丢弃。
type Client struct {
	config            *ClientConfig
	logger            logger.Logger
	clock             clockwork.Clock
	dialer            *websocket.Dialer
	tokens            TokenProvider
	metrics           *ClientMetrics
	metricsRegisterer prometheus.Registerer
	limiter           *rate.Limiter

	reconnector *Reconnector
	events      *emitter

	mu             sync.Mutex
	state          ConnectionState
	conn           *Connection
	heartbeat      *HeartbeatManager
	generation     uint64
	intentional    bool
	reconnectTimer clockwork.Timer
	runCtx         context.Context
	runCancel      context.CancelFunc
	closed         bool
}

// ClientOption 客户端选项
type ClientOption func(*Client)

// WithClientLogger 设置客户端日志记录器
func WithClientLogger(l logger.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock 注入时钟，测试中使用 clockwork.FakeClock
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) {
		c.clock = clock
	}
}

// WithTokenProvider 每次握手都携带 Authorization: Bearer <token>
func WithTokenProvider(p TokenProvider) ClientOption {
	return func(c *Client) {
		c.tokens = p
	}
}

// WithClientMetricsRegisterer 设置 Prometheus 注册器
func WithClientMetricsRegisterer(registerer prometheus.Registerer) ClientOption {
	return func(c *Client) {
		c.metricsRegisterer = registerer
	}
}

// NewClient 创建客户端，cfg 中的零值字段会被补全
func NewClient(cfg *ClientConfig, opts ...ClientOption) (*Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config: cfg,
		clock:  clockwork.NewRealClock(),
		state:  StateIdle,
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNoop(c.logger).Named("websocket")

	c.dialer = &websocket.Dialer{
		Proxy:             http.ProxyFromEnvironment,
		HandshakeTimeout:  cfg.DialTimeout,
		ReadBufferSize:    cfg.ReadBufferSize,
		WriteBufferSize:   cfg.WriteBufferSize,
		EnableCompression: cfg.EnableCompression,
	}
	if cfg.TLS != nil {
		tlsConfig, err := cfg.TLS.BuildTLSConfig()
		if err != nil {
			return nil, err
		}
		c.dialer.TLSClientConfig = tlsConfig
	}

	if cfg.SendRateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.SendRateLimit), cfg.SendBurst)
	}

	c.metrics = NewClientMetrics(c.metricsRegisterer)
	c.reconnector = NewReconnector(&cfg.Reconnect)
	c.events = newEmitter(c.logger, c.metrics)

	return c, nil
}

// Connect 开始一轮新的连接。首次拨号失败会返回 *ConnectionError，
// 但客户端已进入重连流程，直到连接成功或重连次数耗尽。
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.state == StateOpen || c.state == StateConnecting {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.generation++
	gen := c.generation
	c.intentional = false
	c.reconnector.Reset()
	if c.runCancel != nil {
		c.runCancel()
	}
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	c.logger.Info("websocket connecting", "url", c.config.URL)
	return c.dial(ctx, gen)
}

// dial 拨号并在成功后进入 Open
func (c *Client) dial(ctx context.Context, gen uint64) error {
	header := make(http.Header, len(c.config.Headers)+1)
	for k, v := range c.config.Headers {
		header.Set(k, v)
	}
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			c.logger.Warn("websocket token unavailable, dialing without authorization", "error", err)
		} else if token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
	}

	ws, resp, err := c.dialer.DialContext(ctx, c.config.URL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		cerr := &ConnectionError{Op: "dial", Err: err}
		if resp != nil {
			cerr.StatusCode = resp.StatusCode
		}
		if !c.isCurrent(gen) {
			return cerr
		}
		c.logger.Warn("websocket dial failed", "url", c.config.URL, "error", err)
		c.metrics.OnError("dial")
		c.emit(Event{Kind: EventError, State: StateConnecting, Err: cerr})
		c.scheduleReconnect(gen)
		return cerr
	}

	c.mu.Lock()
	if gen != c.generation || c.intentional {
		c.mu.Unlock()
		_ = ws.Close()
		return ErrConnectionClosed
	}
	conn := NewConnection(ws,
		WithConnectionLogger(c.logger),
		WithTimeouts(c.config.ReadTimeout, c.config.WriteTimeout),
		WithSendQueueSize(c.config.SendQueueSize),
	)
	conn.SetReadLimit(c.config.MaxMessageSize)

	var hb *HeartbeatManager
	if c.config.Heartbeat.Enable {
		hb = c.newHeartbeat(gen, conn)
	}
	c.conn = conn
	c.heartbeat = hb
	c.reconnector.Reset()
	c.setStateLocked(StateOpen)
	if hb != nil {
		hb.Start()
	}
	c.mu.Unlock()

	c.metrics.OnConnected()
	c.logger.Info("websocket connected", "url", c.config.URL, "conn_id", conn.ID())

	go conn.WriteLoop()
	c.emit(Event{Kind: EventConnect, State: StateOpen})
	go c.readLoop(gen, conn, hb)

	return nil
}

func (c *Client) newHeartbeat(gen uint64, conn *Connection) *HeartbeatManager {
	hb := NewHeartbeatManager(&c.config.Heartbeat, c.clock, c.logger)
	hb.SetOnPing(func() error {
		frame, err := NewFrame(FrameTypePing, nil, c.clock.Now())
		if err != nil {
			return err
		}
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if err := conn.TrySend(data); err != nil {
			return err
		}
		c.metrics.OnHeartbeatSent()
		return nil
	})
	hb.SetOnTimeout(func() {
		c.metrics.OnHeartbeatTimeout()
		c.handleDisconnect(gen, conn, &ConnectionError{Op: "heartbeat", Err: ErrHeartbeatTimeout})
	})
	return hb
}

func (c *Client) readLoop(gen uint64, conn *Connection, hb *HeartbeatManager) {
	cause := conn.ReadLoop(func(data []byte) {
		c.handleFrame(conn, hb, data)
	})
	c.handleDisconnect(gen, conn, cause)
}

func (c *Client) handleFrame(conn *Connection, hb *HeartbeatManager, data []byte) {
	c.metrics.OnMessageReceived(len(data))

	frame, err := DecodeFrame(data)
	if err != nil {
		c.logger.Warn("websocket frame dropped", "error", err, "size", len(data))
		c.metrics.OnError("parse")
		c.emit(Event{Kind: EventError, State: c.State(), Err: err})
		return
	}

	switch frame.Type {
	case FrameTypePong:
		c.metrics.OnHeartbeatReceived()
		if hb != nil {
			hb.PongReceived()
		}
	case FrameTypePing:
		pong, _ := NewFrame(FrameTypePong, nil, c.clock.Now())
		if out, err := json.Marshal(pong); err == nil {
			if err := conn.TrySend(out); err != nil {
				c.logger.Debug("websocket pong reply failed", "error", err)
			}
		}
	default:
		c.emit(Event{Kind: EventMessage, State: StateOpen, Frame: frame})
	}
}

// handleDisconnect 非主动断开：停止心跳，通知上层，安排重连
func (c *Client) handleDisconnect(gen uint64, conn *Connection, cause error) {
	c.mu.Lock()
	if gen != c.generation || c.intentional || c.conn != conn {
		c.mu.Unlock()
		return
	}
	hb := c.heartbeat
	c.conn = nil
	c.heartbeat = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	_ = conn.CloseWithError(cause)

	c.metrics.OnDisconnected()
	c.logger.Warn("websocket disconnected", "conn_id", conn.ID(), "error", cause)
	c.emit(Event{Kind: EventDisconnect, State: StateConnecting, Err: cause})

	c.scheduleReconnect(gen)
}

// scheduleReconnect 预算内安排一次延迟重连，否则进入 Closed 并发出致命错误
func (c *Client) scheduleReconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.intentional {
		c.mu.Unlock()
		return
	}
	if !c.reconnector.ShouldReconnect() {
		c.stopReconnectTimerLocked()
		c.setStateLocked(StateClosed)
		attempts := c.reconnector.Attempts()
		c.mu.Unlock()

		c.metrics.OnReconnectExhausted()
		c.logger.Error("websocket reconnect budget exhausted", "attempts", attempts)
		c.emit(Event{Kind: EventError, State: StateClosed, Err: ErrMaxRetriesExceeded, Fatal: true})
		return
	}

	delay := c.reconnector.NextDelay()
	attempt := c.reconnector.Attempts()
	c.stopReconnectTimerLocked()
	c.setStateLocked(StateConnecting)
	c.reconnectTimer = c.clock.AfterFunc(delay, func() {
		c.reconnect(gen)
	})
	c.mu.Unlock()

	c.metrics.OnReconnectAttempt()
	c.logger.Info("websocket reconnect scheduled", "attempt", attempt, "delay", delay)
}

func (c *Client) reconnect(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.intentional {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	ctx := c.runCtx
	c.mu.Unlock()

	_ = c.dial(ctx, gen)
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation && !c.intentional
}

func (c *Client) stopReconnectTimerLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) setStateLocked(s ConnectionState) {
	c.state = s
	c.metrics.OnState(s)
}

// Disconnect 主动断开，取消所有计时器且不再重连
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if c.state == StateIdle || (c.state == StateClosed && c.conn == nil) {
		c.intentional = true
		c.generation++
		c.stopReconnectTimerLocked()
		c.mu.Unlock()
		return nil
	}

	c.intentional = true
	c.generation++
	gen := c.generation
	c.setStateLocked(StateClosing)
	c.stopReconnectTimerLocked()
	if c.heartbeat != nil {
		c.heartbeat.Stop()
		c.heartbeat = nil
	}
	if c.runCancel != nil {
		c.runCancel()
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			c.logger.Debug("websocket close error", "error", err)
		}
		c.metrics.OnDisconnected()
	}

	if !c.markClosed(gen) {
		c.logger.Debug("websocket disconnect superseded by a newer connect")
		return nil
	}

	c.logger.Info("websocket disconnected by client")
	c.emit(Event{Kind: EventDisconnect, State: StateClosed, Intentional: true})
	return nil
}

// markClosed 仅在期间没有新的 Connect 时进入 Closed
func (c *Client) markClosed(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.setStateLocked(StateClosed)
	return true
}

// Close 断开连接并关闭所有事件订阅
func (c *Client) Close() error {
	err := c.Disconnect()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.events.close()
	return err
}

// Send 发送一帧，仅在 Open 状态可用
func (c *Client) Send(ctx context.Context, frameType string, payload any) error {
	frame, err := NewFrame(frameType, payload, c.clock.Now())
	if err != nil {
		return err
	}
	return c.SendFrame(ctx, frame)
}

// SendFrame 发送预先构造的帧，Timestamp 为 0 时填入当前时间
func (c *Client) SendFrame(ctx context.Context, frame *Frame) error {
	c.mu.Lock()
	conn := c.conn
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || conn == nil {
		return ErrNotConnected
	}

	if frame.Timestamp == 0 {
		frame.Timestamp = c.clock.Now().UnixMilli()
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return errors.Wrap(err, "websocket: marshal frame")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "websocket: send throttled")
		}
	}

	if err := conn.Send(ctx, data); err != nil {
		if errors.Is(err, ErrConnectionClosed) {
			return ErrNotConnected
		}
		return err
	}
	c.metrics.OnMessageSent(len(data))
	return nil
}

// Subscribe 订阅所有事件，buffer <= 0 时使用配置的默认大小。
// 缓冲满时该订阅者会丢失事件，不会阻塞客户端。
func (c *Client) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = c.config.EventBufferSize
	}
	return c.events.subscribe(buffer)
}

// On 注册指定类型事件的回调，在发出事件的 goroutine 中按注册顺序执行
func (c *Client) On(kind EventKind, fn func(Event)) func() {
	return c.events.on(kind, fn)
}

func (c *Client) emit(ev Event) {
	ev.Time = c.clock.Now()
	c.events.emit(ev)
}

// State 获取连接状态
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected 检查是否已连接
func (c *Client) IsConnected() bool {
	return c.State() == StateOpen
}

// IsAlive 已连接且心跳正常，未启用心跳时等同于 IsConnected
func (c *Client) IsAlive() bool {
	c.mu.Lock()
	hb := c.heartbeat
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open {
		return false
	}
	if hb == nil {
		return true
	}
	return hb.IsAlive()
}

// ReconnectAttempts 当前连续重连次数
func (c *Client) ReconnectAttempts() int {
	return c.reconnector.Attempts()
}

// Connection 获取当前连接
func (c *Client) Connection() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}
