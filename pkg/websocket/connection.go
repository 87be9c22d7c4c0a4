package websocket

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/lk2023060901/livesync/pkg/logger"
)

// Connection 单条 WebSocket 连接封装，所有写操作经由发送队列串行化
type Connection struct {
	id   string
	conn *websocket.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration

	sendChan chan []byte
	logger   logger.Logger

	closed     atomic.Bool
	closeChan  chan struct{}
	closeOnce  sync.Once
	closeMu    sync.Mutex
	closeError error

	remoteAddr  string
	connectedAt time.Time
}

// ConnectionOption 连接选项
type ConnectionOption func(*Connection)

// WithConnectionLogger 设置日志
func WithConnectionLogger(l logger.Logger) ConnectionOption {
	return func(c *Connection) {
		c.logger = l
	}
}

// WithTimeouts 设置读写超时，0 表示不设置截止时间
func WithTimeouts(read, write time.Duration) ConnectionOption {
	return func(c *Connection) {
		c.readTimeout = read
		c.writeTimeout = write
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(size int) ConnectionOption {
	return func(c *Connection) {
		if size > 0 {
			c.sendChan = make(chan []byte, size)
		}
	}
}

// NewConnection 创建连接
func NewConnection(conn *websocket.Conn, opts ...ConnectionOption) *Connection {
	c := &Connection{
		id:           uuid.New().String(),
		conn:         conn,
		writeTimeout: 10 * time.Second,
		sendChan:     make(chan []byte, 256),
		closeChan:    make(chan struct{}),
		remoteAddr:   conn.RemoteAddr().String(),
		connectedAt:  time.Now(),
	}

	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNoop(c.logger).WithFields("conn_id", c.id)

	return c
}

// ID 返回连接 ID
func (c *Connection) ID() string {
	return c.id
}

// RemoteAddr 返回远程地址
func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

// ConnectedAt 返回连接时间
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// IsClosed 检查连接是否已关闭
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// Send 将数据放入发送队列，队列满时等待直到 ctx 结束
func (c *Connection) Send(ctx context.Context, data []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case c.sendChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	}
}

// TrySend 非阻塞发送，队列满时返回 ErrSendQueueFull
func (c *Connection) TrySend(data []byte) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}

	select {
	case c.sendChan <- data:
		return nil
	case <-c.closeChan:
		return ErrConnectionClosed
	default:
		return ErrSendQueueFull
	}
}

// ReadLoop 持续读取消息并交给 handler，直到连接断开，返回断开原因
func (c *Connection) ReadLoop(handler func(data []byte)) error {
	for {
		if c.readTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.IsClosed() {
				if cause := c.CloseError(); cause != nil {
					return cause
				}
				return ErrConnectionClosed
			}
			c.logger.Debug("websocket read error", "error", err)
			cerr := &ConnectionError{Op: "read", Err: err}
			_ = c.CloseWithError(cerr)
			return cerr
		}

		handler(data)
	}
}

// WriteLoop 从发送队列取数据写入连接，写失败时关闭连接
func (c *Connection) WriteLoop() {
	for {
		select {
		case data := <-c.sendChan:
			if c.writeTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("websocket write error", "error", err)
				_ = c.CloseWithError(&ConnectionError{Op: "write", Err: err})
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// Close 关闭连接
func (c *Connection) Close() error {
	return c.CloseWithError(nil)
}

// CloseWithError 带原因关闭连接，只有第一次调用生效
func (c *Connection) CloseWithError(cause error) error {
	var err error
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closeError = cause
		c.closeMu.Unlock()
		c.closed.Store(true)
		close(c.closeChan)

		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		if cerr := c.conn.Close(); cerr != nil {
			err = errors.Wrap(cerr, "websocket: close")
		}
	})
	return err
}

// CloseError 返回关闭原因
func (c *Connection) CloseError() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closeError
}

// SetReadLimit 设置单条消息上限
func (c *Connection) SetReadLimit(limit int64) {
	c.conn.SetReadLimit(limit)
}
