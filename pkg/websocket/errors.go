package websocket

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// 配置错误
	ErrInvalidConfig    = errors.New("websocket: invalid config")
	ErrInvalidURL       = errors.New("websocket: invalid url")
	ErrTLSConfigInvalid = errors.New("websocket: tls config invalid")

	// 连接错误
	ErrConnectionClosed = errors.New("websocket: connection closed")
	ErrAlreadyConnected = errors.New("websocket: already connected")
	ErrNotConnected     = errors.New("websocket: not connected")
	ErrClientClosed     = errors.New("websocket: client closed")

	// 发送错误
	ErrSendQueueFull = errors.New("websocket: send queue full")

	// 心跳错误
	ErrHeartbeatTimeout = errors.New("websocket: heartbeat timeout")

	// 重连错误
	ErrMaxRetriesExceeded = errors.New("websocket: max retries exceeded")
)

// ConnectionError 建连或读写失败，重连次数耗尽前都是可恢复的
type ConnectionError struct {
	// Op 失败的阶段：dial / read / write / heartbeat
	Op string
	// StatusCode 握手被拒时的 HTTP 状态码
	StatusCode int
	Err        error
}

func (e *ConnectionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("websocket: %s failed (status %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("websocket: %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ParseError 入站帧不是合法的 JSON 帧，连接保持打开
type ParseError struct {
	Raw []byte
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("websocket: parse frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
