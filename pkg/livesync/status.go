package livesync

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/livesync/pkg/auth"
	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

// Status 面向展示层的错误分类
type Status int

const (
	// StatusOK 没有错误
	StatusOK Status = iota
	// StatusReconnecting 连接中断，正在自动重连
	StatusReconnecting
	// StatusRetryLater 被限流或服务暂时不可用，稍后重试
	StatusRetryLater
	// StatusSignInRequired 凭证失效，需要重新登录
	StatusSignInRequired
	// StatusFatal 重连次数耗尽，会话不会自行恢复
	StatusFatal
	// StatusFailed 单次操作失败
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusReconnecting:
		return "reconnecting"
	case StatusRetryLater:
		return "retry_later"
	case StatusSignInRequired:
		return "sign_in_required"
	case StatusFatal:
		return "fatal"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Classify 将组件返回的错误映射为 Status
func Classify(err error) Status {
	if err == nil {
		return StatusOK
	}

	var (
		rateLimited *graphql.RateLimitedError
		transport   *graphql.TransportError
		connErr     *websocket.ConnectionError
	)
	switch {
	case errors.Is(err, websocket.ErrMaxRetriesExceeded):
		return StatusFatal
	case errors.Is(err, graphql.ErrAuthenticationRequired),
		errors.Is(err, auth.ErrRefreshFailed):
		return StatusSignInRequired
	case errors.As(err, &rateLimited):
		return StatusRetryLater
	case errors.As(err, &transport):
		if transport.StatusCode == http.StatusTooManyRequests || transport.StatusCode >= 500 {
			return StatusRetryLater
		}
		return StatusFailed
	case errors.As(err, &connErr),
		errors.Is(err, websocket.ErrHeartbeatTimeout),
		errors.Is(err, websocket.ErrConnectionClosed):
		return StatusReconnecting
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusFailed
	default:
		return StatusFailed
	}
}
