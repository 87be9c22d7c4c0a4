package graphql

import (
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrAuthenticationRequired 刷新失败或刷新后仍被拒绝，需要重新登录
	ErrAuthenticationRequired = errors.New("graphql: authentication required")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("graphql: invalid config")
)

// RateLimitedError 本地限流拒绝，请求未发出
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("graphql: rate limited, retry after %s", e.RetryAfter)
}

// TransportError 非 2xx 响应，或请求没有得到响应（StatusCode 为 0）
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("graphql: transport: %v", e.Err)
	}
	return fmt.Sprintf("graphql: unexpected status %d", e.StatusCode)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError 响应体 errors 数组非空
type APIError struct {
	Messages []string
	// Data 部分成功时服务端同时返回的 data
	Data []byte
}

func (e *APIError) Error() string {
	return "graphql: " + strings.Join(e.Messages, "; ")
}
