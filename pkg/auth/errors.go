package auth

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrRefreshFailed 刷新失败，凭证已被清除，需要重新登录
	ErrRefreshFailed = errors.New("auth: token refresh failed")
	// ErrNoRefreshToken 没有可用的 refresh token
	ErrNoRefreshToken = errors.New("auth: no refresh token")
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("auth: invalid config")
	// ErrStoreCorrupted 持久化的凭证无法解密或解析
	ErrStoreCorrupted = errors.New("auth: token store corrupted")
	// ErrNoExpiry token 不是 JWT 或没有 exp 声明
	ErrNoExpiry = errors.New("auth: token has no expiry")
)

// RefreshError 刷新接口返回非 2xx
type RefreshError struct {
	StatusCode int
	Body       string
}

func (e *RefreshError) Error() string {
	return fmt.Sprintf("auth: refresh endpoint returned status %d", e.StatusCode)
}
