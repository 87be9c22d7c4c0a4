package graphql

import "time"

type requestOptions struct {
	cache    bool
	cacheTTL time.Duration
	mutation bool
	skipAuth bool
}

// RequestOption 单次请求的选项
type RequestOption func(*requestOptions)

// WithCache 只读操作优先读缓存，成功后写缓存
func WithCache() RequestOption {
	return func(o *requestOptions) {
		o.cache = true
	}
}

// WithCacheTTL 缓存并指定过期时间，不大于 0 时使用缓存默认值
func WithCacheTTL(ttl time.Duration) RequestOption {
	return func(o *requestOptions) {
		o.cache = true
		o.cacheTTL = ttl
	}
}

// WithMutation 强制视为写操作，完成后清空缓存
func WithMutation() RequestOption {
	return func(o *requestOptions) {
		o.mutation = true
	}
}

// WithSkipAuth 不附加 Authorization 头，401 不触发刷新
func WithSkipAuth() RequestOption {
	return func(o *requestOptions) {
		o.skipAuth = true
	}
}
