package graphql

import "time"

// Config 请求编排配置
type Config struct {
	// Endpoint GraphQL HTTP 端点
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint" validate:"required,url"`
	// Timeout 单次 HTTP 往返超时
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout" validate:"gt=0"`
	// MaxResponseSize 响应体上限
	MaxResponseSize int64 `mapstructure:"max_response_size" json:"max_response_size" yaml:"max_response_size" validate:"gt=0"`
	// ProactiveRefresh access token 即将过期时在发送前刷新
	ProactiveRefresh bool `mapstructure:"proactive_refresh" json:"proactive_refresh" yaml:"proactive_refresh"`
	// Headers 每个请求附加的头
	Headers map[string]string `mapstructure:"headers" json:"headers" yaml:"headers"`
}

// DefaultConfig 默认配置，Endpoint 必须由调用方提供
func DefaultConfig() *Config {
	return &Config{
		Timeout:         15 * time.Second,
		MaxResponseSize: 10 << 20,
	}
}
