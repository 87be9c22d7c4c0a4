package websocket

import (
	"crypto/tls"
	"crypto/x509"
	"net/url"
	"os"
	"time"

	"github.com/cockroachdb/errors"
)

// TLSConfig 客户端 TLS 配置
type TLSConfig struct {
	// CAFile 自定义根证书
	CAFile string `mapstructure:"ca_file" json:"ca_file,omitempty" yaml:"ca_file,omitempty"`
	// CertFile / KeyFile 双向认证使用的客户端证书
	CertFile string `mapstructure:"cert_file" json:"cert_file,omitempty" yaml:"cert_file,omitempty"`
	KeyFile  string `mapstructure:"key_file" json:"key_file,omitempty" yaml:"key_file,omitempty"`
	// InsecureSkipVerify 是否跳过证书验证（仅用于测试）
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	// MinVersion TLS 最低版本 ("1.2" 或 "1.3")
	MinVersion string `mapstructure:"min_version" json:"min_version" yaml:"min_version"`
}

// Validate 验证 TLS 配置
func (c *TLSConfig) Validate() error {
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.Wrap(ErrTLSConfigInvalid, "cert_file and key_file must be set together")
	}
	switch c.MinVersion {
	case "", "1.2", "1.3":
	default:
		return errors.Wrapf(ErrTLSConfigInvalid, "invalid min_version %s", c.MinVersion)
	}
	return nil
}

// BuildTLSConfig 构建 tls.Config
func (c *TLSConfig) BuildTLSConfig() (*tls.Config, error) {
	if c == nil {
		return nil, nil
	}

	tlsConfig := &tls.Config{
		InsecureSkipVerify: c.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if c.MinVersion == "1.3" {
		tlsConfig.MinVersion = tls.VersionTLS13
	}

	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, errors.Wrapf(ErrTLSConfigInvalid, "read ca_file: %v", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.Wrap(ErrTLSConfigInvalid, "no certificates in ca_file")
		}
		tlsConfig.RootCAs = pool
	}

	if c.CertFile != "" && c.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(ErrTLSConfigInvalid, "load certificate: %v", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// HeartbeatConfig 心跳配置
type HeartbeatConfig struct {
	// Enable 是否启用心跳
	Enable bool `mapstructure:"enable" json:"enable" yaml:"enable"`
	// Interval 发送 ping 的间隔
	Interval time.Duration `mapstructure:"interval" json:"interval" yaml:"interval"`
	// Timeout 发送 ping 后等待 pong 的时长
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// DefaultHeartbeatConfig 返回默认心跳配置
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Enable:   true,
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
	}
}

// Validate 补全零值字段
func (c *HeartbeatConfig) Validate() error {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return nil
}

// ReconnectConfig 重连配置
type ReconnectConfig struct {
	// MaxAttempts 连续失败的最大重连次数
	MaxAttempts int `mapstructure:"max_attempts" json:"max_attempts" yaml:"max_attempts"`
	// InitialDelay 第一次重连前的等待
	InitialDelay time.Duration `mapstructure:"initial_delay" json:"initial_delay" yaml:"initial_delay"`
	// MaxDelay 最大延迟
	MaxDelay time.Duration `mapstructure:"max_delay" json:"max_delay" yaml:"max_delay"`
	// Multiplier 延迟倍数
	Multiplier float64 `mapstructure:"multiplier" json:"multiplier" yaml:"multiplier"`
	// RandomFactor 随机抖动因子（0-1），0 表示不抖动
	RandomFactor float64 `mapstructure:"random_factor" json:"random_factor" yaml:"random_factor"`
}

// DefaultReconnectConfig 返回默认重连配置
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxAttempts:  10,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Validate 补全零值字段并检查取值范围
func (c *ReconnectConfig) Validate() error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.MaxDelay < c.InitialDelay {
		return errors.Wrap(ErrInvalidConfig, "max_delay must not be less than initial_delay")
	}
	if c.Multiplier == 0 {
		c.Multiplier = 2.0
	}
	if c.Multiplier < 1 {
		return errors.Wrap(ErrInvalidConfig, "multiplier must be >= 1")
	}
	if c.RandomFactor < 0 || c.RandomFactor > 1 {
		return errors.Wrap(ErrInvalidConfig, "random_factor must be within [0, 1]")
	}
	return nil
}

// ClientConfig 客户端配置
type ClientConfig struct {
	// URL "ws://host:port/path" 或 "wss://..."
	URL string `mapstructure:"url" json:"url" yaml:"url"`

	// 缓冲区配置
	ReadBufferSize  int   `mapstructure:"read_buffer_size" json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int   `mapstructure:"write_buffer_size" json:"write_buffer_size" yaml:"write_buffer_size"`
	MaxMessageSize  int64 `mapstructure:"max_message_size" json:"max_message_size" yaml:"max_message_size"`

	// 超时配置，ReadTimeout 为 0 时由心跳负责探活
	DialTimeout  time.Duration `mapstructure:"dial_timeout" json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" json:"write_timeout" yaml:"write_timeout"`

	Heartbeat HeartbeatConfig `mapstructure:"heartbeat" json:"heartbeat" yaml:"heartbeat"`
	Reconnect ReconnectConfig `mapstructure:"reconnect" json:"reconnect" yaml:"reconnect"`

	EnableCompression bool `mapstructure:"enable_compression" json:"enable_compression" yaml:"enable_compression"`

	TLS *TLSConfig `mapstructure:"tls" json:"tls,omitempty" yaml:"tls,omitempty"`

	// Headers 握手时附带的 HTTP 头
	Headers map[string]string `mapstructure:"headers" json:"headers,omitempty" yaml:"headers,omitempty"`

	SendQueueSize int `mapstructure:"send_queue_size" json:"send_queue_size" yaml:"send_queue_size"`

	// SendRateLimit 每秒最多发送的帧数，0 表示不限
	SendRateLimit float64 `mapstructure:"send_rate_limit" json:"send_rate_limit" yaml:"send_rate_limit"`
	SendBurst     int     `mapstructure:"send_burst" json:"send_burst" yaml:"send_burst"`

	// EventBufferSize Subscribe 未指定缓冲时使用的大小
	EventBufferSize int `mapstructure:"event_buffer_size" json:"event_buffer_size" yaml:"event_buffer_size"`
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageSize:  1 << 20,
		DialTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		Heartbeat:       DefaultHeartbeatConfig(),
		Reconnect:       DefaultReconnectConfig(),
		SendQueueSize:   256,
		EventBufferSize: 64,
	}
}

// Validate 验证客户端配置并补全零值字段
func (c *ClientConfig) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if c.URL == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return errors.Wrapf(ErrInvalidURL, "%q", c.URL)
	}
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 4096
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 4096
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 1 << 20
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.EventBufferSize <= 0 {
		c.EventBufferSize = 64
	}
	if c.SendRateLimit < 0 {
		return errors.Wrap(ErrInvalidConfig, "send_rate_limit must be >= 0")
	}
	if c.SendRateLimit > 0 && c.SendBurst <= 0 {
		c.SendBurst = 1
	}
	if err := c.Heartbeat.Validate(); err != nil {
		return err
	}
	if err := c.Reconnect.Validate(); err != nil {
		return err
	}
	if c.TLS != nil {
		if err := c.TLS.Validate(); err != nil {
			return err
		}
	}
	return nil
}
