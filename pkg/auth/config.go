package auth

import (
	"time"

	"github.com/lk2023060901/livesync/pkg/database/redis"
)

// 存储后端
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Config 认证配置
type Config struct {
	// RefreshEndpoint 刷新接口前缀，实际请求 <RefreshEndpoint>/refresh
	RefreshEndpoint string `mapstructure:"refresh_endpoint" json:"refresh_endpoint" yaml:"refresh_endpoint" validate:"omitempty,url"`
	// RefreshTimeout 刷新请求超时
	RefreshTimeout time.Duration `mapstructure:"refresh_timeout" json:"refresh_timeout" yaml:"refresh_timeout"`
	// RefreshSkew 大于 0 时，token 在过期前 RefreshSkew 内会被提前刷新
	RefreshSkew time.Duration `mapstructure:"refresh_skew" json:"refresh_skew" yaml:"refresh_skew" validate:"gte=0"`

	Store StoreConfig `mapstructure:"store" json:"store" yaml:"store"`
}

// StoreConfig 凭证持久化配置
type StoreConfig struct {
	// Type memory / file / redis
	Type string `mapstructure:"type" json:"type" yaml:"type" validate:"oneof=memory file redis"`
	// AccessTokenKey / RefreshTokenKey 两个条目的键名
	AccessTokenKey  string `mapstructure:"access_token_key" json:"access_token_key" yaml:"access_token_key"`
	RefreshTokenKey string `mapstructure:"refresh_token_key" json:"refresh_token_key" yaml:"refresh_token_key"`

	File  FileStoreConfig  `mapstructure:"file" json:"file" yaml:"file"`
	Redis RedisStoreConfig `mapstructure:"redis" json:"redis" yaml:"redis"`
}

// FileStoreConfig 加密文件存储
type FileStoreConfig struct {
	Path string `mapstructure:"path" json:"path" yaml:"path"`
	// Passphrase 用于派生 AES 密钥，建议通过环境变量注入
	Passphrase string `mapstructure:"passphrase" json:"-" yaml:"-"`
}

// RedisStoreConfig Redis 存储
type RedisStoreConfig struct {
	Client redis.Config `mapstructure:"client" json:"client" yaml:"client"`
	// TTL 键过期时间，0 表示不过期
	TTL time.Duration `mapstructure:"ttl" json:"ttl" yaml:"ttl"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		RefreshTimeout: 10 * time.Second,
		Store: StoreConfig{
			Type:            StoreMemory,
			AccessTokenKey:  "{livesync}:access_token",
			RefreshTokenKey: "{livesync}:refresh_token",
		},
	}
}
