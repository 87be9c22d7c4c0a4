package livesync

import (
	"github.com/lk2023060901/livesync/pkg/auth"
	"github.com/lk2023060901/livesync/pkg/cache"
	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/ratelimit"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

// Config 会话内各组件的配置
type Config struct {
	WebSocket websocket.ClientConfig `mapstructure:"websocket" json:"websocket" yaml:"websocket"`
	GraphQL   graphql.Config         `mapstructure:"graphql" json:"graphql" yaml:"graphql"`
	Cache     cache.Config           `mapstructure:"cache" json:"cache" yaml:"cache"`
	RateLimit ratelimit.Config       `mapstructure:"ratelimit" json:"ratelimit" yaml:"ratelimit"`
	Auth      auth.Config            `mapstructure:"auth" json:"auth" yaml:"auth"`
}

// DefaultConfig 各组件默认值，端点需要调用方填写
func DefaultConfig() *Config {
	return &Config{
		WebSocket: *websocket.DefaultClientConfig(),
		GraphQL:   *graphql.DefaultConfig(),
		Cache:     *cache.DefaultConfig(),
		RateLimit: *ratelimit.DefaultConfig(),
		Auth:      *auth.DefaultConfig(),
	}
}
