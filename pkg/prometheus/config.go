package prometheus

import "time"

// Config 指标注册与暴露配置
type Config struct {
	// Namespace 通过 NewCounter 等创建的指标使用的命名空间
	Namespace string `mapstructure:"namespace" json:"namespace" yaml:"namespace" validate:"required"`
	Subsystem string `mapstructure:"subsystem" json:"subsystem" yaml:"subsystem"`

	HTTPServer HTTPServerConfig `mapstructure:"http_server" json:"http_server" yaml:"http_server"`

	EnableGoCollector      bool `mapstructure:"enable_go_collector" json:"enable_go_collector" yaml:"enable_go_collector"`
	EnableProcessCollector bool `mapstructure:"enable_process_collector" json:"enable_process_collector" yaml:"enable_process_collector"`
}

// HTTPServerConfig 独立的 /metrics 服务
type HTTPServerConfig struct {
	Enabled bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string        `mapstructure:"addr" json:"addr" yaml:"addr" validate:"required_if=Enabled true"`
	Path    string        `mapstructure:"path" json:"path" yaml:"path"`
	Timeout time.Duration `mapstructure:"timeout" json:"timeout" yaml:"timeout"`
}

// DefaultConfig 默认不启动 HTTP 服务
func DefaultConfig() *Config {
	return &Config{
		Namespace: "livesync",
		HTTPServer: HTTPServerConfig{
			Addr:    ":9090",
			Path:    "/metrics",
			Timeout: 10 * time.Second,
		},
	}
}
