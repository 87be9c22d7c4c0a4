package otel

import "time"

// Config 追踪配置
type Config struct {
	// Enabled 未开启时返回不导出的 provider
	Enabled bool `mapstructure:"enabled" json:"enabled" yaml:"enabled"`

	ServiceName string `mapstructure:"service_name" json:"service_name" yaml:"service_name" validate:"required"`

	// Endpoint 导出器端点
	// OTLP HTTP: localhost:4318
	// OTLP gRPC: localhost:4317
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`

	// ExporterType otlp-http / otlp-grpc / stdout / noop
	ExporterType ExporterType `mapstructure:"exporter_type" json:"exporter_type" yaml:"exporter_type" validate:"oneof=otlp-http otlp-grpc stdout noop"`

	Sampler SamplerConfig `mapstructure:"sampler" json:"sampler" yaml:"sampler"`

	BatchExport BatchExportConfig `mapstructure:"batch_export" json:"batch_export" yaml:"batch_export"`

	// Attributes 附加到 resource 的属性
	Attributes map[string]string `mapstructure:"attributes" json:"attributes" yaml:"attributes"`

	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" json:"shutdown_timeout" yaml:"shutdown_timeout"`

	// Insecure 不使用 TLS 连接收集器
	Insecure bool `mapstructure:"insecure" json:"insecure" yaml:"insecure"`
}

// ExporterType 导出器类型
type ExporterType string

const (
	ExporterTypeOTLPHTTP ExporterType = "otlp-http"
	ExporterTypeOTLPGRPC ExporterType = "otlp-grpc"
	// ExporterTypeStdout 调试用
	ExporterTypeStdout ExporterType = "stdout"
	ExporterTypeNoop   ExporterType = "noop"
)

// SamplerConfig 采样配置
type SamplerConfig struct {
	// Type always / never / ratio / parent
	Type SamplerType `mapstructure:"type" json:"type" yaml:"type" validate:"oneof=always never ratio parent"`
	// Ratio 仅 Type 为 ratio 时有效
	Ratio float64 `mapstructure:"ratio" json:"ratio" yaml:"ratio" validate:"gte=0,lte=1"`
}

// SamplerType 采样类型
type SamplerType string

const (
	SamplerTypeAlways SamplerType = "always"
	SamplerTypeNever  SamplerType = "never"
	SamplerTypeRatio  SamplerType = "ratio"
	// SamplerTypeParent 跟随父 span 的采样决策
	SamplerTypeParent SamplerType = "parent"
)

// BatchExportConfig 批量导出配置
type BatchExportConfig struct {
	BatchSize     int           `mapstructure:"batch_size" json:"batch_size" yaml:"batch_size"`
	ExportTimeout time.Duration `mapstructure:"export_timeout" json:"export_timeout" yaml:"export_timeout"`
	MaxQueueSize  int           `mapstructure:"max_queue_size" json:"max_queue_size" yaml:"max_queue_size"`
	BatchTimeout  time.Duration `mapstructure:"batch_timeout" json:"batch_timeout" yaml:"batch_timeout"`
}

// DefaultConfig 默认关闭，开启后通过 OTLP HTTP 导出到本机收集器
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "livesync",
		Endpoint:     "localhost:4318",
		ExporterType: ExporterTypeOTLPHTTP,
		Sampler: SamplerConfig{
			Type:  SamplerTypeParent,
			Ratio: 1.0,
		},
		BatchExport: BatchExportConfig{
			BatchSize:     512,
			ExportTimeout: 30 * time.Second,
			MaxQueueSize:  2048,
			BatchTimeout:  5 * time.Second,
		},
		Attributes:      make(map[string]string),
		ShutdownTimeout: 5 * time.Second,
		Insecure:        true,
	}
}
