// Package otel 构建追踪 provider 并导出 livesync 使用的 span 属性
package otel

import (
	"context"
	"io"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
)

// TracerProvider 追踪提供者
type TracerProvider struct {
	config   *Config
	logger   logger.Logger
	stdout   io.Writer
	global   bool
	provider *sdktrace.TracerProvider
	closed   atomic.Bool
}

// Option provider 选项
type Option func(*TracerProvider)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(p *TracerProvider) {
		p.logger = l
	}
}

// WithStdoutWriter stdout 导出器的输出目标，默认 os.Stdout
func WithStdoutWriter(w io.Writer) Option {
	return func(p *TracerProvider) {
		p.stdout = w
	}
}

// WithoutGlobal 不替换全局 TracerProvider 与传播器
func WithoutGlobal() Option {
	return func(p *TracerProvider) {
		p.global = false
	}
}

// New 创建追踪提供者。未开启或导出器为 noop 时 Provider 返回 noop 实现。
func New(ctx context.Context, cfg *Config, opts ...Option) (*TracerProvider, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	p := &TracerProvider{
		config: merged,
		stdout: os.Stdout,
		global: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logger.OrNoop(p.logger).Named("otel")

	if !merged.Enabled {
		p.logger.Debug("tracing disabled")
		return p, nil
	}

	exporter, err := createExporter(ctx, merged, p.stdout)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		return p, nil
	}

	attrs := []attribute.KeyValue{semconv.ServiceName(merged.ServiceName)}
	for k, v := range merged.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}

	p.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(merged.BatchExport.BatchTimeout),
			sdktrace.WithExportTimeout(merged.BatchExport.ExportTimeout),
			sdktrace.WithMaxExportBatchSize(merged.BatchExport.BatchSize),
			sdktrace.WithMaxQueueSize(merged.BatchExport.MaxQueueSize),
		),
		sdktrace.WithResource(resource.NewWithAttributes(semconv.SchemaURL, attrs...)),
		sdktrace.WithSampler(createSampler(merged.Sampler)),
	)

	if p.global {
		otel.SetTracerProvider(p.provider)
		otel.SetTextMapPropagator(Propagator())
	}

	p.logger.Info("tracing enabled",
		"exporter", string(merged.ExporterType),
		"endpoint", merged.Endpoint,
	)
	return p, nil
}

func createSampler(cfg SamplerConfig) sdktrace.Sampler {
	switch cfg.Type {
	case SamplerTypeAlways:
		return sdktrace.AlwaysSample()
	case SamplerTypeNever:
		return sdktrace.NeverSample()
	case SamplerTypeRatio:
		return sdktrace.TraceIDRatioBased(cfg.Ratio)
	default:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
}

// Propagator W3C trace context 与 baggage
func Propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// Provider 未启用时返回 noop 实现，不会回退到全局 provider
func (p *TracerProvider) Provider() trace.TracerProvider {
	if p.provider == nil {
		return noop.NewTracerProvider()
	}
	return p.provider
}

// Tracer 获取指定名称的 Tracer
func (p *TracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return p.Provider().Tracer(name, opts...)
}

// Shutdown 导出剩余 span 并关闭
func (p *TracerProvider) Shutdown(ctx context.Context) error {
	if p.closed.Swap(true) {
		return ErrProviderClosed
	}
	if p.provider == nil {
		return nil
	}
	return p.provider.Shutdown(ctx)
}

// Close 使用 ShutdownTimeout 关闭
func (p *TracerProvider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.ShutdownTimeout)
	defer cancel()
	return p.Shutdown(ctx)
}

// ForceFlush 立即导出已结束的 span
func (p *TracerProvider) ForceFlush(ctx context.Context) error {
	if p.provider == nil {
		return nil
	}
	return p.provider.ForceFlush(ctx)
}

// IsEnabled 是否真正导出 span
func (p *TracerProvider) IsEnabled() bool {
	return p.provider != nil
}

func (p *TracerProvider) Config() *Config {
	return p.config
}
