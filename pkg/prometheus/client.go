// Package prometheus 持有指标注册表并可选地暴露 /metrics
package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
)

// Client 独立的注册表，组件指标通过 Registry() 注册
type Client struct {
	config   *Config
	logger   logger.Logger
	registry *prometheus.Registry

	counters   sync.Map // map[string]*prometheus.CounterVec
	gauges     sync.Map // map[string]*prometheus.GaugeVec
	histograms sync.Map // map[string]*prometheus.HistogramVec

	mu         sync.Mutex
	httpServer *http.Server
	closed     atomic.Bool
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New 创建客户端，HTTP 服务由 Run 启动
func New(cfg *Config, opts ...Option) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	c := &Client{
		config:   merged,
		registry: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNoop(c.logger).Named("prometheus")

	if merged.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if merged.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	return c, nil
}

// Registry 组件指标的注册器
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 暴露注册表的 HTTP Handler
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (c *Client) Config() *Config {
	return c.config
}

// Run 启动 /metrics 服务并阻塞到 ctx 结束
func (c *Client) Run(ctx context.Context) error {
	if !c.config.HTTPServer.Enabled {
		return ErrServerDisabled
	}
	if c.IsClosed() {
		return ErrClientClosed
	}

	ln, err := net.Listen("tcp", c.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "prometheus: listen %s", c.config.HTTPServer.Addr)
	}
	return c.serve(ctx, ln)
}

func (c *Client) serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(c.config.HTTPServer.Path, c.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  c.config.HTTPServer.Timeout,
		WriteTimeout: c.config.HTTPServer.Timeout,
	}

	c.mu.Lock()
	c.httpServer = srv
	c.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	c.logger.Info("metrics server started", "addr", ln.Addr().String(), "path", c.config.HTTPServer.Path)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.HTTPServer.Timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "prometheus: shutdown")
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		c.logger.Error("metrics server stopped", "error", err)
		return errors.Wrap(err, "prometheus: serve")
	}
}

// Close 关闭 HTTP 服务，重复调用返回 ErrClientClosed
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	srv := c.httpServer
	c.mu.Unlock()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.config.HTTPServer.Timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
