// Package sentry 将致命错误上报到 Sentry
package sentry

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/getsentry/sentry-go"

	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
)

// Client 持有独立的 Hub，未启用时所有上报都是空操作
type Client struct {
	hub        *sentry.Hub
	config     *Config
	logger     logger.Logger
	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
	hooks      hookManager
	closed     atomic.Bool

	stats struct {
		eventsTotal    atomic.Uint64
		eventsCaptured atomic.Uint64
		eventsDropped  atomic.Uint64
	}
}

// Option 客户端选项
type Option func(*Client)

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithBeforeSend 发送前修改或丢弃事件
func WithBeforeSend(fn func(*sentry.Event, *sentry.EventHint) *sentry.Event) Option {
	return func(c *Client) {
		c.beforeSend = fn
	}
}

// New 创建客户端
func New(cfg *Config, opts ...Option) (*Client, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	c := &Client{config: merged}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logger.OrNoop(c.logger).Named("sentry")

	if !merged.Enabled {
		return c, nil
	}

	clientOpts := merged.toClientOptions()
	clientOpts.BeforeSend = c.beforeSend
	sdk, err := sentry.NewClient(clientOpts)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "sentry: create client"), ErrInvalidConfig)
	}

	c.hub = sentry.NewHub(sdk, sentry.NewScope())
	c.hub.ConfigureScope(func(scope *sentry.Scope) {
		for key, value := range merged.Tags {
			scope.SetTag(key, value)
		}
	})
	return c, nil
}

// Enabled 是否真正上报
func (c *Client) Enabled() bool {
	return c.hub != nil
}

// CaptureException 上报错误
func (c *Client) CaptureException(err error) *sentry.EventID {
	return c.capture(sentry.LevelError, func(hub *sentry.Hub) *sentry.EventID {
		return hub.CaptureException(err)
	})
}

// CaptureMessage 上报消息
func (c *Client) CaptureMessage(message string, level Level) *sentry.EventID {
	return c.capture(level.toSentryLevel(), func(hub *sentry.Hub) *sentry.EventID {
		var id *sentry.EventID
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(level.toSentryLevel())
			id = hub.CaptureMessage(message)
		})
		return id
	})
}

// ReportFatal 以 fatal 级别上报会话终止的错误，tags 只作用于这一个事件
func (c *Client) ReportFatal(ctx context.Context, err error, tags map[string]string) {
	id := c.capture(sentry.LevelFatal, func(hub *sentry.Hub) *sentry.EventID {
		var id *sentry.EventID
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetLevel(sentry.LevelFatal)
			for k, v := range tags {
				scope.SetTag(k, v)
			}
			id = hub.CaptureException(err)
		})
		return id
	})
	if id != nil {
		c.logger.WarnContext(ctx, "fatal error reported", "event_id", string(*id), "error", err)
	}
}

// Recover 在 defer 中使用，上报后重新 panic
func (c *Client) Recover() {
	if r := recover(); r != nil {
		c.capture(sentry.LevelFatal, func(hub *sentry.Hub) *sentry.EventID {
			return hub.Recover(r)
		})
		c.Flush(c.config.ShutdownTimeout)
		panic(r)
	}
}

func (c *Client) capture(level sentry.Level, fn func(*sentry.Hub) *sentry.EventID) *sentry.EventID {
	if c.hub == nil || c.closed.Load() {
		return nil
	}
	c.stats.eventsTotal.Add(1)

	id := fn(c.hub)
	if id == nil || *id == "" {
		c.stats.eventsDropped.Add(1)
		return nil
	}
	c.stats.eventsCaptured.Add(1)
	c.hooks.trigger(&sentry.Event{EventID: *id, Level: level}, func(r any) {
		c.logger.Error("sentry hook panicked", "panic", r)
	})
	return id
}

// RegisterHook 注册事件钩子
func (c *Client) RegisterHook(hook EventHook) {
	c.hooks.register(hook)
}

// Flush 等待已捕获的事件发送完成
func (c *Client) Flush(timeout time.Duration) bool {
	if c.hub == nil {
		return true
	}
	return c.hub.Flush(timeout)
}

// Close 刷新并停止上报
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return ErrClientClosed
	}
	if c.hub != nil && !c.hub.Flush(c.config.ShutdownTimeout) {
		c.logger.Warn("sentry flush timed out", "timeout", c.config.ShutdownTimeout)
	}
	return nil
}

func (c *Client) Stats() Stats {
	return Stats{
		EventsTotal:    c.stats.eventsTotal.Load(),
		EventsCaptured: c.stats.eventsCaptured.Load(),
		EventsDropped:  c.stats.eventsDropped.Load(),
	}
}

func (c *Client) IsClosed() bool {
	return c.closed.Load()
}
