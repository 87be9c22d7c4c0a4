// Package cache 提供请求结果缓存
package cache

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"

	"github.com/lk2023060901/livesync/pkg/cache/lru"
	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
)

// DefaultTTL 未指定 ttl 时的缓存时长
const DefaultTTL = 30 * time.Second

// Config 请求缓存配置
type Config = lru.Config

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return lru.DefaultConfig()
}

// RequestCache 按请求签名缓存只读请求的响应数据
type RequestCache struct {
	config *Config
	store  *lru.LRU[string, json.RawMessage]
	logger logger.Logger
}

// Option 请求缓存选项
type Option func(*options)

type options struct {
	clock  clockwork.Clock
	logger logger.Logger
}

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger 设置日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New 创建请求缓存
func New(cfg *Config, opts ...Option) (*RequestCache, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, err
	}
	if merged.DefaultTTL <= 0 {
		merged.DefaultTTL = DefaultTTL
	}

	o := &options{clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(o)
	}

	return &RequestCache{
		config: merged,
		store:  lru.New[string, json.RawMessage](merged, lru.WithClock[string, json.RawMessage](o.clock)),
		logger: logger.OrNoop(o.logger).Named("cache"),
	}, nil
}

// Get 查询缓存，过期条目视为不存在
func (c *RequestCache) Get(key string) (json.RawMessage, bool) {
	return c.store.Get(key)
}

// Set 写入缓存，ttl <= 0 时使用默认时长
func (c *RequestCache) Set(key string, value json.RawMessage, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.config.DefaultTTL
	}
	c.store.SetWithTTL(key, value, ttl)
}

// Invalidate 删除 key 中包含 pattern 的条目，pattern 为空时清空全部
func (c *RequestCache) Invalidate(pattern string) {
	if pattern == "" {
		c.store.Clear()
		c.logger.Debug("cache cleared")
		return
	}
	n := c.store.DeleteFunc(func(key string) bool {
		return strings.Contains(key, pattern)
	})
	c.logger.Debug("cache invalidated", "pattern", pattern, "removed", n)
}

// Len 当前条目数
func (c *RequestCache) Len() int {
	return c.store.Len()
}

// Close 停止后台清理
func (c *RequestCache) Close() error {
	return c.store.Close()
}

// Key 计算请求签名：操作文本加变量的规范 JSON，经 xxhash 摘要，以操作名为前缀使 Invalidate 可以按操作名匹配。
// 变量以 json 编码，map 键有序，因此键顺序不同的同一组变量得到同一个 key；变量无法编码时返回错误
func Key(operation, query string, variables map[string]any) (string, error) {
	h := xxhash.New()
	_, _ = h.WriteString(strings.TrimSpace(query))
	_, _ = h.WriteString("\x00")
	if len(variables) > 0 {
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(variables); err != nil {
			return "", errors.Wrap(err, "cache: encode variables")
		}
		_, _ = h.Write(buf.Bytes())
	}
	if operation == "" {
		operation = "anonymous"
	}
	return operation + ":" + strconv.FormatUint(h.Sum64(), 16), nil
}
