package lru

import (
	"container/list"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Config LRU 配置
type Config struct {
	// MaxSize 最大容量，<= 0 表示不限制
	MaxSize int `mapstructure:"max_size" json:"max_size" yaml:"max_size" validate:"gte=0"`
	// DefaultTTL 默认过期时间
	DefaultTTL time.Duration `mapstructure:"default_ttl" json:"default_ttl" yaml:"default_ttl" validate:"gte=0"`
	// CleanupInterval 后台清理间隔，<= 0 时只在读取时惰性淘汰
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" json:"cleanup_interval" yaml:"cleanup_interval" validate:"gte=0"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxSize:         1024,
		DefaultTTL:      30 * time.Second,
		CleanupInterval: time.Minute,
	}
}

// LRU 基于内存、带过期时间的 LRU 缓存
type LRU[K comparable, V any] struct {
	config *Config
	clock  clockwork.Clock
	cache  *list.List
	items  map[K]*list.Element
	mu     sync.Mutex

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once

	onEvict func(key K, value V)
}

type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// Option LRU 配置选项
type Option[K comparable, V any] func(*LRU[K, V])

// WithOnEvict 设置淘汰回调，回调在持有锁时执行，不能再访问缓存
func WithOnEvict[K comparable, V any](fn func(key K, value V)) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.onEvict = fn
	}
}

// WithClock 注入时钟
func WithClock[K comparable, V any](clock clockwork.Clock) Option[K, V] {
	return func(c *LRU[K, V]) {
		c.clock = clock
	}
}

// New 创建 LRU 缓存
func New[K comparable, V any](cfg *Config, opts ...Option[K, V]) *LRU[K, V] {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	c := &LRU[K, V]{
		config: cfg,
		clock:  clockwork.NewRealClock(),
		cache:  list.New(),
		items:  make(map[K]*list.Element),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if cfg.CleanupInterval > 0 {
		go c.cleanupLoop()
	} else {
		close(c.doneCh)
	}
	return c
}

func (c *LRU[K, V]) cleanupLoop() {
	defer close(c.doneCh)

	ticker := c.clock.NewTicker(c.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.RemoveExpired()
		case <-c.stopCh:
			return
		}
	}
}

// RemoveExpired 移除所有过期条目，返回移除数量
func (c *LRU[K, V]) RemoveExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for e := c.cache.Back(); e != nil; {
		prev := e.Prev()
		if c.expired(e.Value.(*entry[K, V]), now) {
			c.removeElement(e)
			removed++
		}
		e = prev
	}
	return removed
}

// expired 到达 expiresAt 即视为过期
func (c *LRU[K, V]) expired(ent *entry[K, V], now time.Time) bool {
	return !now.Before(ent.expiresAt)
}

// Get 获取值
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	elem, ok := c.items[key]
	if !ok {
		return zero, false
	}
	ent := elem.Value.(*entry[K, V])
	if c.expired(ent, c.clock.Now()) {
		c.removeElement(elem)
		return zero, false
	}
	c.cache.MoveToFront(elem)
	return ent.value, true
}

// Set 设置值（使用默认 TTL）
func (c *LRU[K, V]) Set(key K, value V) {
	c.SetWithTTL(key, value, c.config.DefaultTTL)
}

// SetWithTTL 设置值（自定义 TTL）
func (c *LRU[K, V]) SetWithTTL(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.clock.Now().Add(ttl)

	if elem, ok := c.items[key]; ok {
		c.cache.MoveToFront(elem)
		ent := elem.Value.(*entry[K, V])
		ent.value = value
		ent.expiresAt = expiresAt
		return
	}

	elem := c.cache.PushFront(&entry[K, V]{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.config.MaxSize > 0 && c.cache.Len() > c.config.MaxSize {
		c.removeElement(c.cache.Back())
	}
}

// Delete 删除
func (c *LRU[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeleteFunc 删除所有满足 match 的条目，返回删除数量
func (c *LRU[K, V]) DeleteFunc(match func(key K) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for e := c.cache.Front(); e != nil; {
		next := e.Next()
		if match(e.Value.(*entry[K, V]).key) {
			c.removeElement(e)
			removed++
		}
		e = next
	}
	return removed
}

// Len 返回当前缓存大小（包含尚未清理的过期条目）
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}

// Clear 清空缓存，不触发淘汰回调
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Init()
	c.items = make(map[K]*list.Element)
}

// Close 停止后台清理，可重复调用
func (c *LRU[K, V]) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	<-c.doneCh
	return nil
}

func (c *LRU[K, V]) removeElement(elem *list.Element) {
	c.cache.Remove(elem)
	ent := elem.Value.(*entry[K, V])
	delete(c.items, ent.key)
	if c.onEvict != nil {
		c.onEvict(ent.key, ent.value)
	}
}
