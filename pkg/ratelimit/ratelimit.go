// Package ratelimit 提供滑动窗口日志限流
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lk2023060901/livesync/pkg/config"
)

// Config 限流配置
type Config struct {
	// MaxRequests 窗口内允许的最大请求数
	MaxRequests int `mapstructure:"max_requests" json:"max_requests" yaml:"max_requests" validate:"gte=1"`
	// Window 滑动窗口长度
	Window time.Duration `mapstructure:"window" json:"window" yaml:"window" validate:"gt=0"`
}

// DefaultConfig 默认 60 秒 100 次
func DefaultConfig() *Config {
	return &Config{
		MaxRequests: 100,
		Window:      60 * time.Second,
	}
}

// SlidingWindow 记录窗口内每次放行的时间戳
type SlidingWindow struct {
	config *Config
	clock  clockwork.Clock

	mu         sync.Mutex
	timestamps []time.Time
}

// New 创建限流器，clock 为 nil 时使用真实时钟
func New(cfg *Config, clock clockwork.Clock) (*SlidingWindow, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SlidingWindow{
		config:     merged,
		clock:      clock,
		timestamps: make([]time.Time, 0, merged.MaxRequests),
	}, nil
}

// Allow 窗口未满时记录本次请求并返回 true
func (w *SlidingWindow) Allow() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.timestamps) >= w.config.MaxRequests {
		return false
	}
	w.timestamps = append(w.timestamps, now)
	return true
}

// RetryAfter 距离最早一条记录离开窗口的时间，窗口有余量时为 0
func (w *SlidingWindow) RetryAfter() time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.clock.Now()
	w.prune(now)
	if len(w.timestamps) < w.config.MaxRequests {
		return 0
	}
	return w.timestamps[0].Add(w.config.Window).Sub(now)
}

// Remaining 窗口内剩余可用次数
func (w *SlidingWindow) Remaining() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.prune(w.clock.Now())
	return w.config.MaxRequests - len(w.timestamps)
}

// Reset 清空窗口
func (w *SlidingWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timestamps = w.timestamps[:0]
}

// prune 丢弃 now-Window 之前（含）的记录，时间戳单调递增
func (w *SlidingWindow) prune(now time.Time) {
	cutoff := now.Add(-w.config.Window)
	i := 0
	for i < len(w.timestamps) && !w.timestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.timestamps = append(w.timestamps[:0], w.timestamps[i:]...)
	}
}
