package websocket

import (
	"math/rand"
	"sync"
	"time"
)

// Reconnector 指数退避重连计算器，只负责延迟与次数，不负责调度
type Reconnector struct {
	config *ReconnectConfig

	mu           sync.Mutex
	attempts     int
	currentDelay time.Duration
	rand         *rand.Rand
}

// NewReconnector 创建重连器
func NewReconnector(cfg *ReconnectConfig) *Reconnector {
	if cfg == nil {
		def := DefaultReconnectConfig()
		cfg = &def
	}
	return &Reconnector{
		config:       cfg,
		currentDelay: cfg.InitialDelay,
		rand:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ShouldReconnect 是否还有重连预算
func (r *Reconnector) ShouldReconnect() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts < r.config.MaxAttempts
}

// NextDelay 记录一次重连尝试并返回本次等待时长
// 第一次返回 InitialDelay，之后每次乘以 Multiplier，不超过 MaxDelay
func (r *Reconnector) NextDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts++
	if r.attempts > 1 {
		next := float64(r.currentDelay) * r.config.Multiplier
		if next > float64(r.config.MaxDelay) {
			next = float64(r.config.MaxDelay)
		}
		r.currentDelay = time.Duration(next)
	}

	delay := r.currentDelay
	if r.config.RandomFactor > 0 {
		jitter := float64(delay) * r.config.RandomFactor
		delay = time.Duration(float64(delay) - jitter + r.rand.Float64()*2*jitter)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}
	return delay
}

// Reset 连接成功后清零
func (r *Reconnector) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.attempts = 0
	r.currentDelay = r.config.InitialDelay
}

// Attempts 当前连续重连次数
func (r *Reconnector) Attempts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts
}

// CurrentDelay 最近一次计算的基础延迟（不含抖动）
func (r *Reconnector) CurrentDelay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentDelay
}
