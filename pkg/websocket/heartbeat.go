package websocket

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lk2023060901/livesync/pkg/logger"
)

// HeartbeatManager 心跳管理器
//
// 每轮：等待 Interval 后发送 ping，再等待 Timeout 收 pong。收到 pong 后才开始下一轮，
// 同一时刻最多一个 ping 在等待回复。超时后回调 onTimeout 一次并停止，不会自动重启。
type HeartbeatManager struct {
	config *HeartbeatConfig
	clock  clockwork.Clock
	logger logger.Logger

	onPing    func() error
	onTimeout func()

	mu            sync.Mutex
	running       bool
	round         uint64
	pingTimer     clockwork.Timer
	deadlineTimer clockwork.Timer
	lastPongAt    time.Time
}

// NewHeartbeatManager 创建心跳管理器
func NewHeartbeatManager(cfg *HeartbeatConfig, clock clockwork.Clock, log logger.Logger) *HeartbeatManager {
	if cfg == nil {
		def := DefaultHeartbeatConfig()
		cfg = &def
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HeartbeatManager{
		config: cfg,
		clock:  clock,
		logger: logger.OrNoop(log),
	}
}

// SetOnPing 设置发送 ping 的函数，需在 Start 之前调用
func (h *HeartbeatManager) SetOnPing(fn func() error) {
	h.onPing = fn
}

// SetOnTimeout 设置超时回调，需在 Start 之前调用
func (h *HeartbeatManager) SetOnTimeout(fn func()) {
	h.onTimeout = fn
}

// Start 启动心跳，重复调用无效
func (h *HeartbeatManager) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return
	}
	h.running = true
	h.round++
	h.lastPongAt = h.clock.Now()
	h.armPingLocked()
}

func (h *HeartbeatManager) armPingLocked() {
	round := h.round
	h.pingTimer = h.clock.AfterFunc(h.config.Interval, func() {
		h.firePing(round)
	})
}

func (h *HeartbeatManager) firePing(round uint64) {
	h.mu.Lock()
	if !h.running || round != h.round {
		h.mu.Unlock()
		return
	}
	h.pingTimer = nil
	h.deadlineTimer = h.clock.AfterFunc(h.config.Timeout, func() {
		h.fireTimeout(round)
	})
	onPing := h.onPing
	h.mu.Unlock()

	if onPing == nil {
		return
	}
	// 发送失败时依赖 pong 截止时间判定连接失效
	if err := onPing(); err != nil {
		h.logger.Debug("heartbeat ping failed", "error", err)
	}
}

func (h *HeartbeatManager) fireTimeout(round uint64) {
	h.mu.Lock()
	if !h.running || round != h.round {
		h.mu.Unlock()
		return
	}
	h.stopLocked()
	lastPong := h.lastPongAt
	onTimeout := h.onTimeout
	h.mu.Unlock()

	h.logger.Warn("heartbeat timeout", "last_pong", lastPong, "timeout", h.config.Timeout)
	if onTimeout != nil {
		onTimeout()
	}
}

// PongReceived 记录 pong，结束当前轮并安排下一次 ping
func (h *HeartbeatManager) PongReceived() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return
	}
	h.lastPongAt = h.clock.Now()
	if h.deadlineTimer == nil {
		// 没有待回复的 ping，下一次 ping 已在计时
		return
	}
	h.deadlineTimer.Stop()
	h.deadlineTimer = nil
	h.round++
	h.armPingLocked()
}

// Stop 取消所有计时器，可重复调用
func (h *HeartbeatManager) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopLocked()
}

func (h *HeartbeatManager) stopLocked() {
	h.running = false
	h.round++
	if h.pingTimer != nil {
		h.pingTimer.Stop()
		h.pingTimer = nil
	}
	if h.deadlineTimer != nil {
		h.deadlineTimer.Stop()
		h.deadlineTimer = nil
	}
}

// IsAlive 运行中且最近一次 pong 在 Interval+Timeout 之内
func (h *HeartbeatManager) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return false
	}
	return h.clock.Since(h.lastPongAt) < h.config.Interval+h.config.Timeout
}

// IsRunning 检查是否正在运行
func (h *HeartbeatManager) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// LastPong 获取最后一次 pong 时间，未收到过时为 Start 时间
func (h *HeartbeatManager) LastPong() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastPongAt
}

// Pending 是否有 ping 在等待回复
func (h *HeartbeatManager) Pending() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.deadlineTimer != nil
}
