package sentry

import (
	"sync"

	"github.com/getsentry/sentry-go"
)

// EventHook 事件上报成功后回调
type EventHook interface {
	OnCapture(event *sentry.Event)
}

// EventHookFunc 函数适配器
type EventHookFunc func(event *sentry.Event)

func (f EventHookFunc) OnCapture(event *sentry.Event) {
	f(event)
}

type hookManager struct {
	mu    sync.RWMutex
	hooks []EventHook
}

func (m *hookManager) register(hook EventHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// trigger 同步调用，钩子 panic 会被吞掉并返回给调用方记录
func (m *hookManager) trigger(event *sentry.Event, onPanic func(any)) {
	m.mu.RLock()
	hooks := make([]EventHook, len(m.hooks))
	copy(hooks, m.hooks)
	m.mu.RUnlock()

	for _, hook := range hooks {
		func() {
			defer func() {
				if r := recover(); r != nil && onPanic != nil {
					onPanic(r)
				}
			}()
			hook.OnCapture(event)
		}()
	}
}
