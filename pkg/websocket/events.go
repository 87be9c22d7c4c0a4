package websocket

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lk2023060901/livesync/pkg/logger"
)

type listener struct {
	id   string
	kind EventKind
	fn   func(Event)
}

// emitter 事件分发：channel 订阅者非阻塞投递，回调按注册顺序同步执行
type emitter struct {
	logger  logger.Logger
	metrics *ClientMetrics

	mu        sync.RWMutex
	subs      map[string]chan Event
	listeners []listener
	closed    bool
}

func newEmitter(log logger.Logger, metrics *ClientMetrics) *emitter {
	return &emitter{
		logger:  log,
		metrics: metrics,
		subs:    make(map[string]chan Event),
	}
}

func (e *emitter) subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	id := uuid.New().String()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	e.subs[id] = ch
	e.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

func (e *emitter) on(kind EventKind, fn func(Event)) func() {
	id := uuid.New().String()

	e.mu.Lock()
	e.listeners = append(e.listeners, listener{id: id, kind: kind, fn: fn})
	e.mu.Unlock()

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

func (e *emitter) emit(ev Event) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return
	}
	for id, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Warn("event dropped, subscriber buffer full", "subscriber", id, "kind", ev.Kind.String())
			if e.metrics != nil {
				e.metrics.OnEventDropped(ev.Kind)
			}
		}
	}
	var fns []func(Event)
	for _, l := range e.listeners {
		if l.kind == ev.Kind {
			fns = append(fns, l.fn)
		}
	}
	e.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (e *emitter) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		close(ch)
		delete(e.subs, id)
	}
	e.listeners = nil
}
