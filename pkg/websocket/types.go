package websocket

import "time"

// ConnectionState 连接状态
type ConnectionState int

const (
	// StateIdle 尚未连接
	StateIdle ConnectionState = iota
	// StateConnecting 正在建连，或在等待下一次重连
	StateConnecting
	// StateOpen 已连接
	StateOpen
	// StateClosing 主动关闭中
	StateClosing
	// StateClosed 已关闭
	StateClosed
)

// String 返回连接状态的字符串表示
func (s ConnectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind 事件类型
type EventKind int

const (
	EventConnect EventKind = iota + 1
	EventDisconnect
	EventMessage
	EventError
)

// String 返回事件类型的字符串表示
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event 客户端向上层推送的事件
type Event struct {
	Kind EventKind
	// State 事件发生后的连接状态
	State ConnectionState
	// Frame 仅 EventMessage 携带
	Frame *Frame
	// Err EventError 的错误，或 EventDisconnect 的断开原因
	Err error
	// Fatal 为 true 时客户端不会再自动重连
	Fatal bool
	// Intentional 由 Disconnect 触发的断开
	Intentional bool
	Time        time.Time
}
