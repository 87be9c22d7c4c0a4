package websocket

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ClientMetrics 客户端指标
type ClientMetrics struct {
	connectionState  prometheus.Gauge
	connectionsTotal prometheus.Counter
	disconnectsTotal prometheus.Counter

	reconnectAttempts prometheus.Counter
	reconnectFailures prometheus.Counter

	heartbeatSent     prometheus.Counter
	heartbeatReceived prometheus.Counter
	heartbeatTimeouts prometheus.Counter

	messagesSent     prometheus.Counter
	messagesReceived prometheus.Counter
	bytesSent        prometheus.Counter
	bytesReceived    prometheus.Counter

	eventsDropped *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// NewClientMetrics 创建客户端指标，registerer 为 nil 时只创建不注册
func NewClientMetrics(registerer prometheus.Registerer) *ClientMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "websocket",
			Name:      name,
			Help:      help,
		})
	}

	m := &ClientMetrics{
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "livesync",
			Subsystem: "websocket",
			Name:      "connection_state",
			Help:      "Current connection state (0=idle, 1=connecting, 2=open, 3=closing, 4=closed)",
		}),
		connectionsTotal:  counter("connections_total", "Total number of connections established"),
		disconnectsTotal:  counter("disconnects_total", "Total number of disconnections"),
		reconnectAttempts: counter("reconnect_attempts_total", "Total number of scheduled reconnection attempts"),
		reconnectFailures: counter("reconnect_exhausted_total", "Total number of times the reconnect budget was exhausted"),
		heartbeatSent:     counter("heartbeat_sent_total", "Total number of heartbeat pings sent"),
		heartbeatReceived: counter("heartbeat_received_total", "Total number of heartbeat pongs received"),
		heartbeatTimeouts: counter("heartbeat_timeouts_total", "Total number of heartbeat timeouts"),
		messagesSent:      counter("messages_sent_total", "Total number of frames sent"),
		messagesReceived:  counter("messages_received_total", "Total number of frames received"),
		bytesSent:         counter("bytes_sent_total", "Total bytes sent"),
		bytesReceived:     counter("bytes_received_total", "Total bytes received"),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "websocket",
			Name:      "events_dropped_total",
			Help:      "Events dropped because a subscriber buffer was full",
		}, []string{"kind"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "livesync",
			Subsystem: "websocket",
			Name:      "errors_total",
			Help:      "Total number of errors",
		}, []string{"type"}),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.connectionState,
			m.connectionsTotal,
			m.disconnectsTotal,
			m.reconnectAttempts,
			m.reconnectFailures,
			m.heartbeatSent,
			m.heartbeatReceived,
			m.heartbeatTimeouts,
			m.messagesSent,
			m.messagesReceived,
			m.bytesSent,
			m.bytesReceived,
			m.eventsDropped,
			m.errors,
		)
	}

	return m
}

// OnState 状态变化
func (m *ClientMetrics) OnState(s ConnectionState) {
	m.connectionState.Set(float64(s))
}

// OnConnected 连接成功
func (m *ClientMetrics) OnConnected() {
	m.connectionState.Set(float64(StateOpen))
	m.connectionsTotal.Inc()
}

// OnDisconnected 断开连接
func (m *ClientMetrics) OnDisconnected() {
	m.disconnectsTotal.Inc()
}

func (m *ClientMetrics) OnReconnectAttempt() {
	m.reconnectAttempts.Inc()
}

func (m *ClientMetrics) OnReconnectExhausted() {
	m.reconnectFailures.Inc()
}

func (m *ClientMetrics) OnHeartbeatSent() {
	m.heartbeatSent.Inc()
}

func (m *ClientMetrics) OnHeartbeatReceived() {
	m.heartbeatReceived.Inc()
}

func (m *ClientMetrics) OnHeartbeatTimeout() {
	m.heartbeatTimeouts.Inc()
}

// OnMessageSent 消息发送
func (m *ClientMetrics) OnMessageSent(size int) {
	m.messagesSent.Inc()
	m.bytesSent.Add(float64(size))
}

// OnMessageReceived 消息接收
func (m *ClientMetrics) OnMessageReceived(size int) {
	m.messagesReceived.Inc()
	m.bytesReceived.Add(float64(size))
}

func (m *ClientMetrics) OnEventDropped(kind EventKind) {
	m.eventsDropped.WithLabelValues(kind.String()).Inc()
}

// OnError 错误
func (m *ClientMetrics) OnError(errType string) {
	m.errors.WithLabelValues(errType).Inc()
}
