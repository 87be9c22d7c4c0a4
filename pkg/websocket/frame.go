package websocket

import (
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
)

// 保留的帧类型
const (
	FrameTypePing = "ping"
	FrameTypePong = "pong"
)

// Frame 线上 JSON 帧：{"type": ..., "payload": ..., "timestamp": 毫秒}
type Frame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// NewFrame 创建帧，payload 为 nil 时省略
func NewFrame(frameType string, payload any, now time.Time) (*Frame, error) {
	f := &Frame{Type: frameType, Timestamp: now.UnixMilli()}
	if payload == nil {
		return f, nil
	}
	switch p := payload.(type) {
	case json.RawMessage:
		f.Payload = p
	case []byte:
		f.Payload = json.RawMessage(p)
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, errors.Wrapf(err, "websocket: marshal %s payload", frameType)
		}
		f.Payload = data
	}
	return f, nil
}

// DecodeFrame 解析入站数据，失败时返回 *ParseError
func DecodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &ParseError{Raw: data, Err: err}
	}
	if f.Type == "" {
		return nil, &ParseError{Raw: data, Err: errors.New("missing frame type")}
	}
	return &f, nil
}

// Time 返回帧时间戳
func (f *Frame) Time() time.Time {
	return time.UnixMilli(f.Timestamp)
}

// Decode 将 payload 解析到 v
func (f *Frame) Decode(v any) error {
	if len(f.Payload) == 0 {
		return errors.Newf("websocket: %s frame has no payload", f.Type)
	}
	return json.Unmarshal(f.Payload, v)
}
