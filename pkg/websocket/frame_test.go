package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	f, err := NewFrame("subscribe", map[string]string{"channel": "alerts"}, now)
	require.NoError(t, err)
	data, err := json.Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"subscribe","payload":{"channel":"alerts"},"timestamp":1700000000123}`, string(data))

	ping, err := NewFrame(FrameTypePing, nil, now)
	require.NoError(t, err)
	data, err = json.Marshal(ping)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"ping","timestamp":1700000000123}`, string(data))
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantErr  bool
	}{
		{name: "message", input: `{"type":"sensor","payload":{"v":1},"timestamp":1}`, wantType: "sensor"},
		{name: "pong without payload", input: `{"type":"pong","timestamp":1}`, wantType: FrameTypePong},
		{name: "not json", input: `hello`, wantErr: true},
		{name: "missing type", input: `{"payload":1}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame([]byte(tt.input))
			if tt.wantErr {
				var perr *ParseError
				require.True(t, errors.As(err, &perr))
				assert.Equal(t, tt.input, string(perr.Raw))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, f.Type)
		})
	}
}

func TestFrameDecodePayload(t *testing.T) {
	f, err := DecodeFrame([]byte(`{"type":"sensor","payload":{"id":"s1","value":21.5},"timestamp":1}`))
	require.NoError(t, err)

	var reading struct {
		ID    string  `json:"id"`
		Value float64 `json:"value"`
	}
	require.NoError(t, f.Decode(&reading))
	assert.Equal(t, "s1", reading.ID)
	assert.Equal(t, 21.5, reading.Value)

	empty := &Frame{Type: "x"}
	assert.Error(t, empty.Decode(&reading))
}
