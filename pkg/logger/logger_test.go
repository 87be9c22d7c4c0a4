package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func newBufferLogger(t *testing.T, cfg *Config) (*BaseLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Format = JSONFormat
	l, err := New(cfg, WithWriter(&buf))
	require.NoError(t, err)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		m := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

// TestNew 测试创建 Logger
func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config uses default", config: nil},
		{name: "partial config", config: &Config{Level: DebugLevel, Format: JSONFormat}},
		{name: "file enabled without path", config: &Config{EnableFile: true}, wantErr: true},
		{
			name:   "file output",
			config: &Config{EnableFile: true, OutputPath: filepath.Join(t.TempDir(), "logs", "app.log")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidOutputPath)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

// TestLevelFilter 测试日志等级过滤
func TestLevelFilter(t *testing.T) {
	l, buf := newBufferLogger(t, &Config{Level: WarnLevel})

	l.Debug("debug")
	l.Info("info")
	l.Warn("warn", "attempt", 3)
	l.Error("error", "error", errors.New("boom"))

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "warn", lines[0]["msg"])
	assert.EqualValues(t, 3, lines[0]["attempt"])
	assert.Equal(t, "boom", lines[1]["error"])
}

// TestRedaction 凭证字段必须脱敏
func TestRedaction(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	l.Info("token stored", "token", "secret-access", "refresh_token", "secret-refresh", "user", "alice")
	l.WithFields("Authorization", "Bearer abc").Info("dial")

	out := buf.String()
	assert.NotContains(t, out, "secret-access")
	assert.NotContains(t, out, "secret-refresh")
	assert.NotContains(t, out, "Bearer abc")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, redacted)
}

// TestNamedAndFields 测试具名 logger 与字段派生
func TestNamedAndFields(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	l.Named("websocket").WithFields("conn_id", "c1").Info("open")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "websocket", lines[0]["logger"])
	assert.Equal(t, "c1", lines[0]["conn_id"])
}

// TestTraceContextExtractor 测试从 span 提取 trace_id
func TestTraceContextExtractor(t *testing.T) {
	l, buf := newBufferLogger(t, nil)

	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	l.InfoContext(ctx, "with span")
	l.InfoContext(context.Background(), "without span")

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), lines[0]["trace_id"])
	_, ok := lines[1]["trace_id"]
	assert.False(t, ok)
}

// TestToZapFieldsOddArgs 奇数参数不丢日志
func TestToZapFieldsOddArgs(t *testing.T) {
	fields := toZapFields("a", 1, "dangling")
	require.Len(t, fields, 2)
	assert.Equal(t, "a", fields[0].Key)
	assert.Equal(t, "!BADKEY2", fields[1].Key)
}

func TestNoopAndOrNoop(t *testing.T) {
	var l Logger = NewNoop()
	assert.Equal(t, l, l.Named("x"))
	assert.NoError(t, l.Sync())
	assert.IsType(t, &NoopLogger{}, OrNoop(nil))
}
