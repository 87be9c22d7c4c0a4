package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testAppConfig struct {
	WebSocket struct {
		URL       string        `mapstructure:"url"`
		Heartbeat time.Duration `mapstructure:"heartbeat"`
	} `mapstructure:"websocket"`
	GraphQL struct {
		Endpoint string   `mapstructure:"endpoint"`
		Scopes   []string `mapstructure:"scopes"`
	} `mapstructure:"graphql"`
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const testYAML = `
websocket:
  url: ws://localhost:8080/ws
  heartbeat: 30s
graphql:
  endpoint: http://localhost:8080/graphql
  scopes: read,write
`

func TestManager_LoadAndUnmarshal(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.LoadFile(writeFile(t, "config.yaml", testYAML)))

	var cfg testAppConfig
	require.NoError(t, m.Unmarshal(&cfg))
	assert.Equal(t, "ws://localhost:8080/ws", cfg.WebSocket.URL)
	assert.Equal(t, 30*time.Second, cfg.WebSocket.Heartbeat)
	assert.Equal(t, []string{"read", "write"}, cfg.GraphQL.Scopes)

	assert.True(t, m.IsSet("graphql.endpoint"))
	assert.Equal(t, "http://localhost:8080/graphql", m.GetString("graphql.endpoint"))
}

func TestManager_UnmarshalKey(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.LoadFile(writeFile(t, "config.yaml", testYAML)))

	var ws struct {
		URL string `mapstructure:"url"`
	}
	require.NoError(t, m.UnmarshalKey("websocket", &ws))
	assert.Equal(t, "ws://localhost:8080/ws", ws.URL)

	err := m.UnmarshalKey("missing", &ws)
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestManager_EnvOverride(t *testing.T) {
	t.Setenv("LIVESYNC_WEBSOCKET_URL", "wss://prod.example.com/ws")

	m := NewManager(WithEnvPrefix("LIVESYNC"))
	require.NoError(t, m.LoadFile(writeFile(t, "config.yaml", testYAML)))

	assert.Equal(t, "wss://prod.example.com/ws", m.GetString("websocket.url"))
}

func TestManager_Defaults(t *testing.T) {
	m := NewManager(WithDefaults(map[string]any{"websocket.url": "ws://default"}))
	assert.Equal(t, "ws://default", m.GetString("websocket.url"))
}

func TestManager_LoadFileErrors(t *testing.T) {
	m := NewManager()
	err := m.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigFileNotFound)

	err = m.LoadFile(writeFile(t, "bad.yaml", "websocket: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidConfigFormat)
}

func TestManager_Watch(t *testing.T) {
	path := writeFile(t, "watch.yaml", testYAML)
	m := NewManager()
	require.NoError(t, m.LoadFile(path))

	changed := make(chan string, 4)
	require.NoError(t, m.Watch(func(name string) {
		select {
		case changed <- name:
		default:
		}
	}))
	// 第二次注册不重复启动监听
	require.NoError(t, m.Watch(func(string) {}))

	updated := `
websocket:
  url: ws://localhost:9090/ws
`
	require.NoError(t, os.WriteFile(path, []byte(updated), 0o600))

	select {
	case name := <-changed:
		assert.Equal(t, filepath.Clean(path), filepath.Clean(name))
	case <-time.After(3 * time.Second):
		t.Fatal("no change notification")
	}
}
