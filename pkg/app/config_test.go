package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/livesync/pkg/config"
)

type testConfig struct {
	Log struct {
		Level      string `mapstructure:"level"`
		EnableFile bool   `mapstructure:"enable_file"`
		OutputPath string `mapstructure:"output_path"`
	} `mapstructure:"log"`
	WebSocket struct {
		URL       string `mapstructure:"url"`
		Reconnect struct {
			InitialDelay time.Duration `mapstructure:"initial_delay"`
		} `mapstructure:"reconnect"`
	} `mapstructure:"websocket"`
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "livesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const sampleYAML = `
log:
  level: debug
websocket:
  url: wss://file.example/live
  reconnect:
    initial_delay: 2s
`

func newFlagSet() *pflag.FlagSet {
	return pflag.NewFlagSet("test", pflag.ContinueOnError)
}

func TestLoadConfigFromFlag(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)

	var cfg testConfig
	require.NoError(t, loadConfig(newFlagSet(), []string{"--config", path}, &cfg))

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "wss://file.example/live", cfg.WebSocket.URL)
	assert.Equal(t, 2*time.Second, cfg.WebSocket.Reconnect.InitialDelay)
	assert.Equal(t, path, GetConfigPath())
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	t.Setenv("LIVESYNC_WEBSOCKET_URL", "wss://env.example/live")

	var cfg testConfig
	require.NoError(t, loadConfig(newFlagSet(), []string{"-c", path}, &cfg))
	assert.Equal(t, "wss://env.example/live", cfg.WebSocket.URL)
}

func TestLoadConfigPathFromEnv(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleYAML)
	t.Setenv(EnvConfigPath, path)

	var cfg testConfig
	require.NoError(t, loadConfig(newFlagSet(), nil, &cfg))
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigExplicitMissingFile(t *testing.T) {
	var cfg testConfig
	err := loadConfig(newFlagSet(), []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, &cfg)
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrConfigFileNotFound))
}

func TestLoadConfigDefaultPathOptional(t *testing.T) {
	t.Chdir(t.TempDir())

	var cfg testConfig
	cfg.Log.Level = "warn"
	require.NoError(t, loadConfig(newFlagSet(), nil, &cfg))
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Empty(t, GetConfigPath())
	assert.ErrorIs(t, WatchConfig(func(string) {}), ErrNoConfigFile)
}

func TestLoadConfigLogPathFlag(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, sampleYAML)
	logFile := filepath.Join(dir, "nested", "out.log")

	var cfg testConfig
	require.NoError(t, loadConfig(newFlagSet(), []string{"-c", path, "--log.path", logFile}, &cfg))

	assert.Equal(t, logFile, cfg.Log.OutputPath)
	assert.True(t, cfg.Log.EnableFile)
	assert.DirExists(t, filepath.Join(dir, "nested"))
	assert.Equal(t, logFile, GetLogPath())
}
