package app

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/lk2023060901/livesync/pkg/config"
)

const (
	// EnvPrefix 环境变量前缀，LIVESYNC_WEBSOCKET_URL 对应 websocket.url
	EnvPrefix = "LIVESYNC"
	// EnvConfigPath 未显式传入 --config 时读取的配置路径变量
	EnvConfigPath = EnvPrefix + "_CONFIG"
)

// ErrNoConfigFile 未加载配置文件时无法监听
var ErrNoConfigFile = errors.New("app: no config file loaded")

var (
	pathMu     sync.RWMutex
	configPath string
	logPath    string
	loaded     config.Manager
)

// LoadConfig 从命令行、环境变量和配置文件加载配置到 target。
// 优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. target 中已有的默认值
func LoadConfig(target any, opts ...config.Option) error {
	return loadConfig(pflag.CommandLine, os.Args[1:], target, opts...)
}

func loadConfig(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) error {
	workDir, err := os.Getwd()
	if err != nil {
		return errors.Wrap(err, "app: get working directory")
	}
	defaultConfig := filepath.Join(workDir, "config.yaml")
	defaultLog := filepath.Join(workDir, "logs", "livesync.log")

	if fs.Lookup("config") == nil {
		fs.StringP("config", "c", defaultConfig, "path to config file")
	}
	if fs.Lookup("log.path") == nil {
		fs.String("log.path", defaultLog, "output path for log file")
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return errors.Wrap(err, "app: parse flags")
		}
	}

	// BindStruct 让未出现在配置文件中的字段也能被环境变量覆盖
	v := viper.NewWithOptions(viper.ExperimentalBindStruct())
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// 配置路径优先级：Flag 显式指定 > LIVESYNC_CONFIG > 默认路径。
	// 仅默认路径允许文件不存在。
	path, _ := fs.GetString("config")
	explicit := fs.Changed("config")
	if !explicit {
		if env := os.Getenv(EnvConfigPath); env != "" {
			path = env
			explicit = true
		}
	}

	v.SetDefault("log.output_path", defaultLog)
	if fs.Changed("log.path") {
		lp, _ := fs.GetString("log.path")
		v.Set("log.output_path", lp)
		v.Set("log.enable_file", true)
	}

	mgr := config.NewManager(append(opts, config.WithViper(v))...)

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := mgr.LoadFile(path); err != nil {
			return err
		}
	case explicit:
		return errors.Wrapf(config.ErrConfigFileNotFound, "app: %s", path)
	default:
		path = ""
	}

	if err := mgr.Unmarshal(target); err != nil {
		return errors.Wrap(err, "app: unmarshal config")
	}

	finalLog := v.GetString("log.output_path")
	if v.GetBool("log.enable_file") {
		if err := os.MkdirAll(filepath.Dir(finalLog), 0o755); err != nil {
			return errors.Wrap(err, "app: create log directory")
		}
	}

	pathMu.Lock()
	configPath, logPath = path, finalLog
	loaded = nil
	if path != "" {
		loaded = mgr
	}
	pathMu.Unlock()
	return nil
}

// WatchConfig 监听已加载的配置文件，变更时回调文件名
func WatchConfig(callback func(name string)) error {
	pathMu.RLock()
	mgr := loaded
	pathMu.RUnlock()
	if mgr == nil {
		return ErrNoConfigFile
	}
	return mgr.Watch(callback)
}

// GetConfigPath 返回最终使用的配置文件路径，未加载文件时为空
func GetConfigPath() string {
	pathMu.RLock()
	defer pathMu.RUnlock()
	return configPath
}

func GetLogPath() string {
	pathMu.RLock()
	defer pathMu.RUnlock()
	return logPath
}
