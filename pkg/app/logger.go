package app

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/livesync/pkg/logger"
)

// LoggerRegistry 按组件名保存单独配置的日志对象，配置取自 loggers.<name>
type LoggerRegistry struct {
	mu      sync.RWMutex
	loggers map[string]logger.Logger
}

func NewLoggerRegistry() *LoggerRegistry {
	return &LoggerRegistry{loggers: make(map[string]logger.Logger)}
}

// Load 为每个配置项创建 Logger，任一失败时已创建的保留
func (r *LoggerRegistry) Load(configs map[string]*logger.Config) error {
	var errs error
	for name, cfg := range configs {
		l, err := logger.New(cfg)
		if err != nil {
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "logger %q", name))
			continue
		}
		r.mu.Lock()
		r.loggers[name] = l.Named(name)
		r.mu.Unlock()
	}
	return errs
}

// Lookup 未配置的名称返回 nil
func (r *LoggerRegistry) Lookup(name string) logger.Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loggers[name]
}

// Sync 刷新所有具名日志的缓冲
func (r *LoggerRegistry) Sync() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, l := range r.loggers {
		_ = l.Sync()
	}
}
