package app

import (
	"context"
	"fmt"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/livesync/pkg/logger"
)

var (
	ErrAppAlreadyRunning = errors.New("app: application is already running")
	ErrStopTimeout       = errors.New("app: runners did not stop before timeout")
)

// Runner 随应用生命周期运行的组件，ctx 取消后应尽快返回
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc 函数适配 Runner
type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// Closer 定义了资源清理接口（如 Session, Tracer, Sentry）
type Closer interface {
	Close() error
}

// CloserFunc 函数适配 Closer
type CloserFunc func() error

func (f CloserFunc) Close() error { return f() }

// App 管理 Runner 与 Closer 的生命周期
type App struct {
	opts     Options
	logger   logger.Logger
	registry *LoggerRegistry

	mu      sync.Mutex
	runners []Runner
	closers []Closer

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建应用
func New(opts ...Option) *App {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		opts:     o,
		logger:   o.Logger.Named(o.Name),
		registry: NewLoggerRegistry(),
	}
	if len(o.NamedLoggers) > 0 {
		if err := a.registry.Load(o.NamedLoggers); err != nil {
			a.logger.Warn("failed to initialize named loggers, falling back to main logger", "error", err)
		}
	}
	return a
}

// AppLogger 获取应用主日志对象
func (a *App) AppLogger() logger.Logger {
	return a.logger
}

// Logger 获取具名 Logger，未单独配置的名称从主日志派生
func (a *App) Logger(name string) logger.Logger {
	if l := a.registry.Lookup(name); l != nil {
		return l
	}
	return a.opts.Logger.Named(name)
}

// AppendRunner 添加运行组件
func (a *App) AppendRunner(r ...Runner) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runners = append(a.runners, r...)
}

// AppendCloser 添加资源清理组件，按注册的逆序关闭
func (a *App) AppendCloser(c ...Closer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closers = append(a.closers, c...)
}

// Run 启动所有 Runner 并阻塞，直到收到 SIGINT/SIGTERM、ctx 取消或任一 Runner 出错。
// 返回前关闭所有 Closer。
func (a *App) Run(ctx context.Context) error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	info := GetInfo()
	if a.opts.PrintBanner {
		fmt.Println(info.String())
	}
	a.logger.Info("application starting",
		"name", info.AppName,
		"version", info.Version,
		"commit", info.GitCommit,
		"build_date", info.BuildDate,
		"go_version", info.GoVersion,
		"id", a.opts.ID,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.mu.Lock()
	runners := append([]Runner(nil), a.runners...)
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	// 没有 Runner 出错时一直运行到退出信号
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	for _, r := range runners {
		g.Go(func() error {
			if err := r.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	var runErr error
	select {
	case runErr = <-done:
	case <-gctx.Done():
		runErr = a.waitRunners(done)
	}

	if runErr != nil {
		a.logger.Error("runner failed, shutting down", "error", runErr)
	} else {
		a.logger.Info("shutting down", "cause", context.Cause(ctx))
	}
	return errors.CombineErrors(runErr, a.shutdown())
}

func (a *App) waitRunners(done <-chan error) error {
	timer := a.opts.Clock.NewTimer(a.opts.StopTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.Chan():
		a.logger.Warn("shutdown timeout, forcing exit", "timeout", a.opts.StopTimeout)
		return ErrStopTimeout
	}
}

// Close 关闭已注册的 Closer，用于 Run 之前的启动失败；Run 返回后调用无效果
func (a *App) Close() error {
	return a.shutdown()
}

// shutdown 逆序关闭所有 Closer（LIFO）并同步日志
func (a *App) shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.mu.Lock()
	closers := append([]Closer(nil), a.closers...)
	a.mu.Unlock()

	var errs error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i].Close(); err != nil {
			a.logger.Error("failed to close component", "error", err)
			errs = errors.CombineErrors(errs, err)
		}
	}

	a.registry.Sync()
	a.logger.Info("application exited")
	_ = a.logger.Sync()
	return errs
}
