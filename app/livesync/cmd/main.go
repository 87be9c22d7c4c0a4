package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	sentrygo "github.com/getsentry/sentry-go"
	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/lk2023060901/livesync/pkg/app"
	"github.com/lk2023060901/livesync/pkg/graphql"
	"github.com/lk2023060901/livesync/pkg/livesync"
	"github.com/lk2023060901/livesync/pkg/logger"
	"github.com/lk2023060901/livesync/pkg/otel"
	"github.com/lk2023060901/livesync/pkg/prometheus"
	"github.com/lk2023060901/livesync/pkg/sentry"
	"github.com/lk2023060901/livesync/pkg/websocket"
)

// Config 定义 livesync 演示客户端的完整配置结构
type Config struct {
	Log     logger.Config             `mapstructure:"log"`
	Loggers map[string]*logger.Config `mapstructure:"loggers"`

	// 会话组件：websocket、graphql、cache、ratelimit、auth
	Session livesync.Config `mapstructure:",squash"`

	Prometheus prometheus.Config `mapstructure:"prometheus"`
	Otel       otel.Config       `mapstructure:"otel"`
	Sentry     sentry.Config     `mapstructure:"sentry"`

	Demo DemoConfig `mapstructure:"demo"`
}

// DemoConfig 启动后执行的演示行为
type DemoConfig struct {
	// AccessToken/RefreshToken 非空时启动即登录
	AccessToken  string `mapstructure:"access_token"`
	RefreshToken string `mapstructure:"refresh_token"`

	// Query 为空时不发起周期查询
	Query     string         `mapstructure:"query"`
	Variables map[string]any `mapstructure:"variables"`
	Interval  time.Duration  `mapstructure:"interval"`
	CacheTTL  time.Duration  `mapstructure:"cache_ttl"`
}

func main() {
	// 配置加载前使用 LIVESYNC_LOG_* 环境变量决定的默认日志
	if err := logger.InitDefaultFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "livesync: init default logger: %v\n", err)
	}
	if err := run(); err != nil {
		logger.Default().Error("livesync exited", "error", err)
		_ = logger.Default().Sync()
		os.Exit(1)
	}
}

func run() error {
	// 1. 加载配置
	cfg := Config{Session: *livesync.DefaultConfig()}
	if err := app.LoadConfig(&cfg); err != nil {
		return err
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		return errors.Wrap(err, "init logger")
	}
	logger.SetDefault(l)

	a := app.New(app.WithLogger(l), app.WithNamedLoggers(cfg.Loggers))
	if path := app.GetConfigPath(); path != "" {
		a.AppLogger().Info("config loaded", "path", path)
		// 组件配置在构造时固定，变更只提示重启
		if err := app.WatchConfig(func(name string) {
			a.AppLogger().Warn("config file changed, restart to apply", "path", name)
		}); err != nil {
			a.AppLogger().Warn("config watch unavailable", "error", err)
		}
	}

	// 3. 可观测性组件
	tp, err := otel.New(context.Background(), &cfg.Otel, otel.WithLogger(a.Logger("otel")))
	if err != nil {
		return errors.Wrap(err, "init tracing")
	}
	a.AppendCloser(tp)

	prom, err := prometheus.New(&cfg.Prometheus, prometheus.WithLogger(a.Logger("prometheus")))
	if err != nil {
		return errors.CombineErrors(errors.Wrap(err, "init metrics"), a.Close())
	}
	a.AppendCloser(prom)
	if cfg.Prometheus.HTTPServer.Enabled {
		a.AppendRunner(prom)
	}

	reporter, err := sentry.New(&cfg.Sentry, sentry.WithLogger(a.Logger("sentry")))
	if err != nil {
		return errors.CombineErrors(errors.Wrap(err, "init sentry"), a.Close())
	}
	a.AppendCloser(reporter)
	if reporter.Enabled() {
		sentryLog := a.Logger("sentry")
		reporter.RegisterHook(sentry.EventHookFunc(func(ev *sentrygo.Event) {
			sentryLog.Info("event reported", "event_id", ev.EventID, "level", ev.Level)
		}))
	}

	events, err := prom.NewCounter("demo_events_total", "Socket events observed by the demo client", []string{"kind"})
	if err != nil {
		return errors.CombineErrors(errors.Wrap(err, "register demo metrics"), a.Close())
	}

	// 4. 会话
	sess, err := livesync.New(&cfg.Session,
		livesync.WithLogger(a.Logger("livesync")),
		livesync.WithMetricsRegisterer(prom.Registry()),
		livesync.WithTracerProvider(tp.Provider()),
		livesync.WithFatalReporter(reporter),
	)
	if err != nil {
		return errors.CombineErrors(errors.Wrap(err, "init session"), a.Close())
	}
	a.AppendCloser(sess)

	d := &demo{cfg: cfg.Demo, sess: sess, events: events, logger: a.Logger("demo")}
	a.AppendRunner(app.RunnerFunc(d.run))

	// 5. 运行直到退出信号
	return a.Run(context.Background())
}

type demo struct {
	cfg    DemoConfig
	sess   *livesync.Session
	events *promclient.CounterVec
	logger logger.Logger
}

func (d *demo) run(ctx context.Context) error {
	unwatch := d.sess.OnStatus(func(status livesync.Status, err error) {
		d.logger.Info("status changed", "status", status.String(), "error", err)
	})
	defer unwatch()

	if d.cfg.AccessToken != "" {
		if err := d.sess.SignIn(ctx, d.cfg.AccessToken, d.cfg.RefreshToken); err != nil {
			return errors.Wrap(err, "sign in")
		}
	}

	ch, unsubscribe := d.sess.Events(64)
	defer unsubscribe()

	// 拨号失败由会话自行重连，只有无法恢复的错误才结束 demo
	if err := d.sess.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect")
	}
	defer func() {
		if err := d.sess.Disconnect(); err != nil && !errors.Is(err, websocket.ErrNotConnected) {
			d.logger.Warn("disconnect failed", "error", err)
		}
	}()

	var tick <-chan time.Time
	if d.cfg.Query != "" && d.cfg.Interval > 0 {
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()
		tick = ticker.C
		d.query(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			d.events.WithLabelValues(ev.Kind.String()).Inc()
			d.print(ev)
		case <-tick:
			d.query(ctx)
		}
	}
}

func (d *demo) print(ev websocket.Event) {
	switch {
	case ev.Frame != nil:
		fmt.Printf("[%s] %s %s %s\n", ev.Time.Format(time.RFC3339), ev.Kind, ev.Frame.Type, ev.Frame.Payload)
	case ev.Err != nil:
		fmt.Printf("[%s] %s state=%s fatal=%t error=%v\n", ev.Time.Format(time.RFC3339), ev.Kind, ev.State, ev.Fatal, ev.Err)
	default:
		fmt.Printf("[%s] %s state=%s\n", ev.Time.Format(time.RFC3339), ev.Kind, ev.State)
	}
}

func (d *demo) query(ctx context.Context) {
	var opts []graphql.RequestOption
	if d.cfg.CacheTTL > 0 {
		opts = append(opts, graphql.WithCacheTTL(d.cfg.CacheTTL))
	}
	data, err := d.sess.Request(ctx, d.cfg.Query, d.cfg.Variables, opts...)
	if err != nil {
		d.logger.Warn("query failed", "error", err, "status", livesync.Classify(err).String())
		return
	}
	fmt.Printf("query result: %s\n", data)
}
