// Package auth 管理访问凭证的持久化与刷新
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/lk2023060901/livesync/pkg/config"
	"github.com/lk2023060901/livesync/pkg/logger"
)

// Manager 持有唯一的凭证，内存中的值一旦加载即为准，存储只是副作用
type Manager struct {
	config    *Config
	store     TokenStore
	refresher Refresher
	clock     clockwork.Clock
	logger    logger.Logger

	mu     sync.RWMutex
	cred   *Credential
	loaded bool

	group singleflight.Group

	subMu       sync.Mutex
	nextSubID   uint64
	subscribers map[uint64]func(*Credential)
}

// Option 管理器选项
type Option func(*Manager)

// WithStore 指定存储后端，未指定时按 Config.Store 创建
func WithStore(store TokenStore) Option {
	return func(m *Manager) {
		m.store = store
	}
}

// WithRefresher 指定刷新器，未指定时按 RefreshEndpoint 创建 HTTPRefresher
func WithRefresher(r Refresher) Option {
	return func(m *Manager) {
		m.refresher = r
	}
}

// WithClock 注入时钟
func WithClock(clock clockwork.Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithLogger 设置日志记录器
func WithLogger(l logger.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// NewManager 创建凭证管理器
func NewManager(cfg *Config, opts ...Option) (*Manager, error) {
	merged, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(merged); err != nil {
		return nil, errors.Mark(err, ErrInvalidConfig)
	}

	m := &Manager{
		config:      merged,
		clock:       clockwork.NewRealClock(),
		subscribers: make(map[uint64]func(*Credential)),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logger.OrNoop(m.logger).Named("auth")

	if m.store == nil {
		store, err := OpenStore(&merged.Store)
		if err != nil {
			return nil, err
		}
		m.store = store
	}
	if m.refresher == nil && merged.RefreshEndpoint != "" {
		m.refresher = NewHTTPRefresher(merged.RefreshEndpoint, &http.Client{Timeout: merged.RefreshTimeout})
	}

	return m, nil
}

// Token 返回当前 access token，没有凭证时返回空串
func (m *Manager) Token(ctx context.Context) (string, error) {
	cred, err := m.current(ctx)
	if err != nil || cred == nil {
		return "", err
	}
	return cred.AccessToken, nil
}

// Credential 返回当前凭证的副本
func (m *Manager) Credential(ctx context.Context) (*Credential, error) {
	cred, err := m.current(ctx)
	if err != nil || cred == nil {
		return nil, err
	}
	c := *cred
	return &c, nil
}

// current 首次调用时从存储加载
func (m *Manager) current(ctx context.Context) (*Credential, error) {
	m.mu.RLock()
	if m.loaded {
		cred := m.cred
		m.mu.RUnlock()
		return cred, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return m.cred, nil
	}

	cred, err := m.store.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrStoreCorrupted) {
			return nil, err
		}
		m.logger.WarnContext(ctx, "discarding unreadable credential", "error", err)
		cred = nil
	}
	m.cred = cred
	m.loaded = true
	return cred, nil
}

// SetToken 替换凭证，写入存储后通知订阅者
func (m *Manager) SetToken(ctx context.Context, accessToken, refreshToken string) error {
	cred := &Credential{AccessToken: accessToken, RefreshToken: refreshToken}

	m.mu.Lock()
	m.cred = cred
	m.loaded = true
	m.mu.Unlock()

	if err := m.store.Save(ctx, cred); err != nil {
		m.logger.ErrorContext(ctx, "persist credential failed", "error", err)
		m.notify(cred)
		return errors.Wrap(err, "auth: persist credential")
	}
	m.notify(cred)
	return nil
}

// ClearToken 清除内存与存储中的凭证，订阅者收到 nil
func (m *Manager) ClearToken(ctx context.Context) error {
	m.mu.Lock()
	m.cred = nil
	m.loaded = true
	m.mu.Unlock()

	err := m.store.Clear(ctx)
	if err != nil {
		m.logger.ErrorContext(ctx, "clear stored credential failed", "error", err)
		err = errors.Wrap(err, "auth: clear credential")
	}
	m.notify(nil)
	return err
}

// Refresh 用 refresh token 换取新凭证。并发调用共享同一次网络请求。
// 失败时凭证被清除，返回 false 和标记为 ErrRefreshFailed 的错误。
func (m *Manager) Refresh(ctx context.Context) (bool, error) {
	ch := m.group.DoChan("refresh", func() (any, error) {
		return nil, m.doRefresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (m *Manager) doRefresh(ctx context.Context) error {
	cred, err := m.current(ctx)
	if err != nil {
		return m.failRefresh(ctx, err)
	}
	if cred == nil || cred.RefreshToken == "" {
		return m.failRefresh(ctx, ErrNoRefreshToken)
	}
	if m.refresher == nil {
		return m.failRefresh(ctx, errors.Wrap(ErrInvalidConfig, "no refresher configured"))
	}

	reqCtx := ctx
	if m.config.RefreshTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, m.config.RefreshTimeout)
		defer cancel()
	}

	next, err := m.refresher.Refresh(reqCtx, cred.RefreshToken)
	if err != nil {
		return m.failRefresh(ctx, err)
	}

	refreshToken := next.RefreshToken
	if refreshToken == "" {
		refreshToken = cred.RefreshToken
	}
	if err := m.SetToken(ctx, next.AccessToken, refreshToken); err != nil {
		m.logger.WarnContext(ctx, "refreshed credential not persisted", "error", err)
	}
	m.logger.InfoContext(ctx, "credential refreshed")
	return nil
}

func (m *Manager) failRefresh(ctx context.Context, cause error) error {
	m.logger.WarnContext(ctx, "credential refresh failed, clearing", "error", cause)
	if err := m.ClearToken(ctx); err != nil {
		m.logger.ErrorContext(ctx, "clear after refresh failure", "error", err)
	}
	return errors.Mark(errors.Wrap(cause, "auth: refresh"), ErrRefreshFailed)
}

// NeedsRefresh access token 在 RefreshSkew 内过期时返回 true。
// RefreshSkew 为 0、没有凭证或 token 不带 exp 时返回 false。
func (m *Manager) NeedsRefresh(ctx context.Context) bool {
	if m.config.RefreshSkew <= 0 {
		return false
	}
	cred, err := m.current(ctx)
	if err != nil || cred == nil || cred.RefreshToken == "" {
		return false
	}
	exp, err := ParseExpiry(cred.AccessToken)
	if err != nil {
		return false
	}
	return !m.clock.Now().Add(m.config.RefreshSkew).Before(exp)
}

// Subscribe 凭证变化时回调，返回取消函数
func (m *Manager) Subscribe(fn func(*Credential)) func() {
	m.subMu.Lock()
	id := m.nextSubID
	m.nextSubID++
	m.subscribers[id] = fn
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subscribers, id)
			m.subMu.Unlock()
		})
	}
}

func (m *Manager) notify(cred *Credential) {
	m.subMu.Lock()
	fns := make([]func(*Credential), 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		fns = append(fns, fn)
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		if cred == nil {
			fn(nil)
			continue
		}
		c := *cred
		fn(&c)
	}
}

// Close 关闭存储
func (m *Manager) Close() error {
	return m.store.Close()
}
