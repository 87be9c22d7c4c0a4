package auth

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// TokenStore 凭证持久化，两个条目分别保存 access token 和 refresh token
type TokenStore interface {
	// Load 读取凭证，没有保存过时返回 nil, nil
	Load(ctx context.Context) (*Credential, error)
	// Save 同时写入两个条目，RefreshToken 为空时删除对应条目
	Save(ctx context.Context, cred *Credential) error
	// Clear 删除两个条目
	Clear(ctx context.Context) error
	Close() error
}

// OpenStore 按配置创建存储后端
func OpenStore(cfg *StoreConfig) (TokenStore, error) {
	switch cfg.Type {
	case "", StoreMemory:
		return NewMemoryStore(cfg.AccessTokenKey, cfg.RefreshTokenKey), nil
	case StoreFile:
		return NewFileStore(cfg.File.Path, cfg.File.Passphrase, cfg.AccessTokenKey, cfg.RefreshTokenKey)
	case StoreRedis:
		return NewRedisStore(&cfg.Redis, cfg.AccessTokenKey, cfg.RefreshTokenKey)
	default:
		return nil, errors.Wrapf(ErrInvalidConfig, "unknown store type %q", cfg.Type)
	}
}

// MemoryStore 进程内存储，进程退出即丢失
type MemoryStore struct {
	accessKey  string
	refreshKey string

	mu      sync.RWMutex
	entries map[string]string
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(accessKey, refreshKey string) *MemoryStore {
	return &MemoryStore{
		accessKey:  accessKey,
		refreshKey: refreshKey,
		entries:    make(map[string]string, 2),
	}
}

func (s *MemoryStore) Load(context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return credentialFromEntries(s.entries, s.accessKey, s.refreshKey), nil
}

func (s *MemoryStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	applyCredential(s.entries, cred, s.accessKey, s.refreshKey)
	return nil
}

func (s *MemoryStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, s.accessKey)
	delete(s.entries, s.refreshKey)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

func credentialFromEntries(entries map[string]string, accessKey, refreshKey string) *Credential {
	access, ok := entries[accessKey]
	if !ok || access == "" {
		return nil
	}
	return &Credential{AccessToken: access, RefreshToken: entries[refreshKey]}
}

func applyCredential(entries map[string]string, cred *Credential, accessKey, refreshKey string) {
	entries[accessKey] = cred.AccessToken
	if cred.RefreshToken != "" {
		entries[refreshKey] = cred.RefreshToken
	} else {
		delete(entries, refreshKey)
	}
}
