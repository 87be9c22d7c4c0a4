package auth

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/livesync/pkg/database/redis"
)

// RedisStore 将两个条目保存在 Redis 中，多个进程可以共享同一份凭证
type RedisStore struct {
	client     *redis.Client
	cfg        *RedisStoreConfig
	accessKey  string
	refreshKey string
}

// NewRedisStore 创建 Redis 存储
func NewRedisStore(cfg *RedisStoreConfig, accessKey, refreshKey string) (*RedisStore, error) {
	client, err := redis.NewClient(&cfg.Client)
	if err != nil {
		return nil, errors.Wrap(err, "auth: create redis client")
	}
	return NewRedisStoreWithClient(client, cfg, accessKey, refreshKey), nil
}

// NewRedisStoreWithClient 复用已有客户端
func NewRedisStoreWithClient(client *redis.Client, cfg *RedisStoreConfig, accessKey, refreshKey string) *RedisStore {
	return &RedisStore{
		client:     client,
		cfg:        cfg,
		accessKey:  accessKey,
		refreshKey: refreshKey,
	}
}

func (s *RedisStore) Load(ctx context.Context) (*Credential, error) {
	access, err := s.client.Get(ctx, s.accessKey)
	if errors.Is(err, redis.ErrNil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	refresh, err := s.client.Get(ctx, s.refreshKey)
	if err != nil && !errors.Is(err, redis.ErrNil) {
		return nil, err
	}
	return &Credential{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *RedisStore) Save(ctx context.Context, cred *Credential) error {
	if cred.RefreshToken == "" {
		if _, err := s.client.Del(ctx, s.refreshKey); err != nil {
			return err
		}
		return s.client.Set(ctx, s.accessKey, cred.AccessToken, s.cfg.TTL)
	}
	return s.client.SetMulti(ctx, map[string]string{
		s.accessKey:  cred.AccessToken,
		s.refreshKey: cred.RefreshToken,
	}, s.cfg.TTL)
}

func (s *RedisStore) Clear(ctx context.Context) error {
	_, err := s.client.Del(ctx, s.accessKey, s.refreshKey)
	return err
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
