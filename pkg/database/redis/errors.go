package redis

import "github.com/cockroachdb/errors"

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("redis: nil config")

	// ErrInvalidConfig standalone 与 cluster 必须且只能配置一种
	ErrInvalidConfig = errors.New("redis: must specify exactly one of standalone or cluster")

	// ErrNil 键不存在
	ErrNil = errors.New("redis: nil")
)
