// Package redis 封装 go-redis 客户端。
// 在线状态与会话键镜像存放在这里；内存始终是权威数据，
// Redis 故障只降级为日志告警。
package redis

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"
)

// Client Redis 客户端
type Client struct {
	rdb *goredis.Client
	cfg *Config
}

// New 创建客户端并验证连通性
func New(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	merged := DefaultConfig()
	if cfg.Addr != "" {
		merged.Addr = cfg.Addr
	}
	merged.Password = cfg.Password
	merged.DB = cfg.DB
	if cfg.PoolSize > 0 {
		merged.PoolSize = cfg.PoolSize
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:         merged.Addr,
		Password:     merged.Password,
		DB:           merged.DB,
		PoolSize:     merged.PoolSize,
		DialTimeout:  merged.DialTimeout,
		ReadTimeout:  merged.ReadTimeout,
		WriteTimeout: merged.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "redis ping failed")
	}

	return &Client{rdb: rdb, cfg: merged}, nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Set 设置键值，ttl 为 0 表示不过期
func (c *Client) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// Get 读取键值，键不存在时返回 ErrKeyNotFound
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", ErrKeyNotFound
	}
	return val, err
}

// Del 删除键
func (c *Client) Del(ctx context.Context, keys ...string) error {
	return c.rdb.Del(ctx, keys...).Err()
}

// Exists 检查键是否存在
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	return n > 0, err
}
