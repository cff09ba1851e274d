// Package postgres 封装 pgx 连接池，为存储网关提供带超时与
// 重试的查询入口。
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Client PostgreSQL 客户端
type Client struct {
	pool *pgxpool.Pool
	cfg  *Config
}

// New 创建客户端并建立连接池
func New(ctx context.Context, cfg *Config) (*Client, error) {
	newCfg, err := mergeConfig(cfg)
	if err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(buildConnString(newCfg))
	if err != nil {
		return nil, errors.Wrap(ErrInvalidConfig, err.Error())
	}

	poolConfig.MaxConns = newCfg.Pool.MaxConns
	poolConfig.MinConns = newCfg.Pool.MinConns
	poolConfig.MaxConnLifetime = newCfg.Pool.MaxConnLifetime
	poolConfig.MaxConnIdleTime = newCfg.Pool.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = newCfg.Pool.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create pool")
	}

	return &Client{pool: pool, cfg: newCfg}, nil
}

func mergeConfig(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	merged := DefaultConfig()
	if cfg.Host != "" {
		merged.Host = cfg.Host
	}
	if cfg.Port != 0 {
		merged.Port = cfg.Port
	}
	merged.User = cfg.User
	merged.Password = cfg.Password
	merged.DBName = cfg.DBName
	if cfg.SSLMode != "" {
		merged.SSLMode = cfg.SSLMode
	}
	if cfg.Pool.MaxConns > 0 {
		merged.Pool.MaxConns = cfg.Pool.MaxConns
	}
	if cfg.Pool.MinConns > 0 {
		merged.Pool.MinConns = cfg.Pool.MinConns
	}
	if cfg.QueryTimeout > 0 {
		merged.QueryTimeout = cfg.QueryTimeout
	}
	if cfg.RetryAttempts > 0 {
		merged.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBackoff > 0 {
		merged.RetryBackoff = cfg.RetryBackoff
	}

	if merged.User == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "user is empty")
	}
	if merged.DBName == "" {
		return nil, errors.Wrap(ErrInvalidConfig, "db_name is empty")
	}
	if merged.Pool.MinConns > merged.Pool.MaxConns {
		return nil, errors.Wrap(ErrInvalidConfig, "min_conns greater than max_conns")
	}
	return merged, nil
}

func buildConnString(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
}

// Close 关闭连接池
func (c *Client) Close() error {
	c.pool.Close()
	return nil
}

// Ping 检查数据库连接
func (c *Client) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Pool 返回底层连接池（事务路径使用）
func (c *Client) Pool() *pgxpool.Pool {
	return c.pool
}

// applyQueryTimeout 应用查询超时
func (c *Client) applyQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return ctx, func() {}
}

// withRetry 对瞬时故障做指数退避重试。
// 重试耗尽后返回 ErrUnavailable，由调用方映射为服务级错误码。
func (c *Client) withRetry(ctx context.Context, op func(context.Context) error) error {
	backoff := c.cfg.RetryBackoff
	var last error

	for attempt := 0; attempt < c.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}

		last = op(ctx)
		if last == nil || !isTransient(last) {
			return last
		}
	}

	return errors.Wrapf(ErrUnavailable, "after %d attempts: %v", c.cfg.RetryAttempts, last)
}

// isTransient 判断错误是否值得重试（连接类故障）
func isTransient(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08: connection exception
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return pgconn.SafeToRetry(err)
}
