package postgres

import (
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

var (
	// ErrNilConfig 配置为空
	ErrNilConfig = errors.New("postgres: config is nil")
	// ErrInvalidConfig 配置非法
	ErrInvalidConfig = errors.New("postgres: invalid config")
	// ErrNotFound 查询无结果
	ErrNotFound = errors.New("postgres: no rows")
	// ErrUnavailable 重试耗尽后仍不可用
	ErrUnavailable = errors.New("postgres: store unavailable")
)

// IsNotFound 判断错误是否为"无结果"
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
