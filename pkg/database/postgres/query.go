package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// QueryRowFunc 单行扫描回调
type QueryRowFunc func(row pgx.Row) error

// QueryRowsFunc 多行扫描回调，按行调用
type QueryRowsFunc func(rows pgx.Rows) error

// QueryRow 查询单行并交给 scan 回调，带超时与重试。
// 无结果时返回 ErrNotFound。
func (c *Client) QueryRow(ctx context.Context, sql string, args []any, scan QueryRowFunc) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := c.applyQueryTimeout(ctx)
		defer cancel()

		err := scan(c.pool.QueryRow(ctx, sql, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.WithSecondaryError(ErrNotFound, err)
		}
		return err
	})
}

// QueryRows 查询多行，每行调用一次 scan 回调
func (c *Client) QueryRows(ctx context.Context, sql string, args []any, scan QueryRowsFunc) error {
	return c.withRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := c.applyQueryTimeout(ctx)
		defer cancel()

		rows, err := c.pool.Query(ctx, sql, args...)
		if err != nil {
			return errors.Wrap(err, "query failed")
		}
		defer rows.Close()

		for rows.Next() {
			if err := scan(rows); err != nil {
				return err
			}
		}
		return rows.Err()
	})
}

// Exec 执行写操作，返回受影响行数
func (c *Client) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	var affected int64
	err := c.withRetry(ctx, func(ctx context.Context) error {
		ctx, cancel := c.applyQueryTimeout(ctx)
		defer cancel()

		tag, err := c.pool.Exec(ctx, sql, args...)
		if err != nil {
			return errors.Wrap(err, "exec failed")
		}
		affected = tag.RowsAffected()
		return nil
	})
	return affected, err
}

// Exists 检查记录是否存在
func (c *Client) Exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var exists bool
	err := c.QueryRow(ctx, sql, args, func(row pgx.Row) error {
		return row.Scan(&exists)
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return exists, err
}
