package postgres

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

// WithTx 在单个事务内执行 fn，fn 返回错误时回滚。
// 对话动作的原子应用走这里。
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	ctx, cancel := c.applyQueryTimeout(ctx)
	defer cancel()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			err = errors.WithSecondaryError(err, rbErr)
		}
		return err
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}
