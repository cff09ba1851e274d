// Package dao 实现存储网关：带类型的查询与命令，屏蔽连接池、
// 超时和重试。会话线程不直接碰数据库。
package dao

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/database/postgres"
	"github.com/hardlinedev/reality/pkg/logger"
)

// ErrNotFound 查询无结果
var ErrNotFound = postgres.ErrNotFound

var accountColumns = []string{
	"account_id", "username", "password_hash", "password_salt", "last_login", "created_at",
}

// AccountDAO 账号数据访问对象
type AccountDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

// NewAccountDAO 创建账号 DAO
func NewAccountDAO(db *postgres.Client, l logger.Logger, m *metrics.ServerMetrics) *AccountDAO {
	return &AccountDAO{
		db:      db,
		logger:  l.Named("dao.account"),
		metrics: m,
	}
}

func (d *AccountDAO) observe(op string, start time.Time) {
	d.metrics.RecordDBQuery(op, time.Since(start).Seconds())
}

// GetByUsername 按用户名查账号
func (d *AccountDAO) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	defer d.observe("account_select", time.Now())

	query, args, err := squirrel.
		Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"username": username}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var acc model.Account
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		return row.Scan(
			&acc.AccountID,
			&acc.Username,
			&acc.PasswordHash,
			&acc.PasswordSalt,
			&acc.LastLogin,
			&acc.CreatedAt,
		)
	})
	if err != nil {
		return nil, err
	}

	return &acc, nil
}

// Insert 创建账号，返回新账号 ID。用户名唯一。
func (d *AccountDAO) Insert(ctx context.Context, username, passwordHash, passwordSalt string) (uint32, error) {
	defer d.observe("account_insert", time.Now())

	query, args, err := squirrel.
		Insert("accounts").
		Columns("username", "password_hash", "password_salt", "created_at").
		Values(username, passwordHash, passwordSalt, time.Now()).
		Suffix("RETURNING account_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "failed to build query")
	}

	var accountID uint32
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		return row.Scan(&accountID)
	})
	if err != nil {
		d.logger.Error("failed to insert account", "username", username, "error", err)
		return 0, err
	}

	return accountID, nil
}

// UpdatePassword 更新口令散列和盐
func (d *AccountDAO) UpdatePassword(ctx context.Context, accountID uint32, passwordHash, passwordSalt string) error {
	defer d.observe("account_update", time.Now())

	query, args, err := squirrel.
		Update("accounts").
		Set("password_hash", passwordHash).
		Set("password_salt", passwordSalt).
		Where(squirrel.Eq{"account_id": accountID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	affected, err := d.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchLastLogin 更新最近登录时间
func (d *AccountDAO) TouchLastLogin(ctx context.Context, accountID uint32) error {
	defer d.observe("account_update", time.Now())

	query, args, err := squirrel.
		Update("accounts").
		Set("last_login", time.Now()).
		Where(squirrel.Eq{"account_id": accountID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}
