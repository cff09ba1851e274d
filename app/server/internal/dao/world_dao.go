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

// WorldDAO 世界数据访问对象
type WorldDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

// NewWorldDAO 创建世界 DAO
func NewWorldDAO(db *postgres.Client, l logger.Logger, m *metrics.ServerMetrics) *WorldDAO {
	return &WorldDAO{
		db:      db,
		logger:  l.Named("dao.world"),
		metrics: m,
	}
}

// List 返回全部世界
func (d *WorldDAO) List(ctx context.Context) ([]*model.World, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("world_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("world_id", "world_name", "status").
		From("worlds").
		OrderBy("world_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	worlds := make([]*model.World, 0, 4)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var w model.World
		if err := rows.Scan(&w.WorldID, &w.WorldName, &w.Status); err != nil {
			return err
		}
		worlds = append(worlds, &w)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return worlds, nil
}

// GetByName 按名称查世界
func (d *WorldDAO) GetByName(ctx context.Context, name string) (*model.World, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("world_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("world_id", "world_name", "status").
		From("worlds").
		Where(squirrel.Eq{"world_name": name}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var w model.World
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		return row.Scan(&w.WorldID, &w.WorldName, &w.Status)
	})
	if err != nil {
		return nil, err
	}

	return &w, nil
}

// Insert 创建世界，名称唯一
func (d *WorldDAO) Insert(ctx context.Context, name string) (uint16, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("world_insert", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Insert("worlds").
		Columns("world_name", "status").
		Values(name, model.WorldStatusOnline).
		Suffix("RETURNING world_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "failed to build query")
	}

	var worldID uint16
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		return row.Scan(&worldID)
	})
	if err != nil {
		d.logger.Error("failed to insert world", "name", name, "error", err)
		return 0, err
	}

	return worldID, nil
}
