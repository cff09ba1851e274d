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
	"github.com/hardlinedev/reality/pkg/idgen"
	"github.com/hardlinedev/reality/pkg/logger"
)

var characterColumns = []string{
	"character_id", "account_id", "world_id",
	"character_handle", "first_name", "last_name",
	"background", "rsi",
	"experience", "information",
	"health_current", "health_max", "innerstr_current", "innerstr_max",
	"profession", "level", "alignment",
	"pos_x", "pos_y", "pos_z", "rotation", "district",
	"is_online", "is_admin",
}

// CharacterDAO 角色数据访问对象
type CharacterDAO struct {
	db      *postgres.Client
	idgen   idgen.Generator
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

// NewCharacterDAO 创建角色 DAO
func NewCharacterDAO(db *postgres.Client, gen idgen.Generator, l logger.Logger, m *metrics.ServerMetrics) *CharacterDAO {
	return &CharacterDAO{
		db:      db,
		idgen:   gen,
		logger:  l.Named("dao.character"),
		metrics: m,
	}
}

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var c model.Character
	err := row.Scan(
		&c.CharacterID, &c.AccountID, &c.WorldID,
		&c.Handle, &c.FirstName, &c.LastName,
		&c.Background, &c.RSI,
		&c.Experience, &c.Information,
		&c.HealthCurrent, &c.HealthMax, &c.InnerStrCurrent, &c.InnerStrMax,
		&c.Profession, &c.Level, &c.Alignment,
		&c.PosX, &c.PosY, &c.PosZ, &c.Rotation, &c.District,
		&c.IsOnline, &c.IsAdmin,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetByID 按角色 ID 查角色
func (d *CharacterDAO) GetByID(ctx context.Context, characterID uint64) (*model.Character, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select(characterColumns...).
		From("characters").
		Where(squirrel.Eq{"character_id": characterID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var c *model.Character
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		var scanErr error
		c, scanErr = scanCharacter(row)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetByHandle 按唯一 handle 查角色
func (d *CharacterDAO) GetByHandle(ctx context.Context, handle string) (*model.Character, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select(characterColumns...).
		From("characters").
		Where(squirrel.Eq{"character_handle": handle}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	var c *model.Character
	err = d.db.QueryRow(ctx, query, args, func(row pgx.Row) error {
		var scanErr error
		c, scanErr = scanCharacter(row)
		return scanErr
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListByAccountWorld 返回账号在指定世界的角色列表
func (d *CharacterDAO) ListByAccountWorld(ctx context.Context, accountID uint32, worldID uint16) ([]*model.Character, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select(characterColumns...).
		From("characters").
		Where(squirrel.Eq{"account_id": accountID, "world_id": worldID}).
		OrderBy("character_id").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	chars := make([]*model.Character, 0, 4)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		c, scanErr := scanCharacter(rows)
		if scanErr != nil {
			return scanErr
		}
		chars = append(chars, c)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return chars, nil
}

// Insert 创建角色。角色 ID 由 sonyflake 预分配，handle 唯一。
func (d *CharacterDAO) Insert(ctx context.Context, c *model.Character) (uint64, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_insert", time.Since(start).Seconds()) }(time.Now())

	id, err := d.idgen.NextID()
	if err != nil {
		return 0, err
	}
	c.CharacterID = uint64(id)

	query, args, err := squirrel.
		Insert("characters").
		Columns(characterColumns...).
		Values(
			c.CharacterID, c.AccountID, c.WorldID,
			c.Handle, c.FirstName, c.LastName,
			c.Background, c.RSI,
			c.Experience, c.Information,
			c.HealthCurrent, c.HealthMax, c.InnerStrCurrent, c.InnerStrMax,
			c.Profession, c.Level, c.Alignment,
			c.PosX, c.PosY, c.PosZ, c.Rotation, c.District,
			c.IsOnline, c.IsAdmin,
		).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "failed to build query")
	}

	if _, err := d.db.Exec(ctx, query, args...); err != nil {
		d.logger.Error("failed to insert character", "handle", c.Handle, "error", err)
		return 0, err
	}

	return c.CharacterID, nil
}

// Delete 删除账号名下的角色
func (d *CharacterDAO) Delete(ctx context.Context, accountID uint32, characterID uint64) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_delete", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Delete("characters").
		Where(squirrel.Eq{"account_id": accountID, "character_id": characterID}).
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

// SaveState 持久化角色的动态状态（位置、属性、在线标志、背景）。
// 自动存档和下线落盘都走这里。
func (d *CharacterDAO) SaveState(ctx context.Context, c *model.Character) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_update", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Update("characters").
		Set("experience", c.Experience).
		Set("information", c.Information).
		Set("health_current", c.HealthCurrent).
		Set("health_max", c.HealthMax).
		Set("innerstr_current", c.InnerStrCurrent).
		Set("innerstr_max", c.InnerStrMax).
		Set("level", c.Level).
		Set("alignment", c.Alignment).
		Set("background", c.Background).
		Set("pos_x", c.PosX).
		Set("pos_y", c.PosY).
		Set("pos_z", c.PosZ).
		Set("rotation", c.Rotation).
		Set("district", c.District).
		Set("is_online", c.IsOnline).
		Where(squirrel.Eq{"character_id": c.CharacterID}).
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

// SetOnline 更新在线标志
func (d *CharacterDAO) SetOnline(ctx context.Context, characterID uint64, online bool) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("character_update", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Update("characters").
		Set("is_online", online).
		Where(squirrel.Eq{"character_id": characterID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}
