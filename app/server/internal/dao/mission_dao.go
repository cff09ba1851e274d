package dao

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/pkg/database/postgres"
	"github.com/hardlinedev/reality/pkg/logger"
)

// MissionDAO 任务数据访问对象，实现 mission.Store。
// 目标与前置条件以 JSONB 存储。
type MissionDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

var _ mission.Store = (*MissionDAO)(nil)

// NewMissionDAO 创建任务 DAO
func NewMissionDAO(db *postgres.Client, l logger.Logger, m *metrics.ServerMetrics) *MissionDAO {
	return &MissionDAO{
		db:      db,
		logger:  l.Named("dao.mission"),
		metrics: m,
	}
}

// LoadDefinitions 加载全部任务定义
func (d *MissionDAO) LoadDefinitions(ctx context.Context) ([]*mission.Definition, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_def_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("mission_id", "name", "description",
			"min_level", "max_level", "faction",
			"giver_npc_id", "turn_in_npc_id",
			"repeatable", "cooldown_seconds",
			"start_dialogue", "completion_dialogue", "failure_dialogue",
			"objectives", "prerequisites").
		From("mission_definitions").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	defs := make([]*mission.Definition, 0, 64)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var def mission.Definition
		var cooldownSeconds uint32
		var objectives, prerequisites json.RawMessage

		if err := rows.Scan(
			&def.ID, &def.Name, &def.Description,
			&def.MinLevel, &def.MaxLevel, &def.Faction,
			&def.GiverNpcID, &def.TurnInNpcID,
			&def.Repeatable, &cooldownSeconds,
			&def.StartDialogue, &def.CompletionDialogue, &def.FailureDialogue,
			&objectives, &prerequisites,
		); err != nil {
			return err
		}

		def.CooldownTime = time.Duration(cooldownSeconds) * time.Second
		if err := json.Unmarshal(objectives, &def.Objectives); err != nil {
			return errors.Wrapf(err, "mission %d objectives", def.ID)
		}
		if len(prerequisites) > 0 {
			if err := json.Unmarshal(prerequisites, &def.Prerequisites); err != nil {
				return errors.Wrapf(err, "mission %d prerequisites", def.ID)
			}
		}

		defs = append(defs, &def)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}

// LoadInstances 加载玩家的任务实例
func (d *MissionDAO) LoadInstances(ctx context.Context, playerID uint64) ([]*mission.Instance, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_inst_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("mission_id", "player_id", "start_time", "state", "objective_progress").
		From("mission_instances").
		Where(squirrel.Eq{"player_id": playerID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	insts := make([]*mission.Instance, 0, 4)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var inst mission.Instance
		var state uint8
		var progress json.RawMessage

		if err := rows.Scan(&inst.MissionID, &inst.PlayerID, &inst.StartTime, &state, &progress); err != nil {
			return err
		}

		inst.State = mission.State(state)
		inst.ObjectiveProgress = make(map[uint32]uint32)
		if len(progress) > 0 {
			if err := json.Unmarshal(progress, &inst.ObjectiveProgress); err != nil {
				return errors.Wrapf(err, "instance %d/%d progress", inst.PlayerID, inst.MissionID)
			}
		}

		insts = append(insts, &inst)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return insts, nil
}

// SaveInstance 写入任务实例（upsert）
func (d *MissionDAO) SaveInstance(ctx context.Context, inst *mission.Instance) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_inst_upsert", time.Since(start).Seconds()) }(time.Now())

	progress, err := json.Marshal(inst.ObjectiveProgress)
	if err != nil {
		return errors.Wrap(err, "marshal progress")
	}

	query, args, err := squirrel.
		Insert("mission_instances").
		Columns("player_id", "mission_id", "start_time", "state", "objective_progress").
		Values(inst.PlayerID, inst.MissionID, inst.StartTime, uint8(inst.State), progress).
		Suffix("ON CONFLICT (player_id, mission_id) DO UPDATE SET state = EXCLUDED.state, objective_progress = EXCLUDED.objective_progress").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}

// DeleteInstance 删除任务实例
func (d *MissionDAO) DeleteInstance(ctx context.Context, playerID uint64, missionID uint32) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_inst_delete", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Delete("mission_instances").
		Where(squirrel.Eq{"player_id": playerID, "mission_id": missionID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}

// AppendCompleted 追加完成履历
func (d *MissionDAO) AppendCompleted(ctx context.Context, rec *mission.CompletedRecord) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_completed_insert", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Insert("completed_missions").
		Columns("player_id", "mission_id", "completed_at").
		Values(rec.PlayerID, rec.MissionID, rec.CompletedAt).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}

// LoadCompleted 加载玩家的完成履历
func (d *MissionDAO) LoadCompleted(ctx context.Context, playerID uint64) ([]*mission.CompletedRecord, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("mission_completed_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("player_id", "mission_id", "completed_at").
		From("completed_missions").
		Where(squirrel.Eq{"player_id": playerID}).
		OrderBy("completed_at").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	recs := make([]*mission.CompletedRecord, 0, 8)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var rec mission.CompletedRecord
		if err := rows.Scan(&rec.PlayerID, &rec.MissionID, &rec.CompletedAt); err != nil {
			return err
		}
		recs = append(recs, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return recs, nil
}
