package dao

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"github.com/hardlinedev/reality/app/server/internal/dialogue"
	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/pkg/database/postgres"
	"github.com/hardlinedev/reality/pkg/logger"
)

// DialogueDAO 对话数据访问对象，实现 dialogue.Store。
type DialogueDAO struct {
	db      *postgres.Client
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

var _ dialogue.Store = (*DialogueDAO)(nil)

// NewDialogueDAO 创建对话 DAO
func NewDialogueDAO(db *postgres.Client, l logger.Logger, m *metrics.ServerMetrics) *DialogueDAO {
	return &DialogueDAO{
		db:      db,
		logger:  l.Named("dao.dialogue"),
		metrics: m,
	}
}

// LoadEntries 加载全部对话条目
func (d *DialogueDAO) LoadEntries(ctx context.Context) ([]*dialogue.Entry, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("dialogue_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("dialogue_id", "npc_id", "text", "npc_emotion", "npc_animation", "options", "actions").
		From("dialogue_entries").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	entries := make([]*dialogue.Entry, 0, 128)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var entry dialogue.Entry
		var options, actions json.RawMessage

		if err := rows.Scan(&entry.ID, &entry.NpcID, &entry.Text,
			&entry.NpcEmotion, &entry.NpcAnimation, &options, &actions); err != nil {
			return err
		}

		if len(options) > 0 {
			if err := json.Unmarshal(options, &entry.Options); err != nil {
				return errors.Wrapf(err, "dialogue %d options", entry.ID)
			}
		}
		if len(actions) > 0 {
			if err := json.Unmarshal(actions, &entry.Actions); err != nil {
				return errors.Wrapf(err, "dialogue %d actions", entry.ID)
			}
		}

		entries = append(entries, &entry)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}

// LoadHistory 加载玩家的对话历史
func (d *DialogueDAO) LoadHistory(ctx context.Context, playerID uint64) ([]*dialogue.HistoryRecord, error) {
	defer func(start time.Time) { d.metrics.RecordDBQuery("dialogue_history_select", time.Since(start).Seconds()) }(time.Now())

	query, args, err := squirrel.
		Select("player_id", "npc_id", "dialogue_ids").
		From("dialogue_history").
		Where(squirrel.Eq{"player_id": playerID}).
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "failed to build query")
	}

	recs := make([]*dialogue.HistoryRecord, 0, 8)
	err = d.db.QueryRows(ctx, query, args, func(rows pgx.Rows) error {
		var rec dialogue.HistoryRecord
		var ids json.RawMessage

		if err := rows.Scan(&rec.PlayerID, &rec.NpcID, &ids); err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := json.Unmarshal(ids, &rec.DialogueIDs); err != nil {
				return errors.Wrapf(err, "history %d/%d", rec.PlayerID, rec.NpcID)
			}
		}

		recs = append(recs, &rec)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return recs, nil
}

// SaveHistory 写入对话历史（upsert 整行）
func (d *DialogueDAO) SaveHistory(ctx context.Context, rec *dialogue.HistoryRecord) error {
	defer func(start time.Time) { d.metrics.RecordDBQuery("dialogue_history_upsert", time.Since(start).Seconds()) }(time.Now())

	ids, err := json.Marshal(rec.DialogueIDs)
	if err != nil {
		return errors.Wrap(err, "marshal dialogue ids")
	}

	query, args, err := squirrel.
		Insert("dialogue_history").
		Columns("player_id", "npc_id", "dialogue_ids").
		Values(rec.PlayerID, rec.NpcID, ids).
		Suffix("ON CONFLICT (player_id, npc_id) DO UPDATE SET dialogue_ids = EXCLUDED.dialogue_ids").
		PlaceholderFormat(squirrel.Dollar).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "failed to build query")
	}

	_, err = d.db.Exec(ctx, query, args...)
	return err
}
