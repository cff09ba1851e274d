package dao

import (
	"context"
	"fmt"
	"time"

	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/pkg/database/redis"
	"github.com/hardlinedev/reality/pkg/logger"
)

// CacheDAO 在线状态与会话键的 Redis 镜像。
// 内存中的会话键表始终是权威数据；镜像失败只记 warn，
// 不影响登录与游戏链路。
type CacheDAO struct {
	rdb     *redis.Client
	logger  logger.Logger
	metrics *metrics.ServerMetrics
}

// NewCacheDAO 创建缓存 DAO，rdb 可为 nil（未配置 Redis 时全部降级为空操作）
func NewCacheDAO(rdb *redis.Client, l logger.Logger, m *metrics.ServerMetrics) *CacheDAO {
	return &CacheDAO{
		rdb:     rdb,
		logger:  l.Named("dao.cache"),
		metrics: m,
	}
}

func onlineKey(characterID uint64) string {
	return fmt.Sprintf("reality:online:%d", characterID)
}

func sessionKeyKey(accountID uint32) string {
	return fmt.Sprintf("reality:sesskey:%d", accountID)
}

// SetOnline 标记角色在线
func (d *CacheDAO) SetOnline(ctx context.Context, characterID uint64) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Set(ctx, onlineKey(characterID), "1", 0); err != nil {
		d.logger.Warn("failed to mirror online status", "character_id", characterID, "error", err)
	}
}

// SetOffline 清除角色在线标记
func (d *CacheDAO) SetOffline(ctx context.Context, characterID uint64) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, onlineKey(characterID)); err != nil {
		d.logger.Warn("failed to clear online status", "character_id", characterID, "error", err)
	}
}

// MirrorSessionKey 镜像账号的会话键，带过期时间
func (d *CacheDAO) MirrorSessionKey(ctx context.Context, accountID uint32, key string, ttl time.Duration) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Set(ctx, sessionKeyKey(accountID), key, ttl); err != nil {
		d.logger.Warn("failed to mirror session key", "account_id", accountID, "error", err)
	}
}

// DropSessionKey 清除账号的会话键镜像
func (d *CacheDAO) DropSessionKey(ctx context.Context, accountID uint32) {
	if d.rdb == nil {
		return
	}
	if err := d.rdb.Del(ctx, sessionKeyKey(accountID)); err != nil {
		d.logger.Warn("failed to drop session key mirror", "account_id", accountID, "error", err)
	}
}
