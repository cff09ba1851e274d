// Package sessionkey 维护认证服务签发的会话键表。
// 会话键是 Auth → Game/Margin 之间的共享秘密，仅存于内存；
// 断线、显式登出或过期时作废。
package sessionkey

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
)

var (
	// ErrExpired 会话键不存在或已作废
	ErrExpired = errors.New("sessionkey: expired or unknown")
	// ErrCharacterMismatch 会话键未绑定该角色
	ErrCharacterMismatch = errors.New("sessionkey: character mismatch")
)

// Entry 一条会话键记录
type Entry struct {
	Key         string
	AccountID   uint32
	WorldID     uint16
	CharacterID uint64 // 角色选择前为 0
	CreatedAt   time.Time
	LastSeen    time.Time
}

// Table 会话键表。同一账号同时只有一个有效键 (I3)：
// 再次认证成功会作废旧键。
type Table struct {
	logger logger.Logger
	cache  *dao.CacheDAO
	ttl    time.Duration

	mu        sync.Mutex
	byKey     map[string]*Entry
	byAccount map[uint32]string

	now func() time.Time
}

// NewTable 创建会话键表，ttl 为无活动过期时长
func NewTable(ttl time.Duration, cache *dao.CacheDAO, l logger.Logger) *Table {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Table{
		logger:    l.Named("sessionkey.table"),
		cache:     cache,
		ttl:       ttl,
		byKey:     make(map[string]*Entry),
		byAccount: make(map[uint32]string),
		now:       time.Now,
	}
}

// Mint 为账号签发新会话键，作废该账号的旧键。
// 返回新键字符串。
func (t *Table) Mint(accountID uint32) (string, error) {
	key, err := crypto.GenerateSessionKey()
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	if old, ok := t.byAccount[accountID]; ok {
		delete(t.byKey, old)
	}
	now := t.now()
	t.byKey[key] = &Entry{
		Key:       key,
		AccountID: accountID,
		CreatedAt: now,
		LastSeen:  now,
	}
	t.byAccount[accountID] = key
	t.mu.Unlock()

	if t.cache != nil {
		t.cache.MirrorSessionKey(context.Background(), accountID, key, t.ttl)
	}

	return key, nil
}

// BindCharacter 角色选择后把键绑定到 (world, character)
func (t *Table) BindCharacter(key string, worldID uint16, characterID uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byKey[key]
	if !ok {
		return ErrExpired
	}
	entry.WorldID = worldID
	entry.CharacterID = characterID
	entry.LastSeen = t.now()
	return nil
}

// Validate 校验键与角色绑定，成功时刷新活动时间并返回记录快照。
// Game/Margin 的握手都走这里。
func (t *Table) Validate(key string, characterID uint64) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.byKey[key]
	if !ok {
		return Entry{}, ErrExpired
	}
	if t.now().Sub(entry.LastSeen) > t.ttl {
		t.evictLocked(entry)
		return Entry{}, ErrExpired
	}
	if entry.CharacterID == 0 || entry.CharacterID != characterID {
		return Entry{}, ErrCharacterMismatch
	}

	entry.LastSeen = t.now()
	return *entry, nil
}

// Touch 刷新键的活动时间
func (t *Table) Touch(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.byKey[key]; ok {
		entry.LastSeen = t.now()
	}
}

// Invalidate 显式作废一个键（登出、断线）
func (t *Table) Invalidate(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.byKey[key]; ok {
		t.evictLocked(entry)
	}
}

// InvalidateAccount 作废账号的当前键
func (t *Table) InvalidateAccount(accountID uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if key, ok := t.byAccount[accountID]; ok {
		if entry, ok := t.byKey[key]; ok {
			t.evictLocked(entry)
		}
	}
}

func (t *Table) evictLocked(entry *Entry) {
	delete(t.byKey, entry.Key)
	if t.byAccount[entry.AccountID] == entry.Key {
		delete(t.byAccount, entry.AccountID)
	}
	if t.cache != nil {
		t.cache.DropSessionKey(context.Background(), entry.AccountID)
	}
}

// Sweep 清理过期键，由主控的周期任务调用。返回清理数量。
func (t *Table) Sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	evicted := 0
	for _, entry := range t.byKey {
		if now.Sub(entry.LastSeen) > t.ttl {
			t.evictLocked(entry)
			evicted++
		}
	}
	if evicted > 0 {
		t.logger.Debug("session keys swept", "evicted", evicted)
	}
	return evicted
}

// Len 当前有效键数量
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byKey)
}
