package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/pkg/logger"
)

var (
	// ErrUnknownDialogue 对话条目不存在
	ErrUnknownDialogue = errors.New("dialogue: unknown entry")
	// ErrUnknownOption 选项不存在
	ErrUnknownOption = errors.New("dialogue: unknown option")
	// ErrOptionGated 选项门控不满足
	ErrOptionGated = errors.New("dialogue: option not available")
	// ErrActionFailed 动作执行失败，已回滚
	ErrActionFailed = errors.New("dialogue: action failed")
)

// Store 对话持久化接口，由存储网关实现
type Store interface {
	LoadEntries(ctx context.Context) ([]*Entry, error)
	LoadHistory(ctx context.Context, playerID uint64) ([]*HistoryRecord, error)
	SaveHistory(ctx context.Context, rec *HistoryRecord) error
}

// PlayerView 门控评估所需的玩家视图，由 Margin 服务实现
type PlayerView interface {
	Level(playerID uint64) uint8
	Faction(playerID uint64) uint8
	SkillLevel(playerID uint64, skillID uint32) uint8
	MissionState(playerID uint64, missionID uint32) mission.State
}

// Actor 动作副作用的执行者，由 Margin 服务实现。
// Execute 返回撤销函数；失败时引擎按逆序执行已成功动作的撤销。
type Actor interface {
	Execute(ctx context.Context, playerID uint64, action Action) (undo func(), err error)
}

type historyKey struct {
	playerID uint64
	npcID    uint32
}

// Engine 对话引擎。条目只读，历史受 mu 保护。
type Engine struct {
	logger logger.Logger
	store  Store
	pool   *ants.Pool
	view   PlayerView

	mu       sync.Mutex
	entries  map[uint32]*Entry
	initial  map[uint32]uint32 // NPC ID → 起始对话 ID
	history  map[historyKey][]uint32
	loaded   map[uint64]bool
	choices  uint64
}

// NewEngine 创建对话引擎并加载全部条目。
// 每个 NPC 最小 ID 的条目作为起始对话。
func NewEngine(ctx context.Context, store Store, pool *ants.Pool, view PlayerView, l logger.Logger) (*Engine, error) {
	e := &Engine{
		logger:  l.Named("dialogue.engine"),
		store:   store,
		pool:    pool,
		view:    view,
		entries: make(map[uint32]*Entry),
		initial: make(map[uint32]uint32),
		history: make(map[historyKey][]uint32),
		loaded:  make(map[uint64]bool),
	}

	entries, err := store.LoadEntries(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load dialogue entries")
	}
	for _, entry := range entries {
		e.entries[entry.ID] = entry
		if first, ok := e.initial[entry.NpcID]; !ok || entry.ID < first {
			e.initial[entry.NpcID] = entry.ID
		}
	}

	e.logger.Info("dialogue entries loaded", "count", len(e.entries))
	return e, nil
}

// SetPlayerView 接入玩家视图（构造循环的后期绑定）
func (e *Engine) SetPlayerView(view PlayerView) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.view = view
}

// Entry 按 ID 查条目
func (e *Engine) Entry(dialogueID uint32) *Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entries[dialogueID]
}

// GetInitialDialogue 返回 NPC 的起始对话 ID，无则 0
func (e *Engine) GetInitialDialogue(npcID uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initial[npcID]
}

// ensureLoaded 懒加载玩家历史，调用方持有 e.mu。
func (e *Engine) ensureLoaded(playerID uint64) {
	if e.loaded[playerID] {
		return
	}
	e.loaded[playerID] = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	recs, err := e.store.LoadHistory(ctx, playerID)
	if err != nil {
		e.logger.Error("failed to load dialogue history", "player_id", playerID, "error", err)
		return
	}
	for _, rec := range recs {
		e.history[historyKey{playerID, rec.NpcID}] = rec.DialogueIDs
	}
}

// optionAvailable 评估选项门控，调用方持有 e.mu。
func (e *Engine) optionAvailable(playerID uint64, opt *Option) bool {
	if e.view == nil {
		return opt.RequiredMissionID == 0 && opt.RequiredLevel == 0 &&
			opt.RequiredFaction == 0 && opt.RequiredSkillID == 0
	}

	if opt.RequiredLevel > 0 && e.view.Level(playerID) < opt.RequiredLevel {
		return false
	}
	if opt.RequiredFaction > 0 && e.view.Faction(playerID) != opt.RequiredFaction {
		return false
	}
	if opt.RequiredSkillID > 0 && e.view.SkillLevel(playerID, opt.RequiredSkillID) < opt.RequiredSkillLevel {
		return false
	}
	if opt.RequiredMissionID > 0 {
		state := e.view.MissionState(playerID, opt.RequiredMissionID)
		switch opt.RequiredMissionState {
		case GateMissionNotStarted:
			if state != mission.StateNotStarted {
				return false
			}
		case GateMissionInProgress:
			if state != mission.StateActive {
				return false
			}
		case GateMissionCompleted:
			if state != mission.StateCompleted {
				return false
			}
		}
	}
	return true
}

// GetDialogueOptions 返回门控当前满足的选项子集
func (e *Engine) GetDialogueOptions(playerID uint64, dialogueID uint32) []Option {
	e.mu.Lock()
	defer e.mu.Unlock()

	entry, ok := e.entries[dialogueID]
	if !ok {
		return nil
	}

	out := make([]Option, 0, len(entry.Options))
	for i := range entry.Options {
		if e.optionAvailable(playerID, &entry.Options[i]) {
			out = append(out, entry.Options[i])
		}
	}
	return out
}

// SelectDialogueOption 选择选项：校验门控、原子执行目标对话的动作、
// 记录历史，返回下一对话 ID（0 表示会话结束）。
// 动作任一失败时撤销已执行的动作并返回 ErrActionFailed。
func (e *Engine) SelectDialogueOption(ctx context.Context, playerID uint64, dialogueID uint32, optionID uint32, actor Actor) (uint32, error) {
	e.mu.Lock()
	entry, ok := e.entries[dialogueID]
	if !ok {
		e.mu.Unlock()
		return 0, ErrUnknownDialogue
	}
	opt := entry.Option(optionID)
	if opt == nil {
		e.mu.Unlock()
		return 0, ErrUnknownOption
	}
	if !e.optionAvailable(playerID, opt) {
		e.mu.Unlock()
		return 0, ErrOptionGated
	}

	var next *Entry
	if !opt.EndConversation && opt.NextDialogueID != 0 {
		next = e.entries[opt.NextDialogueID]
		if next == nil {
			e.mu.Unlock()
			return 0, errors.Wrapf(ErrUnknownDialogue, "next dialogue %d", opt.NextDialogueID)
		}
	}
	e.ensureLoaded(playerID)
	e.mu.Unlock()

	// 动作在锁外执行：Actor 会回调任务引擎等共享组件
	if next != nil && actor != nil {
		undos := make([]func(), 0, len(next.Actions))
		for _, action := range next.Actions {
			if action.Type == ActionNone {
				continue
			}
			undo, err := actor.Execute(ctx, playerID, action)
			if err != nil {
				for i := len(undos) - 1; i >= 0; i-- {
					undos[i]()
				}
				e.logger.Warn("dialogue action failed, rolled back",
					"player_id", playerID,
					"dialogue_id", next.ID,
					"action", action.Type,
					"error", err,
				)
				return 0, errors.Wrapf(ErrActionFailed, "action %d: %v", action.Type, err)
			}
			if undo != nil {
				undos = append(undos, undo)
			}
		}
	}

	e.mu.Lock()
	e.choices++
	if next != nil {
		e.appendHistoryLocked(playerID, next.NpcID, next.ID)
	}
	e.mu.Unlock()

	if next == nil {
		return 0, nil
	}
	return next.ID, nil
}

// appendHistoryLocked 记录访问并异步落盘，调用方持有 e.mu。
func (e *Engine) appendHistoryLocked(playerID uint64, npcID uint32, dialogueID uint32) {
	key := historyKey{playerID, npcID}
	e.history[key] = append(e.history[key], dialogueID)

	rec := &HistoryRecord{
		PlayerID:    playerID,
		NpcID:       npcID,
		DialogueIDs: append([]uint32(nil), e.history[key]...),
	}

	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.store.SaveHistory(ctx, rec); err != nil {
			e.logger.Error("failed to save dialogue history",
				"player_id", playerID, "npc_id", npcID, "error", err)
		}
	}
	if e.pool == nil {
		task()
		return
	}
	if err := e.pool.Submit(task); err != nil {
		task()
	}
}

// GetDialogueHistory 返回玩家与 NPC 的历史对话 ID
func (e *Engine) GetDialogueHistory(playerID uint64, npcID uint32) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	src := e.history[historyKey{playerID, npcID}]
	out := make([]uint32, len(src))
	copy(out, src)
	return out
}

// Evict 会话结束时释放玩家的缓存历史
func (e *Engine) Evict(playerID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.history {
		if key.playerID == playerID {
			delete(e.history, key)
		}
	}
	delete(e.loaded, playerID)
}

// Stats 选择总数
func (e *Engine) Stats() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.choices
}
