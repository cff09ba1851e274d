package mission

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/hardlinedev/reality/pkg/logger"
)

var (
	// ErrUnknownMission 任务定义不存在
	ErrUnknownMission = errors.New("mission: unknown mission")
	// ErrBadTransition 非法状态迁移
	ErrBadTransition = errors.New("mission: invalid state transition")
	// ErrPrerequisites 前置条件不满足
	ErrPrerequisites = errors.New("mission: prerequisites not met")
	// ErrUnknownObjective 目标不存在
	ErrUnknownObjective = errors.New("mission: unknown objective")
)

// Store 任务持久化接口，由存储网关实现
type Store interface {
	LoadDefinitions(ctx context.Context) ([]*Definition, error)
	LoadInstances(ctx context.Context, playerID uint64) ([]*Instance, error)
	SaveInstance(ctx context.Context, inst *Instance) error
	DeleteInstance(ctx context.Context, playerID uint64, missionID uint32) error
	AppendCompleted(ctx context.Context, rec *CompletedRecord) error
	LoadCompleted(ctx context.Context, playerID uint64) ([]*CompletedRecord, error)
}

// PlayerStateProvider 背包/技能/城区权限查询，由游戏服务实现。
// 未接入时（nil）对应前置条件视为不满足。
type PlayerStateProvider interface {
	HasItem(playerID uint64, itemID uint32) bool
	SkillLevel(playerID uint64, skillID uint32) uint8
	HasDistrictAccess(playerID uint64, districtID uint32) bool
}

type instanceKey struct {
	playerID  uint64
	missionID uint32
}

// Engine 任务引擎。定义只读，实例受 mu 保护；
// 持久化经由后台池异步执行，调用线程不落盘。
type Engine struct {
	logger logger.Logger
	store  Store
	pool   *ants.Pool
	state  PlayerStateProvider

	mu          sync.Mutex
	definitions map[uint32]*Definition
	instances   map[instanceKey]*Instance
	completed   map[uint64][]*CompletedRecord
	loaded      map[uint64]bool // 已从存储加载实例数据的玩家

	now func() time.Time
}

// NewEngine 创建任务引擎并加载全部定义
func NewEngine(ctx context.Context, store Store, pool *ants.Pool, l logger.Logger) (*Engine, error) {
	e := &Engine{
		logger:      l.Named("mission.engine"),
		store:       store,
		pool:        pool,
		definitions: make(map[uint32]*Definition),
		instances:   make(map[instanceKey]*Instance),
		completed:   make(map[uint64][]*CompletedRecord),
		loaded:      make(map[uint64]bool),
		now:         time.Now,
	}

	defs, err := store.LoadDefinitions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "load mission definitions")
	}
	for _, d := range defs {
		e.definitions[d.ID] = d
	}

	e.logger.Info("mission definitions loaded", "count", len(e.definitions))
	return e, nil
}

// SetStateProvider 接入背包/技能查询
func (e *Engine) SetStateProvider(p PlayerStateProvider) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = p
}

// Definition 按 ID 查定义
func (e *Engine) Definition(missionID uint32) *Definition {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.definitions[missionID]
}

// ensureLoaded 懒加载玩家的实例与完成履历，调用方持有 e.mu。
func (e *Engine) ensureLoaded(playerID uint64) {
	if e.loaded[playerID] {
		return
	}
	e.loaded[playerID] = true

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	insts, err := e.store.LoadInstances(ctx, playerID)
	if err != nil {
		e.logger.Error("failed to load mission instances", "player_id", playerID, "error", err)
	}
	for _, inst := range insts {
		e.instances[instanceKey{playerID, inst.MissionID}] = inst
	}

	recs, err := e.store.LoadCompleted(ctx, playerID)
	if err != nil {
		e.logger.Error("failed to load completed missions", "player_id", playerID, "error", err)
	}
	e.completed[playerID] = recs
}

// persistAsync 把落盘任务交给后台池
func (e *Engine) persistAsync(name string, fn func(ctx context.Context) error) {
	task := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.logger.Error("mission persistence failed", "op", name, "error", err)
		}
	}
	if e.pool == nil {
		task()
		return
	}
	if err := e.pool.Submit(task); err != nil {
		e.logger.Warn("mission persistence pool rejected task, running inline", "op", name, "error", err)
		task()
	}
}

// GetAvailableMissions 返回玩家当前可接的任务 ID：前置条件全部满足、
// 不在进行中、且未完成（可重复任务冷却结束后再次可接）。
func (e *Engine) GetAvailableMissions(playerID uint64, profession uint8, level uint8, alignment uint8) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	available := make([]uint32, 0, 8)
	for id, def := range e.definitions {
		if inst, ok := e.instances[instanceKey{playerID, id}]; ok && inst.State == StateActive {
			continue
		}
		if !e.repeatAllowed(playerID, def) {
			continue
		}
		if !e.checkPrerequisites(playerID, def, profession, level, alignment) {
			continue
		}
		available = append(available, id)
	}
	return available
}

// repeatAllowed 检查完成履历与重复/冷却约束，调用方持有 e.mu。
func (e *Engine) repeatAllowed(playerID uint64, def *Definition) bool {
	var last time.Time
	completedOnce := false
	for _, rec := range e.completed[playerID] {
		if rec.MissionID == def.ID {
			completedOnce = true
			if rec.CompletedAt.After(last) {
				last = rec.CompletedAt
			}
		}
	}
	if !completedOnce {
		return true
	}
	if !def.Repeatable {
		return false
	}
	return e.now().Sub(last) >= def.CooldownTime
}

// checkPrerequisites AND 组合评估前置条件，调用方持有 e.mu。
func (e *Engine) checkPrerequisites(playerID uint64, def *Definition, profession uint8, level uint8, alignment uint8) bool {
	if def.MinLevel > 0 && level < def.MinLevel {
		return false
	}
	if def.MaxLevel > 0 && level > def.MaxLevel {
		return false
	}
	if def.Faction != 0 && alignment != def.Faction {
		return false
	}

	for _, p := range def.Prerequisites {
		switch p.Type {
		case PrereqLevel:
			if uint32(level) < p.Value {
				return false
			}
		case PrereqFaction:
			if uint32(alignment) != p.Value {
				return false
			}
		case PrereqProfession:
			if uint32(profession) != p.Value {
				return false
			}
		case PrereqCompletedMission:
			if !e.hasCompletedLocked(playerID, p.Value) {
				return false
			}
		case PrereqItemPossession:
			if e.state == nil || !e.state.HasItem(playerID, p.Value) {
				return false
			}
		case PrereqSkillLevel:
			if e.state == nil || uint32(e.state.SkillLevel(playerID, p.Value)) < p.SecondaryValue {
				return false
			}
		case PrereqDistrictAccess:
			if e.state == nil || !e.state.HasDistrictAccess(playerID, p.Value) {
				return false
			}
		}
	}
	return true
}

// StartMission 接受任务: NotStarted → Active
func (e *Engine) StartMission(playerID uint64, missionID uint32, profession uint8, level uint8, alignment uint8) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	def, ok := e.definitions[missionID]
	if !ok {
		return ErrUnknownMission
	}

	key := instanceKey{playerID, missionID}
	if inst, exists := e.instances[key]; exists && inst.State == StateActive {
		return errors.Wrap(ErrBadTransition, "mission already active")
	}
	if !e.repeatAllowed(playerID, def) {
		return errors.Wrap(ErrBadTransition, "mission not repeatable or on cooldown")
	}
	if !e.checkPrerequisites(playerID, def, profession, level, alignment) {
		return ErrPrerequisites
	}

	inst := &Instance{
		MissionID:         missionID,
		PlayerID:          playerID,
		StartTime:         e.now(),
		State:             StateActive,
		ObjectiveProgress: make(map[uint32]uint32, len(def.Objectives)),
	}
	e.instances[key] = inst

	snapshot := inst.clone()
	e.persistAsync("save_instance", func(ctx context.Context) error {
		return e.store.SaveInstance(ctx, snapshot)
	})

	return nil
}

// UpdateObjectiveProgress 推进目标: progress = min(current+delta, target)。
// 返回该目标是否达成。
func (e *Engine) UpdateObjectiveProgress(playerID uint64, missionID uint32, objectiveID uint32, delta uint32) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	def, ok := e.definitions[missionID]
	if !ok {
		return false, ErrUnknownMission
	}
	obj := def.Objective(objectiveID)
	if obj == nil {
		return false, ErrUnknownObjective
	}

	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok || inst.State != StateActive {
		return false, errors.Wrap(ErrBadTransition, "mission not active")
	}

	current := inst.ObjectiveProgress[objectiveID]
	next := current + delta
	if next > obj.TargetValue {
		next = obj.TargetValue
	}
	inst.ObjectiveProgress[objectiveID] = next

	snapshot := inst.clone()
	e.persistAsync("save_instance", func(ctx context.Context) error {
		return e.store.SaveInstance(ctx, snapshot)
	})

	return next >= obj.TargetValue, nil
}

// AreAllObjectivesComplete 检查全部必选目标是否达成
func (e *Engine) AreAllObjectivesComplete(playerID uint64, missionID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.allObjectivesCompleteLocked(playerID, missionID)
}

func (e *Engine) allObjectivesCompleteLocked(playerID uint64, missionID uint32) bool {
	def, ok := e.definitions[missionID]
	if !ok {
		return false
	}
	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok || inst.State != StateActive {
		return false
	}
	for _, obj := range def.Objectives {
		if obj.Optional {
			continue
		}
		if inst.ObjectiveProgress[obj.ID] < obj.TargetValue {
			return false
		}
	}
	return true
}

// CompleteMission 完成任务: Active(全部必选目标达成) → Completed。
// 唯一写完成履历、结算奖励的迁移。
func (e *Engine) CompleteMission(playerID uint64, missionID uint32) (*Reward, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	def, ok := e.definitions[missionID]
	if !ok {
		return nil, ErrUnknownMission
	}
	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok || inst.State != StateActive {
		return nil, errors.Wrap(ErrBadTransition, "mission not active")
	}
	if !e.allObjectivesCompleteLocked(playerID, missionID) {
		return nil, errors.Wrap(ErrBadTransition, "objectives incomplete")
	}

	// 结算：必选目标全额，可选目标只在达成时计入
	reward := &Reward{}
	for _, obj := range def.Objectives {
		if obj.Optional && inst.ObjectiveProgress[obj.ID] < obj.TargetValue {
			continue
		}
		reward.Experience += uint64(obj.RewardExperience)
		reward.Information += uint64(obj.RewardInformation)
		reward.Items = append(reward.Items, obj.RewardItems...)
	}

	delete(e.instances, instanceKey{playerID, missionID})
	rec := &CompletedRecord{PlayerID: playerID, MissionID: missionID, CompletedAt: e.now()}
	e.completed[playerID] = append(e.completed[playerID], rec)

	e.persistAsync("complete_mission", func(ctx context.Context) error {
		if err := e.store.DeleteInstance(ctx, playerID, missionID); err != nil {
			return err
		}
		return e.store.AppendCompleted(ctx, rec)
	})

	return reward, nil
}

// AbandonMission 放弃任务: Active → NotStarted，履历不变
func (e *Engine) AbandonMission(playerID uint64, missionID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok || inst.State != StateActive {
		return errors.Wrap(ErrBadTransition, "mission not active")
	}

	delete(e.instances, instanceKey{playerID, missionID})
	e.persistAsync("delete_instance", func(ctx context.Context) error {
		return e.store.DeleteInstance(ctx, playerID, missionID)
	})
	return nil
}

// FailMission 任务失败: Active → Failed
func (e *Engine) FailMission(playerID uint64, missionID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok || inst.State != StateActive {
		return errors.Wrap(ErrBadTransition, "mission not active")
	}

	inst.State = StateFailed
	snapshot := inst.clone()
	e.persistAsync("save_instance", func(ctx context.Context) error {
		return e.store.SaveInstance(ctx, snapshot)
	})
	return nil
}

// GetActiveMissions 返回玩家进行中的任务实例快照
func (e *Engine) GetActiveMissions(playerID uint64) []*Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	out := make([]*Instance, 0, 4)
	for key, inst := range e.instances {
		if key.playerID == playerID && inst.State == StateActive {
			out = append(out, inst.clone())
		}
	}
	return out
}

// GetInstance 返回任务实例快照
func (e *Engine) GetInstance(playerID uint64, missionID uint32) *Instance {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok {
		return nil
	}
	return inst.clone()
}

// ObjectiveProgress 返回目标当前进度
func (e *Engine) ObjectiveProgress(playerID uint64, missionID uint32, objectiveID uint32) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst, ok := e.instances[instanceKey{playerID, missionID}]
	if !ok {
		return 0
	}
	return inst.ObjectiveProgress[objectiveID]
}

// HasCompletedMission 是否有任一历史完成记录
func (e *Engine) HasCompletedMission(playerID uint64, missionID uint32) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)
	return e.hasCompletedLocked(playerID, missionID)
}

func (e *Engine) hasCompletedLocked(playerID uint64, missionID uint32) bool {
	for _, rec := range e.completed[playerID] {
		if rec.MissionID == missionID {
			return true
		}
	}
	return false
}

// GetCompletedMissions 返回玩家的完成任务 ID 列表
func (e *Engine) GetCompletedMissions(playerID uint64) []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	out := make([]uint32, 0, len(e.completed[playerID]))
	seen := make(map[uint32]bool)
	for _, rec := range e.completed[playerID] {
		if !seen[rec.MissionID] {
			seen[rec.MissionID] = true
			out = append(out, rec.MissionID)
		}
	}
	return out
}

// MissionState 返回对话门控视角的任务状态
func (e *Engine) MissionState(playerID uint64, missionID uint32) State {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ensureLoaded(playerID)

	// 历史完成优先：requiredMissionState==completed 指"曾经完成过"
	if e.hasCompletedLocked(playerID, missionID) {
		return StateCompleted
	}
	if inst, ok := e.instances[instanceKey{playerID, missionID}]; ok {
		return inst.State
	}
	return StateNotStarted
}

// Evict 会话结束时释放玩家的缓存数据
func (e *Engine) Evict(playerID uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.instances {
		if key.playerID == playerID {
			delete(e.instances, key)
		}
	}
	delete(e.completed, playerID)
	delete(e.loaded, playerID)
}

// Stats 活跃实例数与完成记录总数
func (e *Engine) Stats() (active int, completed int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, inst := range e.instances {
		if inst.State == StateActive {
			active++
		}
	}
	for _, recs := range e.completed {
		completed += len(recs)
	}
	return active, completed
}

func (i *Instance) clone() *Instance {
	cp := *i
	cp.ObjectiveProgress = make(map[uint32]uint32, len(i.ObjectiveProgress))
	for k, v := range i.ObjectiveProgress {
		cp.ObjectiveProgress[k] = v
	}
	return &cp
}
