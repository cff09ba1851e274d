package mission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/pkg/logger"
)

// memStore 内存版任务存储
type memStore struct {
	mu        sync.Mutex
	defs      []*Definition
	instances map[string]*Instance
	completed []*CompletedRecord
}

func newMemStore(defs ...*Definition) *memStore {
	return &memStore{defs: defs, instances: make(map[string]*Instance)}
}

func instKey(playerID uint64, missionID uint32) string {
	return fmt.Sprintf("%d:%d", playerID, missionID)
}

func (s *memStore) LoadDefinitions(context.Context) ([]*Definition, error) {
	return s.defs, nil
}

func (s *memStore) LoadInstances(_ context.Context, playerID uint64) ([]*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Instance, 0)
	for _, inst := range s.instances {
		if inst.PlayerID == playerID {
			out = append(out, inst)
		}
	}
	return out, nil
}

func (s *memStore) SaveInstance(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[instKey(inst.PlayerID, inst.MissionID)] = inst
	return nil
}

func (s *memStore) DeleteInstance(_ context.Context, playerID uint64, missionID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, instKey(playerID, missionID))
	return nil
}

func (s *memStore) AppendCompleted(_ context.Context, rec *CompletedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, rec)
	return nil
}

func (s *memStore) LoadCompleted(_ context.Context, playerID uint64) ([]*CompletedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*CompletedRecord, 0)
	for _, rec := range s.completed {
		if rec.PlayerID == playerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func hackerMission() *Definition {
	return &Definition{
		ID:       7001,
		Name:     "Data Heist",
		MinLevel: 5,
		Prerequisites: []Prerequisite{
			{Type: PrereqProfession, Value: 2}, // hacker
		},
		Objectives: []Objective{
			{ID: 1, TargetValue: 3, RewardExperience: 500, RewardInformation: 100},
			{ID: 2, TargetValue: 1, Optional: true, RewardExperience: 200},
		},
	}
}

func newTestEngine(t *testing.T, defs ...*Definition) (*Engine, *memStore) {
	t.Helper()
	store := newMemStore(defs...)
	e, err := NewEngine(context.Background(), store, nil, logger.NewNop())
	require.NoError(t, err)
	return e, store
}

const player = uint64(42)

func TestGetAvailableMissions(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	// 等级 10 的黑客可接
	assert.Contains(t, e.GetAvailableMissions(player, 2, 10, 0), uint32(7001))

	// 等级不足
	assert.Empty(t, e.GetAvailableMissions(player, 2, 4, 0))

	// 职业不符
	assert.Empty(t, e.GetAvailableMissions(player, 1, 10, 0))
}

// TestMissionStartToComplete 覆盖 start → progress → complete 全流程
func TestMissionStartToComplete(t *testing.T) {
	e, store := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	assert.Equal(t, StateActive, e.MissionState(player, 7001))

	// 进行中的任务不再出现在可接列表
	assert.Empty(t, e.GetAvailableMissions(player, 2, 10, 0))

	for i := 0; i < 3; i++ {
		done, err := e.UpdateObjectiveProgress(player, 7001, 1, 1)
		require.NoError(t, err)
		assert.Equal(t, i == 2, done)
	}
	assert.True(t, e.AreAllObjectivesComplete(player, 7001))

	reward, err := e.CompleteMission(player, 7001)
	require.NoError(t, err)
	// 可选目标未达成，不计奖励
	assert.Equal(t, uint64(500), reward.Experience)
	assert.Equal(t, uint64(100), reward.Information)

	assert.True(t, e.HasCompletedMission(player, 7001))
	assert.Equal(t, StateCompleted, e.MissionState(player, 7001))
	assert.Empty(t, e.GetActiveMissions(player))
	assert.Len(t, store.completed, 1)
}

// TestOptionalObjective 可选目标不阻塞完成，达成时计奖
func TestOptionalObjective(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	_, err := e.UpdateObjectiveProgress(player, 7001, 1, 3)
	require.NoError(t, err)
	_, err = e.UpdateObjectiveProgress(player, 7001, 2, 1)
	require.NoError(t, err)

	reward, err := e.CompleteMission(player, 7001)
	require.NoError(t, err)
	assert.Equal(t, uint64(700), reward.Experience)
}

// TestProgressClamped 进度不超过目标值
func TestProgressClamped(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	done, err := e.UpdateObjectiveProgress(player, 7001, 1, 99)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, uint32(3), e.ObjectiveProgress(player, 7001, 1))
}

func TestCompleteRequiresObjectives(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	_, err := e.CompleteMission(player, 7001)
	assert.True(t, errors.Is(err, ErrBadTransition))
}

// TestAbandon 放弃回到 NotStarted，任务重新可接
func TestAbandon(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	require.NoError(t, e.AbandonMission(player, 7001))

	assert.Equal(t, StateNotStarted, e.MissionState(player, 7001))
	assert.Contains(t, e.GetAvailableMissions(player, 2, 10, 0), uint32(7001))
	assert.False(t, e.HasCompletedMission(player, 7001))
}

func TestFail(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	require.NoError(t, e.FailMission(player, 7001))

	assert.Equal(t, StateFailed, e.MissionState(player, 7001))
	// Failed 状态下不能推进目标
	_, err := e.UpdateObjectiveProgress(player, 7001, 1, 1)
	assert.True(t, errors.Is(err, ErrBadTransition))
}

func TestDoubleStartRejected(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	err := e.StartMission(player, 7001, 2, 10, 0)
	assert.True(t, errors.Is(err, ErrBadTransition))
}

// TestNonRepeatable 完成后不可重复的任务不再可接
func TestNonRepeatable(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	_, err := e.UpdateObjectiveProgress(player, 7001, 1, 3)
	require.NoError(t, err)
	_, err = e.CompleteMission(player, 7001)
	require.NoError(t, err)

	assert.Empty(t, e.GetAvailableMissions(player, 2, 10, 0))
	err = e.StartMission(player, 7001, 2, 10, 0)
	assert.True(t, errors.Is(err, ErrBadTransition))
}

// TestRepeatableCooldown 可重复任务受冷却约束
func TestRepeatableCooldown(t *testing.T) {
	def := hackerMission()
	def.Repeatable = true
	def.CooldownTime = time.Hour
	e, _ := newTestEngine(t, def)

	base := time.Now()
	e.now = func() time.Time { return base }

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	_, err := e.UpdateObjectiveProgress(player, 7001, 1, 3)
	require.NoError(t, err)
	_, err = e.CompleteMission(player, 7001)
	require.NoError(t, err)

	// 冷却中
	assert.Empty(t, e.GetAvailableMissions(player, 2, 10, 0))

	// 冷却结束
	e.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.Contains(t, e.GetAvailableMissions(player, 2, 10, 0), uint32(7001))
	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
}

// TestInstancesSurviveEvict 驱逐后从存储重新加载
func TestInstancesSurviveEvict(t *testing.T) {
	e, _ := newTestEngine(t, hackerMission())

	require.NoError(t, e.StartMission(player, 7001, 2, 10, 0))
	_, err := e.UpdateObjectiveProgress(player, 7001, 1, 2)
	require.NoError(t, err)

	e.Evict(player)

	assert.Equal(t, StateActive, e.MissionState(player, 7001))
	assert.Equal(t, uint32(2), e.ObjectiveProgress(player, 7001, 1))
}
