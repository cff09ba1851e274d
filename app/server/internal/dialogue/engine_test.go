package dialogue

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/pkg/logger"
)

type memStore struct {
	entries []*Entry
	history []*HistoryRecord
}

func (s *memStore) LoadEntries(context.Context) ([]*Entry, error) {
	return s.entries, nil
}

func (s *memStore) LoadHistory(_ context.Context, playerID uint64) ([]*HistoryRecord, error) {
	out := make([]*HistoryRecord, 0)
	for _, rec := range s.history {
		if rec.PlayerID == playerID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *memStore) SaveHistory(_ context.Context, rec *HistoryRecord) error {
	s.history = append(s.history, rec)
	return nil
}

// fakeView 固定的玩家视图
type fakeView struct {
	level        uint8
	faction      uint8
	skills       map[uint32]uint8
	missionState map[uint32]mission.State
}

func (v *fakeView) Level(uint64) uint8   { return v.level }
func (v *fakeView) Faction(uint64) uint8 { return v.faction }
func (v *fakeView) SkillLevel(_ uint64, skillID uint32) uint8 {
	return v.skills[skillID]
}
func (v *fakeView) MissionState(_ uint64, missionID uint32) mission.State {
	return v.missionState[missionID]
}

// recordingActor 记录执行过的动作，可注入失败
type recordingActor struct {
	executed []ActionType
	undone   []ActionType
	failOn   ActionType
}

func (a *recordingActor) Execute(_ context.Context, _ uint64, action Action) (func(), error) {
	if a.failOn != ActionNone && action.Type == a.failOn {
		return nil, errors.New("boom")
	}
	a.executed = append(a.executed, action.Type)
	t := action.Type
	return func() { a.undone = append(a.undone, t) }, nil
}

const player = uint64(42)

// npc 5000: 对话 500 的选项 3 要求任务 7001 曾经完成，
// 选中后进入对话 501（动作: StartMission + GiveItem）。
func npcEntries() []*Entry {
	return []*Entry{
		{
			ID:    500,
			NpcID: 5000,
			Text:  "You took the red pill.",
			Options: []Option{
				{ID: 1, Text: "Goodbye", EndConversation: true},
				{ID: 3, Text: "I finished the job", NextDialogueID: 501,
					RequiredMissionID: 7001, RequiredMissionState: GateMissionCompleted},
			},
		},
		{
			ID:    501,
			NpcID: 5000,
			Text:  "Good work.",
			Actions: []Action{
				{Type: ActionStartMission, Value: 7002},
				{Type: ActionGiveItem, Value: 9001},
			},
		},
	}
}

func newTestEngine(t *testing.T, view PlayerView, entries []*Entry) (*Engine, *memStore) {
	t.Helper()
	store := &memStore{entries: entries}
	e, err := NewEngine(context.Background(), store, nil, view, logger.NewNop())
	require.NoError(t, err)
	return e, store
}

func TestGetInitialDialogue(t *testing.T) {
	e, _ := newTestEngine(t, &fakeView{}, npcEntries())

	assert.Equal(t, uint32(500), e.GetInitialDialogue(5000))
	assert.Equal(t, uint32(0), e.GetInitialDialogue(9999))
}

// TestOptionGatedByMissionState 任务仅进行中时选项 3 不可见，完成后出现
func TestOptionGatedByMissionState(t *testing.T) {
	view := &fakeView{level: 10, missionState: map[uint32]mission.State{7001: mission.StateActive}}
	e, _ := newTestEngine(t, view, npcEntries())

	opts := e.GetDialogueOptions(player, 500)
	require.Len(t, opts, 1)
	assert.Equal(t, uint32(1), opts[0].ID)

	view.missionState[7001] = mission.StateCompleted
	opts = e.GetDialogueOptions(player, 500)
	require.Len(t, opts, 2)
}

// TestSelectAdvancesAndRecordsHistory 选中选项推进到下一对话并记录历史
func TestSelectAdvancesAndRecordsHistory(t *testing.T) {
	view := &fakeView{level: 10, missionState: map[uint32]mission.State{7001: mission.StateCompleted}}
	e, store := newTestEngine(t, view, npcEntries())
	actor := &recordingActor{}

	next, err := e.SelectDialogueOption(context.Background(), player, 500, 3, actor)
	require.NoError(t, err)
	assert.Equal(t, uint32(501), next)

	assert.Equal(t, []ActionType{ActionStartMission, ActionGiveItem}, actor.executed)
	assert.Equal(t, []uint32{501}, e.GetDialogueHistory(player, 5000))
	require.Len(t, store.history, 1)
}

// TestSelectGateRejected 门控不满足时拒绝选择
func TestSelectGateRejected(t *testing.T) {
	view := &fakeView{level: 10, missionState: map[uint32]mission.State{7001: mission.StateActive}}
	e, _ := newTestEngine(t, view, npcEntries())

	_, err := e.SelectDialogueOption(context.Background(), player, 500, 3, &recordingActor{})
	assert.True(t, errors.Is(err, ErrOptionGated))
}

// TestActionRollback 动作失败时撤销已执行的动作
func TestActionRollback(t *testing.T) {
	view := &fakeView{level: 10, missionState: map[uint32]mission.State{7001: mission.StateCompleted}}
	e, _ := newTestEngine(t, view, npcEntries())
	actor := &recordingActor{failOn: ActionGiveItem}

	_, err := e.SelectDialogueOption(context.Background(), player, 500, 3, actor)
	assert.True(t, errors.Is(err, ErrActionFailed))

	// StartMission 已执行后被撤销
	assert.Equal(t, []ActionType{ActionStartMission}, actor.executed)
	assert.Equal(t, []ActionType{ActionStartMission}, actor.undone)

	// 失败的选择不写历史
	assert.Empty(t, e.GetDialogueHistory(player, 5000))
}

func TestEndConversation(t *testing.T) {
	e, _ := newTestEngine(t, &fakeView{}, npcEntries())

	next, err := e.SelectDialogueOption(context.Background(), player, 500, 1, &recordingActor{})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), next)
}

func TestSkillGate(t *testing.T) {
	entries := []*Entry{
		{
			ID:    600,
			NpcID: 6000,
			Options: []Option{
				{ID: 1, Text: "Hack it", NextDialogueID: 601,
					RequiredSkillID: 33, RequiredSkillLevel: 5},
			},
		},
		{ID: 601, NpcID: 6000},
	}
	view := &fakeView{skills: map[uint32]uint8{33: 3}}
	e, _ := newTestEngine(t, view, entries)

	assert.Empty(t, e.GetDialogueOptions(player, 600))

	view.skills[33] = 5
	assert.Len(t, e.GetDialogueOptions(player, 600), 1)
}
