// Package dialogue 实现对话引擎：对话图、选项门控、动作副作用与历史。
package dialogue

// ActionType 对话动作类型
type ActionType uint8

const (
	ActionNone            ActionType = 0
	ActionStartMission    ActionType = 1
	ActionCompleteMission ActionType = 2
	ActionGiveItem        ActionType = 3
	ActionTakeItem        ActionType = 4
	ActionTeleport        ActionType = 5
	ActionOpenShop        ActionType = 6
	ActionTrainSkill      ActionType = 7
	ActionSetFaction      ActionType = 8
)

// Action 对话动作
type Action struct {
	Type           ActionType `json:"type"`
	Value          uint32     `json:"value,omitempty"`
	SecondaryValue uint32     `json:"secondary_value,omitempty"`
	ActionText     string     `json:"action_text,omitempty"`
}

// MissionStateGate 选项要求的任务状态
type MissionStateGate uint8

const (
	GateMissionNotStarted MissionStateGate = 0
	GateMissionInProgress MissionStateGate = 1
	// GateMissionCompleted 指曾经完成过（任一历史完成记录即满足）
	GateMissionCompleted MissionStateGate = 2
)

// Option 对话选项及其门控条件
type Option struct {
	ID              uint32 `json:"id"`
	Text            string `json:"text"`
	NextDialogueID  uint32 `json:"next_dialogue_id,omitempty"`
	EndConversation bool   `json:"end_conversation,omitempty"`

	RequiredMissionID    uint32           `json:"required_mission_id,omitempty"` // 0 = 不限
	RequiredMissionState MissionStateGate `json:"required_mission_state,omitempty"`
	RequiredLevel        uint8            `json:"required_level,omitempty"` // 0 = 不限
	RequiredFaction      uint8            `json:"required_faction,omitempty"` // 0 = 不限
	RequiredSkillID      uint32           `json:"required_skill_id,omitempty"` // 0 = 不限
	RequiredSkillLevel   uint8            `json:"required_skill_level,omitempty"`
}

// Entry 对话条目
type Entry struct {
	ID          uint32
	NpcID       uint32
	Text        string
	NpcEmotion  uint8
	NpcAnimation uint8
	Options     []Option
	Actions     []Action
}

// Option 按 ID 查选项
func (e *Entry) Option(optionID uint32) *Option {
	for i := range e.Options {
		if e.Options[i].ID == optionID {
			return &e.Options[i]
		}
	}
	return nil
}

// HistoryRecord 对话历史行，键 (PlayerID, NpcID)，按访问顺序排列
type HistoryRecord struct {
	PlayerID    uint64
	NpcID       uint32
	DialogueIDs []uint32
}
