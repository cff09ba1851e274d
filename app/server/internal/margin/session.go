package margin

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"

	"github.com/hardlinedev/reality/app/server/internal/dialogue"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// 会话状态
type sessionState uint8

const (
	stateAwaitingHandshake sessionState = iota
	stateAuthenticated
	stateClosed
)

// netConn 会话需要的连接能力，gnet.Conn 天然满足；
// 测试注入假实现。
type netConn interface {
	AsyncWrite(buf []byte, callback gnet.AsyncCallback) error
	Close() error
	RemoteAddr() net.Addr
}

// Session Margin 会话。第一帧必须是携带会话键的握手，
// 之后才能访问任务与对话 RPC。
type Session struct {
	logger logger.Logger
	svc    *Service
	conn   netConn

	mu       sync.Mutex
	state    sessionState
	buffer   []byte
	lastSeen time.Time

	accountID   uint32
	characterID uint64
	char        *model.Character

	// currentDialogue 进行中的对话 ID，0 表示无
	currentDialogue uint32
}

func newSession(svc *Service, c netConn) *Session {
	return &Session{
		logger:   svc.logger.Named("session").WithFields("sid", uuid.New().String(), "addr", c.RemoteAddr().String()),
		svc:      svc,
		conn:     c,
		state:    stateAwaitingHandshake,
		lastSeen: time.Now(),
	}
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// feed 吞入 TCP 字节流，解出完整帧逐个处理
func (s *Session) feed(data []byte) error {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.buffer = append(s.buffer, data...)
	s.mu.Unlock()

	for {
		s.mu.Lock()
		frame, consumed, err := wire.DecodeFrame(s.buffer)
		if err != nil {
			s.mu.Unlock()
			return err
		}
		if frame == nil {
			s.mu.Unlock()
			return nil
		}
		s.buffer = s.buffer[consumed:]
		s.mu.Unlock()

		if err := s.handleFrame(frame); err != nil {
			return err
		}
	}
}

// send 编码并异步发送一帧
func (s *Session) send(msgType uint16, payload []byte) {
	if err := s.conn.AsyncWrite(wire.EncodeFrame(msgType, payload), nil); err != nil {
		s.logger.Warn("margin send failed", "type", msgType, "error", err)
	}
}

func (s *Session) onClosed() {
	s.mu.Lock()
	s.state = stateClosed
	s.mu.Unlock()
}

func (s *Session) handleFrame(frame *wire.Frame) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == stateClosed {
		return nil
	}

	// 握手前只接受握手帧
	if state == stateAwaitingHandshake {
		if frame.Type != wire.MsgGameHandshake {
			return errors.Wrapf(wire.ErrWireFormat, "frame 0x%04X before margin handshake", frame.Type)
		}
		return s.handleHandshake(frame)
	}

	switch frame.Type {
	case wire.MsgMissionListRequest:
		return s.handleMissionList()
	case wire.MsgMissionAccept:
		return s.handleMissionAccept(frame)
	case wire.MsgMissionUpdate:
		return s.handleMissionUpdate(frame)
	case wire.MsgMissionComplete:
		return s.handleMissionComplete(frame)
	case wire.MsgDialogueRequest:
		return s.handleDialogueRequest(frame)
	case wire.MsgDialogueChoice:
		return s.handleDialogueChoice(frame)
	default:
		s.logger.Debug("unhandled margin frame", "type", frame.Type)
		return nil
	}
}

// handleHandshake 校验会话键并加载角色视图
func (s *Session) handleHandshake(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	key, err := b.ReadString()
	if err != nil {
		return err
	}
	characterID, err := b.ReadUint64()
	if err != nil {
		return err
	}

	entry, err := s.svc.keys.Validate(key, characterID)
	if err != nil {
		s.logger.Warn("margin handshake rejected", "error", err)
		resp := wire.NewByteBuffer()
		resp.WriteUint16(1)
		s.send(wire.MsgGameSession, resp.Bytes())
		_ = s.conn.Close()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	char, err := s.svc.characters.GetByID(ctx, characterID)
	if err != nil {
		s.logger.Error("failed to load character for margin", "character_id", characterID, "error", err)
		resp := wire.NewByteBuffer()
		resp.WriteUint16(uint16(wire.AuthInternalError))
		s.send(wire.MsgGameSession, resp.Bytes())
		_ = s.conn.Close()
		return nil
	}

	s.mu.Lock()
	s.state = stateAuthenticated
	s.accountID = entry.AccountID
	s.characterID = characterID
	s.char = char
	s.mu.Unlock()
	s.svc.bindCharacter(s)

	resp := wire.NewByteBuffer()
	resp.WriteUint16(0)
	s.send(wire.MsgGameSession, resp.Bytes())

	s.logger.Info("margin session established",
		"account_id", entry.AccountID,
		"character_id", characterID,
	)
	return nil
}

// handleMissionList 可接/进行中/已完成任务清单
func (s *Session) handleMissionList() error {
	available := s.svc.missions.GetAvailableMissions(
		s.characterID, s.char.Profession, s.char.Level, s.char.Alignment)
	active := s.svc.missions.GetActiveMissions(s.characterID)
	completed := s.svc.missions.GetCompletedMissions(s.characterID)

	resp := wire.NewByteBuffer()

	resp.WriteUint16(uint16(len(available)))
	for _, id := range available {
		resp.WriteUint32(id)
	}

	resp.WriteUint16(uint16(len(active)))
	for _, inst := range active {
		resp.WriteUint32(inst.MissionID)
		def := s.svc.missions.Definition(inst.MissionID)
		if def == nil {
			resp.WriteUint8(0)
			continue
		}
		resp.WriteUint8(uint8(len(def.Objectives)))
		for _, obj := range def.Objectives {
			resp.WriteUint32(obj.ID)
			resp.WriteUint32(inst.ObjectiveProgress[obj.ID])
			resp.WriteUint32(obj.TargetValue)
		}
	}

	resp.WriteUint16(uint16(len(completed)))
	for _, id := range completed {
		resp.WriteUint32(id)
	}

	s.send(wire.MsgMissionListResponse, resp.Bytes())
	return nil
}

// missionResult 组装 [missionId][result] 回执
func missionResult(missionID uint32, result uint16) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint32(missionID)
	b.WriteUint16(result)
	return b.Bytes()
}

func (s *Session) handleMissionAccept(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	missionID, err := b.ReadUint32()
	if err != nil {
		return err
	}

	err = s.svc.missions.StartMission(s.characterID, missionID,
		s.char.Profession, s.char.Level, s.char.Alignment)
	if err != nil {
		s.logger.Debug("mission accept rejected", "mission_id", missionID, "error", err)
		s.send(wire.MsgMissionUpdate, missionResult(missionID, 1))
		return nil
	}

	if s.svc.metrics != nil {
		s.svc.metrics.MissionsStarted.Inc()
	}
	s.send(wire.MsgMissionUpdate, missionResult(missionID, 0))
	return nil
}

// handleMissionUpdate 目标进度推进: [missionId][objectiveId][delta]
func (s *Session) handleMissionUpdate(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	missionID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	objectiveID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	delta, err := b.ReadUint32()
	if err != nil {
		return err
	}

	_, err = s.svc.missions.UpdateObjectiveProgress(s.characterID, missionID, objectiveID, delta)
	if err != nil {
		s.send(wire.MsgMissionUpdate, missionResult(missionID, 1))
		return nil
	}

	resp := wire.NewByteBuffer()
	resp.WriteUint32(missionID)
	resp.WriteUint16(0)
	resp.WriteUint32(objectiveID)
	resp.WriteUint32(s.svc.missions.ObjectiveProgress(s.characterID, missionID, objectiveID))
	s.send(wire.MsgMissionUpdate, resp.Bytes())
	return nil
}

func (s *Session) handleMissionComplete(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	missionID, err := b.ReadUint32()
	if err != nil {
		return err
	}

	reward, err := s.svc.missions.CompleteMission(s.characterID, missionID)
	if err != nil {
		s.logger.Debug("mission complete rejected", "mission_id", missionID, "error", err)
		s.send(wire.MsgMissionComplete, missionResult(missionID, 1))
		return nil
	}

	if s.svc.gameSvc != nil {
		s.svc.gameSvc.GrantReward(s.characterID, reward.Experience, reward.Information)
	}
	if s.svc.metrics != nil {
		s.svc.metrics.MissionsCompleted.Inc()
	}

	resp := wire.NewByteBuffer()
	resp.WriteUint32(missionID)
	resp.WriteUint16(0)
	resp.WriteUint64(reward.Experience)
	resp.WriteUint64(reward.Information)
	resp.WriteUint8(uint8(len(reward.Items)))
	for _, item := range reward.Items {
		resp.WriteUint32(item)
	}
	s.send(wire.MsgMissionComplete, resp.Bytes())
	return nil
}

// sendDialogue 下发一条对话与当前可选项
func (s *Session) sendDialogue(dialogueID uint32) {
	entry := s.svc.dialogues.Entry(dialogueID)
	if entry == nil {
		resp := wire.NewByteBuffer()
		resp.WriteUint32(0)
		s.send(wire.MsgDialogueResponse, resp.Bytes())
		return
	}

	options := s.svc.dialogues.GetDialogueOptions(s.characterID, dialogueID)

	resp := wire.NewByteBuffer()
	resp.WriteUint32(entry.ID)
	resp.WriteUint32(entry.NpcID)
	resp.WriteString(entry.Text)
	resp.WriteUint8(entry.NpcEmotion)
	resp.WriteUint8(entry.NpcAnimation)
	resp.WriteUint8(uint8(len(options)))
	for _, opt := range options {
		resp.WriteUint32(opt.ID)
		resp.WriteString(opt.Text)
	}
	s.send(wire.MsgDialogueResponse, resp.Bytes())
}

// handleDialogueRequest 开始与 NPC 的对话: [npcId]
func (s *Session) handleDialogueRequest(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	npcID, err := b.ReadUint32()
	if err != nil {
		return err
	}

	dialogueID := s.svc.dialogues.GetInitialDialogue(npcID)
	s.mu.Lock()
	s.currentDialogue = dialogueID
	s.mu.Unlock()

	s.sendDialogue(dialogueID)
	return nil
}

// handleDialogueChoice 选择对话选项: [dialogueId][optionId]
func (s *Session) handleDialogueChoice(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	dialogueID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	optionID, err := b.ReadUint32()
	if err != nil {
		return err
	}

	s.mu.Lock()
	current := s.currentDialogue
	s.mu.Unlock()
	if dialogueID != current {
		s.logger.Debug("dialogue choice for stale dialogue", "dialogue_id", dialogueID)
		resp := wire.NewByteBuffer()
		resp.WriteUint32(0)
		s.send(wire.MsgDialogueResponse, resp.Bytes())
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	next, err := s.svc.dialogues.SelectDialogueOption(ctx, s.characterID, dialogueID, optionID, s)
	if err != nil {
		s.logger.Debug("dialogue choice rejected", "dialogue_id", dialogueID, "option_id", optionID, "error", err)
		resp := wire.NewByteBuffer()
		resp.WriteUint32(0)
		s.send(wire.MsgDialogueResponse, resp.Bytes())
		return nil
	}

	if s.svc.metrics != nil {
		s.svc.metrics.DialogueChoices.Inc()
	}

	s.mu.Lock()
	s.currentDialogue = next
	s.mu.Unlock()

	s.sendDialogue(next)
	return nil
}

// --- dialogue.Actor 实现（对话动作副作用） ---

var _ dialogue.Actor = (*Session)(nil)

// Execute 执行一个对话动作，返回撤销函数
func (s *Session) Execute(ctx context.Context, playerID uint64, action dialogue.Action) (func(), error) {
	switch action.Type {
	case dialogue.ActionStartMission:
		if err := s.svc.missions.StartMission(playerID, action.Value,
			s.char.Profession, s.char.Level, s.char.Alignment); err != nil {
			return nil, err
		}
		missionID := action.Value
		return func() {
			if err := s.svc.missions.AbandonMission(playerID, missionID); err != nil {
				s.logger.Warn("failed to undo mission start", "mission_id", missionID, "error", err)
			}
		}, nil

	case dialogue.ActionCompleteMission:
		reward, err := s.svc.missions.CompleteMission(playerID, action.Value)
		if err != nil {
			return nil, err
		}
		if s.svc.gameSvc != nil {
			s.svc.gameSvc.GrantReward(playerID, reward.Experience, reward.Information)
		}
		// 完成不可撤销：完成履历只追加
		return nil, nil

	case dialogue.ActionGiveItem, dialogue.ActionTakeItem:
		// 物品系统未接入存储，动作以系统消息体现
		s.logger.Debug("item action", "type", action.Type, "item_id", action.Value)
		return nil, nil

	case dialogue.ActionTeleport:
		if s.svc.gameSvc == nil {
			return nil, nil
		}
		// 传送投递给游戏线程；玩家不在线时忽略
		district := uint8(action.Value)
		s.teleportOnline(playerID, district)
		return nil, nil

	case dialogue.ActionOpenShop, dialogue.ActionTrainSkill:
		s.logger.Debug("dialogue action acknowledged", "type", action.Type, "value", action.Value)
		return nil, nil

	case dialogue.ActionSetFaction:
		prev := s.char.Alignment
		s.char.Alignment = uint8(action.Value)
		if err := s.persistCharacter(ctx); err != nil {
			s.char.Alignment = prev
			return nil, err
		}
		return func() {
			s.char.Alignment = prev
			if err := s.persistCharacter(context.Background()); err != nil {
				s.logger.Warn("failed to undo faction change", "error", err)
			}
		}, nil

	default:
		return nil, nil
	}
}

// teleportOnline 在线玩家传送到目标城区出生点
func (s *Session) teleportOnline(playerID uint64, district uint8) {
	s.svc.gameSvc.TeleportToDistrictSpawn(playerID, district)
}

func (s *Session) persistCharacter(ctx context.Context) error {
	snapshot := *s.char
	return s.svc.characters.SaveState(ctx, &snapshot)
}
