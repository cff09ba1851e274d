package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/hardlinedev/reality/pkg/wire"
)

// rpcHandler 消费命令载荷的剩余部分
type rpcHandler func(p *Player, b *wire.ByteBuffer) error

// 命令分发表。首字节为 0x00 时走短命令表（随后 u16 为命令号），
// 否则首字节即字节命令号。未注册的命令记日志后忽略。
var (
	byteCommands  map[uint8]rpcHandler
	shortCommands map[uint16]rpcHandler
)

func init() {
	byteCommands = map[uint8]rpcHandler{
		wire.CmdReadyForSpawn:         (*Player).rpcReadyForSpawn,
		wire.CmdChat:                  (*Player).rpcChat,
		wire.CmdWhisper:               (*Player).rpcWhisper,
		wire.CmdStopAnimation:         (*Player).rpcStopAnimation,
		wire.CmdStartAnimation:        (*Player).rpcStartAnimation,
		wire.CmdChangeMood:            (*Player).rpcChangeMood,
		wire.CmdPerformEmote:          (*Player).rpcPerformEmote,
		wire.CmdDynamicObjInteraction: (*Player).rpcObjInteraction,
		wire.CmdStaticObjInteraction:  (*Player).rpcObjInteraction,
		wire.CmdJump:                  (*Player).rpcJump,
		wire.CmdRegionLoaded:          (*Player).rpcRegionLoaded,
		wire.CmdReadyForWorldChange:   (*Player).rpcReadyForWorldChange,
		wire.CmdWho:                   (*Player).rpcWho,
		wire.CmdWhereAmI:              (*Player).rpcWhereAmI,
		wire.CmdGetPlayerDetails:      (*Player).rpcGetPlayerDetails,
		wire.CmdGetBackground:         (*Player).rpcGetBackground,
		wire.CmdSetBackground:         (*Player).rpcSetBackground,
		wire.CmdHardlineTeleport:      (*Player).rpcHardlineTeleport,
		wire.CmdObjectSelected:        (*Player).rpcObjectSelected,
		wire.CmdJackoutRequest:        (*Player).rpcJackoutRequest,
		wire.CmdJackoutFinished:       (*Player).rpcJackoutFinished,
	}

	shortCommands = map[uint16]rpcHandler{
		wire.CmdAbilityUse:   (*Player).rpcAbilityUse,
		wire.CmdTradeRequest: (*Player).rpcTradeRequest,
		wire.CmdGroupInvite:  (*Player).rpcGroupUnsupported,
		wire.CmdGroupAccept:  (*Player).rpcGroupUnsupported,
		wire.CmdGroupDecline: (*Player).rpcGroupUnsupported,
		wire.CmdGroupLeave:   (*Player).rpcGroupUnsupported,
		wire.CmdGroupKick:    (*Player).rpcGroupUnsupported,
		wire.CmdGroupPromote: (*Player).rpcGroupUnsupported,
		wire.CmdGroupDisband: (*Player).rpcGroupUnsupported,
	}
	for _, cmd := range []uint16{
		wire.CmdTradeAccept, wire.CmdTradeDecline, wire.CmdTradeCancel,
		wire.CmdTradeAddItem, wire.CmdTradeRemoveItem, wire.CmdTradeSetInfo,
		wire.CmdTradeConfirm,
	} {
		shortCommands[cmd] = (*Player).rpcTradeUnsupported
	}
}

// HandleCommand 按首字节分发一条玩家命令
func (p *Player) HandleCommand(b *wire.ByteBuffer) error {
	first, err := b.ReadUint8()
	if err != nil {
		return err
	}

	if first == wire.ShortCommandMarker {
		cmd, err := b.ReadUint16()
		if err != nil {
			return err
		}
		handler, ok := shortCommands[cmd]
		if !ok {
			p.logger.Debug("unknown short command", "cmd", fmt.Sprintf("0x%04X", cmd))
			return nil
		}
		return handler(p, b)
	}

	handler, ok := byteCommands[first]
	if !ok {
		p.logger.Debug("unknown byte command", "cmd", fmt.Sprintf("0x%02X", first))
		return nil
	}
	return handler(p, b)
}

func (p *Player) rpcReadyForSpawn(*wire.ByteBuffer) error {
	if !p.spawned {
		p.SpawnSelf()
	}
	return nil
}

func (p *Player) rpcRegionLoaded(*wire.ByteBuffer) error {
	p.session.onRegionLoaded()
	return nil
}

func (p *Player) rpcReadyForWorldChange(*wire.ByteBuffer) error {
	// 单城区切换流程：回到出生点
	pos, err := p.svc.world.GetRandomSpawnPosition(p.District())
	if err != nil {
		return err
	}
	p.HandleMovement(pos, 0)
	return nil
}

// buildChatMessage 组装聊天消息载荷
func buildChatMessage(chatType uint8, sender, message string) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint8(chatType)
	b.WriteString(sender)
	b.WriteString(message)
	return b.Bytes()
}

func (p *Player) rpcChat(b *wire.ByteBuffer) error {
	chatType, err := b.ReadUint8()
	if err != nil {
		return err
	}
	message, err := b.ReadString()
	if err != nil {
		return err
	}

	// & 前缀是管理员命令通道
	if strings.HasPrefix(message, "&") {
		if p.IsAdmin() {
			p.handleAdminCommand(strings.TrimPrefix(message, "&"))
		}
		return nil
	}

	if chatType != wire.ChatSay && chatType != wire.ChatYell && chatType != wire.ChatEmote && chatType != wire.ChatOOC {
		chatType = wire.ChatSay
	}

	p.svc.BroadcastToDistrict(p.District(), wire.MsgChatMessage,
		buildChatMessage(chatType, p.Handle(), message), 0)
	return nil
}

func (p *Player) rpcWhisper(b *wire.ByteBuffer) error {
	target, err := b.ReadString()
	if err != nil {
		return err
	}
	message, err := b.ReadString()
	if err != nil {
		return err
	}

	if !p.svc.SendToHandle(target, wire.MsgChatMessage, buildChatMessage(wire.ChatWhisper, p.Handle(), message)) {
		p.Send(wire.MsgChatMessage,
			buildChatMessage(wire.ChatSystem, "", target+" is not jacked in."),
			wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	}
	return nil
}

func (p *Player) rpcStopAnimation(*wire.ByteBuffer) error {
	p.currAnimation = wire.AnimStand
	p.broadcastAnimation()
	return nil
}

func (p *Player) rpcStartAnimation(b *wire.ByteBuffer) error {
	anim, err := b.ReadUint8()
	if err != nil {
		return err
	}
	p.currAnimation = anim
	p.broadcastAnimation()
	return nil
}

func (p *Player) broadcastAnimation() {
	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectUpdate,
		buildObjectUpdate(p.ID(), updateAnimation, func(b *wire.ByteBuffer) {
			b.WriteUint8(p.currAnimation)
		}), p.ID())
}

func (p *Player) rpcChangeMood(b *wire.ByteBuffer) error {
	mood, err := b.ReadUint8()
	if err != nil {
		return err
	}
	p.currMood = mood
	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectUpdate,
		buildObjectUpdate(p.ID(), updateMood, func(b *wire.ByteBuffer) {
			b.WriteUint8(mood)
		}), p.ID())
	return nil
}

func (p *Player) rpcPerformEmote(b *wire.ByteBuffer) error {
	emote, err := b.ReadUint8()
	if err != nil {
		return err
	}
	p.emoteCounter++
	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectUpdate,
		buildObjectUpdate(p.ID(), updateEmote, func(b *wire.ByteBuffer) {
			b.WriteUint8(emote)
			b.WriteUint8(p.emoteCounter)
		}), 0)
	return nil
}

func (p *Player) rpcObjInteraction(b *wire.ByteBuffer) error {
	objectID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	interactionID, err := b.ReadUint16()
	if err != nil {
		return err
	}

	obj, ok := p.svc.world.GetObject(objectID)
	if !ok || obj.District() != p.District() {
		return nil
	}
	if p.Position().Distance(obj.Position()) > p.svc.interactRange {
		return nil
	}

	p.logger.Debug("object interaction", "object_id", objectID, "interaction", interactionID)
	// 可交互对象以系统消息回显；任务交互经由 Margin 通道
	p.Send(wire.MsgChatMessage,
		buildChatMessage(wire.ChatSystem, "", "You interact with "+obj.Name()+"."),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcJump(b *wire.ByteBuffer) error {
	p.currAnimation = wire.AnimJump
	p.broadcastAnimation()
	return nil
}

func (p *Player) rpcWho(*wire.ByteBuffer) error {
	handles := p.svc.OnlineHandles(p.District())
	msg := fmt.Sprintf("%d jacked in: %s", len(handles), strings.Join(handles, ", "))
	p.Send(wire.MsgChatMessage, buildChatMessage(wire.ChatSystem, "", msg),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcWhereAmI(*wire.ByteBuffer) error {
	pos := p.Position()
	districtName := fmt.Sprintf("district %d", p.District())
	if d := p.svc.world.District(p.District()); d != nil {
		districtName = d.Name
	}
	msg := fmt.Sprintf("%s (%.1f, %.1f, %.1f)", districtName, pos.X, pos.Y, pos.Z)
	p.Send(wire.MsgChatMessage, buildChatMessage(wire.ChatSystem, "", msg),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcGetPlayerDetails(b *wire.ByteBuffer) error {
	objectID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	other, ok := p.svc.PlayerByObjectID(objectID)
	if !ok {
		return nil
	}
	char := other.Character()
	msg := fmt.Sprintf("%s %s (%s), level %d", char.FirstName, char.LastName, char.Handle, char.Level)
	p.Send(wire.MsgChatMessage, buildChatMessage(wire.ChatSystem, "", msg),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcGetBackground(*wire.ByteBuffer) error {
	p.Send(wire.MsgChatMessage, buildChatMessage(wire.ChatSystem, "", p.char.Background),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcSetBackground(b *wire.ByteBuffer) error {
	background, err := b.ReadString()
	if err != nil {
		return err
	}
	p.char.Background = background
	p.dirty = true
	return nil
}

func (p *Player) rpcHardlineTeleport(b *wire.ByteBuffer) error {
	hardlineID, err := b.ReadUint16()
	if err != nil {
		return err
	}

	d := p.svc.world.District(p.District())
	if d == nil {
		return nil
	}
	hl := d.Hardline(hardlineID)
	if hl == nil {
		p.Send(wire.MsgChatMessage,
			buildChatMessage(wire.ChatSystem, "", "Hardline unavailable."),
			wire.PacketFlagReliable|wire.PacketFlagEncrypted)
		return nil
	}

	p.HandleMovement(hl.Location(), 0)
	return nil
}

func (p *Player) rpcObjectSelected(b *wire.ByteBuffer) error {
	objectID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	p.logger.Debug("object selected", "object_id", objectID)
	return nil
}

func (p *Player) rpcJackoutRequest(*wire.ByteBuffer) error {
	p.requestJackout(time.Now())
	return nil
}

func (p *Player) rpcJackoutFinished(*wire.ByteBuffer) error {
	// 客户端确认下线动画完成；事件未触发时立即生效
	if p.jackingOut {
		p.cancelJackout()
		p.jackoutEvent()
	}
	return nil
}

func (p *Player) rpcAbilityUse(b *wire.ByteBuffer) error {
	abilityID, err := b.ReadUint32()
	if err != nil {
		return err
	}
	targetID, err := b.ReadUint32()
	if err != nil {
		return err
	}

	p.logger.Debug("ability used", "ability_id", abilityID, "target_id", targetID)
	p.currAnimation = wire.AnimCombatIdle
	p.broadcastAnimation()
	return nil
}

func (p *Player) rpcTradeRequest(b *wire.ByteBuffer) error {
	if _, err := b.ReadUint32(); err != nil { // 目标对象 ID
		return err
	}
	// 交易系统未开放：直接回绝
	declined := wire.NewByteBuffer()
	declined.WriteUint8(wire.ShortCommandMarker)
	declined.WriteUint16(wire.CmdTradeDecline)
	p.Send(wire.MsgPlayerCommand, declined.Bytes(), wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

func (p *Player) rpcTradeUnsupported(*wire.ByteBuffer) error {
	p.logger.Debug("trade command ignored: trading disabled on this shard")
	return nil
}

func (p *Player) rpcGroupUnsupported(*wire.ByteBuffer) error {
	p.Send(wire.MsgChatMessage,
		buildChatMessage(wire.ChatSystem, "", "Crews are not available yet."),
		wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	return nil
}

// handleAdminCommand 管理员聊天命令
func (p *Player) handleAdminCommand(cmd string) {
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "teleport":
		if len(fields) != 4 {
			return
		}
		var x, y, z float64
		if _, err := fmt.Sscanf(strings.Join(fields[1:], " "), "%f %f %f", &x, &y, &z); err != nil {
			return
		}
		pos := p.Position()
		pos.X, pos.Y, pos.Z = x, y, z
		p.HandleMovement(pos, 0)

	case "announce":
		message := strings.TrimSpace(strings.TrimPrefix(cmd, "announce"))
		p.svc.BroadcastToAll(wire.MsgChatMessage, buildChatMessage(wire.ChatBroadcast, "SYSTEM", message))

	default:
		p.logger.Debug("unknown admin command", "cmd", fields[0])
	}
}
