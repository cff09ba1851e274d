package game

import (
	"time"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/world"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// storeInterval 自动存档窗口
const storeInterval = 30 * time.Second

// jackoutDelay 下线生效延迟
const jackoutDelay = 5 * time.Second

type queuedMessage struct {
	msgType uint16
	payload []byte
}

// Player 与一个在线游戏会话绑定的玩家对象。
// 实现 world.Object；除世界注册表的并发读取外，
// 全部状态只在游戏服务线程上变更。
type Player struct {
	*world.BaseObject
	logger logger.Logger

	char    *model.Character
	session *Session
	svc     *Service

	events *eventQueue

	spawned        bool
	worldPopulated bool
	sendAfterSpawn []queuedMessage

	dirty     bool
	lastStore time.Time

	currAnimation uint8
	currMood      uint8
	emoteCounter  uint8

	jackingOut bool
}

// NewPlayer 由角色行构建玩家对象
func NewPlayer(objectID uint32, char *model.Character, session *Session, svc *Service, l logger.Logger) *Player {
	base := world.NewBaseObject(objectID, wire.ObjectTypePlayer, char.District, char.Handle, char.Position())
	return &Player{
		BaseObject: base,
		logger:     l.Named("game.player").WithFields("handle", char.Handle),
		char:       char,
		session:    session,
		svc:        svc,
		events:     newEventQueue(),
		lastStore:  time.Now(),
	}
}

// Character 角色行（游戏服务线程内可变）
func (p *Player) Character() *model.Character {
	return p.char
}

// Handle 角色唯一名
func (p *Player) Handle() string {
	return p.char.Handle
}

// IsAdmin 管理员标志
func (p *Player) IsAdmin() bool {
	return p.char.IsAdmin
}

// WriteCreatePayload 玩家对象数据段: 基础段 + 身份与外观
func (p *Player) WriteCreatePayload(b *wire.ByteBuffer) {
	p.BaseObject.WriteCreatePayload(b)
	b.WriteString(p.char.FirstName)
	b.WriteString(p.char.LastName)
	b.WriteUint8(p.char.Level)
	b.WriteUint8(p.char.Profession)
	b.WriteUint8(p.char.Alignment)
	b.WriteUint16(p.char.HealthCurrent)
	b.WriteUint16(p.char.HealthMax)
	b.WriteUint8(p.currAnimation)
	b.WriteUint8(p.currMood)
	// RSI 外观数据段: 长度 + 原始字节
	b.WriteUint16(uint16(len(p.char.RSI)))
	b.WriteBytes(p.char.RSI)
}

// Send 给自己的客户端发消息；尚未出生时入队延后发送
func (p *Player) Send(msgType uint16, payload []byte, flags uint8) {
	if !p.spawned && msgType != wire.MsgGameSession && msgType != wire.MsgObjectCreate {
		p.sendAfterSpawn = append(p.sendAfterSpawn, queuedMessage{msgType, payload})
		return
	}
	p.session.Send(msgType, payload, flags)
}

// InitializeWorld 进入世界前的初始化：位置吸附到导航网格
func (p *Player) InitializeWorld() {
	pos := p.Position()
	valid := p.svc.world.ClosestValidPosition(pos, p.District(), 16)
	if valid != pos {
		p.SetPosition(valid)
		p.char.SetPosition(valid)
		p.dirty = true
	}
}

// SpawnSelf 向客户端发送自己的 ObjectCreate 并标记已出生
func (p *Player) SpawnSelf() {
	payload := buildObjectCreate(p)
	p.session.Send(wire.MsgObjectCreate, payload, wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	p.spawned = true

	// 出生前积压的消息按序补发
	for _, q := range p.sendAfterSpawn {
		p.session.Send(q.msgType, q.payload, wire.PacketFlagReliable|wire.PacketFlagEncrypted)
	}
	p.sendAfterSpawn = nil
}

// PopulateWorld 把城区内兴趣范围内的可见对象逐个发给客户端，
// 并向周围玩家广播自己的出现。
func (p *Player) PopulateWorld() {
	if p.worldPopulated {
		return
	}

	objs := p.svc.world.GetObjectsInRange(p.Position(), p.svc.interestRange, p.District())
	sent := 0
	for _, obj := range objs {
		if obj.ID() == p.ID() || !obj.Visible() {
			continue
		}
		p.session.Send(wire.MsgObjectCreate, buildObjectCreate(obj), wire.PacketFlagReliable|wire.PacketFlagEncrypted)
		sent++
	}
	p.worldPopulated = true

	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectCreate, buildObjectCreate(p), p.ID())

	p.logger.Debug("world populated", "district", p.District(), "objects", sent)
}

// buildObjectCreate 组装 ObjectCreate 载荷
func buildObjectCreate(obj world.Object) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint32(obj.ID())
	b.WriteUint16(obj.Type())
	obj.Position().WriteTo(b)
	obj.WriteCreatePayload(b)
	return b.Bytes()
}

// buildObjectDestroy 组装 ObjectDestroy 载荷
func buildObjectDestroy(objectID uint32) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint32(objectID)
	return b.Bytes()
}

// 对象更新子类型
const (
	updatePosition   uint8 = 0x01
	updateAnimation  uint8 = 0x02
	updateMood       uint8 = 0x03
	updateStateFlags uint8 = 0x04
	updateEmote      uint8 = 0x05
)

func buildObjectUpdate(objectID uint32, kind uint8, write func(*wire.ByteBuffer)) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint32(objectID)
	b.WriteUint8(kind)
	if write != nil {
		write(b)
	}
	return b.Bytes()
}

// HandleMovement 处理移动上报：位置校验、吸附、入库标脏、广播。
// 移动会取消进行中的下线流程。
func (p *Player) HandleMovement(pos model.LocationVector, moveType uint8) {
	if p.jackingOut {
		p.cancelJackout()
	}

	if !p.svc.world.IsPositionValid(pos, p.District()) {
		pos = p.svc.world.ClosestValidPosition(pos, p.District(), 4)
	}

	p.SetPosition(pos)
	p.char.SetPosition(pos)
	p.dirty = true

	switch moveType {
	case 1:
		p.currAnimation = wire.AnimWalk
	case 2:
		p.currAnimation = wire.AnimRun
	default:
		p.currAnimation = wire.AnimStand
	}

	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectUpdate,
		buildObjectUpdate(p.ID(), updatePosition, func(b *wire.ByteBuffer) {
			pos.WriteTo(b)
			b.WriteUint8(p.currAnimation)
		}), p.ID())
}

// HandleStateFlags 客户端状态标志上报
func (p *Player) HandleStateFlags(flags uint32) {
	p.SetStateFlags(flags)
	p.svc.BroadcastToDistrict(p.District(), wire.MsgObjectUpdate,
		buildObjectUpdate(p.ID(), updateStateFlags, func(b *wire.ByteBuffer) {
			b.WriteUint32(flags)
		}), p.ID())
}

// requestJackout 调度下线事件
func (p *Player) requestJackout(now time.Time) {
	if p.jackingOut {
		return
	}
	p.jackingOut = true
	p.events.Add(eventJackout, p.jackoutEvent, now.Add(jackoutDelay))
	p.logger.Debug("jackout scheduled")
}

// cancelJackout 取消进行中的下线
func (p *Player) cancelJackout() {
	if p.events.Cancel(eventJackout) > 0 {
		p.logger.Debug("jackout cancelled")
	}
	p.jackingOut = false
}

// jackoutEvent 下线事件：通知客户端、落盘下线、关闭会话
func (p *Player) jackoutEvent() {
	b := wire.NewByteBuffer()
	b.WriteUint16(0) // 成功
	p.session.Send(wire.MsgJackoutResponse, b.Bytes(), wire.PacketFlagReliable|wire.PacketFlagEncrypted)

	p.char.IsOnline = false
	p.svc.persistPlayer(p, true)
	p.session.BeginClose("jackout")
}

// Update 玩家 tick：触发到期事件、按窗口自动存档
func (p *Player) Update(now time.Time) {
	p.events.Fire(now)

	if p.dirty && now.Sub(p.lastStore) >= storeInterval {
		p.dirty = false
		p.lastStore = now
		p.svc.persistPlayer(p, false)
	}
}

// persistSnapshot 产出用于落盘的角色快照（在服务线程上拷贝）
func (p *Player) persistSnapshot() *model.Character {
	snapshot := *p.char
	return &snapshot
}

// 确保 Player 实现了 world.Object
var _ world.Object = (*Player)(nil)

// grantReward 应用任务奖励（Margin 完成任务时经由服务投递）
func (p *Player) grantReward(exp, info uint64) {
	p.char.Experience += exp
	p.char.Information += info
	p.dirty = true
}
