// Package world 实现世界管理器：权威对象注册表、城区分片与空间查询。
package world

import (
	"sync"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/wire"
)

// Object 世界对象能力接口。玩家、NPC、硬线等都实现它。
type Object interface {
	ID() uint32
	Type() uint16
	Name() string
	District() uint8
	Position() model.LocationVector
	SetPosition(pos model.LocationVector)
	Visible() bool
	StateFlags() uint32
	Scale() float32

	// WriteCreatePayload 序列化 ObjectCreate 的对象数据段
	WriteCreatePayload(b *wire.ByteBuffer)
}

// BaseObject 对象公共状态。并发访问由 mu 保护；
// ID 与类型一经创建不再变化，读取无需加锁。城区迁移
// 必须经由世界管理器，保证与城区分片一致。
type BaseObject struct {
	id         uint32
	objectType uint16

	mu         sync.RWMutex
	district   uint8
	name       string
	position   model.LocationVector
	visible    bool
	stateFlags uint32
	scale      float32
	properties map[string]string
}

// NewBaseObject 创建对象公共状态
func NewBaseObject(id uint32, objectType uint16, district uint8, name string, pos model.LocationVector) *BaseObject {
	return &BaseObject{
		id:         id,
		objectType: objectType,
		district:   district,
		name:       name,
		position:   pos,
		visible:    true,
		scale:      1.0,
		properties: make(map[string]string),
	}
}

// ID 对象 ID，进程生命周期内不复用
func (o *BaseObject) ID() uint32 {
	return o.id
}

// Type 对象类型
func (o *BaseObject) Type() uint16 {
	return o.objectType
}

// District 所在城区
func (o *BaseObject) District() uint8 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.district
}

// setDistrict 仅由世界管理器在分片迁移时调用
func (o *BaseObject) setDistrict(d uint8) {
	o.mu.Lock()
	o.district = d
	o.mu.Unlock()
}

// Name 对象名
func (o *BaseObject) Name() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.name
}

// Position 当前位置
func (o *BaseObject) Position() model.LocationVector {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.position
}

// SetPosition 更新位置
func (o *BaseObject) SetPosition(pos model.LocationVector) {
	o.mu.Lock()
	o.position = pos
	o.mu.Unlock()
}

// Visible 是否对观察者可见
func (o *BaseObject) Visible() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.visible
}

// SetVisible 设置可见性
func (o *BaseObject) SetVisible(v bool) {
	o.mu.Lock()
	o.visible = v
	o.mu.Unlock()
}

// StateFlags 状态标志位
func (o *BaseObject) StateFlags() uint32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stateFlags
}

// SetStateFlags 整体替换状态标志位
func (o *BaseObject) SetStateFlags(flags uint32) {
	o.mu.Lock()
	o.stateFlags = flags
	o.mu.Unlock()
}

// AddStateFlag 置位
func (o *BaseObject) AddStateFlag(flag uint32) {
	o.mu.Lock()
	o.stateFlags |= flag
	o.mu.Unlock()
}

// RemoveStateFlag 清位
func (o *BaseObject) RemoveStateFlag(flag uint32) {
	o.mu.Lock()
	o.stateFlags &^= flag
	o.mu.Unlock()
}

// Scale 缩放
func (o *BaseObject) Scale() float32 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.scale
}

// SetScale 设置缩放
func (o *BaseObject) SetScale(s float32) {
	o.mu.Lock()
	o.scale = s
	o.mu.Unlock()
}

// Property 读取扩展属性
func (o *BaseObject) Property(key, defaultValue string) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if v, ok := o.properties[key]; ok {
		return v
	}
	return defaultValue
}

// SetProperty 写入扩展属性
func (o *BaseObject) SetProperty(key, value string) {
	o.mu.Lock()
	o.properties[key] = value
	o.mu.Unlock()
}

// WriteCreatePayload 默认对象数据段: 名称、可见性、标志、缩放
func (o *BaseObject) WriteCreatePayload(b *wire.ByteBuffer) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	b.WriteString(o.name)
	b.WriteBool(o.visible)
	b.WriteUint32(o.stateFlags)
	b.WriteFloat32(o.scale)
}

// NPC 非玩家角色
type NPC struct {
	*BaseObject
	NpcID uint32 // 对话/任务系统的 NPC 模板 ID
	Level uint8
}

// NewNPC 创建 NPC 对象
func NewNPC(id uint32, district uint8, npcID uint32, name string, level uint8, pos model.LocationVector) *NPC {
	return &NPC{
		BaseObject: NewBaseObject(id, wire.ObjectTypeNPC, district, name, pos),
		NpcID:      npcID,
		Level:      level,
	}
}

// WriteCreatePayload NPC 数据段追加模板 ID 与等级
func (n *NPC) WriteCreatePayload(b *wire.ByteBuffer) {
	n.BaseObject.WriteCreatePayload(b)
	b.WriteUint32(n.NpcID)
	b.WriteUint8(n.Level)
}

// Hardline 城区内的固定传送锚点
type Hardline struct {
	*BaseObject
	HardlineID uint16
}

// NewHardline 创建硬线对象
func NewHardline(id uint32, district uint8, hardlineID uint16, name string, pos model.LocationVector) *Hardline {
	return &Hardline{
		BaseObject: NewBaseObject(id, wire.ObjectTypeHardline, district, name, pos),
		HardlineID: hardlineID,
	}
}

// WriteCreatePayload 硬线数据段追加硬线编号
func (h *Hardline) WriteCreatePayload(b *wire.ByteBuffer) {
	h.BaseObject.WriteCreatePayload(b)
	b.WriteUint16(h.HardlineID)
}

// Interactive 门、电梯、终端等可交互对象
type Interactive struct {
	*BaseObject
	InteractionID uint16
}

// NewInteractive 创建可交互对象，objectType 取 wire.ObjectType* 之一
func NewInteractive(id uint32, objectType uint16, district uint8, interactionID uint16, name string, pos model.LocationVector) *Interactive {
	return &Interactive{
		BaseObject:    NewBaseObject(id, objectType, district, name, pos),
		InteractionID: interactionID,
	}
}

// WriteCreatePayload 交互对象数据段追加交互编号
func (i *Interactive) WriteCreatePayload(b *wire.ByteBuffer) {
	i.BaseObject.WriteCreatePayload(b)
	b.WriteUint16(i.InteractionID)
}
