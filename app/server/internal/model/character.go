package model

// Character 角色模型，对应 characters 表。
// 位置字段在内存与数据库之间按自动存档窗口同步。
type Character struct {
	CharacterID uint64 `db:"character_id"`
	AccountID   uint32 `db:"account_id"`
	WorldID     uint16 `db:"world_id"`

	Handle    string `db:"character_handle"`
	FirstName string `db:"first_name"`
	LastName  string `db:"last_name"`

	Background string `db:"background"`
	RSI        []byte `db:"rsi"` // 外观数据，客户端黑盒

	Experience  uint64 `db:"experience"`
	Information uint64 `db:"information"`

	HealthCurrent   uint16 `db:"health_current"`
	HealthMax       uint16 `db:"health_max"`
	InnerStrCurrent uint16 `db:"innerstr_current"`
	InnerStrMax     uint16 `db:"innerstr_max"`

	Profession uint8 `db:"profession"`
	Level      uint8 `db:"level"`
	Alignment  uint8 `db:"alignment"`

	PosX     float64 `db:"pos_x"`
	PosY     float64 `db:"pos_y"`
	PosZ     float64 `db:"pos_z"`
	Rotation float64 `db:"rotation"`
	District uint8   `db:"district"`

	IsOnline bool `db:"is_online"`
	IsAdmin  bool `db:"is_admin"`
}

// Position 返回角色坐标
func (c *Character) Position() LocationVector {
	return LocationVector{X: c.PosX, Y: c.PosY, Z: c.PosZ, O: c.Rotation}
}

// SetPosition 更新角色坐标
func (c *Character) SetPosition(pos LocationVector) {
	c.PosX, c.PosY, c.PosZ, c.Rotation = pos.X, pos.Y, pos.Z, pos.O
}

// NewCharacter 按创建默认值初始化角色。
// 新角色出生在 Richland，等级 1，满血满内力。
func NewCharacter(accountID uint32, worldID uint16, handle, firstName, lastName string) *Character {
	return &Character{
		AccountID:       accountID,
		WorldID:         worldID,
		Handle:          handle,
		FirstName:       firstName,
		LastName:        lastName,
		HealthCurrent:   100,
		HealthMax:       100,
		InnerStrCurrent: 100,
		InnerStrMax:     100,
		Profession:      0,
		Level:           1,
		Alignment:       0,
		District:        1,
	}
}
