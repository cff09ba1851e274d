// Package model 定义持久化行类型与共享值类型。
package model

import (
	"database/sql"
	"time"
)

// Account 账号模型，对应 accounts 表
type Account struct {
	AccountID    uint32       `db:"account_id"`
	Username     string       `db:"username"`
	PasswordHash string       `db:"password_hash"`
	PasswordSalt string       `db:"password_salt"`
	LastLogin    sql.NullTime `db:"last_login"`
	CreatedAt    time.Time    `db:"created_at"`
}

// World 世界模型，对应 worlds 表
type World struct {
	WorldID   uint16 `db:"world_id"`
	WorldName string `db:"world_name"`
	Status    uint8  `db:"status"`
}

// 世界状态
const (
	WorldStatusOffline uint8 = 0
	WorldStatusOnline  uint8 = 1
)
