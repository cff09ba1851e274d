package auth

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
)

var (
	// ErrAlreadyExists 目标已存在
	ErrAlreadyExists = errors.New("auth: already exists")
	// ErrNotFound 目标不存在
	ErrNotFound = errors.New("auth: not found")
)

// Ops 账号/世界/角色的管理操作，控制台使用。
type Ops struct {
	logger     logger.Logger
	accounts   AccountStore
	worlds     WorldStore
	characters CharacterStore
}

// NewOps 创建管理操作集
func NewOps(accounts AccountStore, worlds WorldStore, characters CharacterStore, l logger.Logger) *Ops {
	return &Ops{
		logger:     l.Named("auth.ops"),
		accounts:   accounts,
		worlds:     worlds,
		characters: characters,
	}
}

// CreateAccount 创建账号：逐账号随机盐 + SHA1(salt ∥ password)
func (o *Ops) CreateAccount(ctx context.Context, username, password string) (uint32, error) {
	if _, err := o.accounts.GetByUsername(ctx, username); err == nil {
		return 0, errors.Wrapf(ErrAlreadyExists, "account %s", username)
	} else if !errors.Is(err, dao.ErrNotFound) {
		return 0, err
	}

	salt, err := crypto.GenerateSalt(32)
	if err != nil {
		return 0, err
	}
	hash := crypto.HashPassword(salt, password)

	accountID, err := o.accounts.Insert(ctx, username, hash, salt)
	if err != nil {
		return 0, err
	}

	o.logger.Info("account created", "username", username, "account_id", accountID)
	return accountID, nil
}

// ChangePassword 换口令并重新生成盐
func (o *Ops) ChangePassword(ctx context.Context, username, newPassword string) error {
	account, err := o.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return errors.Wrapf(ErrNotFound, "account %s", username)
		}
		return err
	}

	salt, err := crypto.GenerateSalt(32)
	if err != nil {
		return err
	}
	hash := crypto.HashPassword(salt, newPassword)

	if err := o.accounts.UpdatePassword(ctx, account.AccountID, hash, salt); err != nil {
		return err
	}

	o.logger.Info("password changed", "username", username)
	return nil
}

// CreateWorld 创建世界，名称唯一
func (o *Ops) CreateWorld(ctx context.Context, name string) (uint16, error) {
	if _, err := o.worlds.GetByName(ctx, name); err == nil {
		return 0, errors.Wrapf(ErrAlreadyExists, "world %s", name)
	} else if !errors.Is(err, dao.ErrNotFound) {
		return 0, err
	}

	worldID, err := o.worlds.Insert(ctx, name)
	if err != nil {
		return 0, err
	}

	o.logger.Info("world created", "name", name, "world_id", worldID)
	return worldID, nil
}

// CreateCharacter 创建角色：世界与账号必须存在，handle 唯一
func (o *Ops) CreateCharacter(ctx context.Context, worldName, username, handle, firstName, lastName string) (uint64, error) {
	world, err := o.worlds.GetByName(ctx, worldName)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return 0, errors.Wrapf(ErrNotFound, "world %s", worldName)
		}
		return 0, err
	}

	account, err := o.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return 0, errors.Wrapf(ErrNotFound, "account %s", username)
		}
		return 0, err
	}

	if _, err := o.characters.GetByHandle(ctx, handle); err == nil {
		return 0, errors.Wrapf(ErrAlreadyExists, "handle %s", handle)
	} else if !errors.Is(err, dao.ErrNotFound) {
		return 0, err
	}

	char := model.NewCharacter(account.AccountID, world.WorldID, handle, firstName, lastName)
	charID, err := o.characters.Insert(ctx, char)
	if err != nil {
		return 0, err
	}

	o.logger.Info("character created", "handle", handle, "character_id", charID)
	return charID, nil
}
