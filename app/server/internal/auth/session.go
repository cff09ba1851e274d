package auth

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/panjf2000/gnet/v2"

	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// 会话状态机:
// INITIAL → CHALLENGE_SENT → AUTHENTICATED → CHARACTER_LIST → CHARACTER_SELECTED → CLOSED
type sessionState uint8

const (
	stateInitial sessionState = iota
	stateChallengeSent
	stateAuthenticated
	stateCharacterList
	stateCharacterSelected
	stateClosed
)

// challengeProtocolVersion 挑战帧协议版本
const challengeProtocolVersion uint8 = 1

// netConn 会话需要的连接能力，gnet.Conn 天然满足；
// 测试注入假实现。
type netConn interface {
	AsyncWrite(buf []byte, callback gnet.AsyncCallback) error
	Close() error
	RemoteAddr() net.Addr
}

// Session 认证会话
type Session struct {
	logger logger.Logger
	svc    *Service
	conn   netConn

	mu       sync.Mutex
	state    sessionState
	buffer   []byte
	lastSeen time.Time

	accountID       uint32
	accountName     string
	sessionKey      string
	selectedWorldID uint16
	selectedCharID  uint64
}

func newSession(svc *Service, c netConn) *Session {
	return &Session{
		logger:   svc.logger.Named("session").WithFields("sid", uuid.New().String(), "addr", c.RemoteAddr().String()),
		svc:      svc,
		conn:     c,
		state:    stateInitial,
		lastSeen: time.Now(),
	}
}

func (s *Session) lastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// buildChallenge 组装挑战帧：广告公钥模数 + 长期签名密钥的
// PKCS1v15-MD5 背书。
// [ver:u8][keyBits:u16][modLen:u16][modulus][exponent:u32][sigLen:u16][sig]
func (s *Session) buildChallenge() []byte {
	keys := s.svc.keys
	signer := keys.Signer(s.svc.cfg.SignKeyBits)

	modulus := keys.Crypt.Modulus()
	sig, err := signer.SignModulus(modulus)
	if err != nil {
		s.logger.Error("failed to sign public key", "error", err)
		sig = nil
	}

	b := wire.NewByteBuffer()
	b.WriteUint8(challengeProtocolVersion)
	b.WriteUint16(uint16(signer.Bits()))
	b.WriteUint16(uint16(len(modulus)))
	b.WriteBytes(modulus)
	b.WriteUint32(keys.Crypt.PublicExponent())
	b.WriteUint16(uint16(len(sig)))
	b.WriteBytes(sig)

	return wire.EncodeFrame(wire.MsgAuthChallenge, b.Bytes())
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

func (s *Session) send(msgType uint16, payload []byte) {
	if err := s.conn.AsyncWrite(wire.EncodeFrame(msgType, payload), nil); err != nil {
		s.logger.Warn("auth send failed", "type", msgType, "error", err)
	}
}

// resultPayload [code:u16][message\0]
func resultPayload(code uint16, message string) []byte {
	b := wire.NewByteBuffer()
	b.WriteUint16(code)
	b.WriteString(message)
	return b.Bytes()
}

func (s *Session) handleFrame(frame *wire.Frame) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	switch frame.Type {
	case wire.MsgAuthResponse:
		if state != stateChallengeSent {
			// 非预期消息：回错误结果，状态保持
			s.send(wire.MsgAuthResult, resultPayload(wire.AuthInternalError, ""))
			return nil
		}
		return s.handleAuthResponse(frame)

	case wire.MsgWorldListRequest:
		if state < stateAuthenticated || state == stateClosed {
			s.send(wire.MsgWorldListResponse, resultPayload(wire.AuthNoAccess, ""))
			return nil
		}
		return s.handleWorldList()

	case wire.MsgCharListRequest:
		if state < stateAuthenticated || state == stateClosed {
			s.send(wire.MsgCharListResponse, resultPayload(wire.AuthNoAccess, ""))
			return nil
		}
		return s.handleCharList(frame)

	case wire.MsgCharCreateRequest:
		if state != stateCharacterList && state != stateCharacterSelected {
			s.send(wire.MsgCharCreateResponse, resultPayload(wire.AuthNoAccess, "select a world first"))
			return nil
		}
		return s.handleCharCreate(frame)

	case wire.MsgCharDeleteRequest:
		if state != stateCharacterList && state != stateCharacterSelected {
			s.send(wire.MsgCharDeleteResponse, resultPayload(wire.AuthNoAccess, "select a world first"))
			return nil
		}
		return s.handleCharDelete(frame)

	case wire.MsgCharSelectRequest:
		if state != stateCharacterList && state != stateCharacterSelected {
			s.send(wire.MsgCharSelectResponse, resultPayload(wire.AuthNoAccess, "select a world first"))
			return nil
		}
		return s.handleCharSelect(frame)

	default:
		s.logger.Debug("unhandled auth frame", "type", frame.Type)
		s.send(wire.MsgAuthResult, resultPayload(wire.AuthInternalError, ""))
		return nil
	}
}

// handleAuthResponse 解密凭证、常量时间校验、签发会话键
func (s *Session) handleAuthResponse(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	ctLen, err := b.ReadUint16()
	if err != nil {
		return err
	}
	ciphertext, err := b.ReadBytes(int(ctLen))
	if err != nil {
		return err
	}

	plain, err := s.svc.keys.Crypt.DecryptOAEP(ciphertext)
	if err != nil {
		// 解密失败按线格式错误处理：不给出可区分的错误响应
		return errors.Wrap(wire.ErrWireFormat, "credential decrypt failed")
	}

	pb := wire.NewByteBufferFrom(plain)
	username, err := pb.ReadString()
	if err != nil {
		return err
	}
	password, err := pb.ReadString()
	if err != nil {
		return err
	}
	clientVersion, err := pb.ReadUint32()
	if err != nil {
		return err
	}

	if required := s.svc.cfg.RequiredClientVersion; required != 0 && clientVersion != required {
		s.reject(wire.AuthInvalidClientVersion)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	account, err := s.svc.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			// 未知账号也走一次散列，避免时间侧信道
			crypto.HashPassword("timing-equalizer", password)
			s.reject(wire.AuthInvalidCredentials)
			return nil
		}
		s.logger.Error("account lookup failed", "username", username, "error", err)
		s.reject(wire.AuthInternalError)
		return nil
	}

	if !crypto.VerifyPassword(account.PasswordSalt, password, account.PasswordHash) {
		s.reject(wire.AuthInvalidCredentials)
		return nil
	}

	key, err := s.svc.keyTable.Mint(account.AccountID)
	if err != nil {
		s.logger.Error("session key mint failed", "error", err)
		s.reject(wire.AuthInternalError)
		return nil
	}

	s.mu.Lock()
	s.state = stateAuthenticated
	s.accountID = account.AccountID
	s.accountName = account.Username
	s.sessionKey = key
	s.mu.Unlock()

	if err := s.svc.accounts.TouchLastLogin(ctx, account.AccountID); err != nil {
		s.logger.Warn("failed to touch last login", "account_id", account.AccountID, "error", err)
	}

	if s.svc.metrics != nil {
		s.svc.metrics.AuthResults.WithLabelValues("success").Inc()
	}

	resp := wire.NewByteBuffer()
	resp.WriteUint16(wire.AuthSuccess)
	resp.WriteString(key)
	s.send(wire.MsgAuthResult, resp.Bytes())

	s.logger.Info("authentication succeeded", "account_id", account.AccountID, "username", username)
	return nil
}

// reject 发送失败结果并关闭连接
func (s *Session) reject(code uint16) {
	if s.svc.metrics != nil {
		s.svc.metrics.AuthResults.WithLabelValues(authCodeLabel(code)).Inc()
	}
	s.send(wire.MsgAuthResult, resultPayload(code, ""))
	_ = s.conn.Close()
}

func authCodeLabel(code uint16) string {
	switch code {
	case wire.AuthInvalidCredentials:
		return "invalid_credentials"
	case wire.AuthAccountBanned:
		return "banned"
	case wire.AuthServerFull:
		return "server_full"
	case wire.AuthAlreadyLoggedIn:
		return "already_logged_in"
	case wire.AuthInvalidClientVersion:
		return "bad_client_version"
	case wire.AuthInternalError:
		return "internal_error"
	default:
		return "other"
	}
}

// handleWorldList 世界清单
func (s *Session) handleWorldList() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	worlds, err := s.svc.worlds.List(ctx)
	if err != nil {
		s.logger.Error("world list failed", "error", err)
		s.send(wire.MsgWorldListResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	resp := wire.NewByteBuffer()
	resp.WriteUint16(uint16(len(worlds)))
	for _, w := range worlds {
		resp.WriteUint16(w.WorldID)
		resp.WriteString(w.WorldName)
		resp.WriteUint8(w.Status)
	}
	s.send(wire.MsgWorldListResponse, resp.Bytes())
	return nil
}

// handleCharList 角色清单: [world_id:u16]
func (s *Session) handleCharList(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	worldID, err := b.ReadUint16()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chars, err := s.svc.characters.ListByAccountWorld(ctx, s.accountID, worldID)
	if err != nil {
		s.logger.Error("character list failed", "error", err)
		s.send(wire.MsgCharListResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	s.mu.Lock()
	s.selectedWorldID = worldID
	s.state = stateCharacterList
	s.mu.Unlock()

	resp := wire.NewByteBuffer()
	resp.WriteUint16(uint16(len(chars)))
	for _, c := range chars {
		resp.WriteUint64(c.CharacterID)
		resp.WriteString(c.Handle)
		resp.WriteString(c.FirstName)
		resp.WriteString(c.LastName)
		resp.WriteUint8(c.Level)
		resp.WriteUint8(c.Profession)
		resp.WriteUint8(c.District)
	}
	s.send(wire.MsgCharListResponse, resp.Bytes())
	return nil
}

// handleCharCreate 创建角色: [world_id:u16][handle\0][first\0][last\0]
func (s *Session) handleCharCreate(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	worldID, err := b.ReadUint16()
	if err != nil {
		return err
	}
	handle, err := b.ReadString()
	if err != nil {
		return err
	}
	firstName, err := b.ReadString()
	if err != nil {
		return err
	}
	lastName, err := b.ReadString()
	if err != nil {
		return err
	}

	if handle == "" {
		s.send(wire.MsgCharCreateResponse, resultPayload(1, "handle required"))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// handle 全局唯一
	if _, err := s.svc.characters.GetByHandle(ctx, handle); err == nil {
		s.send(wire.MsgCharCreateResponse, resultPayload(1, "handle already taken"))
		return nil
	} else if !errors.Is(err, dao.ErrNotFound) {
		s.logger.Error("handle lookup failed", "handle", handle, "error", err)
		s.send(wire.MsgCharCreateResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	char := model.NewCharacter(s.accountID, worldID, handle, firstName, lastName)
	charID, err := s.svc.characters.Insert(ctx, char)
	if err != nil {
		s.logger.Error("character create failed", "handle", handle, "error", err)
		s.send(wire.MsgCharCreateResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	resp := wire.NewByteBuffer()
	resp.WriteUint16(0)
	resp.WriteString("")
	resp.WriteUint64(charID)
	s.send(wire.MsgCharCreateResponse, resp.Bytes())

	s.logger.Info("character created", "account_id", s.accountID, "handle", handle)
	return nil
}

// handleCharDelete 删除角色: [char_id:u64]
func (s *Session) handleCharDelete(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	charID, err := b.ReadUint64()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.svc.characters.Delete(ctx, s.accountID, charID); err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			s.send(wire.MsgCharDeleteResponse, resultPayload(1, "no such character"))
			return nil
		}
		s.logger.Error("character delete failed", "character_id", charID, "error", err)
		s.send(wire.MsgCharDeleteResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	s.send(wire.MsgCharDeleteResponse, resultPayload(0, ""))
	s.logger.Info("character deleted", "account_id", s.accountID, "character_id", charID)
	return nil
}

// handleCharSelect 选择角色并把会话键绑定到 (world, character)
func (s *Session) handleCharSelect(frame *wire.Frame) error {
	b := wire.NewByteBufferFrom(frame.Payload)
	charID, err := b.ReadUint64()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	char, err := s.svc.characters.GetByID(ctx, charID)
	if err != nil || char.AccountID != s.accountID {
		s.send(wire.MsgCharSelectResponse, resultPayload(1, "no such character"))
		return nil
	}

	if err := s.svc.keyTable.BindCharacter(s.sessionKey, char.WorldID, charID); err != nil {
		s.logger.Warn("session key bind failed", "error", err)
		s.send(wire.MsgCharSelectResponse, resultPayload(wire.AuthInternalError, ""))
		return nil
	}

	s.mu.Lock()
	s.selectedCharID = charID
	s.state = stateCharacterSelected
	s.mu.Unlock()

	s.send(wire.MsgCharSelectResponse, resultPayload(0, ""))
	s.logger.Info("character selected", "account_id", s.accountID, "character_id", charID)
	return nil
}
