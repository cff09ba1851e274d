package game

import (
	"context"
	"net"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/pkg/crypto"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/wire"
)

// SessionState 游戏会话状态
type SessionState uint8

const (
	StateInitial SessionState = iota
	StateHandshake
	StateConnected
	StateWorldLoading
	StateInWorld
	StateDisconnecting
	StateClosed
)

// Session 单个客户端的游戏会话。
// 状态只在游戏服务线程上变更；Transport 自身线程安全。
type Session struct {
	logger logger.Logger
	svc    *Service

	addr      *net.UDPAddr
	transport *Transport

	state      SessionState
	sessionKey string
	accountID  uint32
	player     *Player

	createdAt time.Time
}

func newSession(svc *Service, addr *net.UDPAddr, l logger.Logger) *Session {
	s := &Session{
		logger:    l.Named("game.session").WithFields("addr", addr.String()),
		svc:       svc,
		addr:      addr,
		state:     StateInitial,
		createdAt: time.Now(),
	}
	s.transport = NewTransport(svc.transportCfg, func(data []byte) error {
		return svc.writeTo(addr, data)
	}, svc.metrics, l)
	return s
}

// Send 经可靠传输发消息给客户端
func (s *Session) Send(msgType uint16, payload []byte, flags uint8) {
	if err := s.transport.Send(msgType, payload, flags); err != nil {
		if !errors.Is(err, ErrTransportClosed) {
			s.logger.Warn("send failed", "type", msgType, "error", err)
		}
		if errors.Is(err, ErrBackpressure) {
			s.BeginClose("unacked overflow")
		}
	}
}

// HandleDatagram 处理一个到达的数据报
func (s *Session) HandleDatagram(data []byte) {
	pkts, err := s.transport.Receive(data)
	if err != nil {
		// 格式或解密失败：不回应，关会话，避免预言机
		if errors.Is(err, wire.ErrWireFormat) || errors.Is(err, crypto.ErrCrypto) {
			s.logger.Warn("malformed datagram, closing session", "error", err)
			s.BeginClose("wire format")
			return
		}
		if errors.Is(err, ErrTransportClosed) {
			return
		}
		s.logger.Warn("datagram rejected", "error", err)
		return
	}

	for _, pkt := range pkts {
		if err := s.handleMessage(pkt); err != nil {
			if errors.Is(err, wire.ErrShortRead) || errors.Is(err, wire.ErrWireFormat) {
				s.logger.Warn("malformed message, closing session", "type", pkt.Type, "error", err)
				s.BeginClose("wire format")
				return
			}
			s.logger.Warn("message handling failed", "type", pkt.Type, "error", err)
		}
	}
}

func (s *Session) handleMessage(pkt *wire.Packet) error {
	switch pkt.Type {
	case wire.MsgGameHandshake:
		return s.handleHandshake(pkt)

	case wire.MsgWorldState:
		// 对端的 ping/ack，活动时间已由传输层刷新
		return nil

	case wire.MsgRegionLoad:
		if s.state != StateConnected {
			s.logger.Debug("region load in wrong state", "state", s.state)
			return nil
		}
		s.enterWorldLoading()
		return nil

	case wire.MsgPlayerMovement:
		if s.state != StateInWorld {
			return nil
		}
		b := wire.NewByteBufferFrom(pkt.Payload)
		pos, err := model.ReadLocation(b)
		if err != nil {
			return err
		}
		moveType, err := b.ReadUint8()
		if err != nil {
			return err
		}
		s.player.HandleMovement(pos, moveType)
		return nil

	case wire.MsgPlayerState:
		if s.state != StateInWorld {
			return nil
		}
		b := wire.NewByteBufferFrom(pkt.Payload)
		flags, err := b.ReadUint32()
		if err != nil {
			return err
		}
		s.player.HandleStateFlags(flags)
		return nil

	case wire.MsgPlayerCommand:
		if s.state != StateConnected && s.state != StateWorldLoading && s.state != StateInWorld {
			return nil
		}
		return s.player.HandleCommand(wire.NewByteBufferFrom(pkt.Payload))

	case wire.MsgJackoutRequest:
		if s.state == StateInWorld {
			s.player.requestJackout(time.Now())
		}
		return nil

	default:
		s.logger.Debug("unhandled message type", "type", pkt.Type)
		return nil
	}
}

// handleHandshake 校验会话键、加载角色并建立玩家对象。
// 成功后挂载会话密钥派生的流加密。
func (s *Session) handleHandshake(pkt *wire.Packet) error {
	if s.state != StateInitial && s.state != StateHandshake {
		return nil
	}
	s.state = StateHandshake

	b := wire.NewByteBufferFrom(pkt.Payload)
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
		s.logger.Warn("handshake rejected", "error", err)
		s.sendGameSession(1, 0)
		s.BeginClose("bad session key")
		return nil
	}

	// 不变量：在线角色同时只有一个玩家对象
	if _, exists := s.svc.PlayerByCharacterID(characterID); exists {
		s.logger.Error("duplicate player for character, terminating session",
			"character_id", characterID)
		s.sendGameSession(1, 0)
		s.BeginClose("duplicate player")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	char, err := s.svc.characters.GetByID(ctx, characterID)
	if err != nil {
		s.logger.Error("failed to load character", "character_id", characterID, "error", err)
		s.sendGameSession(uint16(wire.AuthInternalError), 0)
		s.BeginClose("character load failed")
		return nil
	}

	s.sessionKey = key
	s.accountID = entry.AccountID

	objectID := s.svc.world.NextObjectID()
	s.player = NewPlayer(objectID, char, s, s.svc, s.logger)
	s.svc.registerPlayer(s.player)

	char.IsOnline = true
	s.svc.persistPlayer(s.player, false)
	s.svc.cache.SetOnline(ctx, characterID)

	s.state = StateConnected
	s.sendGameSession(0, objectID)

	// 握手回执之后的流量全部走会话密钥加密
	cipher, err := crypto.NewStreamCipher(crypto.DeriveCipherKey(key))
	if err != nil {
		return err
	}
	s.transport.SetCipher(cipher)

	s.logger.Info("game session established",
		"account_id", s.accountID,
		"character_id", characterID,
		"object_id", objectID,
	)
	return nil
}

func (s *Session) sendGameSession(result uint16, objectID uint32) {
	b := wire.NewByteBuffer()
	b.WriteUint16(result)
	if result == 0 {
		b.WriteUint32(objectID)
	}
	s.Send(wire.MsgGameSession, b.Bytes(), wire.PacketFlagReliable)
}

// enterWorldLoading 进入世界加载：位置修正、注册世界、下发自身
func (s *Session) enterWorldLoading() {
	s.state = StateWorldLoading
	s.player.InitializeWorld()
	if err := s.svc.world.AddObject(s.player); err != nil {
		s.logger.Error("failed to add player to world", "error", err)
		s.BeginClose("world registration failed")
		return
	}
	s.player.SpawnSelf()
}

// onRegionLoaded 客户端资源加载完毕：铺设周边对象并进入世界
func (s *Session) onRegionLoaded() {
	switch s.state {
	case StateConnected:
		// 客户端跳过了显式 RegionLoad，两步一起做
		s.enterWorldLoading()
		if s.state != StateWorldLoading {
			return
		}
	case StateWorldLoading:
	default:
		return
	}

	s.player.PopulateWorld()
	s.state = StateInWorld
}

// Tick 会话心跳：驱动传输层与玩家事件
func (s *Session) Tick(now time.Time) {
	if s.state == StateClosed {
		return
	}

	if err := s.transport.Tick(); err != nil {
		if !errors.Is(err, ErrTransportClosed) {
			s.logger.Info("transport expired", "error", err)
		}
		s.BeginClose("transport expired")
		return
	}

	if s.player != nil && s.state == StateInWorld {
		s.player.Update(now)
	}

	s.transport.FlushAck()
}

// BeginClose 进入 DISCONNECTING：落盘、退出世界、作废会话键。
// 可重入，清理只做一次。
func (s *Session) BeginClose(reason string) {
	if s.state == StateDisconnecting || s.state == StateClosed {
		return
	}
	s.state = StateDisconnecting
	s.logger.Info("session closing", "reason", reason)

	if s.player != nil {
		p := s.player

		p.char.IsOnline = false
		s.svc.persistPlayer(p, true)
		s.svc.cache.SetOffline(context.Background(), p.char.CharacterID)

		if err := s.svc.world.RemoveObject(p.ID()); err == nil {
			s.svc.BroadcastToDistrict(p.District(), wire.MsgObjectDestroy, buildObjectDestroy(p.ID()), p.ID())
		}
		s.svc.unregisterPlayer(p)
	}

	if s.sessionKey != "" {
		s.svc.keys.Invalidate(s.sessionKey)
	}

	s.transport.Close()
	s.state = StateClosed
	s.svc.removeSession(s.addr)
}
