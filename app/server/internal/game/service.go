package game

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/hardlinedev/reality/app/server/internal/dao"
	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/app/server/internal/world"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
	"github.com/hardlinedev/reality/pkg/wire"
)

// tickInterval 服务循环的节拍
const tickInterval = 50 * time.Millisecond

// Config 游戏服务配置
type Config struct {
	ListenPort     int     `mapstructure:"listen_port"`
	MaxConnections int     `mapstructure:"max_connections"`
	InterestRange  float64 `mapstructure:"interest_range"`
	InteractRange  float64 `mapstructure:"interact_range"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenPort:     10003,
		MaxConnections: 1024,
		InterestRange:  128,
		InteractRange:  8,
	}
}

type inboundDatagram struct {
	addr *net.UDPAddr
	data []byte
}

// CharacterStore 游戏服务需要的角色存取能力，由 dao.CharacterDAO 实现
type CharacterStore interface {
	GetByID(ctx context.Context, characterID uint64) (*model.Character, error)
	SaveState(ctx context.Context, c *model.Character) error
}

// Service 游戏 UDP 服务。读循环只负责收包，
// 会话与玩家状态全部由 run 循环这一个 goroutine 持有。
type Service struct {
	logger  logger.Logger
	cfg     *Config
	metrics *metrics.ServerMetrics

	world      *world.Manager
	keys       *sessionkey.Table
	characters CharacterStore
	cache      *dao.CacheDAO
	storePool  *ants.Pool

	transportCfg  *TransportConfig
	interestRange float64
	interactRange float64

	conn *net.UDPConn

	// sessions 仅 run 循环访问
	sessions map[string]*Session

	// 玩家索引可能被 Margin 线程读取，单独加锁
	playersMu       sync.RWMutex
	playersByChar   map[uint64]*Player
	playersByObject map[uint32]*Player
	playersByHandle map[string]*Player

	datagrams chan inboundDatagram
	posted    chan func()
	stop      chan struct{}
	done      sync.WaitGroup

	startedAt time.Time
}

// NewService 创建游戏服务
func NewService(
	cfg *Config,
	transportCfg *TransportConfig,
	worldMgr *world.Manager,
	keys *sessionkey.Table,
	characters CharacterStore,
	cache *dao.CacheDAO,
	storePool *ants.Pool,
	m *metrics.ServerMetrics,
	l logger.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if transportCfg == nil {
		transportCfg = DefaultTransportConfig()
	}
	return &Service{
		logger:          l.Named("game.service"),
		cfg:             cfg,
		metrics:         m,
		world:           worldMgr,
		keys:            keys,
		characters:      characters,
		cache:           cache,
		storePool:       storePool,
		transportCfg:    transportCfg,
		interestRange:   cfg.InterestRange,
		interactRange:   cfg.InteractRange,
		sessions:        make(map[string]*Session),
		playersByChar:   make(map[uint64]*Player),
		playersByObject: make(map[uint32]*Player),
		playersByHandle: make(map[string]*Player),
		datagrams:       make(chan inboundDatagram, 1024),
		posted:          make(chan func(), 256),
		stop:            make(chan struct{}),
	}
}

// Start 绑定 UDP 端口并启动读循环与服务循环
func (s *Service) Start() error {
	addr := &net.UDPAddr{Port: s.cfg.ListenPort}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return errors.Wrapf(err, "game listen on %d", s.cfg.ListenPort)
	}
	s.conn = conn
	s.startedAt = time.Now()

	s.done.Add(2)
	conc.Go(s.readLoop)
	conc.Go(s.run)

	s.logger.Info("game server listening", "port", s.cfg.ListenPort)
	return nil
}

// readLoop 套接字读线程：收包后丢给服务循环
func (s *Service) readLoop() {
	defer s.done.Done()

	buf := make([]byte, 64*1024)
	for {
		_ = s.conn.SetReadDeadline(time.Now().Add(tickInterval))
		n, addr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-s.stop:
				return
			default:
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				continue
			}
			s.logger.Warn("udp read failed", "error", err)
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		select {
		case s.datagrams <- inboundDatagram{addr: addr, data: data}:
		case <-s.stop:
			return
		default:
			// 服务循环积压时丢包，可靠层会重传
			if s.metrics != nil {
				s.metrics.PacketsDropped.Inc()
			}
		}
	}
}

// run 服务循环：数据报分发、跨线程投递与 50ms 节拍
func (s *Service) run() {
	defer s.done.Done()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			s.shutdownSessions()
			return

		case in := <-s.datagrams:
			s.dispatch(in)

		case fn := <-s.posted:
			fn()

		case now := <-ticker.C:
			for _, sess := range s.sessions {
				sess.Tick(now)
			}
			if s.metrics != nil {
				s.metrics.GameSessions.Set(float64(len(s.sessions)))
				s.metrics.PlayersOnline.Set(float64(s.PlayerCount()))
				s.metrics.WorldObjects.Set(float64(s.world.ObjectCount()))
			}
		}
	}
}

// dispatch 把数据报路由到会话，新地址建新会话
func (s *Service) dispatch(in inboundDatagram) {
	key := in.addr.String()
	sess, ok := s.sessions[key]
	if !ok {
		if len(s.sessions) >= s.cfg.MaxConnections {
			if s.metrics != nil {
				s.metrics.PacketsDropped.Inc()
			}
			return
		}
		sess = newSession(s, in.addr, s.logger)
		s.sessions[key] = sess
		s.logger.Debug("game session opened", "addr", key)
	}
	sess.HandleDatagram(in.data)
}

// Post 把闭包投递到服务循环执行（Margin 等跨线程调用）
func (s *Service) Post(fn func()) {
	select {
	case s.posted <- fn:
	case <-s.stop:
	}
}

// writeTo 发送数据报给指定对端
func (s *Service) writeTo(addr *net.UDPAddr, data []byte) error {
	_, err := s.conn.WriteToUDP(data, addr)
	return err
}

// removeSession 会话关闭后摘除（run 循环内调用）
func (s *Service) removeSession(addr *net.UDPAddr) {
	delete(s.sessions, addr.String())
}

// shutdownSessions 停机：关闭全部会话并落盘玩家
func (s *Service) shutdownSessions() {
	for _, sess := range s.sessions {
		sess.BeginClose("server shutdown")
	}
	s.sessions = make(map[string]*Session)
}

// Stop 停止服务
func (s *Service) Stop() error {
	close(s.stop)
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.done.Wait()
	s.logger.Info("game server stopped")
	return nil
}

// registerPlayer 玩家上线登记
func (s *Service) registerPlayer(p *Player) {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	s.playersByChar[p.char.CharacterID] = p
	s.playersByObject[p.ID()] = p
	s.playersByHandle[p.Handle()] = p
}

// unregisterPlayer 玩家下线摘除
func (s *Service) unregisterPlayer(p *Player) {
	s.playersMu.Lock()
	defer s.playersMu.Unlock()
	delete(s.playersByChar, p.char.CharacterID)
	delete(s.playersByObject, p.ID())
	delete(s.playersByHandle, p.Handle())
}

// PlayerByCharacterID 按角色 ID 查在线玩家
func (s *Service) PlayerByCharacterID(characterID uint64) (*Player, bool) {
	s.playersMu.RLock()
	defer s.playersMu.RUnlock()
	p, ok := s.playersByChar[characterID]
	return p, ok
}

// PlayerByObjectID 按对象 ID 查在线玩家
func (s *Service) PlayerByObjectID(objectID uint32) (*Player, bool) {
	s.playersMu.RLock()
	defer s.playersMu.RUnlock()
	p, ok := s.playersByObject[objectID]
	return p, ok
}

// PlayerCount 在线玩家数
func (s *Service) PlayerCount() int {
	s.playersMu.RLock()
	defer s.playersMu.RUnlock()
	return len(s.playersByChar)
}

// OnlineHandles 城区内的在线玩家名单；district 为 0 时不过滤
func (s *Service) OnlineHandles(district uint8) []string {
	s.playersMu.RLock()
	defer s.playersMu.RUnlock()

	out := make([]string, 0, len(s.playersByHandle))
	for handle, p := range s.playersByHandle {
		if district == 0 || p.District() == district {
			out = append(out, handle)
		}
	}
	return out
}

// SendToHandle 给指定 handle 的在线玩家发消息，返回是否在线
func (s *Service) SendToHandle(handle string, msgType uint16, payload []byte) bool {
	s.playersMu.RLock()
	p, ok := s.playersByHandle[handle]
	s.playersMu.RUnlock()
	if !ok {
		return false
	}
	p.session.Send(msgType, payload, packetReliableEncrypted)
	return true
}

const packetReliableEncrypted = wire.PacketFlagReliable | wire.PacketFlagEncrypted

// BroadcastToDistrict 向城区内全部在线玩家广播，except 为跳过的对象 ID
func (s *Service) BroadcastToDistrict(district uint8, msgType uint16, payload []byte, except uint32) {
	s.playersMu.RLock()
	targets := make([]*Player, 0, len(s.playersByObject))
	for _, p := range s.playersByObject {
		if p.District() == district && p.ID() != except {
			targets = append(targets, p)
		}
	}
	s.playersMu.RUnlock()

	for _, p := range targets {
		p.session.Send(msgType, payload, packetReliableEncrypted)
	}
}

// BroadcastToAll 全服广播
func (s *Service) BroadcastToAll(msgType uint16, payload []byte) {
	s.playersMu.RLock()
	targets := make([]*Player, 0, len(s.playersByObject))
	for _, p := range s.playersByObject {
		targets = append(targets, p)
	}
	s.playersMu.RUnlock()

	for _, p := range targets {
		p.session.Send(msgType, payload, packetReliableEncrypted)
	}
}

// TeleportToDistrictSpawn 把在线玩家传送到目标城区的出生点。
// 跨线程安全：实际迁移在游戏线程上执行。
func (s *Service) TeleportToDistrictSpawn(characterID uint64, district uint8) {
	p, ok := s.PlayerByCharacterID(characterID)
	if !ok {
		return
	}

	s.Post(func() {
		pos, err := s.world.GetRandomSpawnPosition(district)
		if err != nil {
			s.logger.Warn("teleport target unavailable", "district", district, "error", err)
			return
		}

		oldDistrict := p.District()
		if district == oldDistrict {
			p.HandleMovement(pos, 0)
			return
		}

		// 跨城区：旧城区广播消失，分片迁移，客户端重新加载区域
		s.BroadcastToDistrict(oldDistrict, wire.MsgObjectDestroy, buildObjectDestroy(p.ID()), p.ID())
		if err := s.world.ChangeObjectDistrict(p.ID(), district); err != nil {
			s.logger.Error("district migration failed", "character_id", characterID, "error", err)
			return
		}

		p.SetPosition(pos)
		p.char.District = district
		p.char.SetPosition(pos)
		p.dirty = true
		p.worldPopulated = false

		p.session.state = StateWorldLoading
		b := wire.NewByteBuffer()
		b.WriteUint8(district)
		pos.WriteTo(b)
		p.session.Send(wire.MsgRegionLoad, b.Bytes(), packetReliableEncrypted)
	})
}

// GrantReward 把任务奖励投递到游戏线程应用；玩家不在线时直接落库
func (s *Service) GrantReward(characterID uint64, exp, info uint64) {
	if p, ok := s.PlayerByCharacterID(characterID); ok {
		s.Post(func() {
			p.grantReward(exp, info)
		})
		return
	}

	// 离线结算
	s.submitStore(func(ctx context.Context) error {
		char, err := s.characters.GetByID(ctx, characterID)
		if err != nil {
			return err
		}
		char.Experience += exp
		char.Information += info
		return s.characters.SaveState(ctx, char)
	})
}

// persistPlayer 落盘玩家状态。sync 为 true 时内联执行（下线与停机路径）。
func (s *Service) persistPlayer(p *Player, sync bool) {
	snapshot := p.persistSnapshot()
	task := func(ctx context.Context) error {
		return s.characters.SaveState(ctx, snapshot)
	}

	if sync {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := task(ctx); err != nil {
			s.logger.Error("player persistence failed", "handle", snapshot.Handle, "error", err)
		}
		return
	}
	s.submitStore(task)
}

// submitStore 把存储写提交到后台池
func (s *Service) submitStore(task func(ctx context.Context) error) {
	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := task(ctx); err != nil {
			s.logger.Error("store task failed", "error", err)
		}
	}
	if s.storePool == nil {
		run()
		return
	}
	if err := s.storePool.Submit(run); err != nil {
		s.logger.Warn("store pool rejected task, running inline", "error", err)
		run()
	}
}

// Stats 服务统计
func (s *Service) Stats() (sessions int, players int, uptime time.Duration) {
	// sessions 归 run 循环所有，这里读快照用于控制台展示
	return len(s.sessions), s.PlayerCount(), time.Since(s.startedAt)
}
