// Package margin 实现 Margin TCP 服务：会话键接入后的任务与对话 RPC。
package margin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/gnet/v2"

	"github.com/hardlinedev/reality/app/server/internal/dialogue"
	"github.com/hardlinedev/reality/app/server/internal/game"
	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
)

// Config Margin 服务配置
type Config struct {
	ListenPort     int           `mapstructure:"listen_port"`
	MaxConnections int           `mapstructure:"max_connections"`
	Timeout        time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenPort:     10002,
		MaxConnections: 512,
		Timeout:        60 * time.Second,
	}
}

// Service Margin TCP 服务，gnet 事件驱动
type Service struct {
	gnet.BuiltinEventEngine

	logger  logger.Logger
	cfg     *Config
	metrics *metrics.ServerMetrics

	keys       *sessionkey.Table
	missions   *mission.Engine
	dialogues  *dialogue.Engine
	characters game.CharacterStore
	gameSvc    *game.Service

	engine  gnet.Engine
	started bool

	mu       sync.Mutex
	sessions map[*Session]struct{}
	byChar   map[uint64]*Session
}

// NewService 创建 Margin 服务
func NewService(
	cfg *Config,
	keys *sessionkey.Table,
	missions *mission.Engine,
	dialogues *dialogue.Engine,
	characters game.CharacterStore,
	gameSvc *game.Service,
	m *metrics.ServerMetrics,
	l logger.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		logger:     l.Named("margin.service"),
		cfg:        cfg,
		metrics:    m,
		keys:       keys,
		missions:   missions,
		dialogues:  dialogues,
		characters: characters,
		gameSvc:    gameSvc,
		sessions:   make(map[*Session]struct{}),
		byChar:     make(map[uint64]*Session),
	}
}

// Start 启动监听
func (s *Service) Start() error {
	protoAddr := fmt.Sprintf("tcp://:%d", s.cfg.ListenPort)

	errCh := make(chan error, 1)
	conc.Go(func() {
		errCh <- gnet.Run(s, protoAddr,
			gnet.WithTCPNoDelay(gnet.TCPNoDelay),
			gnet.WithReuseAddr(true),
			gnet.WithTicker(true),
		)
	})

	select {
	case err := <-errCh:
		return errors.Wrapf(err, "margin listen on %d", s.cfg.ListenPort)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("margin server listening", "port", s.cfg.ListenPort)
		return nil
	}
}

// Stop 停止监听
func (s *Service) Stop() error {
	if s.started {
		return s.engine.Stop(context.Background())
	}
	return nil
}

// OnBoot 实现 gnet.EventHandler
func (s *Service) OnBoot(eng gnet.Engine) gnet.Action {
	s.engine = eng
	s.started = true
	return gnet.None
}

// OnOpen 实现 gnet.EventHandler
func (s *Service) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.logger.Warn("margin connection limit reached", "addr", c.RemoteAddr())
		return nil, gnet.Close
	}
	sess := newSession(s, c)
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	c.SetContext(sess)

	if s.metrics != nil {
		s.metrics.MarginSessions.Inc()
	}
	s.logger.Debug("margin session opened", "addr", c.RemoteAddr())
	return nil, gnet.None
}

// OnClose 实现 gnet.EventHandler
func (s *Service) OnClose(c gnet.Conn, err error) gnet.Action {
	if sess, ok := c.Context().(*Session); ok {
		s.mu.Lock()
		delete(s.sessions, sess)
		if sess.characterID != 0 && s.byChar[sess.characterID] == sess {
			delete(s.byChar, sess.characterID)
		}
		s.mu.Unlock()
		sess.onClosed()
	}
	if s.metrics != nil {
		s.metrics.MarginSessions.Dec()
	}
	s.logger.Debug("margin session closed", "addr", c.RemoteAddr(), "error", err)
	return gnet.None
}

// OnTraffic 实现 gnet.EventHandler：帧积累与分发
func (s *Service) OnTraffic(c gnet.Conn) gnet.Action {
	sess, ok := c.Context().(*Session)
	if !ok {
		return gnet.Close
	}

	data, err := c.Next(-1)
	if err != nil {
		return gnet.Close
	}

	if err := sess.feed(data); err != nil {
		// 线格式错误：记警告，不回应直接关连接
		s.logger.Warn("margin session dropped", "addr", c.RemoteAddr(), "error", err)
		return gnet.Close
	}
	return gnet.None
}

// OnTick 周期清理超时会话
func (s *Service) OnTick() (time.Duration, gnet.Action) {
	now := time.Now()

	s.mu.Lock()
	idle := make([]*Session, 0)
	for sess := range s.sessions {
		if now.Sub(sess.lastActivity()) >= s.cfg.Timeout {
			idle = append(idle, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		s.logger.Debug("margin session timed out", "addr", sess.conn.RemoteAddr())
		_ = sess.conn.Close()
	}

	return time.Second, gnet.None
}

// SessionCount 当前会话数（控制台统计）
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// bindCharacter 握手成功后登记角色到会话的路由
func (s *Service) bindCharacter(sess *Session) {
	s.mu.Lock()
	s.byChar[sess.characterID] = sess
	s.mu.Unlock()
}

func (s *Service) sessionFor(playerID uint64) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byChar[playerID]
}

// --- dialogue.PlayerView 实现：按玩家路由到对应会话的角色视图 ---

var _ dialogue.PlayerView = (*Service)(nil)

// Level 玩家等级
func (s *Service) Level(playerID uint64) uint8 {
	if sess := s.sessionFor(playerID); sess != nil {
		return sess.char.Level
	}
	return 0
}

// Faction 玩家阵营
func (s *Service) Faction(playerID uint64) uint8 {
	if sess := s.sessionFor(playerID); sess != nil {
		return sess.char.Alignment
	}
	return 0
}

// SkillLevel 玩家技能等级；技能系统未接入存储，一律为 0
func (s *Service) SkillLevel(uint64, uint32) uint8 {
	return 0
}

// MissionState 任务状态，转发任务引擎
func (s *Service) MissionState(playerID uint64, missionID uint32) mission.State {
	return s.missions.MissionState(playerID, missionID)
}
