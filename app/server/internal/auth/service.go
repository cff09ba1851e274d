// Package auth 实现认证 TCP 服务：RSA 握手、凭证校验、
// 会话键签发与世界/角色选择。
package auth

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/gnet/v2"
	"golang.org/x/time/rate"

	"github.com/hardlinedev/reality/app/server/internal/metrics"
	"github.com/hardlinedev/reality/app/server/internal/model"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
)

// Config 认证服务配置
type Config struct {
	ListenPort     int           `mapstructure:"listen_port"`
	MaxConnections int           `mapstructure:"max_connections"`
	Timeout        time.Duration `mapstructure:"timeout"`
	// KeyDir RSA 密钥目录
	KeyDir string `mapstructure:"key_dir"`
	// SignKeyBits 公钥背书使用的签名密钥位数 (1024/2048)
	SignKeyBits int `mapstructure:"sign_key_bits"`
	// RequiredClientVersion 非零时强制客户端版本
	RequiredClientVersion uint32 `mapstructure:"required_client_version"`
	// RatePerIP 每 IP 每秒的认证尝试配额
	RatePerIP float64 `mapstructure:"rate_per_ip"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenPort:     10001,
		MaxConnections: 512,
		Timeout:        30 * time.Second,
		KeyDir:         "keys",
		SignKeyBits:    1024,
		RatePerIP:      2,
	}
}

// AccountStore 认证需要的账号存取能力，由 dao.AccountDAO 实现
type AccountStore interface {
	GetByUsername(ctx context.Context, username string) (*model.Account, error)
	Insert(ctx context.Context, username, passwordHash, passwordSalt string) (uint32, error)
	UpdatePassword(ctx context.Context, accountID uint32, passwordHash, passwordSalt string) error
	TouchLastLogin(ctx context.Context, accountID uint32) error
}

// WorldStore 世界存取能力，由 dao.WorldDAO 实现
type WorldStore interface {
	List(ctx context.Context) ([]*model.World, error)
	GetByName(ctx context.Context, name string) (*model.World, error)
	Insert(ctx context.Context, name string) (uint16, error)
}

// CharacterStore 角色存取能力，由 dao.CharacterDAO 实现
type CharacterStore interface {
	GetByID(ctx context.Context, characterID uint64) (*model.Character, error)
	GetByHandle(ctx context.Context, handle string) (*model.Character, error)
	ListByAccountWorld(ctx context.Context, accountID uint32, worldID uint16) ([]*model.Character, error)
	Insert(ctx context.Context, c *model.Character) (uint64, error)
	Delete(ctx context.Context, accountID uint32, characterID uint64) error
}

// Service 认证 TCP 服务
type Service struct {
	gnet.BuiltinEventEngine

	logger  logger.Logger
	cfg     *Config
	metrics *metrics.ServerMetrics

	keys       *ServerKeys
	keyTable   *sessionkey.Table
	accounts   AccountStore
	worlds     WorldStore
	characters CharacterStore

	engine  gnet.Engine
	started bool

	mu       sync.Mutex
	sessions map[*Session]struct{}
	limiters map[string]*rate.Limiter
}

// NewService 创建认证服务
func NewService(
	cfg *Config,
	keys *ServerKeys,
	keyTable *sessionkey.Table,
	accounts AccountStore,
	worlds WorldStore,
	characters CharacterStore,
	m *metrics.ServerMetrics,
	l logger.Logger,
) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Service{
		logger:     l.Named("auth.service"),
		cfg:        cfg,
		metrics:    m,
		keys:       keys,
		keyTable:   keyTable,
		accounts:   accounts,
		worlds:     worlds,
		characters: characters,
		sessions:   make(map[*Session]struct{}),
		limiters:   make(map[string]*rate.Limiter),
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
		return errors.Wrapf(err, "auth listen on %d", s.cfg.ListenPort)
	case <-time.After(100 * time.Millisecond):
		s.logger.Info("auth server listening", "port", s.cfg.ListenPort)
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

// limiterFor 按远端 IP 取限流器
func (s *Service) limiterFor(addr net.Addr) *rate.Limiter {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lim, ok := s.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(s.cfg.RatePerIP), 4)
		s.limiters[host] = lim
	}
	return lim
}

// OnOpen 接受连接并立即下发挑战
func (s *Service) OnOpen(c gnet.Conn) ([]byte, gnet.Action) {
	if !s.limiterFor(c.RemoteAddr()).Allow() {
		// 限流：不回应直接关闭
		s.logger.Warn("auth connection rate limited", "addr", c.RemoteAddr())
		return nil, gnet.Close
	}

	s.mu.Lock()
	if len(s.sessions) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.logger.Warn("auth connection limit reached", "addr", c.RemoteAddr())
		return nil, gnet.Close
	}
	sess := newSession(s, c)
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()
	c.SetContext(sess)

	if s.metrics != nil {
		s.metrics.AuthSessions.Inc()
	}

	// 连接即挑战: INITIAL → CHALLENGE_SENT
	challenge := sess.buildChallenge()
	sess.state = stateChallengeSent
	s.logger.Debug("auth session opened", "addr", c.RemoteAddr())
	return challenge, gnet.None
}

// OnClose 实现 gnet.EventHandler
func (s *Service) OnClose(c gnet.Conn, err error) gnet.Action {
	if sess, ok := c.Context().(*Session); ok {
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		sess.state = stateClosed
	}
	if s.metrics != nil {
		s.metrics.AuthSessions.Dec()
	}
	s.logger.Debug("auth session closed", "addr", c.RemoteAddr(), "error", err)
	return gnet.None
}

// OnTraffic 帧积累与分发
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
		s.logger.Warn("auth session dropped", "addr", c.RemoteAddr(), "error", err)
		return gnet.Close
	}
	return gnet.None
}

// OnTick 超时清理
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
		s.logger.Debug("auth session timed out", "addr", sess.conn.RemoteAddr())
		_ = sess.conn.Close()
	}

	return time.Second, gnet.None
}

// SessionCount 当前会话数
func (s *Service) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
