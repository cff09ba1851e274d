// Package master 实现主控：三个监听服务的启停次序与周期任务。
package master

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hardlinedev/reality/app/server/internal/auth"
	"github.com/hardlinedev/reality/app/server/internal/game"
	"github.com/hardlinedev/reality/app/server/internal/margin"
	"github.com/hardlinedev/reality/app/server/internal/mission"
	"github.com/hardlinedev/reality/app/server/internal/sessionkey"
	"github.com/hardlinedev/reality/pkg/logger"
)

// Master 主控。按 Auth → Margin → Game 的次序启动监听，
// 停机时逆序关闭；周期任务（会话键清理）挂在 cron 上。
type Master struct {
	logger logger.Logger

	authSvc   *auth.Service
	marginSvc *margin.Service
	gameSvc   *game.Service

	keys     *sessionkey.Table
	missions *mission.Engine

	cron      *cron.Cron
	startedAt time.Time
}

// New 创建主控
func New(
	authSvc *auth.Service,
	marginSvc *margin.Service,
	gameSvc *game.Service,
	keys *sessionkey.Table,
	missions *mission.Engine,
	l logger.Logger,
) *Master {
	return &Master{
		logger:    l.Named("master"),
		authSvc:   authSvc,
		marginSvc: marginSvc,
		gameSvc:   gameSvc,
		keys:      keys,
		missions:  missions,
		cron:      cron.New(),
	}
}

// Start 启动三个监听与周期任务。任一失败时回滚已启动的部分。
func (m *Master) Start() error {
	m.startedAt = time.Now()

	if err := m.authSvc.Start(); err != nil {
		return err
	}
	if err := m.marginSvc.Start(); err != nil {
		_ = m.authSvc.Stop()
		return err
	}
	if err := m.gameSvc.Start(); err != nil {
		_ = m.marginSvc.Stop()
		_ = m.authSvc.Stop()
		return err
	}

	// 会话键过期清理，每分钟一轮
	if _, err := m.cron.AddFunc("* * * * *", func() {
		if n := m.keys.Sweep(); n > 0 {
			m.logger.Info("expired session keys swept", "count", n)
		}
	}); err != nil {
		return err
	}
	m.cron.Start()

	m.logger.Info("all services started")
	return nil
}

// Stop 逆序停机: Game → Margin → Auth
func (m *Master) Stop() error {
	ctx := m.cron.Stop()
	<-ctx.Done()

	var firstErr error
	if err := m.gameSvc.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.marginSvc.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := m.authSvc.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}

	m.logger.Info("all services stopped")
	return firstErr
}

// Stats 控制台统计输出
func (m *Master) Stats() string {
	gameSessions, players, _ := m.gameSvc.Stats()
	activeMissions, completedMissions := m.missions.Stats()

	return fmt.Sprintf(
		"uptime %s | auth sessions %d | margin sessions %d | game sessions %d | players %d | session keys %d | active missions %d | completed %d",
		time.Since(m.startedAt).Truncate(time.Second),
		m.authSvc.SessionCount(),
		m.marginSvc.SessionCount(),
		gameSessions,
		players,
		m.keys.Len(),
		activeMissions,
		completedMissions,
	)
}
