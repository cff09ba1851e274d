// Package app 提供进程生命周期骨架：注册服务与资源，
// 统一启动、信号等待和逆序停机。
package app

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/hardlinedev/reality/pkg/logger"
)

var (
	// ErrAppAlreadyRunning 应用重复启动
	ErrAppAlreadyRunning = errors.New("application is already running")
)

// Server 服务接口。三个监听服务、控制台和指标端点都实现它。
type Server interface {
	Start() error
	Stop() error
}

// Closer 资源清理接口（数据库、Redis 等）
type Closer interface {
	Close() error
}

// BaseApp 应用骨架
type BaseApp struct {
	opts    Options
	logger  logger.Logger
	servers []Server
	closers []Closer

	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建应用
func New(opts ...Option) *BaseApp {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &BaseApp{
		opts:   o,
		logger: o.Logger.Named(o.Name),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Logger 返回应用主日志对象
func (a *BaseApp) Logger() logger.Logger {
	return a.logger
}

// RegisterServer 注册服务，按注册顺序启动、逆序停止
func (a *BaseApp) RegisterServer(srv Server) {
	a.servers = append(a.servers, srv)
}

// RegisterCloser 注册资源，停机时在服务之后逆序关闭
func (a *BaseApp) RegisterCloser(c Closer) {
	a.closers = append(a.closers, c)
}

// Run 启动所有服务并阻塞等待停机信号。
// SIGINT/SIGTERM/SIGABRT 任一到达即触发有序停机。
func (a *BaseApp) Run() error {
	if !a.started.CompareAndSwap(false, true) {
		return ErrAppAlreadyRunning
	}

	a.logger.Info("application starting", "servers", len(a.servers))

	for i, srv := range a.servers {
		if err := srv.Start(); err != nil {
			a.logger.Error("failed to start server", "index", i, "error", err)
			// 已启动的部分按逆序回滚
			for j := i - 1; j >= 0; j-- {
				_ = a.servers[j].Stop()
			}
			return err
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, shutdownSignals...)

	select {
	case sig := <-quit:
		a.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-a.ctx.Done():
		a.logger.Info("context cancelled, shutting down")
	}

	return a.Shutdown()
}

// Shutdown 停止服务（逆序）并清理资源
func (a *BaseApp) Shutdown() error {
	if !a.closed.CompareAndSwap(false, true) {
		return nil
	}

	a.cancel()

	var firstErr error
	for i := len(a.servers) - 1; i >= 0; i-- {
		if err := a.servers[i].Stop(); err != nil {
			a.logger.Error("failed to stop server", "index", i, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("failed to close resource", "index", i, "error", err)
		}
	}

	_ = a.logger.Sync()
	a.logger.Info("application stopped")
	return firstErr
}

// RequestShutdown 以编程方式请求停机（控制台 shutdown 命令）
func (a *BaseApp) RequestShutdown() {
	a.cancel()
}
