package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hardlinedev/reality/pkg/logger"
	"github.com/hardlinedev/reality/pkg/util/conc"
)

// ServerConfig 指标端点配置
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultServerConfig 默认配置
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:9100",
	}
}

// Server 内部 Prometheus 端点
type Server struct {
	logger logger.Logger
	cfg    *ServerConfig
	srv    *http.Server
}

// NewServer 创建指标端点
func NewServer(cfg *ServerConfig, gatherer prometheus.Gatherer, l logger.Logger) *Server {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		logger: l.Named("metrics.server"),
		cfg:    cfg,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start 启动端点
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	conc.Go(func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics endpoint failed", "error", err)
		}
	})
	s.logger.Info("metrics endpoint listening", "addr", s.cfg.ListenAddr)
	return nil
}

// Stop 停止端点
func (s *Server) Stop() error {
	if !s.cfg.Enabled {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("metrics shutdown: %w", err)
	}
	return nil
}
