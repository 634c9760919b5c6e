package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"
)

const (
	maxHeaderBytes      = 1 << 20
	defaultReadTimeout  = 15 * time.Second
	defaultWriteTimeout = 30 * time.Second
)

// HTTPService 同步 API 的 HTTP 服务
type HTTPService struct {
	server *http.Server
}

// NewHTTPService 按服务器配置创建 HTTP 服务，超时未配置时取默认值
func NewHTTPService(cfg config.ServerConfig, handler http.Handler) *HTTPService {
	read := durationOr(cfg.ReadTimeoutSeconds, defaultReadTimeout)
	return &HTTPService{
		server: &http.Server{
			Addr:              net.JoinHostPort(cfg.Host, cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: read,
			ReadTimeout:       read,
			WriteTimeout:      durationOr(cfg.WriteTimeoutSeconds, defaultWriteTimeout),
			MaxHeaderBytes:    maxHeaderBytes,
		},
	}
}

// Name 服务名称
func (s *HTTPService) Name() string {
	return "http"
}

// Addr 配置的监听地址
func (s *HTTPService) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Start 先绑定端口再开始服务，端口占用等错误直接返回
func (s *HTTPService) Start(_ context.Context) error {
	if s == nil || s.server == nil {
		return errors.New("http server not initialized")
	}
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	logger.Infow("http_listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅关闭，等待进行中的请求在 ctx 内完成
func (s *HTTPService) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func durationOr(seconds int, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}
