package app

import (
	"os"
	"strings"
	"time"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 启动模式：all 同时跑 API 与流水补写 worker
const (
	ModeAll    = "all"
	ModeAPI    = "api"
	ModeWorker = "worker"
)

const defaultShutdownTimeout = 10 * time.Second

// Options 应用启动选项
type Options struct {
	Config  *config.Config
	DB      *gorm.DB
	Logger  *zap.SugaredLogger
	Signals []os.Signal
	// ShutdownTimeout 为 0 时取 server.shutdown_timeout_seconds
	ShutdownTimeout time.Duration
	Mode            string
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = logger.S()
	}
	if o.ShutdownTimeout <= 0 && o.Config != nil {
		o.ShutdownTimeout = time.Duration(o.Config.Server.ShutdownTimeoutSeconds) * time.Second
	}
	if o.ShutdownTimeout <= 0 {
		o.ShutdownTimeout = defaultShutdownTimeout
	}
	if o.Mode = strings.ToLower(strings.TrimSpace(o.Mode)); o.Mode == "" {
		o.Mode = ModeAll
	}
	return o
}

// components 返回模式需要启动的组件，未知模式 ok 为 false
func components(mode string) (api, worker, ok bool) {
	switch mode {
	case ModeAll:
		return true, true, true
	case ModeAPI:
		return true, false, true
	case ModeWorker:
		return false, true, true
	}
	return false, false, false
}
