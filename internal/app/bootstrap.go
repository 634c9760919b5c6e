package app

import (
	"errors"
	"fmt"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/provider"
	"github.com/fleetsync/internal/router"
	"github.com/fleetsync/internal/worker"

	"gorm.io/gorm"
)

// BuildRunner 按模式装配 HTTP 与 worker 服务
func BuildRunner(cfg *config.Config, db *gorm.DB, mode string) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	wantAPI, wantWorker, ok := components(mode)
	if !ok {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	// all 模式下队列关闭只跳过 worker，显式 worker 模式则报错
	if wantWorker && !cfg.Queue.Enabled && mode == ModeAll {
		logger.Warnw("app_worker_skipped_queue_disabled", "mode", mode)
		wantWorker = false
	}

	container, err := provider.NewContainer(cfg, db)
	if err != nil {
		return nil, err
	}

	var services []Service
	if wantAPI {
		services = append(services, NewHTTPService(cfg.Server, router.SetupRouter(cfg, container)))
	}
	if wantWorker {
		svc, err := worker.NewService(&cfg.Queue, worker.NewConsumer(container.SyncLedgerService))
		if err != nil {
			_ = container.Close()
			return nil, err
		}
		services = append(services, svc)
	}

	runner := NewRunner(services...)
	runner.OnShutdown(container.Close)
	return runner, nil
}

// Run 应用启动入口
func Run(opts Options) error {
	opts = opts.withDefaults()
	if opts.Config == nil {
		return errors.New("config is nil")
	}
	runner, err := BuildRunner(opts.Config, opts.DB, opts.Mode)
	if err != nil {
		return err
	}
	opts.Logger.Infow("app_start", "mode", opts.Mode, "shutdown_timeout", opts.ShutdownTimeout)
	return RunWithOptions(runner, opts)
}
