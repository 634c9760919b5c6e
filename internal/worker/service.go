package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 托管 asynq server，作为 app.Runner 的一个服务运行
type Service struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	queues map[string]int
}

// NewService 队列未启用时返回错误，由调用方决定是否跳过 worker
func NewService(cfg *config.QueueConfig, consumer *Consumer) (*Service, error) {
	switch {
	case cfg == nil || !cfg.Enabled:
		return nil, errors.New("queue disabled")
	case consumer == nil:
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	svc := &Service{
		server: asynq.NewServer(opt, serverCfg),
		mux:    asynq.NewServeMux(),
		queues: serverCfg.Queues,
	}
	consumer.Register(svc.mux)
	return svc, nil
}

func (s *Service) Name() string { return "worker" }

// Start asynq 在后台协程消费，这里阻塞到 ctx 结束
func (s *Service) Start(ctx context.Context) error {
	if err := s.server.Start(s.mux); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	logger.Infow("worker_started", "queues", s.queues)
	<-ctx.Done()
	return nil
}

// Stop 等待进行中的任务完成；asynq 自身有超时，忽略 ctx
func (s *Service) Stop(_ context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	s.server.Shutdown()
	logger.Infow("worker_stopped")
	return nil
}
