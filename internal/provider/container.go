package provider

import (
	"errors"
	"fmt"

	"github.com/fleetsync/internal/authz"
	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/metrics"
	"github.com/fleetsync/internal/queue"
	"github.com/fleetsync/internal/repository"
	"github.com/fleetsync/internal/service"

	"gorm.io/gorm"
)

// Container 进程级依赖；HTTP 处理器与 worker 从这里取服务
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	UserRepo         repository.UserRepository
	UserLoginLogRepo repository.UserLoginLogRepository
	DeliveryRepo     repository.DeliveryRequestRepository
	SyncIdentityRepo repository.SyncIdentityRepository
	SyncLedgerRepo   repository.SyncLedgerRepository

	AuthzService       *authz.Service
	UserAuthService    *service.UserAuthService
	SyncLedgerService  *service.SyncLedgerService
	SyncIdentityMapper *service.SyncIdentityMapper
	SyncService        *service.SyncService
}

// NewContainer 组装依赖。Redis 与队列是可选的，连不上只记日志；
// 授权策略加载失败则无法判定路由权限，直接返回错误
func NewContainer(cfg *config.Config, db *gorm.DB) (*Container, error) {
	if cfg == nil || db == nil {
		return nil, errors.New("container requires config and database")
	}
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_redis_unavailable", "error", err)
	}
	if cfg.Metrics.Enabled {
		metrics.Register()
	}

	c := &Container{
		Config:           cfg,
		QueueClient:      openQueue(&cfg.Queue),
		UserRepo:         repository.NewUserRepository(db),
		UserLoginLogRepo: repository.NewUserLoginLogRepository(db),
		DeliveryRepo:     repository.NewDeliveryRequestRepository(db),
		SyncIdentityRepo: repository.NewSyncIdentityRepository(db),
		SyncLedgerRepo:   repository.NewSyncLedgerRepository(db),
	}

	authzService, err := authz.NewService(db)
	if err != nil {
		return nil, fmt.Errorf("init authz: %w", err)
	}
	if err := authzService.BootstrapBuiltinRoles(); err != nil {
		return nil, fmt.Errorf("bootstrap builtin roles: %w", err)
	}
	c.AuthzService = authzService

	c.UserAuthService = service.NewUserAuthService(cfg, c.UserRepo, c.UserLoginLogRepo)
	c.SyncLedgerService = service.NewSyncLedgerService(c.SyncLedgerRepo, c.QueueClient)
	c.SyncIdentityMapper = service.NewSyncIdentityMapper(cfg.Sync, c.DeliveryRepo, c.SyncIdentityRepo, service.OwnershipChecker{})
	c.SyncService = service.NewSyncService(cfg.Sync, c.DeliveryRepo, c.UserRepo, c.SyncIdentityMapper, c.SyncLedgerService)
	return c, nil
}

// openQueue 队列关闭或连接失败时返回 nil，流水改为同步写入
func openQueue(cfg *config.QueueConfig) *queue.Client {
	if !cfg.Enabled {
		return nil
	}
	client, err := queue.NewClient(cfg)
	if err != nil {
		logger.Errorw("provider_queue_client_failed", "error", err)
		return nil
	}
	return client
}

// Close 释放容器持有的外部连接
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	var errs []error
	if err := c.QueueClient.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close queue client: %w", err))
	}
	if err := cache.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close redis: %w", err))
	}
	return errors.Join(errs...)
}
