package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/logger"

	"github.com/hibiken/asynq"
)

const (
	// DefaultQueue 默认队列名称
	DefaultQueue = constants.QueueDefault
	// CriticalQueue 审计补写等高优先级任务
	CriticalQueue = constants.QueueCritical

	defaultConcurrency     = 10
	syncLedgerMaxRetry     = 10
	syncLedgerTaskRetained = 24 * time.Hour
)

// Client 同步流水补写任务的投递端；nil 或未启用时所有投递直接跳过
type Client struct {
	inner *asynq.Client
}

// NewClient 创建队列客户端
func NewClient(cfg *config.QueueConfig) (*Client, error) {
	if cfg == nil || !cfg.Enabled {
		return &Client{}, nil
	}
	return &Client{inner: asynq.NewClient(redisOpt(cfg))}, nil
}

// Enabled 判断是否启用
func (c *Client) Enabled() bool {
	return c != nil && c.inner != nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.inner.Close()
}

// EnqueueSyncLedgerAppend 推送同步流水补写任务；未启用队列时返回 false
// 同一批次同一本地标识只会入队一次
func (c *Client) EnqueueSyncLedgerAppend(payload SyncLedgerAppendPayload, opts ...asynq.Option) (bool, error) {
	if !c.Enabled() {
		return false, nil
	}
	task, err := NewSyncLedgerAppendTask(payload)
	if err != nil {
		return false, err
	}
	options := append([]asynq.Option{
		asynq.Queue(CriticalQueue),
		asynq.MaxRetry(syncLedgerMaxRetry),
		asynq.TaskID(SyncLedgerTaskID(payload)),
		asynq.Retention(syncLedgerTaskRetained),
	}, opts...)
	if _, err := c.inner.Enqueue(task, options...); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return true, nil
		}
		return false, err
	}
	return true, nil
}

// SyncLedgerTaskID 补写任务的去重标识
func SyncLedgerTaskID(payload SyncLedgerAppendPayload) string {
	return fmt.Sprintf("ledger:%d:%s:%s", payload.UserID, strings.TrimSpace(payload.BatchID), strings.TrimSpace(payload.ClientLocalID))
}

// BuildServerConfig 生成 worker 端配置：队列权重、并发与失败日志
func BuildServerConfig(cfg *config.QueueConfig) (asynq.RedisClientOpt, asynq.Config) {
	concurrency := defaultConcurrency
	queues := map[string]int{DefaultQueue: 1, CriticalQueue: 2}
	if cfg != nil {
		if cfg.Concurrency > 0 {
			concurrency = cfg.Concurrency
		}
		if len(cfg.Queues) > 0 {
			queues = cfg.Queues
		}
	}
	return redisOpt(cfg), asynq.Config{
		Concurrency: concurrency,
		Queues:      queues,
		Logger:      logger.S().Named("asynq"),
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			logger.Warnw("queue_task_failed",
				"type", task.Type(),
				"retried", retried,
				"max_retry", maxRetry,
				"error", err,
			)
		}),
	}
}

func redisOpt(cfg *config.QueueConfig) asynq.RedisClientOpt {
	if cfg == nil {
		return asynq.RedisClientOpt{Addr: config.RedisEndpoint{}.Addr()}
	}
	return asynq.RedisClientOpt{Addr: cfg.Addr(), Password: cfg.Password, DB: cfg.DB}
}
