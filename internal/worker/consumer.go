package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/queue"
	"github.com/fleetsync/internal/service"

	"github.com/hibiken/asynq"
)

// LedgerReplayer 补写同步流水
type LedgerReplayer interface {
	AppendReplay(payload queue.SyncLedgerAppendPayload) error
}

// Consumer 同步流水补写任务的消费端
type Consumer struct {
	ledger LedgerReplayer
}

// NewConsumer ledger 为 nil 时任务被确认但不落库
func NewConsumer(ledger *service.SyncLedgerService) *Consumer {
	if ledger == nil {
		return &Consumer{}
	}
	return &Consumer{ledger: ledger}
}

// Register 把任务类型挂到 mux 上
func (c *Consumer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(queue.TaskSyncLedgerAppend, c.handleSyncLedgerAppend)
}

// handleSyncLedgerAppend 载荷损坏不重试；缺少归属的任务直接确认；落库失败返回错误交给 asynq 重试
func (c *Consumer) handleSyncLedgerAppend(_ context.Context, task *asynq.Task) error {
	payload, err := queue.ParseSyncLedgerAppendPayload(task)
	if err != nil {
		logger.Warnw("worker_ledger_payload_invalid", "error", err)
		return fmt.Errorf("decode ledger payload: %v: %w", err, asynq.SkipRetry)
	}
	log := logger.SW("user_id", payload.UserID, "batch_id", payload.BatchID, "client_local_id", payload.ClientLocalID)
	switch {
	case payload.UserID == 0 || strings.TrimSpace(payload.BatchID) == "":
		log.Debugw("worker_ledger_payload_dropped")
		return nil
	case c.ledger == nil:
		log.Warnw("worker_ledger_unavailable")
		return nil
	}
	if err := c.ledger.AppendReplay(payload); err != nil {
		log.Warnw("worker_ledger_append_failed", "error", err)
		return err
	}
	return nil
}
