package service

import (
	"context"

	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/metrics"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/queue"
	"github.com/fleetsync/internal/repository"
)

// SyncLedgerService 同步审计流水
type SyncLedgerService struct {
	repo        repository.SyncLedgerRepository
	queueClient *queue.Client
}

// NewSyncLedgerService 创建同步流水服务
func NewSyncLedgerService(repo repository.SyncLedgerRepository, queueClient *queue.Client) *SyncLedgerService {
	return &SyncLedgerService{repo: repo, queueClient: queueClient}
}

// Append 追加一条流水；失败只记录日志并转入队列补写，不影响同步结果
func (s *SyncLedgerService) Append(ctx context.Context, entry models.SyncLedgerEntry) {
	err := s.repo.Append(&entry)
	if err == nil {
		return
	}
	metrics.SyncLedgerAppendFailuresTotal.Inc()
	logger.Warnw("sync_ledger_append_failed",
		"user_id", entry.UserID,
		"batch_id", entry.BatchID,
		"client_local_id", entry.ClientLocalID,
		"outcome", entry.Outcome,
		"error", err,
	)
	if ctx.Err() != nil {
		return
	}
	queued, err := s.queueClient.EnqueueSyncLedgerAppend(ledgerPayloadFromEntry(entry))
	if err != nil {
		logger.Errorw("sync_ledger_enqueue_failed",
			"batch_id", entry.BatchID,
			"client_local_id", entry.ClientLocalID,
			"error", err,
		)
		return
	}
	if !queued {
		logger.Warnw("sync_ledger_entry_dropped",
			"batch_id", entry.BatchID,
			"client_local_id", entry.ClientLocalID,
			"reason", "queue_disabled",
		)
	}
}

// AppendReplay 由队列消费者补写流水，返回错误以触发任务重试
func (s *SyncLedgerService) AppendReplay(payload queue.SyncLedgerAppendPayload) error {
	entry := models.SyncLedgerEntry{
		DeliveryRequestID: payload.DeliveryRequestID,
		UserID:            payload.UserID,
		BatchID:           payload.BatchID,
		ClientLocalID:     payload.ClientLocalID,
		Operation:         payload.Operation,
		Outcome:           payload.Outcome,
		Reason:            payload.Reason,
		Message:           payload.Message,
		CreatedAt:         payload.CreatedAt,
	}
	return s.repo.Append(&entry)
}

// LatestSuccessful 用户最近一次成功同步的流水
func (s *SyncLedgerService) LatestSuccessful(userID uint) (*models.SyncLedgerEntry, error) {
	return s.repo.LatestSuccessfulForUser(userID)
}

// List 查询流水
func (s *SyncLedgerService) List(filter repository.SyncLedgerListFilter) ([]models.SyncLedgerEntry, int64, error) {
	return s.repo.List(filter)
}

func ledgerPayloadFromEntry(entry models.SyncLedgerEntry) queue.SyncLedgerAppendPayload {
	return queue.SyncLedgerAppendPayload{
		DeliveryRequestID: entry.DeliveryRequestID,
		UserID:            entry.UserID,
		BatchID:           entry.BatchID,
		ClientLocalID:     entry.ClientLocalID,
		Operation:         entry.Operation,
		Outcome:           entry.Outcome,
		Reason:            entry.Reason,
		Message:           entry.Message,
		CreatedAt:         entry.CreatedAt,
	}
}
