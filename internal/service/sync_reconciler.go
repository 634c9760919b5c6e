package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/config"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/metrics"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SyncService 离线同步对账服务
type SyncService struct {
	cfg          config.SyncConfig
	deliveryRepo repository.DeliveryRequestRepository
	userRepo     repository.UserRepository
	identity     *SyncIdentityMapper
	ledger       *SyncLedgerService
	now          func() time.Time
}

// NewSyncService 创建离线同步服务
func NewSyncService(cfg config.SyncConfig, deliveryRepo repository.DeliveryRequestRepository, userRepo repository.UserRepository, identity *SyncIdentityMapper, ledger *SyncLedgerService) *SyncService {
	cfg.Normalize()
	return &SyncService{
		cfg:          cfg,
		deliveryRepo: deliveryRepo,
		userRepo:     userRepo,
		identity:     identity,
		ledger:       ledger,
		now:          time.Now,
	}
}

// syncNow 数据库统一使用微秒精度，避免 sqlite 与 postgres 比较结果不一致
func (s *SyncService) syncNow() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Reconcile 按提交顺序逐条对账，单条失败不影响其余条目
func (s *SyncService) Reconcile(ctx context.Context, user SyncUser, items []PendingSyncItem) (*SyncBatchResult, error) {
	if user.ID == 0 {
		return nil, ErrSyncUserInvalid
	}
	if user.Role != constants.UserRoleCustomer && user.Role != constants.UserRoleDriver {
		return nil, ErrSyncRoleForbidden
	}
	if len(items) > s.cfg.MaxBatchSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrSyncBatchTooLarge, len(items), s.cfg.MaxBatchSize)
	}

	start := time.Now()
	metrics.SyncBatchesTotal.Inc()
	defer func() {
		metrics.SyncBatchDuration.Observe(time.Since(start).Seconds())
	}()

	result := &SyncBatchResult{
		BatchID:  uuid.NewString(),
		Outcomes: make([]SyncOutcome, 0, len(items)),
	}
	affectedUsers := map[uint]struct{}{user.ID: {}}
	for index, item := range items {
		outcome, record := s.reconcileItem(ctx, user, item)
		if record != nil {
			affectedUsers[record.CustomerID] = struct{}{}
			if record.DriverID != nil {
				affectedUsers[*record.DriverID] = struct{}{}
			}
		}
		metrics.SyncItemsTotal.WithLabelValues(operationLabel(outcome.Operation), outcome.Kind).Inc()
		if outcome.Kind == constants.SyncOutcomeFailed {
			logger.Warnw("sync_item_failed",
				"batch_id", result.BatchID,
				"index", index,
				"user_id", user.ID,
				"client_local_id", outcome.LocalID,
				"operation", outcome.Operation,
				"reason", outcome.Reason,
				"message", outcome.Message,
			)
		}
		s.ledger.Append(ctx, ledgerEntryFromOutcome(result.BatchID, user.ID, outcome, s.syncNow()))
		result.Outcomes = append(result.Outcomes, outcome)
	}

	userIDs := make([]uint, 0, len(affectedUsers))
	for id := range affectedUsers {
		userIDs = append(userIDs, id)
	}
	if err := cache.DelSyncStatus(ctx, userIDs...); err != nil {
		logger.Warnw("sync_status_cache_invalidate_failed", "user_id", user.ID, "error", err)
	}

	result.ProcessedAt = s.syncNow()
	result.tally()
	logger.Infow("sync_batch_reconciled",
		"batch_id", result.BatchID,
		"user_id", user.ID,
		"role", user.Role,
		"total", result.Summary.Total,
		"synced", result.Summary.Synced,
		"conflict", result.Summary.Conflict,
		"failed", result.Summary.Failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

// reconcileItem 处理单条记录，任何错误（包括 panic）都转换为 failed 结果
func (s *SyncService) reconcileItem(ctx context.Context, user SyncUser, item PendingSyncItem) (outcome SyncOutcome, record *models.DeliveryRequest) {
	outcome = SyncOutcome{
		LocalID:   strings.TrimSpace(item.ClientLocalID),
		Operation: item.ResolveOperation(),
	}
	if item.ServerID > 0 {
		id := item.ServerID
		outcome.ServerID = &id
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("sync_item_panic",
				"user_id", user.ID,
				"client_local_id", outcome.LocalID,
				"panic", r,
			)
			outcome = failOutcome(outcome, constants.SyncReasonInternal, "internal error")
			record = nil
		}
	}()

	op, err := validatePendingItem(item)
	if err != nil {
		return failOutcome(outcome, classifySyncError(err), err.Error()), nil
	}
	outcome.Operation = op
	switch op {
	case constants.SyncOperationCreate:
		return s.applyCreate(ctx, user, item, outcome)
	default:
		return s.applyUpdate(user, item, outcome)
	}
}

func (s *SyncService) applyCreate(ctx context.Context, user SyncUser, item PendingSyncItem, outcome SyncOutcome) (SyncOutcome, *models.DeliveryRequest) {
	if user.Role != constants.UserRoleCustomer {
		return failOutcome(outcome, constants.SyncReasonForbidden, "only customers may create delivery requests"), nil
	}
	now := s.syncNow()
	var created *models.DeliveryRequest
	result, err := s.identity.ResolveCreate(ctx, user.ID, item.ClientLocalID, func() (*models.DeliveryRequest, error) {
		owner, err := s.userRepo.GetByID(user.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if owner == nil {
			return nil, ErrSyncForbidden
		}
		created = buildCreatedDelivery(owner, item, now)
		return created, nil
	})
	if err != nil {
		return failOutcome(outcome, classifySyncError(err), err.Error()), nil
	}

	id := result.DeliveryRequestID
	outcome.ServerID = &id
	outcome.Kind = constants.SyncOutcomeSynced
	if result.Reused {
		outcome.Message = "already synced"
		logger.Infow("sync_create_replayed",
			"user_id", user.ID,
			"client_local_id", outcome.LocalID,
			"delivery_request_id", id,
		)
		return outcome, nil
	}
	outcome.Message = "created"
	return outcome, created
}

func (s *SyncService) applyUpdate(user SyncUser, item PendingSyncItem, outcome SyncOutcome) (SyncOutcome, *models.DeliveryRequest) {
	var (
		record     *models.DeliveryRequest
		resolution Resolution
		err        error
	)
	attempts := s.cfg.StaleWriteRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			metrics.SyncStaleWriteRetriesTotal.Inc()
			logger.Infow("sync_stale_write_retry",
				"user_id", user.ID,
				"delivery_request_id", item.ServerID,
				"attempt", attempt,
			)
		}
		record, resolution, err = s.applyUpdateOnce(user, item)
		if !errors.Is(err, ErrStaleWrite) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, ErrStaleWrite) || errors.Is(err, ErrStorageUnavailable) {
			if markErr := s.deliveryRepo.MarkSyncStatus(item.ServerID, constants.SyncStatusFailed, s.syncNow()); markErr != nil {
				logger.Warnw("sync_mark_failed_status_failed",
					"delivery_request_id", item.ServerID,
					"error", markErr,
				)
			}
		}
		return failOutcome(outcome, classifySyncError(err), err.Error()), nil
	}

	if resolution.IsConflict() {
		outcome.Kind = constants.SyncOutcomeConflict
		outcome.Resolved = record
		outcome.ConflictFields = resolution.ConflictFields
		outcome.Rejected = resolution.Rejected
		outcome.Message = "resolved: " + strings.Join(resolution.ConflictFields, ",")
		return outcome, record
	}
	outcome.Kind = constants.SyncOutcomeSynced
	outcome.Message = "updated"
	return outcome, record
}

// applyUpdateOnce 在一个事务内完成读取、检测、合并与条件写入
func (s *SyncService) applyUpdateOnce(user SyncUser, item PendingSyncItem) (*models.DeliveryRequest, Resolution, error) {
	var (
		record     *models.DeliveryRequest
		resolution Resolution
	)
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.deliveryRepo.WithTx(tx)
		server, err := s.identity.ResolveUpdate(repo, user, item.ServerID)
		if err != nil {
			return err
		}

		client := ClientRecord{Record: server.Clone(), Touched: item.TouchedFields}
		item.Fields.overlay(&client.Record)
		verdict := DetectConflict(client, item.ClientModifiedAt, *server)
		resolution = ResolveConflict(client, item.ClientModifiedAt, *server, verdict.Fields)

		now := s.syncNow()
		next := resolution.Record
		next.FieldClock.Stamp(now, resolution.Changed...)
		next.UpdatedAt = now
		next.SyncedAt = &now
		next.SyncStatus = constants.SyncStatusSynced
		next.PendingSync = false

		affected, err := repo.UpdateIfUnchangedSince(server.ID, server.Revision, &next)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		if affected == 0 {
			return ErrStaleWrite
		}
		next.Revision = server.Revision + 1
		record = &next
		return nil
	})
	if err != nil && !isSyncItemError(err) {
		err = fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return record, resolution, err
}

func isSyncItemError(err error) bool {
	return errors.Is(err, ErrSyncNotFound) ||
		errors.Is(err, ErrSyncForbidden) ||
		errors.Is(err, ErrStaleWrite) ||
		errors.Is(err, ErrSyncItemInvalid) ||
		errors.Is(err, ErrStorageUnavailable)
}

// classifySyncError 将错误映射为客户端可识别的原因码
func classifySyncError(err error) string {
	switch {
	case errors.Is(err, ErrSyncNotFound):
		return constants.SyncReasonNotFound
	case errors.Is(err, ErrSyncForbidden):
		return constants.SyncReasonForbidden
	case errors.Is(err, ErrStaleWrite):
		return constants.SyncReasonStaleWrite
	case errors.Is(err, ErrSyncItemInvalid):
		return constants.SyncReasonInvalidItem
	default:
		return constants.SyncReasonStorageUnavailable
	}
}

// operationLabel 限制指标标签取值
func operationLabel(op string) string {
	if op == constants.SyncOperationCreate || op == constants.SyncOperationUpdate {
		return op
	}
	return "unknown"
}

func failOutcome(outcome SyncOutcome, reason, message string) SyncOutcome {
	outcome.Kind = constants.SyncOutcomeFailed
	outcome.Reason = reason
	outcome.Message = message
	outcome.Resolved = nil
	outcome.ConflictFields = nil
	outcome.Rejected = nil
	return outcome
}

func ledgerEntryFromOutcome(batchID string, userID uint, outcome SyncOutcome, at time.Time) models.SyncLedgerEntry {
	entry := models.SyncLedgerEntry{
		UserID:        userID,
		BatchID:       batchID,
		ClientLocalID: outcome.LocalID,
		Operation:     outcome.Operation,
		Outcome:       outcome.Kind,
		Reason:        outcome.Reason,
		Message:       outcome.Message,
		CreatedAt:     at,
	}
	if outcome.ServerID != nil {
		id := *outcome.ServerID
		entry.DeliveryRequestID = &id
	}
	return entry
}
