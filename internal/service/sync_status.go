package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fleetsync/internal/cache"
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/logger"
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"
)

const maxLedgerPageSize = 100

// SyncStatusResult 用户视角的同步状态
type SyncStatusResult struct {
	LastSync        *time.Time               `json:"last_sync"`
	PendingCount    int64                    `json:"pending_count"`
	FailedCount     int64                    `json:"failed_count"`
	SyncedCount     int64                    `json:"synced_count"`
	PendingRequests []models.DeliveryRequest `json:"pending_requests"`
}

// SyncScopeForUser 顾客看自己创建的配送单，司机看指派给自己的
func SyncScopeForUser(user SyncUser) (repository.DeliveryScope, error) {
	if user.ID == 0 {
		return repository.DeliveryScope{}, ErrSyncUserInvalid
	}
	switch user.Role {
	case constants.UserRoleCustomer:
		return repository.DeliveryScope{CustomerID: user.ID}, nil
	case constants.UserRoleDriver:
		return repository.DeliveryScope{DriverID: user.ID}, nil
	default:
		return repository.DeliveryScope{}, ErrSyncRoleForbidden
	}
}

// GetStatus 查询同步状态，结果短暂缓存并在每个批次结束后失效
func (s *SyncService) GetStatus(ctx context.Context, user SyncUser) (*SyncStatusResult, error) {
	scope, err := SyncScopeForUser(user)
	if err != nil {
		return nil, err
	}

	var cached SyncStatusResult
	hit, err := cache.GetSyncStatus(ctx, user.ID, &cached)
	if err != nil {
		logger.Warnw("sync_status_cache_read_failed", "user_id", user.ID, "error", err)
	}
	if hit {
		return &cached, nil
	}

	counts, err := s.deliveryRepo.CountBySyncStatus(scope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	pending, err := s.deliveryRepo.ListPendingSync(scope, s.cfg.PendingListLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	latest, err := s.ledger.LatestSuccessful(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	result := &SyncStatusResult{
		PendingCount:    counts[constants.SyncStatusPending],
		FailedCount:     counts[constants.SyncStatusFailed],
		SyncedCount:     counts[constants.SyncStatusSynced],
		PendingRequests: pending,
	}
	if result.PendingRequests == nil {
		result.PendingRequests = []models.DeliveryRequest{}
	}
	if latest != nil {
		at := latest.CreatedAt
		result.LastSync = &at
	}

	ttl := time.Duration(s.cfg.StatusCacheSeconds) * time.Second
	if err := cache.SetSyncStatus(ctx, user.ID, result, ttl); err != nil {
		logger.Warnw("sync_status_cache_write_failed", "user_id", user.ID, "error", err)
	}
	return result, nil
}

// ListLedger 分页查询当前用户的同步流水
func (s *SyncService) ListLedger(user SyncUser, page, pageSize int) ([]models.SyncLedgerEntry, int64, error) {
	if _, err := SyncScopeForUser(user); err != nil {
		return nil, 0, err
	}
	if pageSize <= 0 || pageSize > maxLedgerPageSize {
		pageSize = maxLedgerPageSize
	}
	entries, total, err := s.ledger.List(repository.SyncLedgerListFilter{
		Page:     page,
		PageSize: pageSize,
		UserID:   user.ID,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return entries, total, nil
}
