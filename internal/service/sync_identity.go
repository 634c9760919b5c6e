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
	"github.com/fleetsync/internal/models"
	"github.com/fleetsync/internal/repository"

	"gorm.io/gorm"
)

// DeliveryAccessChecker 判断用户能否写入某条配送单
type DeliveryAccessChecker interface {
	OwnsOrAssigned(user SyncUser, req *models.DeliveryRequest) bool
}

// OwnershipChecker 顾客本人或已指派的司机可写
type OwnershipChecker struct{}

// OwnsOrAssigned 实现 DeliveryAccessChecker
func (OwnershipChecker) OwnsOrAssigned(user SyncUser, req *models.DeliveryRequest) bool {
	if req == nil || user.ID == 0 {
		return false
	}
	if req.CustomerID == user.ID {
		return true
	}
	return req.DriverID != nil && *req.DriverID == user.ID
}

// SyncIdentityMapper 负责客户端本地标识与持久标识之间的映射
type SyncIdentityMapper struct {
	cfg          config.SyncConfig
	deliveryRepo repository.DeliveryRequestRepository
	identityRepo repository.SyncIdentityRepository
	access       DeliveryAccessChecker
}

// NewSyncIdentityMapper 创建身份映射器
func NewSyncIdentityMapper(cfg config.SyncConfig, deliveryRepo repository.DeliveryRequestRepository, identityRepo repository.SyncIdentityRepository, access DeliveryAccessChecker) *SyncIdentityMapper {
	if access == nil {
		access = OwnershipChecker{}
	}
	return &SyncIdentityMapper{
		cfg:          cfg,
		deliveryRepo: deliveryRepo,
		identityRepo: identityRepo,
		access:       access,
	}
}

// CreateResult 离线创建的身份解析结果
type CreateResult struct {
	DeliveryRequestID uint
	// Reused 表示命中已有映射，本次未新建配送单
	Reused bool
}

var errIdentityRace = errors.New("identity mapping created concurrently")

// ResolveCreate 为离线创建分配持久标识；同一 (用户, 本地标识) 只会分配一次
// build 仅在需要新建时调用，返回待写入的配送单
func (m *SyncIdentityMapper) ResolveCreate(ctx context.Context, userID uint, clientLocalID string, build func() (*models.DeliveryRequest, error)) (*CreateResult, error) {
	clientLocalID = strings.TrimSpace(clientLocalID)
	release, err := cache.AcquireIdentityLock(ctx, userID, clientLocalID,
		time.Duration(m.cfg.IdentityLockTTLMS)*time.Millisecond,
		time.Duration(m.cfg.IdentityLockWaitMS)*time.Millisecond,
	)
	if err != nil {
		// 拿不到锁时仍可依靠唯一索引保证不重复分配
		logger.Warnw("sync_identity_lock_unavailable",
			"user_id", userID,
			"client_local_id", clientLocalID,
			"error", err,
		)
	}
	defer release()

	existing, err := m.identityRepo.Get(userID, clientLocalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if existing != nil {
		return &CreateResult{DeliveryRequestID: existing.DeliveryRequestID, Reused: true}, nil
	}

	record, err := build()
	if err != nil {
		return nil, err
	}

	var createdID uint
	err = models.DB.Transaction(func(tx *gorm.DB) error {
		identityRepo := m.identityRepo.WithTx(tx)
		mapping, err := identityRepo.Get(userID, clientLocalID)
		if err != nil {
			return err
		}
		if mapping != nil {
			createdID = mapping.DeliveryRequestID
			return errIdentityRace
		}
		id, err := m.deliveryRepo.WithTx(tx).Insert(record)
		if err != nil {
			return err
		}
		if err := identityRepo.Create(&models.SyncIdentityMapping{
			UserID:            userID,
			ClientLocalID:     clientLocalID,
			DeliveryRequestID: id,
		}); err != nil {
			if identityRepo.IsUniqueViolation(err) {
				return errIdentityRace
			}
			return err
		}
		createdID = id
		return nil
	})
	if err == nil {
		return &CreateResult{DeliveryRequestID: createdID}, nil
	}
	if !errors.Is(err, errIdentityRace) {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	// 并发请求先写入了映射，事务已回滚，复用对方的持久标识
	if createdID != 0 {
		return &CreateResult{DeliveryRequestID: createdID, Reused: true}, nil
	}
	mapping, err := m.identityRepo.Get(userID, clientLocalID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if mapping == nil {
		return nil, fmt.Errorf("%w: identity mapping missing after conflict", ErrStorageUnavailable)
	}
	logger.Infow("sync_identity_race_reused",
		"user_id", userID,
		"client_local_id", clientLocalID,
		"delivery_request_id", mapping.DeliveryRequestID,
	)
	return &CreateResult{DeliveryRequestID: mapping.DeliveryRequestID, Reused: true}, nil
}

// ResolveUpdate 在事务内加锁读取并校验更新目标
func (m *SyncIdentityMapper) ResolveUpdate(repo repository.DeliveryRequestRepository, user SyncUser, serverID uint) (*models.DeliveryRequest, error) {
	if repo == nil {
		repo = m.deliveryRepo
	}
	req, err := repo.GetByIDForUpdate(serverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if req == nil {
		return nil, ErrSyncNotFound
	}
	if !m.access.OwnsOrAssigned(user, req) {
		return nil, ErrSyncForbidden
	}
	return req, nil
}

// buildCreatedDelivery 按客户端提议构造新配送单；指派字段只能由管理员写入，忽略客户端值
func buildCreatedDelivery(user *models.User, item PendingSyncItem, now time.Time) *models.DeliveryRequest {
	req := &models.DeliveryRequest{
		ClientLocalID: strings.TrimSpace(item.ClientLocalID),
		CustomerID:    user.ID,
		CustomerName:  user.DisplayName,
		CustomerPhone: user.Phone,
		Status:        constants.DeliveryStatusPending,
		FieldClock:    models.FieldClock{},
	}
	fields := *item.Fields
	fields.DriverID = nil
	fields.AssignedByID = nil
	fields.overlay(req)
	if req.Status != constants.DeliveryStatusCancelled {
		req.Status = constants.DeliveryStatusPending
	}
	req.SyncStatus = constants.SyncStatusSynced
	req.PendingSync = false
	req.CreatedAt = now
	req.UpdatedAt = now
	syncedAt := now
	req.SyncedAt = &syncedAt
	for _, field := range mutableDeliveryFields {
		req.FieldClock.Stamp(now, field.name)
	}
	return req
}
