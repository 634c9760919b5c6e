package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryRequestRepository 配送单数据访问接口
type DeliveryRequestRepository interface {
	GetByID(id uint) (*models.DeliveryRequest, error)
	GetByIDForUpdate(id uint) (*models.DeliveryRequest, error)
	GetByClientLocalID(userID uint, clientLocalID string) (*models.DeliveryRequest, error)
	Insert(req *models.DeliveryRequest) (uint, error)
	UpdateIfUnchangedSince(id uint, expectedRevision uint64, next *models.DeliveryRequest) (int64, error)
	MarkSyncStatus(id uint, syncStatus string, at time.Time) error
	AssignDriver(id, driverID, adminID uint, at time.Time) (int64, error)
	UpdateStatus(id uint, status string, at time.Time) (int64, error)
	CountBySyncStatus(scope DeliveryScope) (map[string]int64, error)
	ListPendingSync(scope DeliveryScope, limit int) ([]models.DeliveryRequest, error)
	WithTx(tx *gorm.DB) DeliveryRequestRepository
}

// GormDeliveryRequestRepository GORM 实现
type GormDeliveryRequestRepository struct {
	db *gorm.DB
}

// NewDeliveryRequestRepository 创建配送单仓库
func NewDeliveryRequestRepository(db *gorm.DB) *GormDeliveryRequestRepository {
	return &GormDeliveryRequestRepository{db: db}
}

// WithTx 绑定事务
func (r *GormDeliveryRequestRepository) WithTx(tx *gorm.DB) DeliveryRequestRepository {
	if tx == nil {
		return r
	}
	return &GormDeliveryRequestRepository{db: tx}
}

// GetByID 根据持久标识获取配送单
func (r *GormDeliveryRequestRepository) GetByID(id uint) (*models.DeliveryRequest, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.DeliveryRequest](r.db, id)
}

// GetByIDForUpdate 在事务内加锁读取配送单（sqlite 忽略行锁）
func (r *GormDeliveryRequestRepository) GetByIDForUpdate(id uint) (*models.DeliveryRequest, error) {
	if id == 0 {
		return nil, nil
	}
	return firstOrNil[models.DeliveryRequest](r.db.Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

// GetByClientLocalID 通过身份映射查找用户离线创建的配送单
func (r *GormDeliveryRequestRepository) GetByClientLocalID(userID uint, clientLocalID string) (*models.DeliveryRequest, error) {
	clientLocalID = strings.TrimSpace(clientLocalID)
	if userID == 0 || clientLocalID == "" {
		return nil, nil
	}
	return firstOrNil[models.DeliveryRequest](r.db.Model(&models.DeliveryRequest{}).
		Select("delivery_requests.*").
		Joins("JOIN sync_identity_mappings m ON m.delivery_request_id = delivery_requests.id").
		Where("m.user_id = ? AND m.client_local_id = ?", userID, clientLocalID))
}

// Insert 新建配送单并返回持久标识
func (r *GormDeliveryRequestRepository) Insert(req *models.DeliveryRequest) (uint, error) {
	if req == nil {
		return 0, errors.New("invalid delivery request")
	}
	if req.FieldClock == nil {
		req.FieldClock = models.FieldClock{}
	}
	if err := r.db.Create(req).Error; err != nil {
		return 0, err
	}
	return req.ID, nil
}

// UpdateIfUnchangedSince 仅当版本未变化时写入，返回受影响行数（0 表示写入竞争失败）
func (r *GormDeliveryRequestRepository) UpdateIfUnchangedSince(id uint, expectedRevision uint64, next *models.DeliveryRequest) (int64, error) {
	if id == 0 || next == nil {
		return 0, errors.New("invalid delivery request update")
	}
	result := r.db.Model(&models.DeliveryRequest{}).
		Where("id = ? AND revision = ?", id, expectedRevision).
		Updates(map[string]interface{}{
			"pickup_address":    next.PickupAddress,
			"dropoff_address":   next.DropoffAddress,
			"pickup_latitude":   next.PickupLatitude,
			"pickup_longitude":  next.PickupLongitude,
			"dropoff_latitude":  next.DropoffLatitude,
			"dropoff_longitude": next.DropoffLongitude,
			"customer_name":     next.CustomerName,
			"customer_phone":    next.CustomerPhone,
			"delivery_note":     next.DeliveryNote,
			"status":            next.Status,
			"driver_id":         next.DriverID,
			"assigned_by_id":    next.AssignedByID,
			"assigned_at":       next.AssignedAt,
			"sync_status":       next.SyncStatus,
			"pending_sync":      next.PendingSync,
			"synced_at":         next.SyncedAt,
			"field_clock":       next.FieldClock,
			"updated_at":        next.UpdatedAt,
			"revision":          expectedRevision + 1,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// MarkSyncStatus 仅更新同步状态，不触碰业务字段与版本
func (r *GormDeliveryRequestRepository) MarkSyncStatus(id uint, syncStatus string, at time.Time) error {
	if id == 0 {
		return nil
	}
	updates := map[string]interface{}{
		"sync_status":  syncStatus,
		"pending_sync": syncStatus != constants.SyncStatusSynced,
	}
	if syncStatus == constants.SyncStatusSynced {
		updates["synced_at"] = at
	}
	return r.db.Model(&models.DeliveryRequest{}).
		Where("id = ?", id).
		UpdateColumns(updates).Error
}

// AssignDriver 管理员指派司机；与同步写入一样递增版本并记录字段时钟
// 服务端写入即权威值，synced_at 与 updated_at 一并推进
func (r *GormDeliveryRequestRepository) AssignDriver(id, driverID, adminID uint, at time.Time) (int64, error) {
	if id == 0 || driverID == 0 {
		return 0, nil
	}
	var affected int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var current models.DeliveryRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		clock := current.FieldClock.Clone()
		clock.Stamp(at, constants.DeliveryFieldDriverID, constants.DeliveryFieldAssignedByID)
		updates := map[string]interface{}{
			"driver_id":      driverID,
			"assigned_by_id": adminID,
			"assigned_at":    at,
			"updated_at":     at,
			"synced_at":      at,
			"revision":       current.Revision + 1,
		}
		if current.Status == constants.DeliveryStatusPending {
			updates["status"] = constants.DeliveryStatusAssigned
			clock.Stamp(at, constants.DeliveryFieldStatus)
		}
		updates["field_clock"] = clock
		result := tx.Model(&models.DeliveryRequest{}).
			Where("id = ? AND revision = ?", id, current.Revision).
			Updates(updates)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

// UpdateStatus 司机端直接更新状态，同样推进 synced_at
func (r *GormDeliveryRequestRepository) UpdateStatus(id uint, status string, at time.Time) (int64, error) {
	if id == 0 {
		return 0, nil
	}
	var affected int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var current models.DeliveryRequest
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		clock := current.FieldClock.Clone()
		clock.Stamp(at, constants.DeliveryFieldStatus)
		result := tx.Model(&models.DeliveryRequest{}).
			Where("id = ? AND revision = ?", id, current.Revision).
			Updates(map[string]interface{}{
				"status":      status,
				"field_clock": clock,
				"updated_at":  at,
				"synced_at":   at,
				"revision":    current.Revision + 1,
			})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

// CountBySyncStatus 按同步状态统计可见配送单
func (r *GormDeliveryRequestRepository) CountBySyncStatus(scope DeliveryScope) (map[string]int64, error) {
	type row struct {
		SyncStatus string
		Total      int64
	}
	var rows []row
	query := applyDeliveryScope(r.db.Model(&models.DeliveryRequest{}), scope)
	if err := query.Select("sync_status, COUNT(*) AS total").Group("sync_status").Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := map[string]int64{
		constants.SyncStatusSynced:  0,
		constants.SyncStatusPending: 0,
		constants.SyncStatusFailed:  0,
	}
	for _, item := range rows {
		counts[item.SyncStatus] = item.Total
	}
	return counts, nil
}

// ListPendingSync 列出仍未同步成功的配送单
func (r *GormDeliveryRequestRepository) ListPendingSync(scope DeliveryScope, limit int) ([]models.DeliveryRequest, error) {
	query := applyDeliveryScope(r.db.Model(&models.DeliveryRequest{}), scope).
		Where("sync_status IN ?", []string{constants.SyncStatusPending, constants.SyncStatusFailed})
	query = query.Scopes(paginate(1, limit))
	var items []models.DeliveryRequest
	if err := query.Order("updated_at DESC, id DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func applyDeliveryScope(query *gorm.DB, scope DeliveryScope) *gorm.DB {
	switch {
	case scope.DriverID != 0:
		return query.Where("driver_id = ?", scope.DriverID)
	case scope.CustomerID != 0:
		return query.Where("customer_id = ?", scope.CustomerID)
	default:
		// 未限定范围时不返回任何数据
		return query.Where("1 = 0")
	}
}
