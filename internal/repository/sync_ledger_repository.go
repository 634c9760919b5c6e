package repository

import (
	"errors"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"

	"gorm.io/gorm"
)

// SyncLedgerRepository 同步流水数据访问接口（只追加）
type SyncLedgerRepository interface {
	Append(entry *models.SyncLedgerEntry) error
	LatestSuccessfulForUser(userID uint) (*models.SyncLedgerEntry, error)
	List(filter SyncLedgerListFilter) ([]models.SyncLedgerEntry, int64, error)
}

// GormSyncLedgerRepository GORM 实现
type GormSyncLedgerRepository struct {
	db *gorm.DB
}

// NewSyncLedgerRepository 创建同步流水仓库
func NewSyncLedgerRepository(db *gorm.DB) *GormSyncLedgerRepository {
	return &GormSyncLedgerRepository{db: db}
}

// Append 追加流水
func (r *GormSyncLedgerRepository) Append(entry *models.SyncLedgerEntry) error {
	if entry == nil {
		return errors.New("invalid ledger entry")
	}
	return r.db.Create(entry).Error
}

// LatestSuccessfulForUser 用户最近一次成功（含冲突已解决）的同步记录
func (r *GormSyncLedgerRepository) LatestSuccessfulForUser(userID uint) (*models.SyncLedgerEntry, error) {
	if userID == 0 {
		return nil, nil
	}
	var entry models.SyncLedgerEntry
	result := r.db.Where("user_id = ? AND outcome IN ?", userID, []string{constants.SyncOutcomeSynced, constants.SyncOutcomeConflict}).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&entry)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &entry, nil
}

// List 分页查询流水
func (r *GormSyncLedgerRepository) List(filter SyncLedgerListFilter) ([]models.SyncLedgerEntry, int64, error) {
	query := r.db.Model(&models.SyncLedgerEntry{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if filter.DeliveryRequestID != 0 {
		query = query.Where("delivery_request_id = ?", filter.DeliveryRequestID)
	}
	if filter.BatchID != "" {
		query = query.Where("batch_id = ?", filter.BatchID)
	}
	if filter.Outcome != "" {
		query = query.Where("outcome = ?", filter.Outcome)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	query = query.Scopes(paginate(filter.Page, filter.PageSize))

	var entries []models.SyncLedgerEntry
	if err := query.Order("id ASC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
