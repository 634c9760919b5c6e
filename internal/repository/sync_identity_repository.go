package repository

import (
	"errors"
	"strings"

	"github.com/fleetsync/internal/models"

	"gorm.io/gorm"
)

// SyncIdentityRepository 身份映射数据访问接口
type SyncIdentityRepository interface {
	Get(userID uint, clientLocalID string) (*models.SyncIdentityMapping, error)
	Create(mapping *models.SyncIdentityMapping) error
	IsUniqueViolation(err error) bool
	WithTx(tx *gorm.DB) SyncIdentityRepository
}

// GormSyncIdentityRepository GORM 实现
type GormSyncIdentityRepository struct {
	db *gorm.DB
}

// NewSyncIdentityRepository 创建身份映射仓库
func NewSyncIdentityRepository(db *gorm.DB) *GormSyncIdentityRepository {
	return &GormSyncIdentityRepository{db: db}
}

// WithTx 绑定事务
func (r *GormSyncIdentityRepository) WithTx(tx *gorm.DB) SyncIdentityRepository {
	if tx == nil {
		return r
	}
	return &GormSyncIdentityRepository{db: tx}
}

// Get 查询映射
func (r *GormSyncIdentityRepository) Get(userID uint, clientLocalID string) (*models.SyncIdentityMapping, error) {
	clientLocalID = strings.TrimSpace(clientLocalID)
	if userID == 0 || clientLocalID == "" {
		return nil, nil
	}
	return firstOrNil[models.SyncIdentityMapping](r.db.Where("user_id = ? AND client_local_id = ?", userID, clientLocalID))
}

// Create 写入映射；同一用户同一本地标识只能成功一次
func (r *GormSyncIdentityRepository) Create(mapping *models.SyncIdentityMapping) error {
	if mapping == nil {
		return errors.New("invalid identity mapping")
	}
	return r.db.Create(mapping).Error
}

// IsUniqueViolation 判断写入失败是否来自唯一索引
func (r *GormSyncIdentityRepository) IsUniqueViolation(err error) bool {
	return IsUniqueViolation(r.db, err)
}
