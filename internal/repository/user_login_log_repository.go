package repository

import (
	"strings"
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"

	"gorm.io/gorm"
)

// UserLoginLogRepository 登录日志数据访问接口
type UserLoginLogRepository interface {
	Create(log *models.UserLoginLog) error
	CountFailuresSince(email string, since time.Time) (int64, error)
	List(filter UserLoginLogListFilter) ([]models.UserLoginLog, int64, error)
}

// GormUserLoginLogRepository GORM 实现
type GormUserLoginLogRepository struct {
	db *gorm.DB
}

// NewUserLoginLogRepository 创建登录日志仓库
func NewUserLoginLogRepository(db *gorm.DB) *GormUserLoginLogRepository {
	return &GormUserLoginLogRepository{db: db}
}

// Create 写入一条登录日志
func (r *GormUserLoginLogRepository) Create(log *models.UserLoginLog) error {
	if log == nil {
		return nil
	}
	return r.db.Create(log).Error
}

// CountFailuresSince 统计邮箱在 since 与最近一次成功登录之后的失败次数，锁定期间的拒绝不计入
func (r *GormUserLoginLogRepository) CountFailuresSince(email string, since time.Time) (int64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return 0, nil
	}
	var lastSuccess models.UserLoginLog
	err := r.db.Where("email = ? AND status = ? AND created_at >= ?", email, constants.LoginLogStatusSuccess, since).
		Order("created_at desc").
		Limit(1).
		Find(&lastSuccess).Error
	if err != nil {
		return 0, err
	}
	if lastSuccess.ID != 0 {
		since = lastSuccess.CreatedAt
	}

	var count int64
	err = r.db.Model(&models.UserLoginLog{}).
		Where("email = ? AND status = ? AND created_at >= ?", email, constants.LoginLogStatusFailed, since).
		Where("fail_reason <> ?", constants.LoginLogFailReasonLocked).
		Count(&count).Error
	return count, err
}

// List 按条件分页查询登录日志，最新的在前
func (r *GormUserLoginLogRepository) List(filter UserLoginLogListFilter) ([]models.UserLoginLog, int64, error) {
	query := r.db.Model(&models.UserLoginLog{})
	if filter.UserID != 0 {
		query = query.Where("user_id = ?", filter.UserID)
	}
	if email := strings.ToLower(strings.TrimSpace(filter.Email)); email != "" {
		query = query.Where("email = ?", email)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
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
	var logs []models.UserLoginLog
	if err := query.Scopes(paginate(filter.Page, filter.PageSize)).Order("id desc").Find(&logs).Error; err != nil {
		return nil, 0, err
	}
	return logs, total, nil
}
