package repository

import (
	"errors"

	"gorm.io/gorm"
)

// firstOrNil 取第一条记录，不存在时返回 (nil, nil)
func firstOrNil[T any](query *gorm.DB, conds ...interface{}) (*T, error) {
	var out T
	err := query.First(&out, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// paginate 分页 scope；pageSize 非正数时不分页，页码小于 1 按第一页处理
func paginate(page, pageSize int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if pageSize <= 0 {
			return db
		}
		return db.Limit(pageSize).Offset((max(page, 1) - 1) * pageSize)
	}
}
