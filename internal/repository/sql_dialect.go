package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// 各方言唯一约束冲突的报错特征（小写）
var uniqueViolationMarkers = map[string][]string{
	"postgres": {"sqlstate 23505", "duplicate key value"},
	"sqlite":   {"unique constraint failed"},
}

// IsUniqueViolation 判断是否为唯一约束冲突；未开启 TranslateError 时按驱动报错文本识别
func IsUniqueViolation(db *gorm.DB, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	}
	return isUniqueViolationByDialect(dialectOf(db), err.Error())
}

// dialectOf 无法识别时按 sqlite 处理
func dialectOf(db *gorm.DB) string {
	if db == nil || db.Dialector == nil {
		return "sqlite"
	}
	return normalizeDialect(db.Dialector.Name())
}

func normalizeDialect(name string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	default:
		return "sqlite"
	}
}

func isUniqueViolationByDialect(dialect, message string) bool {
	message = strings.ToLower(message)
	for _, marker := range uniqueViolationMarkers[normalizeDialect(dialect)] {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
