package repository

import "time"

// DeliveryScope 配送单可见范围：司机看指派给自己的，顾客看自己创建的
type DeliveryScope struct {
	CustomerID uint
	DriverID   uint
}

// SyncLedgerListFilter 查询同步流水的过滤条件
type SyncLedgerListFilter struct {
	Page              int
	PageSize          int
	UserID            uint
	DeliveryRequestID uint
	BatchID           string
	Outcome           string
	CreatedFrom       *time.Time
	CreatedTo         *time.Time
}

// UserLoginLogListFilter 查询登录日志的过滤条件
type UserLoginLogListFilter struct {
	Page        int
	PageSize    int
	UserID      uint
	Email       string
	Status      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}
