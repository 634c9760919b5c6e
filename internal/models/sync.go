package models

import "time"

// SyncIdentityMapping 客户端本地标识到持久标识的映射
// 说明：(user_id, client_local_id) 唯一，重复提交同一离线创建时复用已分配的配送单。
type SyncIdentityMapping struct {
	ID                uint      `gorm:"primarykey" json:"id"`                                                                    // 主键
	UserID            uint      `gorm:"not null;uniqueIndex:idx_sync_identity_user_local,priority:1" json:"user_id"`             // 提交用户
	ClientLocalID     string    `gorm:"type:varchar(128);not null;uniqueIndex:idx_sync_identity_user_local,priority:2" json:"client_local_id"` // 客户端本地标识
	DeliveryRequestID uint      `gorm:"not null;index" json:"delivery_request_id"`                                               // 持久标识
	CreatedAt         time.Time `gorm:"index" json:"created_at"`                                                                 // 创建时间
}

// TableName 指定表名
func (SyncIdentityMapping) TableName() string {
	return "sync_identity_mappings"
}

// SyncLedgerEntry 同步审计流水（只追加）
type SyncLedgerEntry struct {
	ID                uint      `gorm:"primarykey" json:"id"`                               // 主键
	DeliveryRequestID *uint     `gorm:"index" json:"delivery_request_id"`                   // 持久标识（分配前失败时为空）
	UserID            uint      `gorm:"index;not null" json:"user_id"`                      // 提交用户
	BatchID           string    `gorm:"type:varchar(64);index;not null" json:"batch_id"`    // 批次ID
	ClientLocalID     string    `gorm:"type:varchar(128);index" json:"client_local_id"`     // 客户端本地标识
	Operation         string    `gorm:"type:varchar(16);not null" json:"operation"`         // create/update
	Outcome           string    `gorm:"type:varchar(16);index;not null" json:"outcome"`     // synced/failed/conflict
	Reason            string    `gorm:"type:varchar(32);default:''" json:"reason"`          // 失败原因码
	Message           string    `gorm:"type:text" json:"message"`                           // 说明
	CreatedAt         time.Time `gorm:"index" json:"created_at"`                            // 记录时间
}

// TableName 指定表名
func (SyncLedgerEntry) TableName() string {
	return "sync_ledger_entries"
}
