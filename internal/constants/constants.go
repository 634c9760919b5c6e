package constants

// 配送单生命周期状态
const (
	DeliveryStatusPending    = "pending"
	DeliveryStatusAssigned   = "assigned"
	DeliveryStatusInProgress = "in_progress"
	DeliveryStatusCompleted  = "completed"
	DeliveryStatusCancelled  = "cancelled"
)

// 配送单同步状态
const (
	SyncStatusSynced  = "synced"
	SyncStatusPending = "pending"
	SyncStatusFailed  = "failed"
)

// 同步条目操作类型
const (
	SyncOperationCreate = "create"
	SyncOperationUpdate = "update"
)

// 同步结果类型
const (
	SyncOutcomeSynced   = "synced"
	SyncOutcomeFailed   = "failed"
	SyncOutcomeConflict = "conflict"
)

// 同步失败原因码，客户端据此决定是否重试
const (
	SyncReasonNotFound           = "not_found"
	SyncReasonForbidden          = "forbidden"
	SyncReasonStaleWrite         = "stale_write"
	SyncReasonInvalidItem        = "invalid_item"
	SyncReasonStorageUnavailable = "storage_unavailable"
	SyncReasonInternal           = "internal_error"
)

// 用户角色
const (
	UserRoleCustomer = "customer"
	UserRoleDriver   = "driver"
	UserRoleAdmin    = "admin"
)

// 用户状态
const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// 登录日志状态与失败原因
const (
	LoginLogStatusSuccess          = "success"
	LoginLogStatusFailed           = "failed"
	LoginLogFailReasonInvalidCreds = "invalid_credentials"
	LoginLogFailReasonDisabled     = "user_disabled"
	LoginLogFailReasonInternal     = "internal_error"
	LoginLogFailReasonLocked       = "locked"
)

// 配送单可比较字段名（与 JSON 字段一致）
const (
	DeliveryFieldPickupAddress    = "pickup_address"
	DeliveryFieldDropoffAddress   = "dropoff_address"
	DeliveryFieldPickupLatitude   = "pickup_latitude"
	DeliveryFieldPickupLongitude  = "pickup_longitude"
	DeliveryFieldDropoffLatitude  = "dropoff_latitude"
	DeliveryFieldDropoffLongitude = "dropoff_longitude"
	DeliveryFieldCustomerName     = "customer_name"
	DeliveryFieldCustomerPhone    = "customer_phone"
	DeliveryFieldDeliveryNote     = "delivery_note"
	DeliveryFieldStatus           = "status"
	DeliveryFieldDriverID         = "driver_id"
	DeliveryFieldAssignedByID     = "assigned_by_id"
)

// 异步任务类型
const (
	TaskSyncLedgerAppend = "sync:ledger_append"
)

// 队列名称
const (
	QueueDefault  = "default"
	QueueCritical = "critical"
)
