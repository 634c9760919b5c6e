package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FieldClock 记录每个可变字段最后一次被服务端写入的时间
type FieldClock map[string]time.Time

// Value 实现 driver.Valuer 接口
func (f FieldClock) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

// Scan 实现 sql.Scanner 接口
func (f *FieldClock) Scan(value interface{}) error {
	out := FieldClock{}
	switch v := value.(type) {
	case nil:
	case []byte:
		if len(v) > 0 {
			if err := json.Unmarshal(v, &out); err != nil {
				return err
			}
		}
	case string:
		if v != "" {
			if err := json.Unmarshal([]byte(v), &out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported field clock type %T", value)
	}
	*f = out
	return nil
}

// ChangedSince 字段在 base 之后被服务端修改过；无记录时回退到整行更新时间
func (f FieldClock) ChangedSince(field string, base time.Time, fallback time.Time) bool {
	if at, ok := f[field]; ok {
		return at.After(base)
	}
	return fallback.After(base)
}

// Stamp 标记字段的修改时间
func (f FieldClock) Stamp(at time.Time, fields ...string) {
	for _, field := range fields {
		f[field] = at
	}
}

// Clone 复制字段时钟
func (f FieldClock) Clone() FieldClock {
	out := make(FieldClock, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// DeliveryRequest 配送单
type DeliveryRequest struct {
	ID               uint        `gorm:"primarykey" json:"id"`                                                  // 主键（持久标识）
	ClientLocalID    string      `gorm:"type:varchar(128);index" json:"client_local_id,omitempty"`             // 离线创建时的客户端标识
	CustomerID       uint        `gorm:"index;not null" json:"customer_id"`                                     // 下单顾客
	DriverID         *uint       `gorm:"index" json:"driver_id"`                                                // 指派司机
	AssignedByID     *uint       `gorm:"index" json:"assigned_by_id"`                                           // 指派管理员
	PickupAddress    string      `gorm:"type:text;not null" json:"pickup_address"`                              // 取件地址
	DropoffAddress   string      `gorm:"type:text;not null" json:"dropoff_address"`                             // 送达地址
	PickupLatitude   *Coordinate `gorm:"type:decimal(9,6)" json:"pickup_latitude"`                              // 取件纬度
	PickupLongitude  *Coordinate `gorm:"type:decimal(9,6)" json:"pickup_longitude"`                             // 取件经度
	DropoffLatitude  *Coordinate `gorm:"type:decimal(9,6)" json:"dropoff_latitude"`                             // 送达纬度
	DropoffLongitude *Coordinate `gorm:"type:decimal(9,6)" json:"dropoff_longitude"`                            // 送达经度
	CustomerName     string      `gorm:"type:varchar(100);not null" json:"customer_name"`                       // 联系人
	CustomerPhone    string      `gorm:"type:varchar(20);not null" json:"customer_phone"`                       // 联系电话
	DeliveryNote     string      `gorm:"type:text" json:"delivery_note"`                                        // 备注
	Status           string      `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`       // 生命周期状态
	SyncStatus       string      `gorm:"type:varchar(20);index;not null;default:'synced'" json:"sync_status"`   // 同步状态
	PendingSync      bool        `gorm:"not null;default:false" json:"pending_sync"`                            // 是否待同步
	Revision         uint64      `gorm:"not null;default:0" json:"revision"`                                    // 写入版本（乐观锁）
	FieldClock       FieldClock  `gorm:"type:text" json:"-"`                                                    // 字段修改时间
	CreatedAt        time.Time   `gorm:"index" json:"created_at"`                                               // 创建时间
	UpdatedAt        time.Time   `gorm:"index" json:"updated_at"`                                               // 更新时间
	SyncedAt         *time.Time  `json:"synced_at"`                                                             // 最后同步时间
	AssignedAt       *time.Time  `json:"assigned_at"`                                                           // 指派时间
}

// TableName 指定表名
func (DeliveryRequest) TableName() string {
	return "delivery_requests"
}

// Clone 深拷贝，供纯函数比较与合并使用
func (d DeliveryRequest) Clone() DeliveryRequest {
	out := d
	out.DriverID = cloneUint(d.DriverID)
	out.AssignedByID = cloneUint(d.AssignedByID)
	out.PickupLatitude = CloneCoordinate(d.PickupLatitude)
	out.PickupLongitude = CloneCoordinate(d.PickupLongitude)
	out.DropoffLatitude = CloneCoordinate(d.DropoffLatitude)
	out.DropoffLongitude = CloneCoordinate(d.DropoffLongitude)
	out.FieldClock = d.FieldClock.Clone()
	out.SyncedAt = cloneTime(d.SyncedAt)
	out.AssignedAt = cloneTime(d.AssignedAt)
	return out
}

// UintPtrEqual 比较两个可空 ID
func UintPtrEqual(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func cloneUint(v *uint) *uint {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
