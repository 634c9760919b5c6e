package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"
)

const (
	maxClientLocalIDLength = 128
	latitudeLimit          = 90
	longitudeLimit         = 180
)

// SyncUser 发起同步的已认证用户
type SyncUser struct {
	ID   uint
	Role string
}

// DeliveryFields 客户端提议的字段值，nil 表示未提供
type DeliveryFields struct {
	PickupAddress    *string
	DropoffAddress   *string
	PickupLatitude   *models.Coordinate
	PickupLongitude  *models.Coordinate
	DropoffLatitude  *models.Coordinate
	DropoffLongitude *models.Coordinate
	CustomerName     *string
	CustomerPhone    *string
	DeliveryNote     *string
	Status           *string
	DriverID         *uint
	AssignedByID     *uint
}

// provided 返回已提供值的字段集合
func (f *DeliveryFields) provided() fieldSet {
	set := fieldSet{}
	if f == nil {
		return set
	}
	mark := func(ok bool, name string) {
		if ok {
			set[name] = struct{}{}
		}
	}
	mark(f.PickupAddress != nil, constants.DeliveryFieldPickupAddress)
	mark(f.DropoffAddress != nil, constants.DeliveryFieldDropoffAddress)
	mark(f.PickupLatitude != nil, constants.DeliveryFieldPickupLatitude)
	mark(f.PickupLongitude != nil, constants.DeliveryFieldPickupLongitude)
	mark(f.DropoffLatitude != nil, constants.DeliveryFieldDropoffLatitude)
	mark(f.DropoffLongitude != nil, constants.DeliveryFieldDropoffLongitude)
	mark(f.CustomerName != nil, constants.DeliveryFieldCustomerName)
	mark(f.CustomerPhone != nil, constants.DeliveryFieldCustomerPhone)
	mark(f.DeliveryNote != nil, constants.DeliveryFieldDeliveryNote)
	mark(f.Status != nil, constants.DeliveryFieldStatus)
	mark(f.DriverID != nil, constants.DeliveryFieldDriverID)
	mark(f.AssignedByID != nil, constants.DeliveryFieldAssignedByID)
	return set
}

// overlay 将已提供的字段覆盖到 dst 上
func (f *DeliveryFields) overlay(dst *models.DeliveryRequest) {
	if f == nil || dst == nil {
		return
	}
	if f.PickupAddress != nil {
		dst.PickupAddress = strings.TrimSpace(*f.PickupAddress)
	}
	if f.DropoffAddress != nil {
		dst.DropoffAddress = strings.TrimSpace(*f.DropoffAddress)
	}
	if f.PickupLatitude != nil {
		dst.PickupLatitude = models.CloneCoordinate(f.PickupLatitude)
	}
	if f.PickupLongitude != nil {
		dst.PickupLongitude = models.CloneCoordinate(f.PickupLongitude)
	}
	if f.DropoffLatitude != nil {
		dst.DropoffLatitude = models.CloneCoordinate(f.DropoffLatitude)
	}
	if f.DropoffLongitude != nil {
		dst.DropoffLongitude = models.CloneCoordinate(f.DropoffLongitude)
	}
	if f.CustomerName != nil {
		dst.CustomerName = strings.TrimSpace(*f.CustomerName)
	}
	if f.CustomerPhone != nil {
		dst.CustomerPhone = strings.TrimSpace(*f.CustomerPhone)
	}
	if f.DeliveryNote != nil {
		dst.DeliveryNote = *f.DeliveryNote
	}
	if f.Status != nil {
		dst.Status = strings.TrimSpace(*f.Status)
	}
	if f.DriverID != nil {
		id := *f.DriverID
		dst.DriverID = &id
	}
	if f.AssignedByID != nil {
		id := *f.AssignedByID
		dst.AssignedByID = &id
	}
}

// PendingSyncItem 客户端离线队列中的一条待同步记录
type PendingSyncItem struct {
	ClientLocalID    string
	ServerID         uint
	Operation        string
	ClientModifiedAt time.Time
	Fields           *DeliveryFields
	// TouchedFields 为 nil 时按整行比较；非 nil 时只比较列出的字段
	TouchedFields []string
}

// ResolveOperation 推断操作类型：未显式给出时有 ServerID 视为 update
func (i PendingSyncItem) ResolveOperation() string {
	op := strings.ToLower(strings.TrimSpace(i.Operation))
	if op != "" {
		return op
	}
	if i.ServerID > 0 {
		return constants.SyncOperationUpdate
	}
	return constants.SyncOperationCreate
}

// ClientRecord 客户端视角的完整记录及其意图修改的字段
type ClientRecord struct {
	Record  models.DeliveryRequest
	Touched []string
}

// WholeRecord 客户端未声明修改字段，按整行不等判断冲突
func (c ClientRecord) WholeRecord() bool {
	return c.Touched == nil
}

// RejectedField 被策略拒绝的客户端修改
type RejectedField struct {
	Field     string      `json:"field"`
	Attempted interface{} `json:"attempted"`
	Kept      interface{} `json:"kept"`
}

// SyncOutcome 单条同步结果
type SyncOutcome struct {
	LocalID        string                  `json:"local_id"`
	ServerID       *uint                   `json:"server_id,omitempty"`
	Operation      string                  `json:"operation"`
	Kind           string                  `json:"kind"`
	Resolved       *models.DeliveryRequest `json:"resolved,omitempty"`
	ConflictFields []string                `json:"conflict_fields,omitempty"`
	Rejected       []RejectedField         `json:"rejected,omitempty"`
	Reason         string                  `json:"reason,omitempty"`
	Message        string                  `json:"message,omitempty"`
}

// SyncSummary 批次结果统计
type SyncSummary struct {
	Total    int `json:"total"`
	Synced   int `json:"synced"`
	Failed   int `json:"failed"`
	Conflict int `json:"conflict"`
}

// SyncBatchResult 批次同步结果
type SyncBatchResult struct {
	BatchID     string        `json:"batch_id"`
	Outcomes    []SyncOutcome `json:"outcomes"`
	Summary     SyncSummary   `json:"summary"`
	ProcessedAt time.Time     `json:"processed_at"`
}

func (r *SyncBatchResult) tally() {
	r.Summary = SyncSummary{Total: len(r.Outcomes)}
	for _, outcome := range r.Outcomes {
		switch outcome.Kind {
		case constants.SyncOutcomeSynced:
			r.Summary.Synced++
		case constants.SyncOutcomeConflict:
			r.Summary.Conflict++
		default:
			r.Summary.Failed++
		}
	}
}

func invalidItem(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrSyncItemInvalid, fmt.Sprintf(format, args...))
}

// validatePendingItem 校验条目并返回规范化后的操作类型
func validatePendingItem(item PendingSyncItem) (string, error) {
	localID := strings.TrimSpace(item.ClientLocalID)
	if localID == "" {
		return "", invalidItem("client local id is required")
	}
	if len(localID) > maxClientLocalIDLength {
		return "", invalidItem("client local id exceeds %d characters", maxClientLocalIDLength)
	}
	op := item.ResolveOperation()
	switch op {
	case constants.SyncOperationCreate:
	case constants.SyncOperationUpdate:
		if item.ServerID == 0 {
			return op, invalidItem("update requires server id")
		}
		if item.ClientModifiedAt.IsZero() {
			return op, invalidItem("update requires client modified timestamp")
		}
	default:
		return op, invalidItem("unknown operation %q", item.Operation)
	}

	provided := item.Fields.provided()
	for _, name := range item.TouchedFields {
		if !IsMutableDeliveryField(name) {
			return op, invalidItem("unknown touched field %q", name)
		}
		if !provided.has(name) {
			return op, invalidItem("touched field %q has no value", name)
		}
	}

	fields := item.Fields
	if fields != nil {
		if fields.Status != nil && !isKnownDeliveryStatus(strings.TrimSpace(*fields.Status)) {
			return op, invalidItem("unknown status %q", *fields.Status)
		}
		for _, lat := range []*models.Coordinate{fields.PickupLatitude, fields.DropoffLatitude} {
			if lat != nil && !lat.Valid(latitudeLimit) {
				return op, invalidItem("latitude %s out of range", lat.String())
			}
		}
		for _, lng := range []*models.Coordinate{fields.PickupLongitude, fields.DropoffLongitude} {
			if lng != nil && !lng.Valid(longitudeLimit) {
				return op, invalidItem("longitude %s out of range", lng.String())
			}
		}
	}
	if op == constants.SyncOperationCreate {
		if fields == nil || fields.PickupAddress == nil || strings.TrimSpace(*fields.PickupAddress) == "" {
			return op, invalidItem("pickup address is required")
		}
		if fields.DropoffAddress == nil || strings.TrimSpace(*fields.DropoffAddress) == "" {
			return op, invalidItem("dropoff address is required")
		}
	}
	return op, nil
}

func isKnownDeliveryStatus(status string) bool {
	_, ok := deliveryStatusRank[status]
	return ok
}
