package service

import (
	"time"

	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"
)

// deliveryStatusRank 生命周期推进顺序；cancelled 单独处理
var deliveryStatusRank = map[string]int{
	constants.DeliveryStatusPending:    0,
	constants.DeliveryStatusAssigned:   1,
	constants.DeliveryStatusInProgress: 2,
	constants.DeliveryStatusCompleted:  3,
	constants.DeliveryStatusCancelled:  4,
}

// IsTerminalDeliveryStatus 终态不可再变更
func IsTerminalDeliveryStatus(status string) bool {
	return status == constants.DeliveryStatusCompleted || status == constants.DeliveryStatusCancelled
}

// CheckStatusTransition 校验状态流转：只能向前推进，终态不可离开，非终态均可取消
func CheckStatusTransition(from, to string) error {
	if from == to {
		return nil
	}
	fromRank, okFrom := deliveryStatusRank[from]
	toRank, okTo := deliveryStatusRank[to]
	if !okFrom || !okTo || IsTerminalDeliveryStatus(from) {
		return ErrInvalidTransition
	}
	if to == constants.DeliveryStatusCancelled {
		return nil
	}
	if toRank > fromRank {
		return nil
	}
	return ErrInvalidTransition
}

// Resolution 冲突解决结果
type Resolution struct {
	Record         models.DeliveryRequest
	Changed        []string
	ConflictFields []string
	Rejected       []RejectedField
}

// IsConflict 有冲突字段或被拒绝的修改时，结果类型为 conflict
func (r Resolution) IsConflict() bool {
	return len(r.ConflictFields) > 0 || len(r.Rejected) > 0
}

// ResolveConflict 按字段策略合并客户端与服务端记录
// 指派字段始终以服务端为准；状态走状态机；其余字段冲突时按字段最后写入时间后写者胜，平局保留服务端。
func ResolveConflict(client ClientRecord, clientModifiedAt time.Time, server models.DeliveryRequest, conflictFields []string) Resolution {
	resolved := server.Clone()
	conflicts := newFieldSet(conflictFields...)
	delta := newFieldSet(client.Touched...)
	if client.WholeRecord() {
		delta = newFieldSet()
		for _, field := range mutableDeliveryFields {
			if !field.equal(&client.Record, &server) {
				delta[field.name] = struct{}{}
			}
		}
	}

	reported := newFieldSet(conflictFields...)
	changed := newFieldSet()
	var rejected []RejectedField
	for _, field := range mutableDeliveryFields {
		if !delta.has(field.name) || field.equal(&client.Record, &server) {
			continue
		}
		switch field.policy {
		case fieldPolicyServerOwned:
			rejected = append(rejected, RejectedField{
				Field:     field.name,
				Attempted: field.value(&client.Record),
				Kept:      field.value(&server),
			})
			reported[field.name] = struct{}{}
		case fieldPolicyStatus:
			if err := CheckStatusTransition(server.Status, client.Record.Status); err != nil {
				rejected = append(rejected, RejectedField{
					Field:     field.name,
					Attempted: client.Record.Status,
					Kept:      server.Status,
				})
				reported[field.name] = struct{}{}
				continue
			}
			field.assign(&resolved, &client.Record)
			changed[field.name] = struct{}{}
		default:
			if conflicts.has(field.name) && !clientWinsField(field.name, clientModifiedAt, server, client.WholeRecord()) {
				continue
			}
			field.assign(&resolved, &client.Record)
			changed[field.name] = struct{}{}
		}
	}

	return Resolution{
		Record:         resolved,
		Changed:        changed.ordered(),
		ConflictFields: reported.ordered(),
		Rejected:       rejected,
	}
}

// clientWinsField 客户端修改时间严格晚于服务端最后写入时间
// 整条记录模式比较记录的 updated_at，指定字段模式比较该字段的时钟
func clientWinsField(field string, clientModifiedAt time.Time, server models.DeliveryRequest, wholeRecord bool) bool {
	serverAt := server.UpdatedAt
	if !wholeRecord {
		if at, ok := server.FieldClock[field]; ok {
			serverAt = at
		}
	}
	return clientModifiedAt.After(serverAt)
}
