package service

import (
	"time"

	"github.com/fleetsync/internal/models"
)

// ConflictVerdict 冲突检测结论，Fields 为空表示无冲突
type ConflictVerdict struct {
	Fields []string
}

// HasConflict 是否存在字段冲突
func (v ConflictVerdict) HasConflict() bool {
	return len(v.Fields) > 0
}

// DetectConflict 比较客户端记录与当前服务端记录
// 服务端在客户端基准时间之后未更新时直接无冲突；
// 客户端声明了修改字段时，只有服务端在基准之后也改过、且取值不同的字段才算冲突。
func DetectConflict(client ClientRecord, clientModifiedAt time.Time, server models.DeliveryRequest) ConflictVerdict {
	if !server.UpdatedAt.After(clientModifiedAt) {
		return ConflictVerdict{}
	}
	candidates := newFieldSet(client.Touched...)
	if client.WholeRecord() {
		candidates = newFieldSet()
		for _, field := range mutableDeliveryFields {
			candidates[field.name] = struct{}{}
		}
	}

	conflicts := newFieldSet()
	for _, field := range mutableDeliveryFields {
		if !candidates.has(field.name) {
			continue
		}
		if field.equal(&client.Record, &server) {
			continue
		}
		if !client.WholeRecord() && !server.FieldClock.ChangedSince(field.name, clientModifiedAt, server.UpdatedAt) {
			continue
		}
		conflicts[field.name] = struct{}{}
	}
	return ConflictVerdict{Fields: conflicts.ordered()}
}
