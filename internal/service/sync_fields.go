package service

import (
	"github.com/fleetsync/internal/constants"
	"github.com/fleetsync/internal/models"
)

// 字段解决策略
const (
	fieldPolicyLastWriteWins = iota // 按时间戳后写者胜
	fieldPolicyStatus               // 走状态机
	fieldPolicyServerOwned          // 仅服务端（管理员指派流程）可写
)

type deliveryField struct {
	name   string
	policy int
	equal  func(a, b *models.DeliveryRequest) bool
	assign func(dst, src *models.DeliveryRequest)
	value  func(r *models.DeliveryRequest) interface{}
}

func stringField(name string, get func(r *models.DeliveryRequest) *string) deliveryField {
	return deliveryField{
		name:   name,
		policy: fieldPolicyLastWriteWins,
		equal: func(a, b *models.DeliveryRequest) bool {
			return *get(a) == *get(b)
		},
		assign: func(dst, src *models.DeliveryRequest) {
			*get(dst) = *get(src)
		},
		value: func(r *models.DeliveryRequest) interface{} {
			return *get(r)
		},
	}
}

func coordinateField(name string, get func(r *models.DeliveryRequest) **models.Coordinate) deliveryField {
	return deliveryField{
		name:   name,
		policy: fieldPolicyLastWriteWins,
		equal: func(a, b *models.DeliveryRequest) bool {
			return models.CoordinateEqual(*get(a), *get(b))
		},
		assign: func(dst, src *models.DeliveryRequest) {
			*get(dst) = models.CloneCoordinate(*get(src))
		},
		value: func(r *models.DeliveryRequest) interface{} {
			if c := *get(r); c != nil {
				return c
			}
			return nil
		},
	}
}

func refField(name string, get func(r *models.DeliveryRequest) **uint) deliveryField {
	return deliveryField{
		name:   name,
		policy: fieldPolicyServerOwned,
		equal: func(a, b *models.DeliveryRequest) bool {
			return models.UintPtrEqual(*get(a), *get(b))
		},
		assign: func(dst, src *models.DeliveryRequest) {
			if v := *get(src); v != nil {
				id := *v
				*get(dst) = &id
				return
			}
			*get(dst) = nil
		},
		value: func(r *models.DeliveryRequest) interface{} {
			if v := *get(r); v != nil {
				return *v
			}
			return nil
		},
	}
}

// mutableDeliveryFields 参与冲突检测的字段；ID、顾客、创建时间不可变，不在此列
var mutableDeliveryFields = []deliveryField{
	stringField(constants.DeliveryFieldPickupAddress, func(r *models.DeliveryRequest) *string { return &r.PickupAddress }),
	stringField(constants.DeliveryFieldDropoffAddress, func(r *models.DeliveryRequest) *string { return &r.DropoffAddress }),
	coordinateField(constants.DeliveryFieldPickupLatitude, func(r *models.DeliveryRequest) **models.Coordinate { return &r.PickupLatitude }),
	coordinateField(constants.DeliveryFieldPickupLongitude, func(r *models.DeliveryRequest) **models.Coordinate { return &r.PickupLongitude }),
	coordinateField(constants.DeliveryFieldDropoffLatitude, func(r *models.DeliveryRequest) **models.Coordinate { return &r.DropoffLatitude }),
	coordinateField(constants.DeliveryFieldDropoffLongitude, func(r *models.DeliveryRequest) **models.Coordinate { return &r.DropoffLongitude }),
	stringField(constants.DeliveryFieldCustomerName, func(r *models.DeliveryRequest) *string { return &r.CustomerName }),
	stringField(constants.DeliveryFieldCustomerPhone, func(r *models.DeliveryRequest) *string { return &r.CustomerPhone }),
	stringField(constants.DeliveryFieldDeliveryNote, func(r *models.DeliveryRequest) *string { return &r.DeliveryNote }),
	{
		name:   constants.DeliveryFieldStatus,
		policy: fieldPolicyStatus,
		equal: func(a, b *models.DeliveryRequest) bool {
			return a.Status == b.Status
		},
		assign: func(dst, src *models.DeliveryRequest) {
			dst.Status = src.Status
		},
		value: func(r *models.DeliveryRequest) interface{} {
			return r.Status
		},
	},
	refField(constants.DeliveryFieldDriverID, func(r *models.DeliveryRequest) **uint { return &r.DriverID }),
	refField(constants.DeliveryFieldAssignedByID, func(r *models.DeliveryRequest) **uint { return &r.AssignedByID }),
}

var mutableDeliveryFieldIndex = func() map[string]int {
	index := make(map[string]int, len(mutableDeliveryFields))
	for i, field := range mutableDeliveryFields {
		index[field.name] = i
	}
	return index
}()

// IsMutableDeliveryField 判断字段名是否可由同步写入
func IsMutableDeliveryField(name string) bool {
	_, ok := mutableDeliveryFieldIndex[name]
	return ok
}

// fieldSet 按规范顺序去重的字段集合
type fieldSet map[string]struct{}

func newFieldSet(names ...string) fieldSet {
	set := make(fieldSet, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

func (s fieldSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

// ordered 按字段表顺序输出，保证响应与日志稳定
func (s fieldSet) ordered() []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, 0, len(s))
	for _, field := range mutableDeliveryFields {
		if s.has(field.name) {
			out = append(out, field.name)
		}
	}
	return out
}
