package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// CoordinatePlaces 经纬度保留的小数位，与 decimal(9,6) 列一致
const CoordinatePlaces = 6

// Coordinate 经纬度分量（保留 6 位小数）
type Coordinate struct {
	decimal.Decimal
}

// NewCoordinate 从浮点数创建坐标分量
func NewCoordinate(value float64) *Coordinate {
	return &Coordinate{Decimal: decimal.NewFromFloat(value).Round(CoordinatePlaces)}
}

// ParseCoordinate 从字符串创建坐标分量
func ParseCoordinate(value string) (*Coordinate, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	return &Coordinate{Decimal: d.Round(CoordinatePlaces)}, nil
}

// Valid 校验纬度/经度取值范围
func (c Coordinate) Valid(limit int64) bool {
	bound := decimal.NewFromInt(limit)
	return c.Decimal.GreaterThanOrEqual(bound.Neg()) && c.Decimal.LessThanOrEqual(bound)
}

// MarshalJSON 输出为 JSON 数字
func (c Coordinate) MarshalJSON() ([]byte, error) {
	return []byte(c.Decimal.Round(CoordinatePlaces).String()), nil
}

// UnmarshalJSON 解析坐标（字符串或数字）
func (c *Coordinate) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	raw := b
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		raw = []byte(s)
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return fmt.Errorf("invalid coordinate %q: %w", string(raw), err)
	}
	c.Decimal = d.Round(CoordinatePlaces)
	return nil
}

// Value 用于数据库写入
func (c Coordinate) Value() (driver.Value, error) {
	return c.Decimal.Round(CoordinatePlaces).String(), nil
}

// Scan 用于数据库读取
func (c *Coordinate) Scan(value interface{}) error {
	if err := c.Decimal.Scan(value); err != nil {
		return err
	}
	c.Decimal = c.Decimal.Round(CoordinatePlaces)
	return nil
}

// CoordinateEqual 比较两个可空坐标
func CoordinateEqual(a, b *Coordinate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Decimal.Equal(b.Decimal)
}

// CloneCoordinate 复制可空坐标
func CloneCoordinate(c *Coordinate) *Coordinate {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
