package marketdata

import (
	"errors"
	"time"
)

// ErrNoData 表示请求的交割时段没有任何行情。
var ErrNoData = errors.New("该交割时段没有行情数据")

// DataSource 为策略与清算机制提供某个交割时段的参考数据，
// 例如日前价格、盘中VWAP或订单簿快照的标量摘要。
type DataSource interface {
	Value(deliveryTime, currentTime time.Time) (float64, error)
}

// SourceFunc 允许使用函数作为数据源。
type SourceFunc func(deliveryTime, currentTime time.Time) (float64, error)

func (f SourceFunc) Value(deliveryTime, currentTime time.Time) (float64, error) {
	if f == nil {
		return 0, ErrNoData
	}
	return f(deliveryTime, currentTime)
}
