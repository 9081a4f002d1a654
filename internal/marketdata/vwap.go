package marketdata

import (
	"fmt"
	"sort"
	"time"
)

// VWAPSource 基于合成成交提供参考价：取当前时刻之前最近一笔成交所在小时的VWAP，
// 该交割时段尚无成交时回退到合约整体VWAP。
type VWAPSource struct {
	byDelivery map[int64][]Trade
}

// NewVWAPSource 按交割时段索引成交数据。
func NewVWAPSource(trades []Trade) *VWAPSource {
	byDelivery := make(map[int64][]Trade)
	for _, trade := range trades {
		key := trade.DeliveryTime.Unix()
		byDelivery[key] = append(byDelivery[key], trade)
	}
	for _, group := range byDelivery {
		sort.Slice(group, func(i, j int) bool {
			return group[i].TradeTime.Before(group[j].TradeTime)
		})
	}
	return &VWAPSource{byDelivery: byDelivery}
}

func (s *VWAPSource) Value(deliveryTime, currentTime time.Time) (float64, error) {
	trades, ok := s.byDelivery[deliveryTime.Truncate(time.Hour).Unix()]
	if !ok || len(trades) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoData, deliveryTime.Format(time.RFC3339))
	}

	value := trades[0].OverallVWAP
	for _, trade := range trades {
		if trade.TradeTime.After(currentTime) {
			break
		}
		value = trade.HourlyVWAP
	}
	return value, nil
}
