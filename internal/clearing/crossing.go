// Package clearing 提供可插拔的清算机制实现。
// 引擎不建模部分成交，因此每个机制只返回可以全额成交的订单。
package clearing

import (
	"sort"
	"time"

	"intraday-sim/internal/marketdata"
	"intraday-sim/internal/sim"
)

// Crossing 将限价越过参考价的订单视为立即对外部流动性成交：
// 买单限价不低于参考价、卖单限价不高于参考价即全额成交，成交价记为参考价。
type Crossing struct {
	source marketdata.DataSource
}

// NewCrossing 构建基于参考价的连续清算机制。
func NewCrossing(source marketdata.DataSource) *Crossing {
	return &Crossing{source: source}
}

func (c *Crossing) Clear(currentTime time.Time, activeOrders map[string]*sim.Order) []*sim.Order {
	var cleared []*sim.Order
	for _, order := range sortedOrders(activeOrders) {
		reference, err := c.source.Value(order.ContractTime, currentTime)
		if err != nil {
			// 没有行情的时段不成交
			continue
		}

		crossed := (order.Side == sim.SideBuy && order.Price >= reference) ||
			(order.Side == sim.SideSell && order.Price <= reference)
		if !crossed {
			continue
		}

		snap := order.Snapshot()
		price := reference
		snap.ExecutionPrice = &price
		cleared = append(cleared, &snap)
	}
	return cleared
}

// sortedOrders 按提交时间再按ID排序，保证清算结果与遍历顺序无关。
func sortedOrders(activeOrders map[string]*sim.Order) []*sim.Order {
	orders := make([]*sim.Order, 0, len(activeOrders))
	for _, order := range activeOrders {
		orders = append(orders, order)
	}
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].SubmissionTime.Equal(orders[j].SubmissionTime) {
			return orders[i].SubmissionTime.Before(orders[j].SubmissionTime)
		}
		return orders[i].OrderID < orders[j].OrderID
	})
	return orders
}
