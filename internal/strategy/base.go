// Package strategy 提供策略的公共记账与内置的示例策略。
package strategy

import (
	"time"

	"github.com/google/uuid"

	"intraday-sim/internal/sim"
)

// Base 承担策略的公共部分：标识、模拟窗口与存续订单的本地视图。
// 本地视图只是缓存，引擎持有的集合才是权威。具体策略内嵌 Base 并实现 UpdateOrders。
type Base struct {
	id        string
	startTime time.Time
	endTime   time.Time
	active    []*sim.Order
	byID      map[string]*sim.Order
}

// NewBase 创建策略基座，id 为空时生成随机UUID。
func NewBase(id string) Base {
	if id == "" {
		id = uuid.NewString()
	}
	return Base{id: id, byID: make(map[string]*sim.Order)}
}

func (b *Base) ID() string {
	return b.id
}

// Initialize 记录模拟窗口。
func (b *Base) Initialize(startTime, endTime time.Time) {
	b.startTime = startTime
	b.endTime = endTime
}

// Window 返回模拟窗口。
func (b *Base) Window() (time.Time, time.Time) {
	return b.startTime, b.endTime
}

// ProcessResults 用引擎下发的存续订单刷新本地视图。
func (b *Base) ProcessResults(feedback sim.Feedback) {
	b.active = feedback.Active
	b.byID = make(map[string]*sim.Order, len(feedback.Active))
	for _, order := range feedback.Active {
		b.byID[order.OrderID] = order
	}
}

// ActiveOrders 按引擎下发的顺序返回本策略的存续订单。
func (b *Base) ActiveOrders() []*sim.Order {
	return b.active
}

// ActiveOrder 按ID查找存续订单。
func (b *Base) ActiveOrder(orderID string) (*sim.Order, bool) {
	order, ok := b.byID[orderID]
	return order, ok
}

// CreateOrder 以本策略为所有者创建新订单。
func (b *Base) CreateOrder(price, quantity float64, contractTime time.Time, side sim.Side) (*sim.Order, error) {
	return sim.NewOrder(price, quantity, contractTime, side, sim.WithStrategyID(b.id))
}
