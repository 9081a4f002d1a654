package sim

import "time"

// ClearingMechanism 决定在当前时刻哪些活跃订单被撮合成交。
// 传入的集合对实现方是只读的，返回的每一笔订单都会被引擎按完全成交处理（不建模部分成交）。
// 引擎按 OrderID 回查返回的订单，返回未知或重复的ID会使本次模拟失败。
type ClearingMechanism interface {
	Clear(currentTime time.Time, activeOrders map[string]*Order) []*Order
}

// ClearFunc 允许使用函数作为清算机制。
type ClearFunc func(currentTime time.Time, activeOrders map[string]*Order) []*Order

func (f ClearFunc) Clear(currentTime time.Time, activeOrders map[string]*Order) []*Order {
	if f == nil {
		return nil
	}
	return f(currentTime, activeOrders)
}

// Feedback 汇总单个策略在一个时间步内的反馈。
// 三个序列互不相交，元素均为深拷贝，策略可以自由持有。
type Feedback struct {
	Expired []*Order
	Cleared []*Order
	Active  []*Order
}

// Decisions 描述策略在本步希望引擎应用的变更。
// Updated 与 Canceled 中引用未知ID不构成错误，引擎按无操作丢弃。
type Decisions struct {
	New      []*Order
	Updated  []*Order
	Canceled []string
}

// Strategy 是可插拔的交易决策者。引擎在每一步先投递反馈，再索取决策。
type Strategy interface {
	// ID 返回策略标识，订单通过 StrategyID 归属于策略。
	ID() string
	// Initialize 在第一步之前被调用恰好一次，告知模拟窗口。
	Initialize(startTime, endTime time.Time)
	// ProcessResults 接收本步反馈，策略应据此刷新自身的记账。
	ProcessResults(feedback Feedback)
	// UpdateOrders 在反馈投递之后被调用，产出本步的交易决策。
	UpdateOrders(currentTime time.Time) Decisions
}
