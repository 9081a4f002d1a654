package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Side 表示订单方向。
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Status 表示订单的当前状态。
type Status string

const (
	StatusActive   Status = "active"
	StatusFilled   Status = "filled"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

// EventType 表示产生一条历史记录的生命周期事件。
// 它与 Status 互相独立：EventType 描述事件本身，Status 描述事件发生后订单所处的状态。
type EventType string

const (
	EventSubmitted EventType = "submitted"
	EventUpdated   EventType = "updated"
	EventExpired   EventType = "expired"
	EventFilled    EventType = "filled"
	EventCanceled  EventType = "canceled"
)

// InvalidSideError 表示订单方向不在 buy/sell 之内。
type InvalidSideError struct {
	Side Side
}

func (e *InvalidSideError) Error() string {
	return fmt.Sprintf("订单方向必须为 buy 或 sell，而不是 %q", string(e.Side))
}

// ErrInvalidQuantity 表示订单数量不为正。
var ErrInvalidQuantity = errors.New("订单数量必须大于0")

// Order 表示针对单个交割时段的一笔交易意向。
// 活跃集合中的 Order 只能由引擎修改，策略通过 Decisions 表达变更意图。
type Order struct {
	OrderID    string
	StrategyID string

	Price        float64
	Quantity     float64
	ContractTime time.Time
	Side         Side

	SubmissionTime time.Time
	Status         Status
	EventType      EventType
	ExecutionTime  time.Time
	ExecutionPrice *float64
	UpdateCount    int
}

// Option 调整新订单的可选字段。
type Option func(*Order)

// WithOrderID 指定订单ID，默认为随机UUID。
func WithOrderID(id string) Option {
	return func(o *Order) { o.OrderID = id }
}

// WithStrategyID 标记订单所属的策略。
func WithStrategyID(id string) Option {
	return func(o *Order) { o.StrategyID = id }
}

// WithSubmissionTime 预先指定提交时间，未指定时由引擎在接纳订单时盖章。
func WithSubmissionTime(ts time.Time) Option {
	return func(o *Order) { o.SubmissionTime = ts }
}

// NewOrder 创建一笔新的活跃订单。
// side 非法时返回 *InvalidSideError，quantity 不为正时返回 ErrInvalidQuantity。
func NewOrder(price, quantity float64, contractTime time.Time, side Side, opts ...Option) (*Order, error) {
	if side != SideBuy && side != SideSell {
		return nil, &InvalidSideError{Side: side}
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	order := &Order{
		OrderID:      uuid.NewString(),
		Price:        price,
		Quantity:     quantity,
		ContractTime: contractTime,
		Side:         side,
		Status:       StatusActive,
		EventType:    EventSubmitted,
	}
	for _, opt := range opts {
		opt(order)
	}
	return order, nil
}

// Update 仅覆盖给定的字段并累加 UpdateCount。
func (o *Order) Update(price, quantity *float64) {
	if price != nil {
		o.Price = *price
	}
	if quantity != nil {
		o.Quantity = *quantity
	}
	o.UpdateCount++
}

// Snapshot 返回订单的深拷贝。历史记录由快照构成，后续对活跃订单的修改不会影响它。
func (o *Order) Snapshot() Order {
	snap := *o
	if o.ExecutionPrice != nil {
		price := *o.ExecutionPrice
		snap.ExecutionPrice = &price
	}
	return snap
}

func (o *Order) String() string {
	return fmt.Sprintf("Order(id=%s, %s, price=%.2f, qty=%.2f, contract=%s, status=%s)",
		o.OrderID, o.Side, o.Price, o.Quantity, o.ContractTime.Format(time.RFC3339), o.Status)
}
