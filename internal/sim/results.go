package sim

import "time"

// Record 是事件日志中的一行，每个生命周期事件对应一行。
// 列名与取值是对下游分析工具的硬性契约，不可改动。
type Record struct {
	OrderID        string    `json:"order_id"`
	StrategyID     string    `json:"strategy_id"`
	Side           string    `json:"side"`
	Price          float64   `json:"price"`
	Quantity       float64   `json:"quantity"`
	ContractTime   time.Time `json:"contract_time"`
	SubmissionTime time.Time `json:"submission_time"`
	ExecutionTime  time.Time `json:"execution_time"`
	Status         string    `json:"status"`
	EventType      string    `json:"event_type"`
	UpdateCount    int       `json:"update_count"`
	ExecutionPrice *float64  `json:"execution_price"`
}

// Results 将订单历史物化为表格行。历史是只追加的，返回的切片与内部状态无共享。
func (s *Simulation) Results() []Record {
	records := make([]Record, len(s.history))
	for i, order := range s.history {
		records[i] = recordFromOrder(order)
	}
	return records
}

func recordFromOrder(o Order) Record {
	record := Record{
		OrderID:        o.OrderID,
		StrategyID:     o.StrategyID,
		Side:           string(o.Side),
		Price:          o.Price,
		Quantity:       o.Quantity,
		ContractTime:   o.ContractTime,
		SubmissionTime: o.SubmissionTime,
		ExecutionTime:  o.ExecutionTime,
		Status:         string(o.Status),
		EventType:      string(o.EventType),
		UpdateCount:    o.UpdateCount,
	}
	if o.ExecutionPrice != nil {
		price := *o.ExecutionPrice
		record.ExecutionPrice = &price
	}
	return record
}
