package sim

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config 定义一次模拟的时间窗口与步长。
type Config struct {
	StartTime time.Time
	EndTime   time.Time
	TimeStep  time.Duration
}

func (c Config) validate() error {
	if c.TimeStep <= 0 {
		return errors.New("sim: time_step 必须大于0")
	}
	if c.EndTime.Before(c.StartTime) {
		return errors.New("sim: end_time 不能早于 start_time")
	}
	return nil
}

// Simulation 驱动离散时间步循环。
// 活跃订单集合与订单历史由它独占，所有变更经由固定顺序的阶段集中应用：
// 到期 → 清算 → 反馈 → 决策应用 → 推进时钟。
type Simulation struct {
	cfg        Config
	strategies []Strategy
	clearing   ClearingMechanism
	logger     *zap.Logger

	currentTime  time.Time
	activeOrders map[string]*Order
	orderSeq     []string // 活跃订单的接纳顺序，保证遍历与分组的确定性
	terminal     map[string]struct{}
	history      []Order
}

// NewSimulation 构建模拟引擎。clearing 可以为 nil，此时订单只会到期。
func NewSimulation(cfg Config, strategies []Strategy, clearing ClearingMechanism, logger *zap.Logger) (*Simulation, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	for i, strategy := range strategies {
		if strategy == nil {
			return nil, fmt.Errorf("sim: 第%d个策略为空", i)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Simulation{
		cfg:          cfg,
		strategies:   strategies,
		clearing:     clearing,
		logger:       logger,
		currentTime:  cfg.StartTime,
		activeOrders: make(map[string]*Order),
		terminal:     make(map[string]struct{}),
	}, nil
}

// Run 执行完整模拟并返回事件日志。
// 策略或清算机制违反契约时运行立即失败，已经产生的状态不再可信。
func (s *Simulation) Run(ctx context.Context) ([]Record, error) {
	s.logger.Info("模拟开始",
		zap.Time("start", s.cfg.StartTime),
		zap.Time("end", s.cfg.EndTime),
		zap.Duration("step", s.cfg.TimeStep),
		zap.Int("strategies", len(s.strategies)),
	)

	for _, strategy := range s.strategies {
		strategy.Initialize(s.cfg.StartTime, s.cfg.EndTime)
	}

	for !s.currentTime.After(s.cfg.EndTime) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("模拟被中断: %w", err)
		}
		if err := s.step(); err != nil {
			return nil, err
		}
	}

	s.logger.Info("模拟结束", zap.Int("events", len(s.history)))
	return s.Results(), nil
}

// CurrentTime 返回模拟时钟的当前值。
func (s *Simulation) CurrentTime() time.Time {
	return s.currentTime
}

// ActiveOrderCount 返回活跃订单数量。
func (s *Simulation) ActiveOrderCount() int {
	return len(s.activeOrders)
}

// step 执行一个时间步。阶段顺序是硬性不变量，调整顺序会改变模拟语义。
func (s *Simulation) step() error {
	expired := s.expireContracts()

	var cleared []*Order
	if s.clearing != nil {
		var err error
		cleared, err = s.applyClearing(s.clearing.Clear(s.currentTime, s.activeOrders))
		if err != nil {
			return err
		}
	}

	s.deliverFeedback(expired, cleared)

	if err := s.applyDecisions(); err != nil {
		return err
	}

	s.currentTime = s.currentTime.Add(s.cfg.TimeStep)
	return nil
}

// expireContracts 将交割时刻严格早于当前时刻的订单移出活跃集合。
// contract_time == current_time 的订单不到期。
func (s *Simulation) expireContracts() []*Order {
	var expired []*Order
	for _, id := range append([]string(nil), s.orderSeq...) {
		order := s.activeOrders[id]
		if !order.ContractTime.Before(s.currentTime) {
			continue
		}

		snap := order.Snapshot()
		snap.Status = StatusExpired
		snap.EventType = EventExpired
		snap.ExecutionTime = s.currentTime
		s.history = append(s.history, snap)

		order.Status = StatusExpired
		order.EventType = EventExpired
		order.ExecutionTime = s.currentTime
		expired = append(expired, order)
		s.removeActive(id)
	}
	return expired
}

// applyClearing 将清算机制返回的订单按完全成交处理。
// 返回的订单按ID回查活跃集合，未知或重复的ID说明清算机制违反契约。
func (s *Simulation) applyClearing(returned []*Order) ([]*Order, error) {
	var cleared []*Order
	for _, result := range returned {
		if result == nil {
			return nil, errors.New("清算机制返回了空订单")
		}
		order, ok := s.activeOrders[result.OrderID]
		if !ok {
			return nil, fmt.Errorf("清算机制返回了未知或重复的订单 %s", result.OrderID)
		}

		order.Status = StatusFilled
		order.EventType = EventFilled
		order.ExecutionTime = s.currentTime
		if result.ExecutionPrice != nil {
			price := *result.ExecutionPrice
			order.ExecutionPrice = &price
		}
		s.history = append(s.history, order.Snapshot())
		cleared = append(cleared, order)
		s.removeActive(order.OrderID)
	}
	return cleared, nil
}

// deliverFeedback 按策略ID划分本步的到期、成交与存续订单并投递给各个策略。
// 划分保持遭遇顺序，投递顺序为引擎持有的策略列表顺序。
func (s *Simulation) deliverFeedback(expired, cleared []*Order) {
	expiredBy := groupByStrategy(expired)
	clearedBy := groupByStrategy(cleared)
	activeBy := groupByStrategy(s.orderedActive())

	for _, strategy := range s.strategies {
		id := strategy.ID()
		strategy.ProcessResults(Feedback{
			Expired: cloneAll(expiredBy[id]),
			Cleared: cloneAll(clearedBy[id]),
			Active:  cloneAll(activeBy[id]),
		})
	}
}

// applyDecisions 依次向每个策略索取决策，并按新增、更新、撤销的顺序集中应用。
func (s *Simulation) applyDecisions() error {
	for _, strategy := range s.strategies {
		decisions := strategy.UpdateOrders(s.currentTime)
		if err := s.admitNewOrders(decisions.New); err != nil {
			return fmt.Errorf("策略 %s: %w", strategy.ID(), err)
		}
		s.applyUpdates(decisions.Updated)
		s.applyCancels(decisions.Canceled)
	}
	return nil
}

// admitNewOrders 接纳新订单。一个ID终结后不允许重新进入活跃集合。
func (s *Simulation) admitNewOrders(orders []*Order) error {
	for _, order := range orders {
		if order == nil {
			return errors.New("提交了空订单")
		}
		if _, ok := s.activeOrders[order.OrderID]; ok {
			return fmt.Errorf("订单 %s 已处于活跃状态，不能重复提交", order.OrderID)
		}
		if _, ok := s.terminal[order.OrderID]; ok {
			return fmt.Errorf("订单 %s 已终结，不能重新提交", order.OrderID)
		}

		if order.SubmissionTime.IsZero() {
			order.SubmissionTime = s.currentTime
		}
		order.Status = StatusActive
		order.EventType = EventSubmitted
		s.activeOrders[order.OrderID] = order
		s.orderSeq = append(s.orderSeq, order.OrderID)
		s.history = append(s.history, order.Snapshot())
	}
	return nil
}

// applyUpdates 将价格与数量变更应用到引擎持有的订单上。
// 历史先记录变更前的快照；引用未知ID按无操作处理，以容忍策略的陈旧视图。
func (s *Simulation) applyUpdates(updates []*Order) {
	for _, update := range updates {
		if update == nil {
			continue
		}
		order, ok := s.activeOrders[update.OrderID]
		if !ok {
			continue
		}

		snap := order.Snapshot()
		snap.EventType = EventUpdated
		snap.ExecutionTime = s.currentTime
		s.history = append(s.history, snap)

		price, quantity := update.Price, update.Quantity
		order.Update(&price, &quantity)
	}
}

// applyCancels 撤销活跃订单，未知ID按无操作处理。
func (s *Simulation) applyCancels(orderIDs []string) {
	for _, id := range orderIDs {
		order, ok := s.activeOrders[id]
		if !ok {
			continue
		}

		order.Status = StatusCanceled
		order.EventType = EventCanceled
		order.ExecutionTime = s.currentTime
		s.history = append(s.history, order.Snapshot())
		s.removeActive(id)
	}
}

func (s *Simulation) removeActive(id string) {
	delete(s.activeOrders, id)
	for i, seq := range s.orderSeq {
		if seq == id {
			s.orderSeq = append(s.orderSeq[:i], s.orderSeq[i+1:]...)
			break
		}
	}
	s.terminal[id] = struct{}{}
}

// orderedActive 按接纳顺序返回活跃订单。
func (s *Simulation) orderedActive() []*Order {
	orders := make([]*Order, 0, len(s.orderSeq))
	for _, id := range s.orderSeq {
		orders = append(orders, s.activeOrders[id])
	}
	return orders
}

func groupByStrategy(orders []*Order) map[string][]*Order {
	grouped := make(map[string][]*Order)
	for _, order := range orders {
		grouped[order.StrategyID] = append(grouped[order.StrategyID], order)
	}
	return grouped
}

func cloneAll(orders []*Order) []*Order {
	if len(orders) == 0 {
		return nil
	}
	clones := make([]*Order, len(orders))
	for i, order := range orders {
		snap := order.Snapshot()
		clones[i] = &snap
	}
	return clones
}
