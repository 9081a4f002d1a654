package sim

import (
	"context"
	"strings"
	"testing"
	"time"
)

var (
	testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	testStep  = 15 * time.Minute
)

// scriptedStrategy 按步号执行预先写好的决策脚本。
type scriptedStrategy struct {
	id       string
	decide   func(step int, now time.Time) Decisions
	step     int
	feedback []Feedback
	inits    int
}

func (s *scriptedStrategy) ID() string { return s.id }

func (s *scriptedStrategy) Initialize(start, end time.Time) { s.inits++ }

func (s *scriptedStrategy) ProcessResults(feedback Feedback) {
	s.feedback = append(s.feedback, feedback)
}

func (s *scriptedStrategy) UpdateOrders(now time.Time) Decisions {
	defer func() { s.step++ }()
	if s.decide == nil {
		return Decisions{}
	}
	return s.decide(s.step, now)
}

func newTestSimulation(t *testing.T, steps int, strategies []Strategy, clearing ClearingMechanism) *Simulation {
	t.Helper()
	cfg := Config{
		StartTime: testStart,
		EndTime:   testStart.Add(time.Duration(steps-1) * testStep),
		TimeStep:  testStep,
	}
	simulation, err := NewSimulation(cfg, strategies, clearing, nil)
	if err != nil {
		t.Fatalf("NewSimulation returned error: %v", err)
	}
	return simulation
}

func mustOrder(t *testing.T, price, quantity float64, contract time.Time, side Side, opts ...Option) *Order {
	t.Helper()
	order, err := NewOrder(price, quantity, contract, side, opts...)
	if err != nil {
		t.Fatalf("NewOrder returned error: %v", err)
	}
	return order
}

func recordsFor(records []Record, orderID string) []Record {
	var matched []Record
	for _, record := range records {
		if record.OrderID == orderID {
			matched = append(matched, record)
		}
	}
	return matched
}

// clearAll 返回全部活跃订单的清算机制。
func clearAll(currentTime time.Time, activeOrders map[string]*Order) []*Order {
	var all []*Order
	for _, order := range activeOrders {
		all = append(all, order)
	}
	return all
}

func TestRun_InitializesStrategiesOnce(t *testing.T) {
	strategy := &scriptedStrategy{id: "s1"}
	simulation := newTestSimulation(t, 3, []Strategy{strategy}, nil)

	if _, err := simulation.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if strategy.inits != 1 {
		t.Errorf("expected exactly one Initialize call, got %d", strategy.inits)
	}
	if strategy.step != 3 {
		t.Errorf("expected 3 UpdateOrders calls, got %d", strategy.step)
	}
	if got := simulation.CurrentTime(); !got.Equal(testStart.Add(3 * testStep)) {
		t.Errorf("clock did not advance past end: %v", got)
	}
}

// 场景A：单笔买单，交割时刻等于起始时刻，无清算机制。
// 第一步不到期（严格小于），第二步到期，历史恰好两条记录。
func TestScenarioA_OrderExpiresAfterOneStep(t *testing.T) {
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		order := mustOrder(t, 50, 10, testStart, SideBuy, WithOrderID("o1"), WithStrategyID("s1"))
		return Decisions{New: []*Order{order}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	events := recordsFor(records, "o1")
	if len(events) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(events))
	}
	if events[0].EventType != string(EventSubmitted) || events[0].Status != string(StatusActive) {
		t.Errorf("unexpected first record: %+v", events[0])
	}
	if !events[0].SubmissionTime.Equal(testStart) {
		t.Errorf("submission time not stamped at admission: %v", events[0].SubmissionTime)
	}
	if events[1].EventType != string(EventExpired) || events[1].Status != string(StatusExpired) {
		t.Errorf("unexpected second record: %+v", events[1])
	}
	if !events[1].ExecutionTime.Equal(testStart.Add(testStep)) {
		t.Errorf("order expired at wrong step: %v", events[1].ExecutionTime)
	}
	if simulation.ActiveOrderCount() != 0 {
		t.Errorf("expected empty active set, got %d", simulation.ActiveOrderCount())
	}
}

// 场景B：清算机制返回全部活跃订单，一买一卖在下一步全部成交。
func TestScenarioB_AllOrdersCleared(t *testing.T) {
	contract := testStart.Add(time.Hour)
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("b1"), WithStrategyID("s1")),
			mustOrder(t, 51, 10, contract, SideSell, WithOrderID("a1"), WithStrategyID("s1")),
		}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, ClearFunc(clearAll))
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, id := range []string{"b1", "a1"} {
		events := recordsFor(records, id)
		if len(events) != 2 {
			t.Fatalf("order %s: expected 2 records, got %d", id, len(events))
		}
		last := events[len(events)-1]
		if last.Status != string(StatusFilled) || last.EventType != string(EventFilled) {
			t.Errorf("order %s not filled: %+v", id, last)
		}
	}
	if simulation.ActiveOrderCount() != 0 {
		t.Errorf("expected empty active set, got %d", simulation.ActiveOrderCount())
	}
}

// 场景C：撤销从未提交过的订单ID，运行正常结束且历史不受影响。
func TestScenarioC_CancelUnknownIDIsNoOp(t *testing.T) {
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		return Decisions{Canceled: []string{"ghost"}}
	}

	simulation := newTestSimulation(t, 3, []Strategy{strategy}, nil)
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty history, got %d records", len(records))
	}
}

// 场景D：更新活跃订单价格，update_count 从0变为1，历史多出一条记录变更前价格的 updated 记录。
func TestScenarioD_UpdateRecordsPreUpdateSnapshot(t *testing.T) {
	contract := testStart.Add(2 * time.Hour)
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		switch step {
		case 0:
			order := mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("o1"), WithStrategyID("s1"))
			return Decisions{New: []*Order{order}}
		case 1:
			update := mustOrder(t, 55, 10, contract, SideBuy, WithOrderID("o1"), WithStrategyID("s1"))
			return Decisions{Updated: []*Order{update}}
		default:
			return Decisions{}
		}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	events := recordsFor(records, "o1")
	if len(events) != 2 {
		t.Fatalf("expected 2 records, got %d", len(events))
	}
	updated := events[1]
	if updated.EventType != string(EventUpdated) {
		t.Fatalf("expected updated record, got %+v", updated)
	}
	if updated.Status != string(StatusActive) {
		t.Errorf("updated snapshot should keep status active, got %s", updated.Status)
	}
	if updated.Price != 50 {
		t.Errorf("updated snapshot should carry pre-update price 50, got %v", updated.Price)
	}
	if updated.UpdateCount != 0 {
		t.Errorf("snapshot taken before the counter increment, got %d", updated.UpdateCount)
	}
	if simulation.activeOrders["o1"].UpdateCount != 1 {
		t.Errorf("live order update count: got %d want 1", simulation.activeOrders["o1"].UpdateCount)
	}
	if simulation.activeOrders["o1"].Price != 55 {
		t.Errorf("live order price: got %v want 55", simulation.activeOrders["o1"].Price)
	}
}

// 更新未知ID不产生任何记录，也不改动活跃集合。
func TestUpdateUnknownIDIsNoOp(t *testing.T) {
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		update := mustOrder(t, 55, 10, testStart.Add(time.Hour), SideBuy, WithOrderID("ghost"))
		return Decisions{Updated: []*Order{update}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty history, got %d records", len(records))
	}
	if simulation.ActiveOrderCount() != 0 {
		t.Errorf("active set should stay empty, got %d", simulation.ActiveOrderCount())
	}
}

// 排序律：同一步内先到期后清算，已到期的订单不会出现在清算机制看到的集合里。
func TestExpiredOrdersNeverReachClearing(t *testing.T) {
	var seen [][]string
	spy := ClearFunc(func(currentTime time.Time, activeOrders map[string]*Order) []*Order {
		var ids []string
		for id := range activeOrders {
			ids = append(ids, id)
		}
		seen = append(seen, ids)
		return nil
	})

	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, testStart, SideBuy, WithOrderID("stale"), WithStrategyID("s1")),
			mustOrder(t, 50, 10, testStart.Add(time.Hour), SideBuy, WithOrderID("fresh"), WithStrategyID("s1")),
		}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, spy)
	if _, err := simulation.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(seen) != 2 {
		t.Fatalf("expected clearing to run twice, got %d", len(seen))
	}
	// 第二步开始时 stale 已到期
	for _, id := range seen[1] {
		if id == "stale" {
			t.Error("expired order was passed to the clearing mechanism")
		}
	}
	foundFresh := false
	for _, id := range seen[1] {
		if id == "fresh" {
			foundFresh = true
		}
	}
	if !foundFresh {
		t.Error("surviving order missing from the clearing set")
	}
}

// 每个ID要么仍在活跃集合中，要么最后一条历史快照处于终态，两者恰居其一。
func TestActiveXorTerminal(t *testing.T) {
	contract := testStart.Add(time.Hour)
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		switch step {
		case 0:
			return Decisions{New: []*Order{
				mustOrder(t, 50, 10, testStart, SideBuy, WithOrderID("expires"), WithStrategyID("s1")),
				mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("cancels"), WithStrategyID("s1")),
				mustOrder(t, 50, 10, contract, SideSell, WithOrderID("survives"), WithStrategyID("s1")),
			}}
		case 1:
			return Decisions{Canceled: []string{"cancels"}}
		default:
			return Decisions{}
		}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	records, err := simulation.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	latest := make(map[string]Record)
	for _, record := range records {
		latest[record.OrderID] = record
	}
	terminal := map[string]bool{
		string(StatusFilled):   true,
		string(StatusCanceled): true,
		string(StatusExpired):  true,
	}
	for id, record := range latest {
		_, active := simulation.activeOrders[id]
		if active == terminal[record.Status] {
			t.Errorf("order %s: active=%v but latest status=%s", id, active, record.Status)
		}
	}
	if _, ok := simulation.activeOrders["survives"]; !ok {
		t.Error("expected order 'survives' to remain active")
	}
}

// 历史只增不减：每次状态转换恰好追加一条记录。
func TestHistoryAppendOnly(t *testing.T) {
	contract := testStart.Add(time.Hour)
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		switch step {
		case 0:
			return Decisions{New: []*Order{
				mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("o1"), WithStrategyID("s1")),
			}}
		case 1:
			update := mustOrder(t, 51, 10, contract, SideBuy, WithOrderID("o1"), WithStrategyID("s1"))
			return Decisions{Updated: []*Order{update}}
		case 2:
			return Decisions{Canceled: []string{"o1"}}
		default:
			return Decisions{}
		}
	}

	simulation := newTestSimulation(t, 4, []Strategy{strategy}, nil)

	for _, strategyRef := range simulation.strategies {
		strategyRef.Initialize(simulation.cfg.StartTime, simulation.cfg.EndTime)
	}
	previous := 0
	for !simulation.currentTime.After(simulation.cfg.EndTime) {
		if err := simulation.step(); err != nil {
			t.Fatalf("step returned error: %v", err)
		}
		if len(simulation.history) < previous {
			t.Fatalf("history shrank from %d to %d", previous, len(simulation.history))
		}
		previous = len(simulation.history)
	}
	if len(simulation.history) != 3 {
		t.Errorf("expected 3 records (submitted, updated, canceled), got %d", len(simulation.history))
	}
}

// 清算机制返回未知ID时整次运行失败。
func TestClearingUnknownOrderFailsRun(t *testing.T) {
	rogue := ClearFunc(func(currentTime time.Time, activeOrders map[string]*Order) []*Order {
		order := &Order{OrderID: "phantom", Side: SideBuy}
		return []*Order{order}
	})
	strategy := &scriptedStrategy{id: "s1"}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, rogue)
	_, err := simulation.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "phantom") {
		t.Fatalf("expected run failure naming the phantom order, got %v", err)
	}
}

// 清算机制把同一笔订单返回两次时整次运行失败：首次成交已把该ID移出活跃集合。
func TestClearingDuplicateOrderFailsRun(t *testing.T) {
	greedy := ClearFunc(func(currentTime time.Time, activeOrders map[string]*Order) []*Order {
		for _, order := range activeOrders {
			return []*Order{order, order}
		}
		return nil
	})
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, testStart.Add(time.Hour), SideBuy, WithOrderID("doubled"), WithStrategyID("s1")),
		}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, greedy)
	_, err := simulation.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "doubled") {
		t.Fatalf("expected run failure naming the doubled order, got %v", err)
	}
}

// 终结后的ID不允许重新进入活跃集合。
func TestTerminalIDCannotBeResubmitted(t *testing.T) {
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		// 每步都用同一个ID提交，第一步的订单在第二步到期后重新提交应当失败
		order := mustOrder(t, 50, 10, testStart, SideBuy, WithOrderID("recycled"), WithStrategyID("s1"))
		return Decisions{New: []*Order{order}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	_, err := simulation.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "recycled") {
		t.Fatalf("expected resubmission failure, got %v", err)
	}
}

// 反馈按策略划分且互不串扰。
func TestFeedbackPartitionedByStrategy(t *testing.T) {
	contract := testStart.Add(time.Hour)
	first := &scriptedStrategy{id: "s1"}
	first.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("s1-o"), WithStrategyID("s1")),
		}}
	}
	second := &scriptedStrategy{id: "s2"}
	second.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, contract, SideSell, WithOrderID("s2-o"), WithStrategyID("s2")),
		}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{first, second}, nil)
	if _, err := simulation.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// 第二步的反馈里各自只看到自己的存续订单
	fb1 := first.feedback[1]
	if len(fb1.Active) != 1 || fb1.Active[0].OrderID != "s1-o" {
		t.Errorf("strategy s1 got wrong active set: %+v", fb1.Active)
	}
	fb2 := second.feedback[1]
	if len(fb2.Active) != 1 || fb2.Active[0].OrderID != "s2-o" {
		t.Errorf("strategy s2 got wrong active set: %+v", fb2.Active)
	}
	if len(fb1.Expired) != 0 || len(fb1.Cleared) != 0 {
		t.Errorf("strategy s1 should have empty expired/cleared feedback")
	}
}

// 反馈中的订单是深拷贝，策略篡改不影响引擎状态。
func TestFeedbackOrdersAreCopies(t *testing.T) {
	contract := testStart.Add(time.Hour)
	strategy := &scriptedStrategy{id: "s1"}
	strategy.decide = func(step int, now time.Time) Decisions {
		if step != 0 {
			return Decisions{}
		}
		return Decisions{New: []*Order{
			mustOrder(t, 50, 10, contract, SideBuy, WithOrderID("o1"), WithStrategyID("s1")),
		}}
	}

	simulation := newTestSimulation(t, 2, []Strategy{strategy}, nil)
	if _, err := simulation.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	fb := strategy.feedback[1]
	if len(fb.Active) != 1 {
		t.Fatalf("expected one active order in feedback, got %d", len(fb.Active))
	}
	fb.Active[0].Price = -1
	if simulation.activeOrders["o1"].Price != 50 {
		t.Error("mutating feedback leaked into engine state")
	}
}

func TestRun_ContextCancellationAbortsBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	strategy := &scriptedStrategy{id: "s1"}
	simulation := newTestSimulation(t, 3, []Strategy{strategy}, nil)
	if _, err := simulation.Run(ctx); err == nil {
		t.Fatal("expected error after cancellation")
	}
	if strategy.step != 0 {
		t.Errorf("no step should have run, got %d", strategy.step)
	}
}
