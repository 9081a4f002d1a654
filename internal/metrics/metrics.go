// Package metrics 按策略聚合模拟产出的事件日志。
// 约定："成交"行满足 status==filled 且 event_type==filled，"提交"行满足 event_type==submitted。
// 价格统计优先取清算机制写入的 execution_price，该列为空时回退到订单限价。
package metrics

import (
	"math"
	"sort"
	"time"

	"intraday-sim/internal/sim"
)

// Calculator 持有按策略预先划分的事件日志。
type Calculator struct {
	byStrategy map[string][]sim.Record
	order      []string
}

// NewCalculator 按 strategy_id 划分事件日志，划分保持首次出现的顺序。
func NewCalculator(records []sim.Record) *Calculator {
	c := &Calculator{byStrategy: make(map[string][]sim.Record)}
	for _, record := range records {
		if _, ok := c.byStrategy[record.StrategyID]; !ok {
			c.order = append(c.order, record.StrategyID)
		}
		c.byStrategy[record.StrategyID] = append(c.byStrategy[record.StrategyID], record)
	}
	return c
}

// Strategies 按首次出现的顺序返回策略ID。
func (c *Calculator) Strategies() []string {
	return append([]string(nil), c.order...)
}

// FillRate 是成交率统计。
type FillRate struct {
	Submitted int
	Filled    int
	Rate      float64
}

// FillRate 计算各策略的成交率。
func (c *Calculator) FillRate() map[string]FillRate {
	results := make(map[string]FillRate, len(c.byStrategy))
	for id, records := range c.byStrategy {
		submitted := countEvents(records, string(sim.EventSubmitted))
		filled := len(filledRecords(records))
		rate := 0.0
		if submitted > 0 {
			rate = float64(filled) / float64(submitted)
		}
		results[id] = FillRate{Submitted: submitted, Filled: filled, Rate: rate}
	}
	return results
}

// TimeToFill 是从提交到成交的耗时统计，单位分钟。
type TimeToFill struct {
	MeanMinutes   float64
	MedianMinutes float64
	MinMinutes    float64
	MaxMinutes    float64
	Count         int
}

// TimeToFill 计算各策略的成交耗时，没有成交的策略为 nil。
func (c *Calculator) TimeToFill() map[string]*TimeToFill {
	results := make(map[string]*TimeToFill, len(c.byStrategy))
	for id, records := range c.byStrategy {
		filled := filledRecords(records)
		if len(filled) == 0 {
			results[id] = nil
			continue
		}

		minutes := make([]float64, len(filled))
		for i, record := range filled {
			minutes[i] = record.ExecutionTime.Sub(record.SubmissionTime).Minutes()
		}
		results[id] = &TimeToFill{
			MeanMinutes:   mean(minutes),
			MedianMinutes: median(minutes),
			MinMinutes:    minOf(minutes),
			MaxMinutes:    maxOf(minutes),
			Count:         len(minutes),
		}
	}
	return results
}

// ContractVolume 是按交割时段划分的成交量。
type ContractVolume struct {
	TotalVolume float64
	ByContract  map[time.Time]float64
}

// ContractVolume 计算各策略的成交量分布，没有成交的策略为 nil。
func (c *Calculator) ContractVolume() map[string]*ContractVolume {
	results := make(map[string]*ContractVolume, len(c.byStrategy))
	for id, records := range c.byStrategy {
		filled := filledRecords(records)
		if len(filled) == 0 {
			results[id] = nil
			continue
		}

		volume := &ContractVolume{ByContract: make(map[time.Time]float64)}
		for _, record := range filled {
			volume.TotalVolume += record.Quantity
			volume.ByContract[record.ContractTime] += record.Quantity
		}
		results[id] = volume
	}
	return results
}

// StatusCounts 是状态与事件类型的计数。
type StatusCounts struct {
	ByStatus    map[string]int
	ByEvent     map[string]int
	TotalOrders int
}

// StatusCounts 统计各策略的事件分布与订单总数（按唯一ID计）。
func (c *Calculator) StatusCounts() map[string]StatusCounts {
	results := make(map[string]StatusCounts, len(c.byStrategy))
	for id, records := range c.byStrategy {
		counts := StatusCounts{
			ByStatus: make(map[string]int),
			ByEvent:  make(map[string]int),
		}
		unique := make(map[string]struct{})
		for _, record := range records {
			counts.ByStatus[record.Status]++
			counts.ByEvent[record.EventType]++
			unique[record.OrderID] = struct{}{}
		}
		counts.TotalOrders = len(unique)
		results[id] = counts
	}
	return results
}

// SideStats 是单边成交统计。
type SideStats struct {
	VWAP   float64
	Count  int
	Volume float64
}

// PriceStats 是成交价格统计，价格取订单限价。
type PriceStats struct {
	Mean   float64
	Median float64
	Min    float64
	Max    float64
	Std    float64
	VWAP   float64
	Count  int
	Buy    *SideStats
	Sell   *SideStats
}

// ExecutionPrices 计算各策略的成交价格统计（含VWAP与分方向VWAP），没有成交的策略为 nil。
func (c *Calculator) ExecutionPrices() map[string]*PriceStats {
	results := make(map[string]*PriceStats, len(c.byStrategy))
	for id, records := range c.byStrategy {
		filled := filledRecords(records)
		if len(filled) == 0 {
			results[id] = nil
			continue
		}

		prices := make([]float64, len(filled))
		for i, record := range filled {
			prices[i] = tradePrice(record)
		}
		stats := &PriceStats{
			Mean:   mean(prices),
			Median: median(prices),
			Min:    minOf(prices),
			Max:    maxOf(prices),
			Std:    stddev(prices),
			VWAP:   vwap(filled),
			Count:  len(filled),
		}
		if buys := sideRecords(filled, string(sim.SideBuy)); len(buys) > 0 {
			stats.Buy = &SideStats{VWAP: vwap(buys), Count: len(buys), Volume: totalQuantity(buys)}
		}
		if sells := sideRecords(filled, string(sim.SideSell)); len(sells) > 0 {
			stats.Sell = &SideStats{VWAP: vwap(sells), Count: len(sells), Volume: totalQuantity(sells)}
		}
		results[id] = stats
	}
	return results
}

// BuyCost 是买入总成本统计。
type BuyCost struct {
	TotalCost    float64
	TotalVolume  float64
	AveragePrice float64
}

// BuyCost 计算各策略成交买单的总成本，没有买入成交的策略为 nil。
func (c *Calculator) BuyCost() map[string]*BuyCost {
	results := make(map[string]*BuyCost, len(c.byStrategy))
	for id, records := range c.byStrategy {
		buys := sideRecords(filledRecords(records), string(sim.SideBuy))
		if len(buys) == 0 {
			results[id] = nil
			continue
		}

		cost := &BuyCost{}
		for _, record := range buys {
			cost.TotalCost += tradePrice(record) * record.Quantity
			cost.TotalVolume += record.Quantity
		}
		if cost.TotalVolume > 0 {
			cost.AveragePrice = cost.TotalCost / cost.TotalVolume
		}
		results[id] = cost
	}
	return results
}

// SideVolume 是单边的计划量与执行量。
type SideVolume struct {
	IntendedVolume float64
	ExecutedVolume float64
	Rate           float64
}

// VolumeExecution 比较计划交易量与实际执行量。
type VolumeExecution struct {
	IntendedVolume float64
	ExecutedVolume float64
	Rate           float64
	Buy            *SideVolume
	Sell           *SideVolume
}

// VolumeExecutionRate 计算各策略的量执行率，没有提交的策略为 nil。
func (c *Calculator) VolumeExecutionRate() map[string]*VolumeExecution {
	results := make(map[string]*VolumeExecution, len(c.byStrategy))
	for id, records := range c.byStrategy {
		submitted := eventRecords(records, string(sim.EventSubmitted))
		if len(submitted) == 0 {
			results[id] = nil
			continue
		}
		filled := filledRecords(records)

		execution := &VolumeExecution{
			IntendedVolume: totalQuantity(submitted),
			ExecutedVolume: totalQuantity(filled),
		}
		if execution.IntendedVolume > 0 {
			execution.Rate = execution.ExecutedVolume / execution.IntendedVolume
		}
		for _, side := range []string{string(sim.SideBuy), string(sim.SideSell)} {
			sideSubmitted := sideRecords(submitted, side)
			if len(sideSubmitted) == 0 {
				continue
			}
			volume := &SideVolume{
				IntendedVolume: totalQuantity(sideSubmitted),
				ExecutedVolume: totalQuantity(sideRecords(filled, side)),
			}
			if volume.IntendedVolume > 0 {
				volume.Rate = volume.ExecutedVolume / volume.IntendedVolume
			}
			if side == string(sim.SideBuy) {
				execution.Buy = volume
			} else {
				execution.Sell = volume
			}
		}
		results[id] = execution
	}
	return results
}

// Summary 汇总单个策略的全部指标。
type Summary struct {
	FillRate        FillRate
	TimeToFill      *TimeToFill
	ContractVolume  *ContractVolume
	StatusCounts    StatusCounts
	ExecutionPrices *PriceStats
	BuyCost         *BuyCost
	VolumeExecution *VolumeExecution
}

// RunAll 运行全部指标并按策略汇总。
func (c *Calculator) RunAll() map[string]Summary {
	fillRates := c.FillRate()
	timeToFill := c.TimeToFill()
	volumes := c.ContractVolume()
	counts := c.StatusCounts()
	prices := c.ExecutionPrices()
	costs := c.BuyCost()
	executions := c.VolumeExecutionRate()

	results := make(map[string]Summary, len(c.byStrategy))
	for _, id := range c.order {
		results[id] = Summary{
			FillRate:        fillRates[id],
			TimeToFill:      timeToFill[id],
			ContractVolume:  volumes[id],
			StatusCounts:    counts[id],
			ExecutionPrices: prices[id],
			BuyCost:         costs[id],
			VolumeExecution: executions[id],
		}
	}
	return results
}

func filledRecords(records []sim.Record) []sim.Record {
	var filled []sim.Record
	for _, record := range records {
		if record.Status == string(sim.StatusFilled) && record.EventType == string(sim.EventFilled) {
			filled = append(filled, record)
		}
	}
	return filled
}

func eventRecords(records []sim.Record, eventType string) []sim.Record {
	var matched []sim.Record
	for _, record := range records {
		if record.EventType == eventType {
			matched = append(matched, record)
		}
	}
	return matched
}

func sideRecords(records []sim.Record, side string) []sim.Record {
	var matched []sim.Record
	for _, record := range records {
		if record.Side == side {
			matched = append(matched, record)
		}
	}
	return matched
}

func countEvents(records []sim.Record, eventType string) int {
	return len(eventRecords(records, eventType))
}

func totalQuantity(records []sim.Record) float64 {
	var total float64
	for _, record := range records {
		total += record.Quantity
	}
	return total
}

func vwap(records []sim.Record) float64 {
	var pv, volume float64
	for _, record := range records {
		pv += tradePrice(record) * record.Quantity
		volume += record.Quantity
	}
	if volume == 0 {
		return 0
	}
	return pv / volume
}

// tradePrice 返回统计用的成交价：清算机制未写入成交价时用限价近似。
func tradePrice(record sim.Record) float64 {
	if record.ExecutionPrice != nil {
		return *record.ExecutionPrice
	}
	return record.Price
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	avg := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - avg
		variance += diff * diff
	}
	variance /= float64(len(values) - 1)
	return math.Sqrt(variance)
}

func minOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	lowest := values[0]
	for _, v := range values[1:] {
		if v < lowest {
			lowest = v
		}
	}
	return lowest
}

func maxOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	highest := values[0]
	for _, v := range values[1:] {
		if v > highest {
			highest = v
		}
	}
	return highest
}
