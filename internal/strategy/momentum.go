package strategy

import (
	"time"

	talib "github.com/markcheno/go-talib"
	"go.uber.org/zap"

	"intraday-sim/internal/marketdata"
	"intraday-sim/internal/sim"
)

// MomentumConfig 控制动量策略的参数。
type MomentumConfig struct {
	Quantity float64       // 每笔报单数量
	Delivery time.Duration // 相对当前时刻交易的交割时段
	Fast     int           // 快均线窗口
	Slow     int           // 慢均线窗口
}

func (c MomentumConfig) normalize() MomentumConfig {
	if c.Quantity <= 0 {
		c.Quantity = 5
	}
	if c.Delivery <= 0 {
		c.Delivery = 2 * time.Hour
	}
	if c.Fast <= 0 {
		c.Fast = 4
	}
	if c.Slow <= c.Fast {
		c.Slow = c.Fast * 3
	}
	return c
}

// Momentum 基于参考价快慢均线的动量策略：
// 快线在慢线上方时买入、下方时卖出，报价每步撤掉重挂。
type Momentum struct {
	Base
	source marketdata.DataSource
	cfg    MomentumConfig
	prices []float64
	logger *zap.Logger
}

// NewMomentum 构建动量策略。
func NewMomentum(id string, source marketdata.DataSource, cfg MomentumConfig, logger *zap.Logger) *Momentum {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Momentum{
		Base:   NewBase(id),
		source: source,
		cfg:    cfg.normalize(),
		logger: logger,
	}
}

func (s *Momentum) UpdateOrders(currentTime time.Time) sim.Decisions {
	var decisions sim.Decisions

	// 报价每步重挂，先撤掉上一步的存续订单
	for _, order := range s.ActiveOrders() {
		decisions.Canceled = append(decisions.Canceled, order.OrderID)
	}

	delivery := currentTime.Add(s.cfg.Delivery).Truncate(time.Hour)
	reference, err := s.source.Value(delivery, currentTime)
	if err != nil {
		return decisions
	}
	s.prices = append(s.prices, reference)
	if len(s.prices) < s.cfg.Slow {
		return decisions
	}

	fast := talib.Sma(s.prices, s.cfg.Fast)
	slow := talib.Sma(s.prices, s.cfg.Slow)
	lastFast := fast[len(fast)-1]
	lastSlow := slow[len(slow)-1]

	var side sim.Side
	var price float64
	switch {
	case lastFast > lastSlow:
		side, price = sim.SideBuy, reference*1.001
	case lastFast < lastSlow:
		side, price = sim.SideSell, reference*0.999
	default:
		return decisions
	}

	order, err := s.CreateOrder(price, s.cfg.Quantity, delivery, side)
	if err != nil {
		s.logger.Warn("创建动量订单失败", zap.Time("delivery", delivery), zap.Error(err))
		return decisions
	}
	decisions.New = append(decisions.New, order)
	return decisions
}
