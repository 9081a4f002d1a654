package strategy

import (
	"math"
	"time"

	"go.uber.org/zap"

	"intraday-sim/internal/marketdata"
	"intraday-sim/internal/profile"
	"intraday-sim/internal/sim"
)

// LoadFollowerConfig 控制按负荷采购策略的行为。
type LoadFollowerConfig struct {
	Lead    time.Duration // 提前多久开始为交割时段挂单
	Premium float64       // 相对参考价的出价溢价，用于提高成交概率
}

func (c LoadFollowerConfig) normalize() LoadFollowerConfig {
	if c.Lead <= 0 {
		c.Lead = 4 * time.Hour
	}
	if c.Premium < 0 {
		c.Premium = 0
	}
	return c
}

// LoadFollower 按负荷曲线为每个交割时段买入需求量：
// 进入提前窗口后以参考价加溢价挂买单，之后每步向最新参考价重新报价。
// 每个交割时段只采购一次，到期或成交后不再补单。
type LoadFollower struct {
	Base
	profile   profile.Profile
	source    marketdata.DataSource
	cfg       LoadFollowerConfig
	submitted map[int64]bool
	logger    *zap.Logger
}

// NewLoadFollower 构建按负荷采购的策略。
func NewLoadFollower(id string, prof profile.Profile, source marketdata.DataSource, cfg LoadFollowerConfig, logger *zap.Logger) *LoadFollower {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadFollower{
		Base:      NewBase(id),
		profile:   prof,
		source:    source,
		cfg:       cfg.normalize(),
		submitted: make(map[int64]bool),
		logger:    logger,
	}
}

func (s *LoadFollower) UpdateOrders(currentTime time.Time) sim.Decisions {
	var decisions sim.Decisions
	horizon := currentTime.Add(s.cfg.Lead)

	for _, point := range s.profile.Points {
		if !point.Timestamp.After(currentTime) || point.Timestamp.After(horizon) {
			continue
		}
		key := point.Timestamp.Unix()
		if s.submitted[key] || point.Value <= 0 {
			continue
		}

		reference, err := s.source.Value(point.Timestamp, currentTime)
		if err != nil {
			// 没有行情的时段无法定价，留到之后的步重试
			continue
		}
		order, err := s.CreateOrder(reference*(1+s.cfg.Premium), point.Value, point.Timestamp, sim.SideBuy)
		if err != nil {
			s.logger.Warn("创建采购订单失败", zap.Time("delivery", point.Timestamp), zap.Error(err))
			continue
		}
		s.submitted[key] = true
		decisions.New = append(decisions.New, order)
	}

	// 随交割临近向最新参考价靠拢，偏离不足1%时不动；需求已消失的时段直接撤单
	for _, order := range s.ActiveOrders() {
		if demand, ok := s.profile.At(order.ContractTime); ok && demand <= 0 {
			decisions.Canceled = append(decisions.Canceled, order.OrderID)
			continue
		}
		reference, err := s.source.Value(order.ContractTime, currentTime)
		if err != nil {
			continue
		}
		target := reference * (1 + s.cfg.Premium)
		if math.Abs(target-order.Price) <= order.Price*0.01 {
			continue
		}
		update := order.Snapshot()
		update.Price = target
		decisions.Updated = append(decisions.Updated, &update)
	}

	return decisions
}
