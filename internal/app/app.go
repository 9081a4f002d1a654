// Package app 组装依赖并驱动各个模拟场景。
package app

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intraday-sim/internal/clearing"
	"intraday-sim/internal/config"
	"intraday-sim/internal/marketdata"
	"intraday-sim/internal/metrics"
	"intraday-sim/internal/profile"
	"intraday-sim/internal/sim"
	"intraday-sim/internal/store"
	"intraday-sim/internal/strategy"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 生成合成行情后并行运行全部场景。
// 场景之间只共享只读的行情源，每个场景内部的模拟仍然严格串行。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("模拟系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.Int("strategies", len(a.cfg.Strategies)),
		zap.Int("scenarios", len(a.cfg.Scenarios)),
	)

	rng := rand.New(rand.NewSource(a.cfg.Marketdata.Seed))
	trades := marketdata.GenerateIntradayTrades(marketdata.GeneratorConfig{
		StartDate:         a.cfg.Simulation.StartTime,
		NumDays:           a.cfg.Marketdata.NumDays,
		TradesPerContract: a.cfg.Marketdata.TradesPerContract,
	}, rng)
	source := marketdata.NewVWAPSource(trades)
	a.logger.Info("合成行情已生成", zap.Int("trades", len(trades)))

	if err := a.store.Migrate(ctx); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	for i, scenario := range a.cfg.Scenarios {
		scenario := scenario
		seed := a.cfg.Marketdata.Seed + int64(i) + 1
		group.Go(func() error {
			return a.runScenario(ctx, scenario, source, seed)
		})
	}
	return group.Wait()
}

// runScenario 运行一个场景：构建策略与清算机制、执行模拟、汇总指标并落库。
func (a *App) runScenario(ctx context.Context, scenario config.ScenarioConfig, source marketdata.DataSource, seed int64) error {
	logger := a.logger.With(zap.String("scenario", scenario.Name))

	// 曲线噪声的随机源按场景独立，保证场景之间互不干扰且可复现
	rng := rand.New(rand.NewSource(seed))
	strategies, err := a.buildStrategies(rng, source, logger)
	if err != nil {
		return err
	}
	mechanism, err := buildClearing(scenario.Clearing, source)
	if err != nil {
		return err
	}

	simulation, err := sim.NewSimulation(sim.Config{
		StartTime: a.cfg.Simulation.StartTime,
		EndTime:   a.cfg.Simulation.EndTime,
		TimeStep:  a.cfg.Simulation.TimeStep,
	}, strategies, mechanism, logger)
	if err != nil {
		return err
	}

	records, err := simulation.Run(ctx)
	if err != nil {
		return fmt.Errorf("场景 %s 运行失败: %w", scenario.Name, err)
	}

	calculator := metrics.NewCalculator(records)
	summaries := calculator.RunAll()
	for _, id := range calculator.Strategies() {
		summary := summaries[id]
		fields := []zap.Field{
			zap.String("strategy", id),
			zap.Int("submitted", summary.FillRate.Submitted),
			zap.Int("filled", summary.FillRate.Filled),
			zap.Float64("fill_rate", summary.FillRate.Rate),
		}
		if summary.TimeToFill != nil {
			fields = append(fields, zap.Float64("mean_time_to_fill_min", summary.TimeToFill.MeanMinutes))
		}
		if summary.ExecutionPrices != nil {
			fields = append(fields, zap.Float64("vwap", summary.ExecutionPrices.VWAP))
		}
		logger.Info("策略结果", fields...)
	}

	if err := a.store.SaveHistory(ctx, scenario.Name, records); err != nil {
		return fmt.Errorf("保存场景 %s 的事件日志失败: %w", scenario.Name, err)
	}
	logger.Info("场景完成", zap.Int("events", len(records)))
	return nil
}

func (a *App) buildStrategies(rng *rand.Rand, source marketdata.DataSource, logger *zap.Logger) ([]sim.Strategy, error) {
	strategies := make([]sim.Strategy, 0, len(a.cfg.Strategies))
	for _, cfg := range a.cfg.Strategies {
		switch cfg.Type {
		case "load_follower":
			prof, err := a.buildProfile(cfg.Profile, rng)
			if err != nil {
				return nil, fmt.Errorf("策略 %s: %w", cfg.ID, err)
			}
			strategies = append(strategies, strategy.NewLoadFollower(cfg.ID, prof, source, strategy.LoadFollowerConfig{
				Lead:    cfg.Lead,
				Premium: cfg.Premium,
			}, logger))
		case "momentum":
			strategies = append(strategies, strategy.NewMomentum(cfg.ID, source, strategy.MomentumConfig{
				Quantity: cfg.Quantity,
				Delivery: cfg.Delivery,
				Fast:     cfg.Fast,
				Slow:     cfg.Slow,
			}, logger))
		default:
			return nil, fmt.Errorf("未知的策略类型 %q", cfg.Type)
		}
	}
	return strategies, nil
}

// buildProfile 按小时采样曲线，与行情的逐小时交割时段对齐。
func (a *App) buildProfile(cfg config.ProfileConfig, rng *rand.Rand) (profile.Profile, error) {
	start, end := a.cfg.Simulation.StartTime, a.cfg.Simulation.EndTime
	step := time.Hour
	switch cfg.Type {
	case "constant":
		return profile.Constant(start, end, step, cfg.Value, cfg.NoiseFactor, rng), nil
	case "residential":
		return profile.Residential(start, end, step, profile.ResidentialConfig{
			BaseLoad:    cfg.BaseLoad,
			MorningPeak: cfg.MorningPeak,
			EveningPeak: cfg.EveningPeak,
			NoiseFactor: cfg.NoiseFactor,
		}, rng), nil
	case "industrial":
		return profile.Industrial(start, end, step, profile.IndustrialConfig{
			BaseLoad:    cfg.BaseLoad,
			PeakLoad:    cfg.PeakLoad,
			NoiseFactor: cfg.NoiseFactor,
		}, rng), nil
	case "solar":
		return profile.Solar(start, end, step, profile.SolarConfig{
			Capacity:    cfg.Capacity,
			NoiseFactor: cfg.NoiseFactor,
		}, rng), nil
	case "wind":
		return profile.Wind(start, end, step, profile.WindConfig{
			Capacity:   cfg.Capacity,
			Volatility: cfg.Volatility,
		}, rng), nil
	default:
		return profile.Profile{}, fmt.Errorf("未知的曲线类型 %q", cfg.Type)
	}
}

func buildClearing(kind string, source marketdata.DataSource) (sim.ClearingMechanism, error) {
	switch kind {
	case "auction":
		return clearing.NewAuction(), nil
	case "crossing":
		return clearing.NewCrossing(source), nil
	case "none", "":
		// 不配置清算机制时订单只会到期
		return nil, nil
	default:
		return nil, fmt.Errorf("未知的清算机制 %q", kind)
	}
}
