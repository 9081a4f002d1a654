package config

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了模拟系统运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Marketdata MarketdataConfig `mapstructure:"marketdata"`
	Strategies []StrategyConfig `mapstructure:"strategies"`
	Scenarios  []ScenarioConfig `mapstructure:"scenarios"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// SimulationConfig 定义模拟的时间窗口与步长。
type SimulationConfig struct {
	StartTime time.Time     `mapstructure:"start_time"`
	EndTime   time.Time     `mapstructure:"end_time"`
	TimeStep  time.Duration `mapstructure:"time_step"`
}

// MarketdataConfig 控制合成行情生成。
type MarketdataConfig struct {
	Seed              int64 `mapstructure:"seed"`
	NumDays           int   `mapstructure:"num_days"`
	TradesPerContract int   `mapstructure:"trades_per_contract"`
}

// ProfileConfig 描述策略使用的负荷或发电曲线。
type ProfileConfig struct {
	Type        string  `mapstructure:"type"` // constant | residential | industrial | solar | wind
	Value       float64 `mapstructure:"value"`
	BaseLoad    float64 `mapstructure:"base_load"`
	MorningPeak float64 `mapstructure:"morning_peak"`
	EveningPeak float64 `mapstructure:"evening_peak"`
	PeakLoad    float64 `mapstructure:"peak_load"`
	Capacity    float64 `mapstructure:"capacity"`
	Volatility  float64 `mapstructure:"volatility"`
	NoiseFactor float64 `mapstructure:"noise_factor"`
}

// StrategyConfig 描述一个参与模拟的策略实例。
type StrategyConfig struct {
	ID       string        `mapstructure:"id"`
	Type     string        `mapstructure:"type"` // load_follower | momentum
	Lead     time.Duration `mapstructure:"lead"`
	Premium  float64       `mapstructure:"premium"`
	Quantity float64       `mapstructure:"quantity"`
	Delivery time.Duration `mapstructure:"delivery"`
	Fast     int           `mapstructure:"fast"`
	Slow     int           `mapstructure:"slow"`
	Profile  ProfileConfig `mapstructure:"profile"`
}

// ScenarioConfig 描述一个对比场景，场景之间只有清算机制不同。
type ScenarioConfig struct {
	Name     string `mapstructure:"name"`
	Clearing string `mapstructure:"clearing"` // auction | crossing | none
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Simulation.StartTime.IsZero() {
		err = multierr.Append(err, errors.New("simulation.start_time 不能为空"))
	}
	if c.Simulation.EndTime.IsZero() {
		err = multierr.Append(err, errors.New("simulation.end_time 不能为空"))
	}
	if !c.Simulation.StartTime.IsZero() && !c.Simulation.EndTime.IsZero() &&
		c.Simulation.EndTime.Before(c.Simulation.StartTime) {
		err = multierr.Append(err, errors.New("simulation.end_time 不能早于 start_time"))
	}
	if c.Simulation.TimeStep <= 0 {
		err = multierr.Append(err, errors.New("simulation.time_step 必须大于0"))
	}
	if c.Marketdata.NumDays <= 0 {
		err = multierr.Append(err, errors.New("marketdata.num_days 必须大于0"))
	}
	if c.Marketdata.TradesPerContract <= 0 {
		err = multierr.Append(err, errors.New("marketdata.trades_per_contract 必须大于0"))
	}

	if len(c.Strategies) == 0 {
		err = multierr.Append(err, errors.New("strategies 至少配置一个策略"))
	}
	strategyIDs := make(map[string]struct{}, len(c.Strategies))
	for i, strategy := range c.Strategies {
		if strategy.ID == "" {
			err = multierr.Append(err, fmt.Errorf("strategies[%d].id 不能为空", i))
		} else if _, ok := strategyIDs[strategy.ID]; ok {
			err = multierr.Append(err, fmt.Errorf("策略ID %q 重复", strategy.ID))
		} else {
			strategyIDs[strategy.ID] = struct{}{}
		}

		switch strategy.Type {
		case "load_follower":
			if strategy.Profile.Type == "" {
				err = multierr.Append(err, fmt.Errorf("strategies[%d].profile.type 不能为空", i))
			}
		case "momentum":
			if strategy.Fast > 0 && strategy.Slow > 0 && strategy.Fast >= strategy.Slow {
				err = multierr.Append(err, fmt.Errorf("strategies[%d]: fast 必须小于 slow", i))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("strategies[%d].type %q 未知", i, strategy.Type))
		}
	}

	if len(c.Scenarios) == 0 {
		err = multierr.Append(err, errors.New("scenarios 至少配置一个场景"))
	}
	scenarioNames := make(map[string]struct{}, len(c.Scenarios))
	for i, scenario := range c.Scenarios {
		if scenario.Name == "" {
			err = multierr.Append(err, fmt.Errorf("scenarios[%d].name 不能为空", i))
		} else if _, ok := scenarioNames[scenario.Name]; ok {
			err = multierr.Append(err, fmt.Errorf("场景名称 %q 重复", scenario.Name))
		} else {
			scenarioNames[scenario.Name] = struct{}{}
		}
		switch scenario.Clearing {
		case "auction", "crossing", "none":
		default:
			err = multierr.Append(err, fmt.Errorf("scenarios[%d].clearing %q 未知", i, scenario.Clearing))
		}
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}
	return nil
}
