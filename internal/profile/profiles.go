// Package profile 合成负荷与发电曲线，供策略决定各交割时段的采购量。
package profile

import (
	"math"
	"math/rand"
	"time"
)

// Point 是曲线上的一个采样值，单位为MW。
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Profile 是按固定步长采样的曲线。首次查询后不应再修改 Points。
type Profile struct {
	Points []Point

	index map[int64]float64
}

// At 返回给定时刻的采样值，曲线上没有该时刻时第二个返回值为 false。
func (p *Profile) At(ts time.Time) (float64, bool) {
	if p.index == nil {
		p.index = make(map[int64]float64, len(p.Points))
		for _, point := range p.Points {
			p.index[point.Timestamp.Unix()] = point.Value
		}
	}
	value, ok := p.index[ts.Unix()]
	return value, ok
}

// Constant 生成恒定曲线，noiseFactor 大于0时叠加正态噪声。
func Constant(start, end time.Time, step time.Duration, value, noiseFactor float64, rng *rand.Rand) Profile {
	points := basePoints(start, end, step)
	for i := range points {
		points[i].Value = withNoise(value, value*noiseFactor, rng)
	}
	return Profile{Points: points}
}

// ResidentialConfig 控制居民负荷曲线的形状。
type ResidentialConfig struct {
	BaseLoad    float64
	MorningPeak float64
	EveningPeak float64
	NoiseFactor float64
}

func (c ResidentialConfig) normalize() ResidentialConfig {
	if c.BaseLoad <= 0 {
		c.BaseLoad = 5
	}
	if c.MorningPeak <= 0 {
		c.MorningPeak = 10
	}
	if c.EveningPeak <= 0 {
		c.EveningPeak = 15
	}
	return c
}

// Residential 生成带早晚双峰的居民负荷曲线，早峰以8点、晚峰以19点为中心。
func Residential(start, end time.Time, step time.Duration, cfg ResidentialConfig, rng *rand.Rand) Profile {
	cfg = cfg.normalize()
	points := basePoints(start, end, step)
	for i := range points {
		hour := float64(points[i].Timestamp.Hour())
		value := cfg.BaseLoad
		value += cfg.MorningPeak * math.Exp(-math.Pow(hour-8, 2)/4)
		value += cfg.EveningPeak * math.Exp(-math.Pow(hour-19, 2)/6)
		points[i].Value = withNoise(value, value*cfg.NoiseFactor, rng)
	}
	return Profile{Points: points}
}

// IndustrialConfig 控制工业负荷曲线的形状。
type IndustrialConfig struct {
	BaseLoad      float64
	PeakLoad      float64
	WorkStart     int
	WorkEnd       int
	WeekendFactor float64
	NoiseFactor   float64
}

func (c IndustrialConfig) normalize() IndustrialConfig {
	if c.BaseLoad <= 0 {
		c.BaseLoad = 20
	}
	if c.PeakLoad <= 0 {
		c.PeakLoad = 50
	}
	if c.WorkEnd <= c.WorkStart {
		c.WorkStart, c.WorkEnd = 8, 18
	}
	if c.WeekendFactor <= 0 {
		c.WeekendFactor = 0.6
	}
	return c
}

// Industrial 生成工作时间形态的工业负荷曲线：工作日早晚各有两小时的爬坡，周末整体折减。
func Industrial(start, end time.Time, step time.Duration, cfg IndustrialConfig, rng *rand.Rand) Profile {
	cfg = cfg.normalize()
	points := basePoints(start, end, step)
	for i := range points {
		ts := points[i].Timestamp
		value := cfg.BaseLoad
		if weekday := ts.Weekday(); weekday == time.Saturday || weekday == time.Sunday {
			value *= cfg.WeekendFactor
		} else {
			hour := ts.Hour()
			switch {
			case hour < cfg.WorkStart || hour >= cfg.WorkEnd:
				// 夜间维持基荷
			case hour < cfg.WorkStart+2:
				ramp := float64(hour-cfg.WorkStart) / 2
				value = cfg.BaseLoad + (cfg.PeakLoad-cfg.BaseLoad)*ramp
			case hour >= cfg.WorkEnd-2:
				ramp := float64(cfg.WorkEnd-hour) / 2
				value = cfg.BaseLoad + (cfg.PeakLoad-cfg.BaseLoad)*ramp
			default:
				value = cfg.PeakLoad
			}
		}
		points[i].Value = withNoise(value, value*cfg.NoiseFactor, rng)
	}
	return Profile{Points: points}
}

// SolarConfig 控制光伏出力曲线。
type SolarConfig struct {
	Capacity    float64
	Cloudiness  float64
	NoiseFactor float64
}

func (c SolarConfig) normalize() SolarConfig {
	if c.Capacity <= 0 {
		c.Capacity = 100
	}
	if c.Cloudiness < 0 || c.Cloudiness > 1 {
		c.Cloudiness = 0.2
	}
	return c
}

// Solar 生成光伏出力曲线：6点到18点之间按正弦升降，云量随机折减出力。
func Solar(start, end time.Time, step time.Duration, cfg SolarConfig, rng *rand.Rand) Profile {
	cfg = cfg.normalize()
	points := basePoints(start, end, step)
	for i := range points {
		hour := float64(points[i].Timestamp.Hour()) + float64(points[i].Timestamp.Minute())/60
		var value float64
		if hour >= 6 && hour <= 18 {
			value = cfg.Capacity * math.Sin(math.Pi*(hour-6)/12)
			if rng != nil && cfg.Cloudiness > 0 {
				value *= 1 - cfg.Cloudiness*rng.Float64()
			}
		}
		points[i].Value = withNoise(value, value*cfg.NoiseFactor, rng)
	}
	return Profile{Points: points}
}

// WindConfig 控制风电出力曲线。
type WindConfig struct {
	Capacity   float64
	Volatility float64 // 风速变化幅度，取值(0,1]
}

func (c WindConfig) normalize() WindConfig {
	if c.Capacity <= 0 {
		c.Capacity = 80
	}
	if c.Volatility <= 0 || c.Volatility > 1 {
		c.Volatility = 0.2
	}
	return c
}

// Wind 生成具有时间相关性的风电出力曲线：
// 出力因子在[0,1]内做受限随机游走，约5%的步发生阵风或风歇的跳变。
func Wind(start, end time.Time, step time.Duration, cfg WindConfig, rng *rand.Rand) Profile {
	cfg = cfg.normalize()
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	points := basePoints(start, end, step)
	factor := rng.Float64() * 0.5
	for i := range points {
		factor = clampFactor(factor + rng.NormFloat64()*cfg.Volatility*0.1)
		points[i].Value = cfg.Capacity * factor

		if rng.Float64() < 0.05 {
			if rng.Float64() < 0.5 {
				factor += rng.Float64() * 0.3 // 阵风
			} else {
				factor -= rng.Float64() * 0.3 // 风歇
			}
			factor = clampFactor(factor)
		}
	}
	return Profile{Points: points}
}

func clampFactor(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// basePoints 生成首尾均含的等距时间戳序列。
func basePoints(start, end time.Time, step time.Duration) []Point {
	if step <= 0 {
		step = 15 * time.Minute
	}
	var points []Point
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		points = append(points, Point{Timestamp: ts})
	}
	return points
}

func withNoise(value, sigma float64, rng *rand.Rand) float64 {
	if rng != nil && sigma > 0 {
		value += rng.NormFloat64() * sigma
	}
	return math.Max(value, 0)
}
