package marketdata

import (
	"math"
	"math/rand"
	"sort"
	"time"
)

// GeneratorConfig 控制合成盘中行情的规模。
type GeneratorConfig struct {
	StartDate         time.Time // 第一个交割日
	NumDays           int
	TradesPerContract int
}

func (c GeneratorConfig) normalize() GeneratorConfig {
	if c.NumDays <= 0 {
		c.NumDays = 7
	}
	if c.TradesPerContract <= 0 {
		c.TradesPerContract = 10000
	}
	return c
}

// Trade 表示一笔合成的盘中成交。
type Trade struct {
	DeliveryTime    time.Time
	TradeTime       time.Time
	TradeHour       time.Time
	Price           float64
	Volume          float64
	HoursToDelivery float64
	HourlyVWAP      float64
	OverallVWAP     float64
}

// GenerateIntradayTrades 生成合成的盘中电力行情。
// 每个交割小时一个合约，交易从前一天15:00开始；
// 价格做随机游走，波动率与成交密度随交割临近上升。
// 传入带种子的 rng 可保证结果可复现。
func GenerateIntradayTrades(cfg GeneratorConfig, rng *rand.Rand) []Trade {
	cfg = cfg.normalize()
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}

	var all []Trade
	for dayOffset := 0; dayOffset < cfg.NumDays; dayOffset++ {
		day := cfg.StartDate.AddDate(0, 0, dayOffset)
		for hour := 0; hour < 24; hour++ {
			all = append(all, generateContract(day, hour, cfg.TradesPerContract, rng)...)
		}
	}
	return all
}

func generateContract(day time.Time, hour, numTrades int, rng *rand.Rand) []Trade {
	deliveryTime := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, time.UTC)
	previous := day.AddDate(0, 0, -1)
	tradingStart := time.Date(previous.Year(), previous.Month(), previous.Day(), 15, 0, 0, 0, time.UTC)
	totalMinutes := deliveryTime.Sub(tradingStart).Minutes()

	// 白天时段基准价更高
	hourFactor := 1.0 + 0.3*math.Sin(float64(hour-6)*math.Pi/12)
	basePrice := 45*hourFactor + rng.NormFloat64()*5

	timePoints := sampleTradeTimes(numTrades, totalMinutes, rng)

	trades := make([]Trade, 0, len(timePoints))
	currentPrice := basePrice
	for _, minutes := range timePoints {
		tradeTime := tradingStart.Add(time.Duration(minutes * float64(time.Minute)))
		hoursToDelivery := deliveryTime.Sub(tradeTime).Hours()

		volatility := 0.5 + 1.5*math.Max(0, (24-hoursToDelivery)/24)
		currentPrice += rng.NormFloat64() * volatility
		currentPrice = math.Max(10, math.Min(currentPrice, basePrice*2))

		proximity := math.Max(0.1, math.Min(1.0, (24-hoursToDelivery)/24))
		volume := 0.1 + 9.9*proximity*rng.Float64()

		trades = append(trades, Trade{
			DeliveryTime:    deliveryTime,
			TradeTime:       tradeTime,
			TradeHour:       tradeTime.Truncate(time.Hour),
			Price:           round(currentPrice, 2),
			Volume:          round(volume, 1),
			HoursToDelivery: round(hoursToDelivery, 2),
		})
	}

	stampVWAPs(trades)
	return trades
}

// sampleTradeTimes 生成成交时刻（相对开盘的分钟数）。
// 约两成成交稀疏地落在前70%的时间（隔夜与早盘），
// 其余按幂分布集中到临近交割的30%时间里。
func sampleTradeTimes(numTrades int, totalMinutes float64, rng *rand.Rand) []float64 {
	overnightCount := int(float64(numTrades) * 0.2)
	remainingCount := numTrades - overnightCount

	points := make([]float64, 0, numTrades)
	for i := 0; i < overnightCount; i++ {
		p := rng.ExpFloat64() * totalMinutes / 20
		if p < totalMinutes*0.7 {
			points = append(points, p)
		}
	}

	const powerParam = 0.3 // 越小越向交割集中
	for i := 0; i < remainingCount; i++ {
		p := math.Pow(rng.Float64(), 1/powerParam) * (totalMinutes * 0.3)
		points = append(points, totalMinutes*0.7+p)
	}

	for i, p := range points {
		points[i] = math.Max(0, math.Min(p, totalMinutes))
	}
	sort.Float64s(points)
	return points
}

// stampVWAPs 计算合约整体VWAP与逐小时VWAP并写回每笔成交。
func stampVWAPs(trades []Trade) {
	if len(trades) == 0 {
		return
	}

	var totalPV, totalVolume float64
	hourlyPV := make(map[time.Time]float64)
	hourlyVolume := make(map[time.Time]float64)
	for _, trade := range trades {
		pv := trade.Price * trade.Volume
		totalPV += pv
		totalVolume += trade.Volume
		hourlyPV[trade.TradeHour] += pv
		hourlyVolume[trade.TradeHour] += trade.Volume
	}

	overall := round(totalPV/totalVolume, 2)
	for i := range trades {
		hour := trades[i].TradeHour
		trades[i].HourlyVWAP = round(hourlyPV[hour]/hourlyVolume[hour], 2)
		trades[i].OverallVWAP = overall
	}
}

func round(v float64, digits int) float64 {
	factor := math.Pow(10, float64(digits))
	return math.Round(v*factor) / factor
}
