package indicators

import (
	"fmt"
	"math"

	"tradepilot/exchange"
)

// Series 指标序列
// 以时间升序保存每根K线的收盘时间与价格，派生指标列与价格列等长，
// 暖机阶段（数据不足的行）填充 NaN
type Series struct {
	Times   []int64   // 开盘时间（毫秒时间戳）
	Prices  []float64 // 收盘价
	columns map[string][]float64
}

// NewSeries 从K线构建指标序列
func NewSeries(candles []*exchange.Candle) *Series {
	s := &Series{
		Times:   make([]int64, len(candles)),
		Prices:  make([]float64, len(candles)),
		columns: make(map[string][]float64),
	}
	for i, c := range candles {
		s.Times[i] = c.OpenTime
		s.Prices[i] = c.Close
	}
	return s
}

// NewSeriesFromPrices 从裸价格序列构建指标序列（用于测试）
func NewSeriesFromPrices(prices []float64) *Series {
	s := &Series{
		Times:   make([]int64, len(prices)),
		Prices:  append([]float64(nil), prices...),
		columns: make(map[string][]float64),
	}
	for i := range prices {
		s.Times[i] = int64(i)
	}
	return s
}

// Len 序列长度
func (s *Series) Len() int {
	return len(s.Prices)
}

// Column 获取指标列（与价格列等长，前缀为 NaN）
func (s *Series) Column(name string) ([]float64, bool) {
	col, ok := s.columns[name]
	return col, ok
}

// Last 获取指标列的最后一个值
// 列不存在、序列为空或该值仍处于暖机 NaN 阶段时 ok 为 false
func (s *Series) Last(name string) (float64, bool) {
	col, ok := s.columns[name]
	if !ok || len(col) == 0 {
		return 0, false
	}
	v := col[len(col)-1]
	if math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// LastPrice 获取最后一根K线的价格
func (s *Series) LastPrice() (float64, bool) {
	if len(s.Prices) == 0 {
		return 0, false
	}
	return s.Prices[len(s.Prices)-1], true
}

// SetSMA 计算简单移动平均列，返回列名（如 sma_50）
func (s *Series) SetSMA(window int) string {
	name := fmt.Sprintf("sma_%d", window)
	if _, ok := s.columns[name]; ok {
		return name
	}
	s.columns[name] = smaColumn(s.Prices, window)
	return name
}

// SetEMA 计算指数移动平均列，返回列名（如 ema_20）
func (s *Series) SetEMA(window int) string {
	name := fmt.Sprintf("ema_%d", window)
	if _, ok := s.columns[name]; ok {
		return name
	}
	s.columns[name] = emaColumn(s.Prices, window)
	return name
}

// SetRSI 计算相对强弱指数列（EMA 平滑），返回列名（如 rsi_14）
func (s *Series) SetRSI(length int) string {
	name := fmt.Sprintf("rsi_%d", length)
	if _, ok := s.columns[name]; ok {
		return name
	}
	s.columns[name] = rsiColumn(s.Prices, length)
	return name
}

// SetStdDev 计算滚动标准差列，返回列名（如 std_20）
func (s *Series) SetStdDev(window int) string {
	name := fmt.Sprintf("std_%d", window)
	if _, ok := s.columns[name]; ok {
		return name
	}
	s.columns[name] = stdDevColumn(s.Prices, window)
	return name
}

// SetBollinger 计算布林带上下轨列
// 中轨为 maWindow 的 SMA，上轨 = 中轨 + upMult×std，下轨 = 中轨 − downMult×std
// 返回 (上轨列名, 下轨列名)
func (s *Series) SetBollinger(maWindow, stdWindow int, upMult, downMult float64) (string, string) {
	upName := fmt.Sprintf("boll_up_%d_%d", maWindow, stdWindow)
	downName := fmt.Sprintf("boll_down_%d_%d", maWindow, stdWindow)
	if _, ok := s.columns[upName]; ok {
		return upName, downName
	}

	ma := smaColumn(s.Prices, maWindow)
	std := stdDevColumn(s.Prices, stdWindow)

	up := make([]float64, len(s.Prices))
	down := make([]float64, len(s.Prices))
	for i := range s.Prices {
		if math.IsNaN(ma[i]) || math.IsNaN(std[i]) {
			up[i] = math.NaN()
			down[i] = math.NaN()
			continue
		}
		up[i] = ma[i] + upMult*std[i]
		down[i] = ma[i] - downMult*std[i]
	}

	s.columns[upName] = up
	s.columns[downName] = down
	return upName, downName
}

// ========== 指标计算 ==========

func nanColumn(n int) []float64 {
	col := make([]float64, n)
	for i := range col {
		col[i] = math.NaN()
	}
	return col
}

func smaColumn(values []float64, period int) []float64 {
	result := nanColumn(len(values))
	if period <= 0 || len(values) < period {
		return result
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			result[i] = sum / float64(period)
		}
	}
	return result
}

func emaColumn(values []float64, period int) []float64 {
	result := nanColumn(len(values))
	if period <= 0 || len(values) < period {
		return result
	}

	multiplier := 2.0 / (float64(period) + 1.0)

	// 第一个 EMA 使用 SMA 播种
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	result[period-1] = sum / float64(period)

	for i := period; i < len(values); i++ {
		result[i] = values[i]*multiplier + result[i-1]*(1-multiplier)
	}
	return result
}

func stdDevColumn(values []float64, period int) []float64 {
	result := nanColumn(len(values))
	if period <= 0 || len(values) < period {
		return result
	}

	for i := period - 1; i < len(values); i++ {
		window := values[i-period+1 : i+1]
		mean := 0.0
		for _, v := range window {
			mean += v
		}
		mean /= float64(period)

		variance := 0.0
		for _, v := range window {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(period)

		result[i] = math.Sqrt(variance)
	}
	return result
}

func rsiColumn(values []float64, period int) []float64 {
	result := nanColumn(len(values))
	if period <= 0 || len(values) < period+1 {
		return result
	}

	// 价格变化，分离上涨与下跌
	gains := make([]float64, len(values)-1)
	losses := make([]float64, len(values)-1)
	for i := 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains[i-1] = change
		} else {
			losses[i-1] = -change
		}
	}

	// EMA 平滑
	avgGain := emaColumn(gains, period)
	avgLoss := emaColumn(losses, period)

	// changes 序列比价格序列短一位，结果回写时整体右移一位
	for i := range avgGain {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		var rsi float64
		if avgLoss[i] == 0 {
			rsi = 100
		} else {
			rs := avgGain[i] / avgLoss[i]
			rsi = 100 - 100/(1+rs)
		}
		result[i+1] = rsi
	}
	return result
}
