package indicators

import (
	"math"
	"testing"
)

func TestSMAColumn(t *testing.T) {
	// 价格序列: 1,2,3,4,5
	// SMA(3): [NaN, NaN, 2, 3, 4]
	s := NewSeriesFromPrices([]float64{1, 2, 3, 4, 5})
	name := s.SetSMA(3)

	col, ok := s.Column(name)
	if !ok {
		t.Fatal("SMA列不存在")
	}
	if len(col) != 5 {
		t.Fatalf("指标列长度应与价格列一致: 期望 5, 得到 %d", len(col))
	}

	// 暖机阶段为 NaN
	if !math.IsNaN(col[0]) || !math.IsNaN(col[1]) {
		t.Errorf("暖机阶段应为 NaN: 得到 %.4f, %.4f", col[0], col[1])
	}

	expected := []float64{2, 3, 4}
	for i, want := range expected {
		if math.Abs(col[i+2]-want) > 1e-9 {
			t.Errorf("SMA[%d] 期望 %.4f, 得到 %.4f", i+2, want, col[i+2])
		}
	}

	last, ok := s.Last(name)
	if !ok || math.Abs(last-4) > 1e-9 {
		t.Errorf("Last 期望 (4, true), 得到 (%.4f, %v)", last, ok)
	}
}

func TestLastDuringWarmup(t *testing.T) {
	// 数据量不足一个窗口时，Last 应返回 ok=false
	s := NewSeriesFromPrices([]float64{1, 2, 3})
	name := s.SetSMA(10)

	if _, ok := s.Last(name); ok {
		t.Error("暖机阶段 Last 应返回 ok=false")
	}
}

func TestEMAColumn(t *testing.T) {
	// EMA(3) 首值为前3个的SMA=2, multiplier=0.5
	// EMA[3] = 4*0.5 + 2*0.5 = 3
	// EMA[4] = 5*0.5 + 3*0.5 = 4
	s := NewSeriesFromPrices([]float64{1, 2, 3, 4, 5})
	name := s.SetEMA(3)

	col, _ := s.Column(name)
	if !math.IsNaN(col[0]) || !math.IsNaN(col[1]) {
		t.Error("EMA 暖机阶段应为 NaN")
	}
	if math.Abs(col[2]-2) > 1e-9 {
		t.Errorf("EMA首值应为SMA播种值 2, 得到 %.4f", col[2])
	}
	if math.Abs(col[3]-3) > 1e-9 || math.Abs(col[4]-4) > 1e-9 {
		t.Errorf("EMA 计算错误: 得到 %.4f, %.4f", col[3], col[4])
	}
}

func TestRSIColumn(t *testing.T) {
	// 持续上涨时 avgLoss 为 0, RSI 应为 100
	prices := make([]float64, 20)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	s := NewSeriesFromPrices(prices)
	name := s.SetRSI(14)

	last, ok := s.Last(name)
	if !ok {
		t.Fatal("20根K线应足够计算RSI(14)")
	}
	if math.Abs(last-100) > 1e-9 {
		t.Errorf("持续上涨RSI应为100, 得到 %.4f", last)
	}

	// 持续下跌时 RSI 应为 0
	for i := range prices {
		prices[i] = 200 - float64(i)
	}
	s2 := NewSeriesFromPrices(prices)
	name2 := s2.SetRSI(14)
	last2, ok := s2.Last(name2)
	if !ok {
		t.Fatal("RSI计算失败")
	}
	if math.Abs(last2) > 1e-9 {
		t.Errorf("持续下跌RSI应为0, 得到 %.4f", last2)
	}
}

func TestBollingerColumns(t *testing.T) {
	// 常数价格序列: std=0, 上下轨均等于中轨
	prices := make([]float64, 50)
	for i := range prices {
		prices[i] = 100
	}
	s := NewSeriesFromPrices(prices)
	upName, downName := s.SetBollinger(40, 20, 1.5, 2.5)

	up, ok := s.Last(upName)
	if !ok {
		t.Fatal("上轨计算失败")
	}
	down, ok := s.Last(downName)
	if !ok {
		t.Fatal("下轨计算失败")
	}

	if math.Abs(up-100) > 1e-9 || math.Abs(down-100) > 1e-9 {
		t.Errorf("常数序列上下轨应等于100: 得到 上=%.4f 下=%.4f", up, down)
	}

	// 暖机校验: 长度39不足MA窗口40
	s2 := NewSeriesFromPrices(prices[:39])
	upName2, _ := s2.SetBollinger(40, 20, 1.5, 2.5)
	if _, ok := s2.Last(upName2); ok {
		t.Error("数据不足时上轨应返回 ok=false")
	}
}

func TestStdDevColumn(t *testing.T) {
	// 窗口 [2,4,4,4,5,5,7,9] 的总体标准差为 2
	prices := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	s := NewSeriesFromPrices(prices)
	name := s.SetStdDev(8)

	last, ok := s.Last(name)
	if !ok {
		t.Fatal("标准差计算失败")
	}
	if math.Abs(last-2) > 1e-9 {
		t.Errorf("标准差期望 2, 得到 %.4f", last)
	}
}
