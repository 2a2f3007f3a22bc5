package strategy

import (
	"testing"

	"tradepilot/indicators"
	"tradepilot/position"
)

// risingPrices 生成持续上涨的价格序列
func risingPrices(n int, start, step float64) []float64 {
	prices := make([]float64, n)
	for i := range prices {
		prices[i] = start + float64(i)*step
	}
	return prices
}

func TestCrossingSMASignal(t *testing.T) {
	sig := NewCrossingSMA("BTCUSDT")

	if sig.Pair().Type != TypeLong {
		t.Error("均线交叉策略应为长线类型")
	}
	if sig.UsesStopLoss() {
		t.Error("均线交叉策略不应使用止损")
	}

	// 持续上涨 250 根K线: 快线(50) > 慢线(200), 空仓 -> 买入
	series := indicators.NewSeriesFromPrices(risingPrices(250, 100, 1))
	if got := sig.Evaluate(series, 349); got != ActionBuy {
		t.Errorf("快线上穿慢线且空仓应买入, 得到 %s", got)
	}

	// 持仓后同样的行情 -> 持有
	sig.SetActive(true)
	if got := sig.Evaluate(series, 349); got != ActionHold {
		t.Errorf("快线>慢线且持仓应持有, 得到 %s", got)
	}

	// 持续下跌: 快线 < 慢线, 持仓 -> 卖出
	falling := make([]float64, 250)
	for i := range falling {
		falling[i] = 500 - float64(i)
	}
	seriesDown := indicators.NewSeriesFromPrices(falling)
	if got := sig.Evaluate(seriesDown, 251); got != ActionSell {
		t.Errorf("快线下穿慢线且持仓应卖出, 得到 %s", got)
	}

	// 空仓时下跌行情 -> 持有
	sig.SetActive(false)
	if got := sig.Evaluate(seriesDown, 251); got != ActionHold {
		t.Errorf("快线<慢线且空仓应持有, 得到 %s", got)
	}
}

func TestCrossingSMAWarmup(t *testing.T) {
	sig := NewCrossingSMA("BTCUSDT")

	// 仅100根K线不足以计算SMA200 -> 持有
	series := indicators.NewSeriesFromPrices(risingPrices(100, 100, 1))
	if got := sig.Evaluate(series, 199); got != ActionHold {
		t.Errorf("暖机阶段应持有, 得到 %s", got)
	}
}

func TestBottomRSISignal(t *testing.T) {
	sig := NewBottomRSI("ETHUSDT")

	if sig.Pair().Type != TypeShort {
		t.Error("超卖反弹策略应为短线类型")
	}
	if !sig.UsesStopLoss() || sig.StopLossRatio() != 0.95 {
		t.Errorf("超卖反弹策略应使用止损比例 0.95, 得到 %.2f", sig.StopLossRatio())
	}

	// 持续下跌: RSI=0 < 30, 空仓 -> 买入
	falling := make([]float64, 50)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	seriesDown := indicators.NewSeriesFromPrices(falling)
	if got := sig.Evaluate(seriesDown, 151); got != ActionBuy {
		t.Errorf("RSI超卖且空仓应买入, 得到 %s", got)
	}

	// 持续上涨: RSI=100 > 40, 持仓 -> 卖出
	sig.SetActive(true)
	seriesUp := indicators.NewSeriesFromPrices(risingPrices(50, 100, 1))
	if got := sig.Evaluate(seriesUp, 149); got != ActionSell {
		t.Errorf("RSI回升且持仓应卖出, 得到 %s", got)
	}
}

func TestStopLossForcedSell(t *testing.T) {
	sig := NewBottomRSI("ETHUSDT")
	sig.SetActive(true)

	sl, err := position.NewTrailingStopLoss("bottom_rsi", "ETHUSDT", 100, 0.95)
	if err != nil {
		t.Fatal(err)
	}
	sig.SetStopLoss(sl)

	// 价格上涨到 120: 止损线上移至 114, RSI=100 会触发普通卖出
	// 这里用下跌序列保证 RSI 不触发卖出，单独验证止损路径
	falling := make([]float64, 50)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	series := indicators.NewSeriesFromPrices(falling)

	// 先用 120 上移止损线
	if got := sig.Evaluate(series, 120); got != ActionHold {
		t.Errorf("价格高于止损线且RSI超卖不应卖出, 得到 %s", got)
	}
	if sl.Trail != 114 {
		t.Errorf("止损线应上移至 114, 得到 %.4f", sl.Trail)
	}

	// 价格 110 < 114: 强制卖出，无论指标如何
	if got := sig.Evaluate(series, 110); got != ActionSell {
		t.Errorf("价格跌破止损线应强制卖出, 得到 %s", got)
	}
}

func TestBollingerBandsSignal(t *testing.T) {
	sig := NewBollingerBands("BNBUSDT")

	if sig.Pair().Type != TypeShort {
		t.Error("布林带策略应为短线类型")
	}

	// 常数价格50根后突然暴跌: 价格<下轨 且 RSI<40 -> 买入
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100
	}
	for i := 55; i < 60; i++ {
		prices[i] = 100 - float64(i-54)*5 // 暴跌至 75
	}
	series := indicators.NewSeriesFromPrices(prices)
	if got := sig.Evaluate(series, 60); got != ActionBuy {
		t.Errorf("价格跌破下轨且RSI弱势应买入, 得到 %s", got)
	}

	// 持仓时暴涨: 价格>上轨 -> 卖出
	sig.SetActive(true)
	pricesUp := make([]float64, 60)
	for i := range pricesUp {
		pricesUp[i] = 100
	}
	for i := 55; i < 60; i++ {
		pricesUp[i] = 100 + float64(i-54)*5
	}
	seriesUp := indicators.NewSeriesFromPrices(pricesUp)
	if got := sig.Evaluate(seriesUp, 150); got != ActionSell {
		t.Errorf("价格升破上轨且持仓应卖出, 得到 %s", got)
	}
}

func TestStrategyFactory(t *testing.T) {
	for _, name := range []string{"crossing_sma", "bottom_rsi", "bollinger_bands"} {
		sig, err := New(name, "BTCUSDT")
		if err != nil {
			t.Errorf("创建策略 %s 失败: %v", name, err)
			continue
		}
		if sig.Pair().Strategy != name {
			t.Errorf("策略名不匹配: 期望 %s, 得到 %s", name, sig.Pair().Strategy)
		}
		if sig.Active() {
			t.Errorf("新建策略 %s 应为空仓状态", name)
		}
	}

	if _, err := New("martingale", "BTCUSDT"); err == nil {
		t.Error("未知策略应该报错")
	}
}
