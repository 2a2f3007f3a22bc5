package strategy

import (
	"fmt"

	"tradepilot/indicators"
)

// BollingerBands 布林带策略（短线，带追踪止损）
// 价格跌破下轨且 RSI 偏弱时买入，升破上轨或 RSI 过热时卖出
type BollingerBands struct {
	baseSignal
	maWindow  int
	stdWindow int
	upMult    float64
	downMult  float64
	rsiLength int
}

// NewBollingerBands 创建布林带策略
// 默认中轨 SMA40, 标准差窗口 20, 上轨 +1.5σ, 下轨 −2.5σ, 30分钟K线, 止损比例 0.95
func NewBollingerBands(symbol string) *BollingerBands {
	return &BollingerBands{
		baseSignal: baseSignal{
			pair:      Pair{Symbol: symbol, Strategy: "bollinger_bands", Type: TypeShort},
			interval:  "30m",
			limit:     100,
			stopRatio: 0.95,
		},
		maWindow:  40,
		stdWindow: 20,
		upMult:    1.5,
		downMult:  2.5,
		rsiLength: 14,
	}
}

// Evaluate 持仓时先检查止损
// 空仓: 价格<下轨 且 RSI<40 买入; 持仓: 价格>上轨 或 RSI>60 卖出
func (b *BollingerBands) Evaluate(series *indicators.Series, price float64) Action {
	if b.checkStopLoss(price) {
		return ActionSell
	}

	upName, downName := series.SetBollinger(b.maWindow, b.stdWindow, b.upMult, b.downMult)
	rsiName := series.SetRSI(b.rsiLength)

	up, ok := series.Last(upName)
	if !ok {
		return ActionHold
	}
	down, ok := series.Last(downName)
	if !ok {
		return ActionHold
	}
	rsi, ok := series.Last(rsiName)
	if !ok {
		return ActionHold
	}

	if !b.active && price < down && rsi < 40 {
		return ActionBuy
	}
	if b.active && (price > up || rsi > 60) {
		return ActionSell
	}
	return ActionHold
}

// Snapshot 指标快照
func (b *BollingerBands) Snapshot(series *indicators.Series) string {
	up, uok := series.Last(fmt.Sprintf("boll_up_%d_%d", b.maWindow, b.stdWindow))
	down, dok := series.Last(fmt.Sprintf("boll_down_%d_%d", b.maWindow, b.stdWindow))
	rsi, rok := series.Last(fmt.Sprintf("rsi_%d", b.rsiLength))
	if !uok || !dok || !rok {
		return "布林带 暖机中"
	}
	if b.stopLoss != nil && b.stopLoss.Open {
		return fmt.Sprintf("上轨=%.4f 下轨=%.4f RSI=%.2f 止损线=%.4f", up, down, rsi, b.stopLoss.Trail)
	}
	return fmt.Sprintf("上轨=%.4f 下轨=%.4f RSI=%.2f", up, down, rsi)
}
