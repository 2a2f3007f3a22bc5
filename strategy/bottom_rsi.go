package strategy

import (
	"fmt"

	"tradepilot/indicators"
)

// BottomRSI 超卖反弹策略（短线，带追踪止损）
// RSI 跌入超卖区买入，回升脱离超卖区卖出
type BottomRSI struct {
	baseSignal
	rsiLength     int
	buyThreshold  float64
	sellThreshold float64
}

// NewBottomRSI 创建超卖反弹策略，默认 RSI14 买<30 卖>40, 1小时K线, 止损比例 0.95
func NewBottomRSI(symbol string) *BottomRSI {
	return &BottomRSI{
		baseSignal: baseSignal{
			pair:      Pair{Symbol: symbol, Strategy: "bottom_rsi", Type: TypeShort},
			interval:  "1h",
			limit:     100,
			stopRatio: 0.95,
		},
		rsiLength:     14,
		buyThreshold:  30,
		sellThreshold: 40,
	}
}

// Evaluate 持仓时先检查止损，空仓时 RSI<30 买入，持仓时 RSI>40 卖出
func (b *BottomRSI) Evaluate(series *indicators.Series, price float64) Action {
	// 止损优先于指标判断
	if b.checkStopLoss(price) {
		return ActionSell
	}

	rsiName := series.SetRSI(b.rsiLength)
	rsi, ok := series.Last(rsiName)
	if !ok {
		return ActionHold
	}

	if !b.active && rsi < b.buyThreshold {
		return ActionBuy
	}
	if b.active && rsi > b.sellThreshold {
		return ActionSell
	}
	return ActionHold
}

// Snapshot 指标快照
func (b *BottomRSI) Snapshot(series *indicators.Series) string {
	rsi, ok := series.Last(fmt.Sprintf("rsi_%d", b.rsiLength))
	if !ok {
		return "RSI 暖机中"
	}
	if b.stopLoss != nil && b.stopLoss.Open {
		return fmt.Sprintf("RSI%d=%.2f 止损线=%.4f", b.rsiLength, rsi, b.stopLoss.Trail)
	}
	return fmt.Sprintf("RSI%d=%.2f", b.rsiLength, rsi)
}
