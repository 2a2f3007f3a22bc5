package strategy

import (
	"fmt"

	"tradepilot/indicators"
)

// CrossingSMA 均线交叉策略（长线，不使用止损）
// 快线上穿慢线时买入，下穿时卖出
type CrossingSMA struct {
	baseSignal
	fastWindow int
	slowWindow int
}

// NewCrossingSMA 创建均线交叉策略，默认 50/200, 4小时K线
func NewCrossingSMA(symbol string) *CrossingSMA {
	return &CrossingSMA{
		baseSignal: baseSignal{
			pair:     Pair{Symbol: symbol, Strategy: "crossing_sma", Type: TypeLong},
			interval: "4h",
			limit:    210,
		},
		fastWindow: 50,
		slowWindow: 200,
	}
}

// Evaluate 快线>慢线且空仓时买入，快线<慢线且持仓时卖出
func (c *CrossingSMA) Evaluate(series *indicators.Series, price float64) Action {
	fastName := series.SetSMA(c.fastWindow)
	slowName := series.SetSMA(c.slowWindow)

	fast, ok := series.Last(fastName)
	if !ok {
		return ActionHold
	}
	slow, ok := series.Last(slowName)
	if !ok {
		return ActionHold
	}

	if !c.active && fast > slow {
		return ActionBuy
	}
	if c.active && fast < slow {
		return ActionSell
	}
	return ActionHold
}

// Snapshot 指标快照
func (c *CrossingSMA) Snapshot(series *indicators.Series) string {
	fast, fok := series.Last(fmt.Sprintf("sma_%d", c.fastWindow))
	slow, sok := series.Last(fmt.Sprintf("sma_%d", c.slowWindow))
	if !fok || !sok {
		return "SMA 暖机中"
	}
	return fmt.Sprintf("SMA%d=%.4f SMA%d=%.4f", c.fastWindow, fast, c.slowWindow, slow)
}
