package position

import (
	"fmt"

	"tradepilot/logger"
)

// TrailingStopLoss 追踪止损
// 止损线 = 历史最高价 × 止损比例，只随最高价上移，永不下调
type TrailingStopLoss struct {
	Strategy   string
	Symbol     string
	BuyPrice   float64
	Highest    float64
	TrailRatio float64
	Trail      float64
	Open       bool
}

// NewTrailingStopLoss 创建追踪止损
// ratio 必须在 (0,1) 区间内，初始最高价为买入价
func NewTrailingStopLoss(strategy, symbol string, buyPrice, ratio float64) (*TrailingStopLoss, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("止损比例必须在(0,1)区间: %.4f", ratio)
	}
	if buyPrice <= 0 {
		return nil, fmt.Errorf("买入价必须大于0: %.8f", buyPrice)
	}

	return &TrailingStopLoss{
		Strategy:   strategy,
		Symbol:     symbol,
		BuyPrice:   buyPrice,
		Highest:    buyPrice,
		TrailRatio: ratio,
		Trail:      buyPrice * ratio,
		Open:       true,
	}, nil
}

// Restore 从持久化记录重建追踪止损，不做任何行情调用
func Restore(strategy, symbol string, buyPrice, highest, ratio float64) (*TrailingStopLoss, error) {
	if ratio <= 0 || ratio >= 1 {
		return nil, fmt.Errorf("止损比例必须在(0,1)区间: %.4f", ratio)
	}
	if highest < buyPrice {
		highest = buyPrice
	}

	return &TrailingStopLoss{
		Strategy:   strategy,
		Symbol:     symbol,
		BuyPrice:   buyPrice,
		Highest:    highest,
		TrailRatio: ratio,
		Trail:      highest * ratio,
		Open:       true,
	}, nil
}

// Adjust 用最新价格调整止损线
// 价格创新高时上移止损线并返回 true，否则保持不变返回 false
func (t *TrailingStopLoss) Adjust(price float64) bool {
	if !t.Open || price <= t.Highest {
		return false
	}

	t.Highest = price
	t.Trail = price * t.TrailRatio
	logger.Debug("📈 [止损] %s/%s 最高价上移至 %.8f, 止损线 %.8f",
		t.Strategy, t.Symbol, t.Highest, t.Trail)
	return true
}

// Triggered 判断价格是否已跌破止损线
func (t *TrailingStopLoss) Triggered(price float64) bool {
	return t.Open && price < t.Trail
}

// Close 平仓止损
func (t *TrailingStopLoss) Close() {
	t.Open = false
}
