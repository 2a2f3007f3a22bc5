package exchange

import (
	"github.com/shopspring/decimal"
)

// RoundPrice 将价格对齐到 tickSize
// 买单向上取整（偏向成交），卖单向下取整
func RoundPrice(price float64, tick decimal.Decimal, side Side) float64 {
	if tick.IsZero() {
		return price
	}
	p := decimal.NewFromFloat(price)
	steps := p.Div(tick)
	if side == SideBuy {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	v, _ := steps.Mul(tick).Float64()
	return v
}

// FloorQuantity 将数量向下对齐到 stepSize
// 向下取整保证不会超出可用余额
func FloorQuantity(qty float64, step decimal.Decimal) float64 {
	if step.IsZero() {
		return qty
	}
	q := decimal.NewFromFloat(qty)
	v, _ := q.Div(step).Floor().Mul(step).Float64()
	return v
}

// MeetsMinNotional 判断 价格×数量 是否满足最小名义价值
func MeetsMinNotional(price, qty float64, minNotional decimal.Decimal) bool {
	notional := decimal.NewFromFloat(price).Mul(decimal.NewFromFloat(qty))
	return notional.GreaterThanOrEqual(minNotional)
}
