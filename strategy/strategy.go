package strategy

import (
	"fmt"

	"tradepilot/indicators"
	"tradepilot/logger"
	"tradepilot/position"
)

// Action 策略决策动作
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// PairType 策略类型：长线（长期持有）或短线（频繁进出带止损）
type PairType string

const (
	TypeLong  PairType = "long"
	TypeShort PairType = "short"
)

// Pair 交易对与策略的绑定，创建后不可变
type Pair struct {
	Symbol   string
	Strategy string
	Type     PairType
}

// String 组合键字符串表示
func (p Pair) String() string {
	return p.Strategy + "/" + p.Symbol
}

// Signal 策略信号状态机
// Active=false 表示空仓（只考虑买入），Active=true 表示持仓（只考虑卖出）
type Signal interface {
	// Pair 返回绑定的交易对
	Pair() Pair
	// Interval 策略评估使用的K线周期
	Interval() string
	// Limit 评估所需的K线数量
	Limit() int
	// Evaluate 根据指标序列与最新价格给出决策
	Evaluate(series *indicators.Series, price float64) Action
	// Active 是否持仓中
	Active() bool
	SetActive(active bool)
	// UsesStopLoss 该策略是否使用追踪止损
	UsesStopLoss() bool
	// StopLossRatio 止损比例（不使用止损时为0）
	StopLossRatio() float64
	// StopLoss 当前追踪止损（可能为nil）
	StopLoss() *position.TrailingStopLoss
	SetStopLoss(sl *position.TrailingStopLoss)
	// Snapshot 指标快照（状态行展示）
	Snapshot(series *indicators.Series) string
}

// baseSignal 各策略共享的状态
type baseSignal struct {
	pair      Pair
	interval  string
	limit     int
	active    bool
	stopRatio float64
	stopLoss  *position.TrailingStopLoss
}

func (b *baseSignal) Pair() Pair          { return b.pair }
func (b *baseSignal) Interval() string    { return b.interval }
func (b *baseSignal) Limit() int          { return b.limit }
func (b *baseSignal) Active() bool        { return b.active }
func (b *baseSignal) SetActive(a bool)    { b.active = a }
func (b *baseSignal) UsesStopLoss() bool  { return b.stopRatio > 0 }
func (b *baseSignal) StopLossRatio() float64 { return b.stopRatio }

func (b *baseSignal) StopLoss() *position.TrailingStopLoss { return b.stopLoss }
func (b *baseSignal) SetStopLoss(sl *position.TrailingStopLoss) { b.stopLoss = sl }

// checkStopLoss 持仓期间先上移止损线，再判断是否跌破
// 返回 true 表示触发强制卖出
func (b *baseSignal) checkStopLoss(price float64) bool {
	if !b.active || b.stopLoss == nil {
		return false
	}

	b.stopLoss.Adjust(price)
	if b.stopLoss.Triggered(price) {
		logger.Warn("🛑 [止损] %s 价格 %.8f 跌破止损线 %.8f, 强制卖出",
			b.pair, price, b.stopLoss.Trail)
		return true
	}
	return false
}

// New 按策略名创建信号实例
func New(name, symbol string) (Signal, error) {
	switch name {
	case "crossing_sma":
		return NewCrossingSMA(symbol), nil
	case "bottom_rsi":
		return NewBottomRSI(symbol), nil
	case "bollinger_bands":
		return NewBollingerBands(symbol), nil
	default:
		return nil, fmt.Errorf("未知的策略: %s", name)
	}
}
