package bot

import (
	"context"
	"errors"
	"fmt"

	"tradepilot/event"
	"tradepilot/exchange"
	"tradepilot/indicators"
	"tradepilot/logger"
	"tradepilot/metrics"
	"tradepilot/order"
	"tradepilot/position"
	"tradepilot/storage"
	"tradepilot/strategy"
)

// Trader 下单接口（由 order.Executor 实现）
type Trader interface {
	Buy(ctx context.Context, pair strategy.Pair, price, investment float64) (*order.Fill, error)
	Sell(ctx context.Context, pair strategy.Pair, price, quantity float64) (*order.Fill, error)
}

// Store 引擎持久化接口（由 storage.Store 实现）
type Store interface {
	GetOpenPositions() ([]*storage.OpenPosition, error)
	SaveStopLoss(r *storage.StopLossRecord) error
	CloseStopLoss(strategy, symbol string) error
}

// Engine 交易引擎
// 持有台账、策略集合、执行器与分配器，所有状态都在实例内，没有包级可变状态
type Engine struct {
	exchange  exchange.IExchange
	ledger    *position.PortfolioLedger
	signals   []strategy.Signal
	trader    Trader
	allocator *position.BudgetAllocator
	store     Store
	bus       *event.Bus
}

// NewEngine 创建交易引擎
func NewEngine(ex exchange.IExchange, ledger *position.PortfolioLedger, signals []strategy.Signal,
	trader Trader, allocator *position.BudgetAllocator, store Store, bus *event.Bus) *Engine {
	return &Engine{
		exchange:  ex,
		ledger:    ledger,
		signals:   signals,
		trader:    trader,
		allocator: allocator,
		store:     store,
		bus:       bus,
	}
}

// Signals 已配置的策略集合
func (e *Engine) Signals() []strategy.Signal {
	return e.signals
}

// RunCycle 执行单个交易对的完整评估周期: 取数→评估→决策→执行→落盘
func (e *Engine) RunCycle(ctx context.Context, sig strategy.Signal) error {
	pair := sig.Pair()
	pm := metrics.GetPrometheusMetrics()

	price, err := e.exchange.GetPrice(ctx, pair.Symbol)
	if err != nil {
		pm.RecordCycleError(pair.Strategy, pair.Symbol)
		return fmt.Errorf("获取价格失败: %w", err)
	}

	candles, err := e.exchange.GetCandles(ctx, pair.Symbol, sig.Interval(), sig.Limit())
	if err != nil {
		pm.RecordCycleError(pair.Strategy, pair.Symbol)
		return fmt.Errorf("获取K线失败: %w", err)
	}
	series := indicators.NewSeries(candles)

	action := sig.Evaluate(series, price)

	// 止损线可能刚上移，立即落盘保证重启后不回退
	if sl := sig.StopLoss(); sig.Active() && sl != nil && sl.Open {
		if err := e.persistStopLoss(sl); err != nil {
			pm.RecordCycleError(pair.Strategy, pair.Symbol)
			return err
		}
		pm.SetStopLossTrail(pair.Strategy, pair.Symbol, sl.Trail)
	}

	switch action {
	case strategy.ActionBuy:
		if !sig.Active() {
			err = e.openPosition(ctx, sig, price)
		}
	case strategy.ActionSell:
		if sig.Active() {
			err = e.closePosition(ctx, sig, price)
		}
	}
	if err != nil {
		pm.RecordCycleError(pair.Strategy, pair.Symbol)
		return err
	}

	e.ledger.UpdateValue(pair.Symbol, price)
	pm.RecordCycle(pair.Strategy, pair.Symbol, string(action))
	pm.SetFiatBalance(e.ledger.FiatBalance())
	pm.SetTotalBudget(e.ledger.TotalBudget())

	// 每次评估输出一行状态: 指标快照 + 决策 + 资金
	logger.Info("📊 [%s] 价格=%.8f %s 决策=%s 余额=%.2f 总预算=%.2f",
		pair, price, sig.Snapshot(series), action, e.ledger.FiatBalance(), e.ledger.TotalBudget())

	return nil
}

// openPosition 按分配额度买入建仓
func (e *Engine) openPosition(ctx context.Context, sig strategy.Signal, price float64) error {
	pair := sig.Pair()

	in := e.allocationInput()
	var amount float64
	if pair.Type == strategy.TypeLong {
		amount = e.allocator.LongAllocation(in)
	} else {
		amount = e.allocator.ShortAllocation(in)
	}
	if amount <= 0 {
		logger.Info("ℹ️ [%s] 买入信号但无可用额度, 跳过", pair)
		return nil
	}

	fill, err := e.trader.Buy(ctx, pair, price, amount)
	if err != nil {
		// 额度不足或未成交不是周期错误，不影响其他交易对
		if errors.Is(err, order.ErrOrderNotFilled) || errors.Is(err, order.ErrBelowMinNotional) {
			logger.Warn("⚠️ [%s] 买入未完成: %v", pair, err)
			return nil
		}
		return fmt.Errorf("买入失败: %w", err)
	}

	sig.SetActive(true)
	if sig.UsesStopLoss() {
		sl, err := position.NewTrailingStopLoss(pair.Strategy, pair.Symbol, fill.Price, sig.StopLossRatio())
		if err != nil {
			return fmt.Errorf("创建止损失败: %w", err)
		}
		sig.SetStopLoss(sl)
		if err := e.persistStopLoss(sl); err != nil {
			return err
		}
	}

	e.publish(event.EventTypeOrderFilled, map[string]interface{}{
		"pair":       pair.String(),
		"side":       "BUY",
		"price":      fill.Price,
		"quantity":   fill.Quantity,
		"investment": fill.Investment,
	})
	return nil
}

// closePosition 全量卖出平仓
func (e *Engine) closePosition(ctx context.Context, sig strategy.Signal, price float64) error {
	pair := sig.Pair()

	quantity := e.positionQuantity(pair)
	if quantity <= 0 {
		logger.Warn("⚠️ [%s] 卖出信号但没有持仓记录, 重置为空仓", pair)
		sig.SetActive(false)
		sig.SetStopLoss(nil)
		return nil
	}

	// 记录是否为止损触发的强制卖出
	stopTriggered := false
	if sl := sig.StopLoss(); sl != nil {
		stopTriggered = sl.Triggered(price)
	}

	fill, err := e.trader.Sell(ctx, pair, price, quantity)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFilled) {
			// 本周期未卖出，持仓保留，下个周期重试
			logger.Warn("⚠️ [%s] 卖出未成交, 下个周期重试", pair)
			return nil
		}
		return fmt.Errorf("卖出失败: %w", err)
	}

	sig.SetActive(false)
	if sl := sig.StopLoss(); sl != nil {
		sl.Close()
		if err := e.store.CloseStopLoss(pair.Strategy, pair.Symbol); err != nil {
			return fmt.Errorf("关闭止损记录失败: %w", err)
		}
		sig.SetStopLoss(nil)
	}

	eventType := event.EventTypeOrderFilled
	if stopTriggered {
		eventType = event.EventTypeStopLoss
		metrics.GetPrometheusMetrics().RecordStopLossTrigger(pair.Strategy, pair.Symbol)
	}
	e.publish(eventType, map[string]interface{}{
		"pair":     pair.String(),
		"side":     "SELL",
		"price":    fill.Price,
		"quantity": fill.Quantity,
		"proceeds": fill.Investment,
	})
	return nil
}

// positionQuantity 卖出数量以持仓记录为准，缺失时退回台账余额
func (e *Engine) positionQuantity(pair strategy.Pair) float64 {
	positions, err := e.store.GetOpenPositions()
	if err != nil {
		logger.Warn("⚠️ [%s] 读取持仓记录失败: %v, 使用台账余额", pair, err)
		return e.ledger.Holding(pair.Symbol).Balance
	}
	for _, p := range positions {
		if p.Strategy == pair.Strategy && p.Symbol == pair.Symbol {
			return p.Coins
		}
	}
	return e.ledger.Holding(pair.Symbol).Balance
}

// allocationInput 从策略集合与台账汇总分配决策所需的快照
func (e *Engine) allocationInput() position.AllocationInput {
	in := position.AllocationInput{
		TotalBudget: e.ledger.TotalBudget(),
		FiatBalance: e.ledger.FiatBalance(),
	}

	for _, sig := range e.signals {
		p := sig.Pair()
		if p.Type == strategy.TypeLong {
			if sig.Active() {
				in.LongInvested += e.ledger.Holding(p.Symbol).Investment
			} else {
				in.PendingLongPairs++
			}
		} else {
			if sig.Active() {
				in.ShortInvested += e.ledger.Holding(p.Symbol).Investment
				in.ActiveShortSlots++
			}
		}
	}
	return in
}

func (e *Engine) persistStopLoss(sl *position.TrailingStopLoss) error {
	if err := e.store.SaveStopLoss(&storage.StopLossRecord{
		Strategy:   sl.Strategy,
		Symbol:     sl.Symbol,
		BuyPrice:   sl.BuyPrice,
		Highest:    sl.Highest,
		TrailRatio: sl.TrailRatio,
		Trail:      sl.Trail,
		Open:       sl.Open,
	}); err != nil {
		return fmt.Errorf("保存止损记录失败: %w", err)
	}
	return nil
}

func (e *Engine) publish(t event.EventType, data map[string]interface{}) {
	if e.bus != nil {
		e.bus.Publish(event.New(t, data))
	}
}
