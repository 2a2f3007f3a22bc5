package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"tradepilot/exchange"
	"tradepilot/logger"
	"tradepilot/metrics"
	"tradepilot/position"
	"tradepilot/storage"
	"tradepilot/strategy"
	"tradepilot/utils"
)

var (
	// ErrOrderNotFilled 重挂次数用尽仍未成交
	ErrOrderNotFilled = errors.New("订单在限定次数内未成交")
	// ErrConnectivity 连接类错误重试次数用尽
	ErrConnectivity = errors.New("交易所连接错误重试次数用尽")
	// ErrBelowMinNotional 下单金额低于交易所最小名义价值
	ErrBelowMinNotional = errors.New("下单金额低于最小名义价值")
)

// Store 订单执行器所需的持久化接口（由 storage.Store 实现）
type Store interface {
	SaveOrder(o *storage.OrderRecord) error
	CreateTrade(symbol, strategy string, buyOrderID int64) (uint, error)
	CloseTrade(tradeID uint, sellOrderID int64) error
	OpenTrade(strategy, symbol string) (*storage.TradeRecord, error)
	SaveOpenPosition(p *storage.OpenPosition) error
	DeleteOpenPosition(strategy, symbol string) error
}

// Fill 成交结果
type Fill struct {
	OrderID    int64
	TradeID    uint
	Price      float64 // 实际成交均价
	Quantity   float64 // 成交的基础资产数量
	Investment float64 // 成交金额（计价资产）
	Time       time.Time
}

// Executor 订单执行器
// 挂限价单后有限次轮询确认成交，未成交则撤单并按最新价格有限次重挂
type Executor struct {
	exchange exchange.IExchange
	ledger   *position.PortfolioLedger
	store    Store
	limiter  *rate.Limiter

	pollAttempts   int           // 成交确认轮询次数
	pollDelay      time.Duration // 轮询间隔
	placeRetries   int           // 撤单后重挂次数
	connRetries    int           // 连接类错误重试次数
	connRetryDelay time.Duration // 连接类错误重试间隔
}

// Config 执行器参数
type Config struct {
	PollAttempts   int
	PollDelay      time.Duration
	PlaceRetries   int
	ConnRetries    int
	ConnRetryDelay time.Duration
}

// NewExecutor 创建订单执行器
func NewExecutor(ex exchange.IExchange, ledger *position.PortfolioLedger, store Store, cfg Config) *Executor {
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = 5
	}
	if cfg.PollDelay <= 0 {
		cfg.PollDelay = 5 * time.Second
	}
	if cfg.PlaceRetries < 0 {
		cfg.PlaceRetries = 0
	}
	if cfg.ConnRetries <= 0 {
		cfg.ConnRetries = 3
	}
	if cfg.ConnRetryDelay <= 0 {
		cfg.ConnRetryDelay = 5 * time.Second
	}

	return &Executor{
		exchange:       ex,
		ledger:         ledger,
		store:          store,
		limiter:        rate.NewLimiter(rate.Limit(25), 30), // 25次/秒，突发30
		pollAttempts:   cfg.PollAttempts,
		pollDelay:      cfg.PollDelay,
		placeRetries:   cfg.PlaceRetries,
		connRetries:    cfg.ConnRetries,
		connRetryDelay: cfg.ConnRetryDelay,
	}
}

// withConnRetry 带连接类错误重试的交易所调用
// 业务拒绝立即返回；连接类错误有限次重试后返回 ErrConnectivity
func (e *Executor) withConnRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < e.connRetries; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("速率限制等待失败: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !exchange.IsConnectivity(lastErr) {
			return lastErr
		}

		logger.Warn("⚠️ [执行器] 连接错误 (第%d/%d次): %v", attempt+1, e.connRetries, lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.connRetryDelay):
		}
	}
	return fmt.Errorf("%w: %v", ErrConnectivity, lastErr)
}

// Buy 按金额买入：quantity = investment / price，成交后记入台账与存储
func (e *Executor) Buy(ctx context.Context, pair strategy.Pair, price, investment float64) (*Fill, error) {
	return e.execute(ctx, pair, exchange.SideBuy, price, investment)
}

// Sell 按数量卖出
func (e *Executor) Sell(ctx context.Context, pair strategy.Pair, price, quantity float64) (*Fill, error) {
	return e.execute(ctx, pair, exchange.SideSell, price, quantity)
}

// execute 下单主流程
// amount 语义: 买入时为计价资产金额，卖出时为基础资产数量
func (e *Executor) execute(ctx context.Context, pair strategy.Pair, side exchange.Side, price, amount float64) (*Fill, error) {
	start := time.Now()
	pm := metrics.GetPrometheusMetrics()

	var rules *exchange.SymbolRules
	err := e.withConnRetry(ctx, func() error {
		var err error
		rules, err = e.exchange.GetSymbolRules(ctx, pair.Symbol)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("获取交易规则失败: %w", err)
	}

	for attempt := 0; attempt <= e.placeRetries; attempt++ {
		if attempt > 0 {
			// 重挂前重新获取价格
			err := e.withConnRetry(ctx, func() error {
				var err error
				price, err = e.exchange.GetPrice(ctx, pair.Symbol)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("重挂前获取价格失败: %w", err)
			}
			logger.Info("🔄 [执行器] %s 第%d次重挂, 最新价格 %.8f", pair, attempt, price)
		}

		limitPrice := exchange.RoundPrice(price, rules.TickSize, side)

		var quantity float64
		if side == exchange.SideBuy {
			quantity = exchange.FloorQuantity(amount/limitPrice, rules.StepSize)
		} else {
			quantity = exchange.FloorQuantity(amount, rules.StepSize)
		}
		if quantity <= 0 || !exchange.MeetsMinNotional(limitPrice, quantity, rules.MinNotional) {
			return nil, fmt.Errorf("%w: %s %.8f×%.8f", ErrBelowMinNotional, pair.Symbol, limitPrice, quantity)
		}

		var placed *exchange.Order
		err = e.withConnRetry(ctx, func() error {
			var err error
			placed, err = e.exchange.PlaceLimitOrder(ctx, &exchange.OrderRequest{
				Symbol:        pair.Symbol,
				Side:          side,
				Price:         limitPrice,
				Quantity:      quantity,
				ClientOrderID: utils.GenerateClientOrderID(pair.Strategy),
			})
			return err
		})
		if err != nil {
			pm.RecordOrder(pair.Symbol, string(side), "FAILED")
			return nil, fmt.Errorf("下单失败: %w", err)
		}
		pm.RecordOrder(pair.Symbol, string(side), string(placed.Status))

		order, filled, err := e.awaitFill(ctx, pair.Symbol, placed.OrderID)
		if err != nil {
			return nil, err
		}
		if filled {
			fill, err := e.settleFill(ctx, pair, side, order, rules)
			if err != nil {
				return nil, err
			}
			pm.RecordFill(pair.Symbol, string(side), time.Since(start))
			return fill, nil
		}

		// 未成交: 撤单后再确认一次（撤单与成交可能竞争）
		err = e.withConnRetry(ctx, func() error {
			return e.exchange.CancelOrder(ctx, pair.Symbol, placed.OrderID)
		})
		if err != nil {
			return nil, fmt.Errorf("撤单失败: %w", err)
		}
		pm.RecordCancel(pair.Symbol, string(side))

		var final *exchange.Order
		err = e.withConnRetry(ctx, func() error {
			var err error
			final, err = e.exchange.GetOrder(ctx, pair.Symbol, placed.OrderID)
			return err
		})
		if err == nil && final != nil && final.Status == exchange.OrderStatusFilled {
			logger.Info("ℹ️ [执行器] %s 订单 %d 在撤单前已成交", pair, placed.OrderID)
			fill, err := e.settleFill(ctx, pair, side, final, rules)
			if err != nil {
				return nil, err
			}
			pm.RecordFill(pair.Symbol, string(side), time.Since(start))
			return fill, nil
		}

		// 部分成交后撤单的残余份额此处不落账，下次成交后的余额重查会吸收掉
		logger.Warn("⚠️ [执行器] %s 订单 %d 未成交已撤单 (价格 %.8f)", pair, placed.OrderID, limitPrice)
	}

	return nil, fmt.Errorf("%w: %s 共尝试 %d 次", ErrOrderNotFilled, pair, e.placeRetries+1)
}

// awaitFill 有限次轮询订单状态
// 返回 (最新订单, 是否已成交, 错误)
func (e *Executor) awaitFill(ctx context.Context, symbol string, orderID int64) (*exchange.Order, bool, error) {
	var order *exchange.Order
	for attempt := 0; attempt < e.pollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case <-time.After(e.pollDelay):
		}

		err := e.withConnRetry(ctx, func() error {
			var err error
			order, err = e.exchange.GetOrder(ctx, symbol, orderID)
			return err
		})
		if err != nil {
			return nil, false, fmt.Errorf("查询订单失败: %w", err)
		}

		logger.Debug("🔍 [执行器] 订单 %d 状态: %s (第%d/%d次)", orderID, order.Status, attempt+1, e.pollAttempts)
		if order.Status == exchange.OrderStatusFilled {
			return order, true, nil
		}
		if order.Status == exchange.OrderStatusCanceled ||
			order.Status == exchange.OrderStatusRejected ||
			order.Status == exchange.OrderStatusExpired {
			return order, false, nil
		}
	}
	return order, false, nil
}

// settleFill 成交后的落账: 持久化订单/交易记录并更新台账
// 落账后从交易所重新读取余额，手续费和部分成交的残差以交易所为准
func (e *Executor) settleFill(ctx context.Context, pair strategy.Pair, side exchange.Side, order *exchange.Order, rules *exchange.SymbolRules) (*Fill, error) {
	quantity := order.ExecutedQty
	if quantity <= 0 {
		quantity = order.Quantity
	}
	investment := order.QuoteQty
	if investment <= 0 {
		investment = order.Price * quantity
	}
	avgPrice := order.Price
	if order.ExecutedQty > 0 && order.QuoteQty > 0 {
		avgPrice = order.QuoteQty / order.ExecutedQty
	}

	fill := &Fill{
		OrderID:    order.OrderID,
		Price:      avgPrice,
		Quantity:   quantity,
		Investment: investment,
		Time:       utils.NowUTC(),
	}

	if side == exchange.SideBuy {
		tradeID, err := e.store.CreateTrade(pair.Symbol, pair.Strategy, order.OrderID)
		if err != nil {
			return nil, fmt.Errorf("创建交易记录失败: %w", err)
		}
		fill.TradeID = tradeID

		if err := e.ledger.ApplyBuyFill(pair.Symbol, quantity, investment); err != nil {
			logger.Error("❌ [执行器] 台账记录买入失败: %v", err)
		}
		if err := e.store.SaveOpenPosition(&storage.OpenPosition{
			Strategy:   pair.Strategy,
			Symbol:     pair.Symbol,
			Coins:      quantity,
			Investment: investment,
			Type:       string(pair.Type),
		}); err != nil {
			return nil, fmt.Errorf("保存持仓失败: %w", err)
		}
	} else {
		trade, err := e.store.OpenTrade(pair.Strategy, pair.Symbol)
		if err != nil {
			return nil, fmt.Errorf("查询交易记录失败: %w", err)
		}
		if trade != nil {
			fill.TradeID = trade.ID
			if err := e.store.CloseTrade(trade.ID, order.OrderID); err != nil {
				return nil, fmt.Errorf("关闭交易记录失败: %w", err)
			}
		}

		if err := e.ledger.ApplySellFill(pair.Symbol, quantity, investment); err != nil {
			logger.Error("❌ [执行器] 台账记录卖出失败: %v", err)
		}
		if err := e.store.DeleteOpenPosition(pair.Strategy, pair.Symbol); err != nil {
			return nil, fmt.Errorf("删除持仓失败: %w", err)
		}
	}

	if err := e.store.SaveOrder(&storage.OrderRecord{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		TradeID:       fill.TradeID,
		Symbol:        pair.Symbol,
		Strategy:      pair.Strategy,
		Side:          string(side),
		Price:         fill.Price,
		Coins:         quantity,
		Investment:    investment,
		Status:        string(order.Status),
		Time:          fill.Time,
	}); err != nil {
		return nil, fmt.Errorf("保存订单记录失败: %w", err)
	}

	// 成交确认后重查余额：基础资产扣费后台账持仓会偏大，以交易所实际余额校正
	err := e.withConnRetry(ctx, func() error {
		return e.ledger.Refresh(ctx, e.exchange, map[string]string{pair.Symbol: rules.BaseAsset})
	})
	if err != nil {
		logger.Warn("⚠️ [执行器] 成交后刷新余额失败, 台账暂用计算值: %v", err)
	}

	logger.Info("💰 [执行器] %s %s 成交: 价格=%.8f 数量=%.8f 金额=%.2f 订单ID=%d",
		pair, side, fill.Price, fill.Quantity, fill.Investment, fill.OrderID)

	return fill, nil
}
