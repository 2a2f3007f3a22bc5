package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"

	"tradepilot/exchange"
	"tradepilot/logger"
)

func init() {
	exchange.Register("binance", func(apiKey, secretKey string, testnet bool) (exchange.IExchange, error) {
		return NewBinanceAdapter(apiKey, secretKey, testnet)
	})
}

// BinanceAdapter 币安现货交易所适配器
type BinanceAdapter struct {
	client     *binance.Client
	useTestnet bool

	// 交易规则缓存（exchangeInfo 结果）
	rulesMu    sync.RWMutex
	rulesCache map[string]*exchange.SymbolRules

	// 速率限制相关
	lastAPICallTime time.Time     // 上次API调用时间
	apiCallMu       sync.Mutex    // API调用互斥锁
	minAPIInterval  time.Duration // 最小API调用间隔
}

// NewBinanceAdapter 创建币安现货适配器
func NewBinanceAdapter(apiKey, secretKey string, useTestnet bool) (*BinanceAdapter, error) {
	if apiKey == "" || secretKey == "" {
		return nil, fmt.Errorf("Binance API 配置不完整")
	}

	if useTestnet {
		logger.Info("🌐 [Binance] 使用测试网模式")
	}
	// 测试网模式必须在创建客户端之前设置
	binance.UseTestnet = useTestnet

	client := binance.NewClient(apiKey, secretKey)

	// 同步服务器时间，避免本地时钟偏差导致签名失败
	client.NewSetServerTimeService().Do(context.Background())

	return &BinanceAdapter{
		client:         client,
		useTestnet:     useTestnet,
		rulesCache:     make(map[string]*exchange.SymbolRules),
		minAPIInterval: 200 * time.Millisecond, // 避免触发限流
	}, nil
}

// GetName 获取交易所名称
func (b *BinanceAdapter) GetName() string {
	return "Binance"
}

// throttle 保证API调用间隔不低于 minAPIInterval
func (b *BinanceAdapter) throttle() {
	b.apiCallMu.Lock()
	defer b.apiCallMu.Unlock()

	elapsed := time.Since(b.lastAPICallTime)
	if elapsed < b.minAPIInterval {
		time.Sleep(b.minAPIInterval - elapsed)
	}
	b.lastAPICallTime = time.Now()
}

// GetPrice 获取最新成交价
func (b *BinanceAdapter) GetPrice(ctx context.Context, symbol string) (float64, error) {
	b.throttle()

	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取价格失败 %s: %w", symbol, err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("未找到交易对价格: %s", symbol)
	}

	price, err := strconv.ParseFloat(prices[0].Price, 64)
	if err != nil {
		return 0, fmt.Errorf("解析价格失败 %s: %w", prices[0].Price, err)
	}
	return price, nil
}

// GetCandles 获取K线数据（按开盘时间升序）
func (b *BinanceAdapter) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*exchange.Candle, error) {
	b.throttle()

	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取K线失败 %s %s: %w", symbol, interval, err)
	}

	candles := make([]*exchange.Candle, 0, len(klines))
	for _, k := range klines {
		open, _ := strconv.ParseFloat(k.Open, 64)
		high, _ := strconv.ParseFloat(k.High, 64)
		low, _ := strconv.ParseFloat(k.Low, 64)
		closePrice, _ := strconv.ParseFloat(k.Close, 64)
		volume, _ := strconv.ParseFloat(k.Volume, 64)

		candles = append(candles, &exchange.Candle{
			Symbol:    symbol,
			Interval:  interval,
			OpenTime:  k.OpenTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CloseTime: k.CloseTime,
		})
	}

	return candles, nil
}

// GetBalances 获取账户各资产的可用余额
func (b *BinanceAdapter) GetBalances(ctx context.Context) (map[string]float64, error) {
	b.throttle()

	account, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取账户信息失败: %w", err)
	}

	balances := make(map[string]float64)
	for _, bal := range account.Balances {
		free, err := strconv.ParseFloat(bal.Free, 64)
		if err != nil {
			continue
		}
		if free > 0 {
			balances[bal.Asset] = free
		}
	}

	return balances, nil
}

// GetSymbolRules 获取交易对的下单规则（带缓存）
func (b *BinanceAdapter) GetSymbolRules(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	b.rulesMu.RLock()
	if rules, ok := b.rulesCache[symbol]; ok {
		b.rulesMu.RUnlock()
		return rules, nil
	}
	b.rulesMu.RUnlock()

	b.throttle()

	info, err := b.client.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取交易所信息失败: %w", err)
	}

	for _, s := range info.Symbols {
		if s.Symbol != symbol {
			continue
		}

		rules := &exchange.SymbolRules{
			Symbol:     s.Symbol,
			BaseAsset:  s.BaseAsset,
			QuoteAsset: s.QuoteAsset,
		}

		// 从过滤器中解析价格/数量精度与最小名义价值
		for _, f := range s.Filters {
			filterType, _ := f["filterType"].(string)
			switch filterType {
			case "PRICE_FILTER":
				if v, ok := f["tickSize"].(string); ok {
					rules.TickSize, _ = decimal.NewFromString(v)
				}
			case "LOT_SIZE":
				if v, ok := f["stepSize"].(string); ok {
					rules.StepSize, _ = decimal.NewFromString(v)
				}
			case "MIN_NOTIONAL", "NOTIONAL":
				if v, ok := f["minNotional"].(string); ok {
					rules.MinNotional, _ = decimal.NewFromString(v)
				}
			}
		}

		logger.Info("ℹ️ [Binance 交易规则] %s - tickSize:%s, stepSize:%s, 最小名义价值:%s, 基础币种:%s, 计价币种:%s",
			symbol, rules.TickSize, rules.StepSize, rules.MinNotional, rules.BaseAsset, rules.QuoteAsset)

		b.rulesMu.Lock()
		b.rulesCache[symbol] = rules
		b.rulesMu.Unlock()

		return rules, nil
	}

	return nil, fmt.Errorf("未找到交易对信息: %s", symbol)
}

// formatByIncrement 按最小变动单位格式化数值为下单字符串
// 价格/数量在执行器侧已完成对齐，这里重新对齐一次并输出精确的十进制表示
func formatByIncrement(value float64, increment decimal.Decimal, roundUp bool) string {
	if increment.IsZero() {
		return strconv.FormatFloat(value, 'f', -1, 64)
	}
	steps := decimal.NewFromFloat(value).Div(increment)
	if roundUp {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	return steps.Mul(increment).String()
}

// PlaceLimitOrder 挂限价单（GTC）
func (b *BinanceAdapter) PlaceLimitOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
	if req.Price <= 0 {
		return nil, fmt.Errorf("无效的下单价格: %.8f（价格必须大于0）", req.Price)
	}
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("无效的下单数量: %.8f（数量必须大于0）", req.Quantity)
	}

	rules, err := b.GetSymbolRules(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	priceStr := formatByIncrement(req.Price, rules.TickSize, true)
	quantityStr := formatByIncrement(req.Quantity, rules.StepSize, false)

	q, _ := strconv.ParseFloat(quantityStr, 64)
	if q <= 0 {
		return nil, fmt.Errorf("下单数量 %.8f 在 stepSize %s 下格式化后为 0", req.Quantity, rules.StepSize)
	}

	b.throttle()

	orderService := b.client.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(binance.SideType(req.Side)).
		Type(binance.OrderTypeLimit).
		TimeInForce(binance.TimeInForceTypeGTC).
		Quantity(quantityStr).
		Price(priceStr)

	if req.ClientOrderID != "" {
		orderService = orderService.NewClientOrderID(req.ClientOrderID)
	}

	resp, err := orderService.Do(ctx)
	if err != nil {
		return nil, err
	}

	executedQty, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(resp.CummulativeQuoteQuantity, 64)
	price, _ := strconv.ParseFloat(priceStr, 64)
	quantity, _ := strconv.ParseFloat(quantityStr, 64)

	logger.Info("✅ [Binance] 挂单成功: %s %s 价格=%s 数量=%s 订单ID=%d",
		req.Symbol, req.Side, priceStr, quantityStr, resp.OrderID)

	return &exchange.Order{
		OrderID:       resp.OrderID,
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Price:         price,
		Quantity:      quantity,
		ExecutedQty:   executedQty,
		QuoteQty:      quoteQty,
		Status:        exchange.OrderStatus(resp.Status),
		CreatedAt:     time.Now(),
	}, nil
}

// GetOrder 查询订单
func (b *BinanceAdapter) GetOrder(ctx context.Context, symbol string, orderID int64) (*exchange.Order, error) {
	b.throttle()

	order, err := b.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, err
	}

	price, _ := strconv.ParseFloat(order.Price, 64)
	quantity, _ := strconv.ParseFloat(order.OrigQuantity, 64)
	executedQty, _ := strconv.ParseFloat(order.ExecutedQuantity, 64)
	quoteQty, _ := strconv.ParseFloat(order.CummulativeQuoteQuantity, 64)

	return &exchange.Order{
		OrderID:       order.OrderID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          exchange.Side(order.Side),
		Price:         price,
		Quantity:      quantity,
		ExecutedQty:   executedQty,
		QuoteQty:      quoteQty,
		Status:        exchange.OrderStatus(order.Status),
		CreatedAt:     time.UnixMilli(order.Time),
	}, nil
}

// CancelOrder 撤销订单
func (b *BinanceAdapter) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	b.throttle()

	_, err := b.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		errStr := err.Error()
		// -2011 订单已不存在（可能刚好成交或已撤销）
		if strings.Contains(errStr, "-2011") || strings.Contains(errStr, "Unknown order") {
			logger.Info("ℹ️ [Binance] 订单 %d 已不存在，跳过取消", orderID)
			return nil
		}
		return err
	}

	logger.Info("✅ [Binance] 取消订单成功: %d", orderID)
	return nil
}
