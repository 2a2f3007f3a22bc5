package bot

import (
	"context"
	"math"
	"testing"

	"tradepilot/event"
	"tradepilot/exchange"
	"tradepilot/order"
	"tradepilot/position"
	"tradepilot/storage"
	"tradepilot/strategy"
)

// fakeMarket 只提供行情的交易所桩（下单走 fakeTrader，不经过交易所）
type fakeMarket struct {
	price   float64
	candles []*exchange.Candle
}

func (f *fakeMarket) GetName() string { return "fake" }

func (f *fakeMarket) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return f.price, nil
}

func (f *fakeMarket) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*exchange.Candle, error) {
	return f.candles, nil
}

func (f *fakeMarket) GetBalances(ctx context.Context) (map[string]float64, error) {
	return map[string]float64{}, nil
}

func (f *fakeMarket) GetSymbolRules(ctx context.Context, symbol string) (*exchange.SymbolRules, error) {
	return &exchange.SymbolRules{Symbol: symbol}, nil
}

func (f *fakeMarket) PlaceLimitOrder(ctx context.Context, req *exchange.OrderRequest) (*exchange.Order, error) {
	return nil, nil
}

func (f *fakeMarket) GetOrder(ctx context.Context, symbol string, orderID int64) (*exchange.Order, error) {
	return nil, nil
}

func (f *fakeMarket) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	return nil
}

// fakeTrader 记录买卖请求并返回全额成交
type fakeTrader struct {
	buys  []float64 // 每次买入金额
	sells []float64 // 每次卖出数量
}

func (f *fakeTrader) Buy(ctx context.Context, pair strategy.Pair, price, investment float64) (*order.Fill, error) {
	f.buys = append(f.buys, investment)
	return &order.Fill{OrderID: 1, Price: price, Quantity: investment / price, Investment: investment}, nil
}

func (f *fakeTrader) Sell(ctx context.Context, pair strategy.Pair, price, quantity float64) (*order.Fill, error) {
	f.sells = append(f.sells, quantity)
	return &order.Fill{OrderID: 2, Price: price, Quantity: quantity, Investment: price * quantity}, nil
}

// fakeEngineStore 内存止损/持仓记录
type fakeEngineStore struct {
	positions  []*storage.OpenPosition
	stopLosses []*storage.StopLossRecord
	closedSL   int
}

func (s *fakeEngineStore) GetOpenPositions() ([]*storage.OpenPosition, error) {
	return s.positions, nil
}

func (s *fakeEngineStore) SaveStopLoss(r *storage.StopLossRecord) error {
	s.stopLosses = append(s.stopLosses, r)
	return nil
}

func (s *fakeEngineStore) CloseStopLoss(strat, symbol string) error {
	s.closedSL++
	return nil
}

// fallingCandles 持续下跌的收盘价序列，RSI 恒为超卖
func fallingCandles(n int, start float64) []*exchange.Candle {
	candles := make([]*exchange.Candle, n)
	for i := range candles {
		candles[i] = &exchange.Candle{OpenTime: int64(i), Close: start - float64(i)*0.5}
	}
	return candles
}

func newTestEngine(t *testing.T) (*Engine, *fakeMarket, *fakeTrader, *fakeEngineStore, strategy.Signal) {
	t.Helper()

	market := &fakeMarket{candles: fallingCandles(120, 300)}
	trader := &fakeTrader{}
	store := &fakeEngineStore{}
	ledger, _ := position.NewPortfolioLedger("USDT", 1000)
	allocator, _ := position.NewBudgetAllocator(0.6, 0.4, 10, 2)

	sig, err := strategy.New("bottom_rsi", "BTCUSDT")
	if err != nil {
		t.Fatalf("创建策略失败: %v", err)
	}

	engine := NewEngine(market, ledger, []strategy.Signal{sig}, trader, allocator, store, event.NewBus(16))
	return engine, market, trader, store, sig
}

// 完整场景: 超卖买入 → 价格上行止损线跟涨 → 回落跌破止损线强制卖出
func TestEngineBuyRatchetForcedSell(t *testing.T) {
	engine, market, trader, store, sig := newTestEngine(t)
	ctx := context.Background()

	// 第一轮: RSI 超卖且空仓 → 买入，短线额度 1000×0.4=400
	market.price = 100
	if err := engine.RunCycle(ctx, sig); err != nil {
		t.Fatalf("第一轮评估失败: %v", err)
	}
	if len(trader.buys) != 1 || math.Abs(trader.buys[0]-400) > 1e-9 {
		t.Fatalf("买入金额期望 400, 得到 %v", trader.buys)
	}
	if !sig.Active() {
		t.Fatal("买入成交后策略应标记为持仓中")
	}

	sl := sig.StopLoss()
	if sl == nil {
		t.Fatal("买入后应创建追踪止损")
	}
	// 买入价 100, 比例 0.95 → 止损线 95
	if math.Abs(sl.Trail-95) > 1e-9 {
		t.Errorf("初始止损线期望 95, 得到 %.2f", sl.Trail)
	}
	if len(store.stopLosses) == 0 || math.Abs(store.stopLosses[len(store.stopLosses)-1].Trail-95) > 1e-9 {
		t.Error("初始止损线应已落盘")
	}

	// 模拟执行器写入的持仓记录
	store.positions = []*storage.OpenPosition{
		{Strategy: "bottom_rsi", Symbol: "BTCUSDT", Coins: 4, Investment: 400, Type: "short"},
	}

	// 第二轮: 价格 120 → 止损线跟涨至 114, 不卖出
	market.price = 120
	if err := engine.RunCycle(ctx, sig); err != nil {
		t.Fatalf("第二轮评估失败: %v", err)
	}
	if len(trader.sells) != 0 {
		t.Fatal("价格上行不应卖出")
	}
	if math.Abs(sl.Trail-114) > 1e-9 {
		t.Errorf("止损线应跟涨至 114, 得到 %.2f", sl.Trail)
	}
	if got := store.stopLosses[len(store.stopLosses)-1].Trail; math.Abs(got-114) > 1e-9 {
		t.Errorf("跟涨后的止损线应落盘: 期望 114, 得到 %.2f", got)
	}

	// 第三轮: 价格 110 跌破 114 → 强制卖出全部持仓
	market.price = 110
	if err := engine.RunCycle(ctx, sig); err != nil {
		t.Fatalf("第三轮评估失败: %v", err)
	}
	if len(trader.sells) != 1 || math.Abs(trader.sells[0]-4) > 1e-9 {
		t.Fatalf("应按持仓记录数量 4 卖出, 得到 %v", trader.sells)
	}
	if sig.Active() {
		t.Error("卖出后策略应恢复空仓")
	}
	if sig.StopLoss() != nil {
		t.Error("卖出后应清除追踪止损")
	}
	if store.closedSL != 1 {
		t.Errorf("止损记录应被关闭: 得到 %d 次", store.closedSL)
	}
}

func TestEngineSkipsBuyWhenNoAllocation(t *testing.T) {
	engine, market, trader, _, sig := newTestEngine(t)

	// 两个短线槽位已占满
	occupied1, _ := strategy.New("bottom_rsi", "ETHUSDT")
	occupied2, _ := strategy.New("bollinger_bands", "BNBUSDT")
	occupied1.SetActive(true)
	occupied2.SetActive(true)
	engine.signals = append(engine.signals, occupied1, occupied2)

	market.price = 100
	if err := engine.RunCycle(context.Background(), sig); err != nil {
		t.Fatalf("评估失败: %v", err)
	}
	if len(trader.buys) != 0 {
		t.Error("短线槽位占满时不应再买入")
	}
	if sig.Active() {
		t.Error("未买入不应标记为持仓中")
	}
}

func TestEngineSellWithoutPositionResets(t *testing.T) {
	engine, market, trader, _, sig := newTestEngine(t)

	// 人为制造持仓态但没有任何持仓记录
	sig.SetActive(true)

	// RSI 恒为 0 不触发指标卖出，用触发中的止损制造卖出信号
	sl, _ := position.NewTrailingStopLoss("bottom_rsi", "BTCUSDT", 100, 0.95)
	sl.Adjust(120)
	sig.SetStopLoss(sl)

	market.price = 110 // 110 < 114 触发
	if err := engine.RunCycle(context.Background(), sig); err != nil {
		t.Fatalf("评估失败: %v", err)
	}

	if len(trader.sells) != 0 {
		t.Error("没有持仓记录时不应下卖单")
	}
	if sig.Active() {
		t.Error("无持仓的卖出信号应重置为空仓")
	}
}
