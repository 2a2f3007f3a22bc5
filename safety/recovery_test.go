package safety

import (
	"context"
	"math"
	"testing"

	"tradepilot/position"
	"tradepilot/storage"
	"tradepilot/strategy"
)

// fakeRecoveryStore 内存存储桩
type fakeRecoveryStore struct {
	positions  []*storage.OpenPosition
	stopLosses []*storage.StopLossRecord
	trades     []*storage.TradeRecord
	closedSL   []string
}

func (s *fakeRecoveryStore) GetOpenPositions() ([]*storage.OpenPosition, error) {
	return s.positions, nil
}

func (s *fakeRecoveryStore) OpenStopLosses() ([]*storage.StopLossRecord, error) {
	return s.stopLosses, nil
}

func (s *fakeRecoveryStore) OpenTrades() ([]*storage.TradeRecord, error) {
	return s.trades, nil
}

func (s *fakeRecoveryStore) CloseStopLoss(strat, symbol string) error {
	s.closedSL = append(s.closedSL, strat+"/"+symbol)
	return nil
}

// countingFetcher 统计余额查询次数
type countingFetcher struct {
	balances map[string]float64
	calls    int
}

func (f *countingFetcher) GetBalances(ctx context.Context) (map[string]float64, error) {
	f.calls++
	return f.balances, nil
}

func TestRecoverRebuildsStopLossWithoutExchangeCalls(t *testing.T) {
	store := &fakeRecoveryStore{
		positions: []*storage.OpenPosition{
			{Strategy: "bottom_rsi", Symbol: "ETHUSDT", Coins: 0.1, Investment: 250, Type: "short"},
		},
		stopLosses: []*storage.StopLossRecord{
			{Strategy: "bottom_rsi", Symbol: "ETHUSDT", BuyPrice: 2500, Highest: 3000, TrailRatio: 0.95, Open: true},
		},
	}
	fetcher := &countingFetcher{balances: map[string]float64{"USDT": 750, "ETH": 0.1}}
	ledger, _ := position.NewPortfolioLedger("USDT", 750)

	sig, err := strategy.New("bottom_rsi", "ETHUSDT")
	if err != nil {
		t.Fatalf("创建策略失败: %v", err)
	}

	loader := NewRecoveryLoader(store, fetcher, ledger)
	err = loader.Recover(context.Background(), []strategy.Signal{sig}, map[string]string{"ETHUSDT": "ETH"})
	if err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	if !sig.Active() {
		t.Error("恢复后策略应处于持仓状态")
	}

	// 止损线完全由记录重建: 3000 × 0.95 = 2850
	sl := sig.StopLoss()
	if sl == nil {
		t.Fatal("恢复后应注入追踪止损")
	}
	if math.Abs(sl.Trail-2850) > 1e-9 {
		t.Errorf("止损线期望 2850, 得到 %.2f", sl.Trail)
	}
	if math.Abs(sl.Highest-3000) > 1e-9 {
		t.Errorf("最高价期望 3000, 得到 %.2f", sl.Highest)
	}

	// 整个恢复流程只允许一次余额交叉核对查询
	if fetcher.calls != 1 {
		t.Errorf("余额查询次数期望 1, 得到 %d", fetcher.calls)
	}

	h := ledger.Holding("ETHUSDT")
	if math.Abs(h.Balance-0.1) > 1e-9 || math.Abs(h.Investment-250) > 1e-9 {
		t.Errorf("台账持仓恢复不正确: %+v", h)
	}
}

func TestRecoverClosesOrphanStopLoss(t *testing.T) {
	store := &fakeRecoveryStore{
		stopLosses: []*storage.StopLossRecord{
			{Strategy: "bottom_rsi", Symbol: "BTCUSDT", BuyPrice: 100, Highest: 120, TrailRatio: 0.95, Open: true},
		},
	}
	fetcher := &countingFetcher{balances: map[string]float64{"USDT": 1000}}
	ledger, _ := position.NewPortfolioLedger("USDT", 1000)

	sig, _ := strategy.New("bottom_rsi", "BTCUSDT")
	loader := NewRecoveryLoader(store, fetcher, ledger)
	if err := loader.Recover(context.Background(), []strategy.Signal{sig}, map[string]string{"BTCUSDT": "BTC"}); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	// 无持仓的止损记录应被关闭，策略保持空仓
	if sig.Active() {
		t.Error("无持仓记录时策略不应标记为持仓中")
	}
	if len(store.closedSL) != 1 || store.closedSL[0] != "bottom_rsi/BTCUSDT" {
		t.Errorf("孤立止损记录应被关闭: %v", store.closedSL)
	}
}

func TestRecoverPrefersLiveBalanceOnMismatch(t *testing.T) {
	store := &fakeRecoveryStore{
		positions: []*storage.OpenPosition{
			{Strategy: "bottom_rsi", Symbol: "BTCUSDT", Coins: 2.0, Investment: 200, Type: "short"},
		},
	}
	// 实盘余额与记录偏差 50%
	fetcher := &countingFetcher{balances: map[string]float64{"USDT": 800, "BTC": 1.0}}
	ledger, _ := position.NewPortfolioLedger("USDT", 800)

	sig, _ := strategy.New("bottom_rsi", "BTCUSDT")
	loader := NewRecoveryLoader(store, fetcher, ledger)
	if err := loader.Recover(context.Background(), []strategy.Signal{sig}, map[string]string{"BTCUSDT": "BTC"}); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	// 以实盘为准校正，且绝不触发卖出（策略仍持仓）
	if got := ledger.Holding("BTCUSDT").Balance; math.Abs(got-1.0) > 1e-9 {
		t.Errorf("偏差时应以实盘余额为准: 期望 1.0, 得到 %.8f", got)
	}
	if !sig.Active() {
		t.Error("偏差校正不应改变持仓状态")
	}
}

func TestRecoverOpenTradeWithoutPosition(t *testing.T) {
	store := &fakeRecoveryStore{
		trades: []*storage.TradeRecord{
			{ID: 7, Strategy: "crossing_sma", Symbol: "BTCUSDT", BuyOrderID: 42, Open: true},
		},
	}
	fetcher := &countingFetcher{balances: map[string]float64{"USDT": 1000}}
	ledger, _ := position.NewPortfolioLedger("USDT", 1000)

	sig, _ := strategy.New("crossing_sma", "BTCUSDT")
	loader := NewRecoveryLoader(store, fetcher, ledger)
	if err := loader.Recover(context.Background(), []strategy.Signal{sig}, map[string]string{"BTCUSDT": "BTC"}); err != nil {
		t.Fatalf("恢复失败: %v", err)
	}

	// 未关闭的交易即使缺持仓记录也应标记持仓中
	if !sig.Active() {
		t.Error("存在未关闭交易时策略应标记为持仓中")
	}
}
