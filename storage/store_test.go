package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "tradepilot_test.db")
	store, err := NewStore(dbPath, "silent")
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpenPositionRoundTrip(t *testing.T) {
	store := newTestStore(t)

	pos := &OpenPosition{
		Strategy:   "bottom_rsi",
		Symbol:     "BTCUSDT",
		Coins:      0.05,
		Investment: 150.0,
		Type:       "short",
	}
	if err := store.SaveOpenPosition(pos); err != nil {
		t.Fatalf("保存持仓失败: %v", err)
	}

	// 同键再次保存应为更新，不产生重复记录
	pos2 := &OpenPosition{
		Strategy:   "bottom_rsi",
		Symbol:     "BTCUSDT",
		Coins:      0.06,
		Investment: 180.0,
		Type:       "short",
	}
	if err := store.SaveOpenPosition(pos2); err != nil {
		t.Fatalf("更新持仓失败: %v", err)
	}

	positions, err := store.GetOpenPositions()
	if err != nil {
		t.Fatalf("查询持仓失败: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("同键持仓应被覆盖更新, 当前记录数: %d", len(positions))
	}
	if positions[0].Investment != 180.0 {
		t.Errorf("持仓更新失败: 期望投入 180, 得到 %.2f", positions[0].Investment)
	}

	// 删除后查询应为空
	if err := store.DeleteOpenPosition("bottom_rsi", "BTCUSDT"); err != nil {
		t.Fatalf("删除持仓失败: %v", err)
	}
	positions, _ = store.GetOpenPositions()
	if len(positions) != 0 {
		t.Errorf("删除后持仓应为空, 当前记录数: %d", len(positions))
	}
}

func TestStopLossLifecycle(t *testing.T) {
	store := newTestStore(t)

	r := &StopLossRecord{
		Strategy:   "bottom_rsi",
		Symbol:     "ETHUSDT",
		BuyPrice:   2000.0,
		Highest:    3000.0,
		TrailRatio: 0.95,
		Trail:      2850.0,
		Open:       true,
	}
	if err := store.SaveStopLoss(r); err != nil {
		t.Fatalf("保存止损失败: %v", err)
	}

	open, err := store.OpenStopLosses()
	if err != nil {
		t.Fatalf("查询止损失败: %v", err)
	}
	if len(open) != 1 || open[0].Trail != 2850.0 {
		t.Fatalf("止损查询结果不正确: %+v", open)
	}

	// 价格上涨后更新最高价与止损线
	r.Highest = 3200.0
	r.Trail = 3040.0
	if err := store.SaveStopLoss(r); err != nil {
		t.Fatalf("更新止损失败: %v", err)
	}
	open, _ = store.OpenStopLosses()
	if len(open) != 1 {
		t.Fatalf("同键止损应被覆盖更新, 当前记录数: %d", len(open))
	}
	if open[0].Highest != 3200.0 || open[0].Trail != 3040.0 {
		t.Errorf("止损更新失败: 得到 highest=%.2f trail=%.2f", open[0].Highest, open[0].Trail)
	}

	// 平仓后不再出现在未平仓列表中
	if err := store.CloseStopLoss("bottom_rsi", "ETHUSDT"); err != nil {
		t.Fatalf("平仓止损失败: %v", err)
	}
	open, _ = store.OpenStopLosses()
	if len(open) != 0 {
		t.Errorf("平仓后未平仓止损应为空, 当前记录数: %d", len(open))
	}
}

func TestTradeAndOrderLifecycle(t *testing.T) {
	store := newTestStore(t)

	tradeID, err := store.CreateTrade("BTCUSDT", "crossing_sma", 1001)
	if err != nil {
		t.Fatalf("创建交易失败: %v", err)
	}

	buyOrder := &OrderRecord{
		OrderID:    1001,
		TradeID:    tradeID,
		Symbol:     "BTCUSDT",
		Strategy:   "crossing_sma",
		Side:       "BUY",
		Price:      50000.0,
		Coins:      0.01,
		Investment: 500.0,
		Status:     "FILLED",
		Time:       time.Now(),
	}
	if err := store.SaveOrder(buyOrder); err != nil {
		t.Fatalf("保存订单失败: %v", err)
	}

	open, err := store.OpenTrades()
	if err != nil {
		t.Fatalf("查询未关闭交易失败: %v", err)
	}
	if len(open) != 1 || open[0].BuyOrderID != 1001 {
		t.Fatalf("未关闭交易查询结果不正确: %+v", open)
	}

	trade, err := store.OpenTrade("crossing_sma", "BTCUSDT")
	if err != nil || trade == nil {
		t.Fatalf("按键查询未关闭交易失败: %v, %+v", err, trade)
	}

	// 卖出后关闭交易
	if err := store.CloseTrade(tradeID, 1002); err != nil {
		t.Fatalf("关闭交易失败: %v", err)
	}
	open, _ = store.OpenTrades()
	if len(open) != 0 {
		t.Errorf("关闭后未关闭交易应为空, 当前记录数: %d", len(open))
	}

	trade, err = store.OpenTrade("crossing_sma", "BTCUSDT")
	if err != nil {
		t.Fatalf("查询失败: %v", err)
	}
	if trade != nil {
		t.Error("已关闭交易不应再能按键查到")
	}
}

func TestCandleUpsert(t *testing.T) {
	store := newTestStore(t)

	c := &CandleRecord{
		Symbol:    "BTCUSDT",
		Interval:  "1m",
		OpenTime:  1700000000000,
		Open:      100,
		High:      110,
		Low:       95,
		Close:     105,
		CloseTime: 1700000059999,
	}
	if err := store.SaveCandle(c); err != nil {
		t.Fatalf("保存K线失败: %v", err)
	}

	// 同一根K线更新（未收盘时的覆盖写入）
	c2 := *c
	c2.High = 120
	c2.Close = 118
	if err := store.SaveCandle(&c2); err != nil {
		t.Fatalf("更新K线失败: %v", err)
	}

	candles, err := store.RecentCandles("BTCUSDT", "1m", 10)
	if err != nil {
		t.Fatalf("查询K线失败: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("同键K线应被覆盖更新, 当前记录数: %d", len(candles))
	}
	if candles[0].High != 120 || candles[0].Close != 118 {
		t.Errorf("K线更新失败: %+v", candles[0])
	}
}

func TestLogStorage(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "logs_test.db")
	defer os.Remove(dbPath)

	ls, err := NewLogStorage(dbPath, 100, 10, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("创建日志存储失败: %v", err)
	}

	ls.WriteLog("INFO", "测试日志1")
	ls.WriteLog("ERROR", "测试日志2")

	// 等待异步刷新
	time.Sleep(300 * time.Millisecond)

	records, err := ls.QueryRecent("", 10)
	if err != nil {
		t.Fatalf("查询日志失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("日志记录数不正确: 期望 2, 得到 %d", len(records))
	}

	errRecords, _ := ls.QueryRecent("ERROR", 10)
	if len(errRecords) != 1 || errRecords[0].Message != "测试日志2" {
		t.Errorf("按级别过滤日志失败: %+v", errRecords)
	}

	if err := ls.Close(); err != nil {
		t.Errorf("关闭日志存储失败: %v", err)
	}

	// 关闭后写入应被忽略且不 panic
	ls.WriteLog("INFO", "关闭后的日志")
}
