package safety

import (
	"context"
	"fmt"
	"math"

	"tradepilot/logger"
	"tradepilot/position"
	"tradepilot/storage"
	"tradepilot/strategy"
)

// IStore 恢复加载器所需的存储接口（由 storage.Store 实现）
type IStore interface {
	GetOpenPositions() ([]*storage.OpenPosition, error)
	OpenStopLosses() ([]*storage.StopLossRecord, error)
	OpenTrades() ([]*storage.TradeRecord, error)
	CloseStopLoss(strategy, symbol string) error
}

// RecoveryLoader 启动恢复加载器
// 进程重启后从本地存储重建各策略的持仓状态与追踪止损，不依赖交易所历史查询
type RecoveryLoader struct {
	store    IStore
	exchange position.BalanceFetcher
	ledger   *position.PortfolioLedger
}

// NewRecoveryLoader 创建恢复加载器
func NewRecoveryLoader(store IStore, exchange position.BalanceFetcher, ledger *position.PortfolioLedger) *RecoveryLoader {
	return &RecoveryLoader{
		store:    store,
		exchange: exchange,
		ledger:   ledger,
	}
}

// Recover 恢复持仓状态
// 1. 读取存储中的持仓记录并标记对应策略为持仓中
// 2. 用记录的买入价/最高价重建追踪止损（无需任何交易所调用）
// 3. 一次余额查询交叉核对，偏差超过0.1%时告警并以实盘余额为准（绝不自动卖出）
func (r *RecoveryLoader) Recover(ctx context.Context, signals []strategy.Signal, symbolAssets map[string]string) error {
	logger.Info("🔄 [恢复] 开始从存储重建持仓状态...")

	byKey := make(map[string]strategy.Signal, len(signals))
	for _, sig := range signals {
		byKey[sig.Pair().String()] = sig
	}

	positions, err := r.store.GetOpenPositions()
	if err != nil {
		return fmt.Errorf("读取持仓记录失败: %w", err)
	}

	restored := 0
	for _, p := range positions {
		key := p.Strategy + "/" + p.Symbol
		sig, ok := byKey[key]
		if !ok {
			logger.Warn("⚠️ [恢复] 持仓记录 %s 没有对应的已配置策略, 跳过", key)
			continue
		}

		sig.SetActive(true)
		r.ledger.RestoreHolding(p.Symbol, p.Coins, p.Investment)
		restored++
		logger.Info("✅ [恢复] %s 持仓: %.8f 个, 投入 %.2f", key, p.Coins, p.Investment)
	}

	stopLosses, err := r.store.OpenStopLosses()
	if err != nil {
		return fmt.Errorf("读取止损记录失败: %w", err)
	}

	for _, rec := range stopLosses {
		key := rec.Strategy + "/" + rec.Symbol
		sig, ok := byKey[key]
		if !ok || !sig.Active() {
			// 止损记录没有对应的持仓（例如卖出后进程崩溃未及时落盘），直接关闭
			logger.Warn("⚠️ [恢复] 止损记录 %s 没有对应持仓, 关闭记录", key)
			if err := r.store.CloseStopLoss(rec.Strategy, rec.Symbol); err != nil {
				logger.Error("❌ [恢复] 关闭孤立止损记录失败: %v", err)
			}
			continue
		}
		if !sig.UsesStopLoss() {
			continue
		}

		sl, err := position.Restore(rec.Strategy, rec.Symbol, rec.BuyPrice, rec.Highest, rec.TrailRatio)
		if err != nil {
			logger.Error("❌ [恢复] 重建止损失败 %s: %v", key, err)
			continue
		}
		sig.SetStopLoss(sl)
		logger.Info("✅ [恢复] %s 止损: 买入价 %.8f, 最高价 %.8f, 止损线 %.8f",
			key, sl.BuyPrice, sl.Highest, sl.Trail)
	}

	trades, err := r.store.OpenTrades()
	if err != nil {
		return fmt.Errorf("读取交易记录失败: %w", err)
	}
	for _, t := range trades {
		key := t.Strategy + "/" + t.Symbol
		if sig, ok := byKey[key]; ok && !sig.Active() {
			// 有未关闭的交易但没有持仓记录: 买入落账不完整，仍按持仓处理
			logger.Warn("⚠️ [恢复] %s 存在未关闭交易但无持仓记录, 标记为持仓中", key)
			sig.SetActive(true)
		}
	}

	if restored == 0 {
		logger.Info("ℹ️ [恢复] 存储中没有持仓记录, 以空仓状态启动")
	}

	if err := r.crossCheck(ctx, symbolAssets); err != nil {
		// 交叉核对失败不阻止启动，后续循环还会刷新余额
		logger.Error("❌ [恢复] 余额交叉核对失败: %v", err)
	}

	logger.Info("🔄 [恢复] 完成, 恢复 %d 个持仓", restored)
	return nil
}

// crossCheck 一次余额查询核对记录与实盘的偏差
// 偏差超过0.1%时只告警并以实盘为准，绝不触发卖出
func (r *RecoveryLoader) crossCheck(ctx context.Context, symbolAssets map[string]string) error {
	recorded := make(map[string]float64, len(symbolAssets))
	for symbol := range symbolAssets {
		if h := r.ledger.Holding(symbol); h.Balance > 0 {
			recorded[symbol] = h.Balance
		}
	}

	if err := r.ledger.Refresh(ctx, r.exchange, symbolAssets); err != nil {
		return err
	}

	for symbol, was := range recorded {
		live := r.ledger.Holding(symbol).Balance
		if math.Abs(was-live) > was*0.001 {
			logger.Warn("⚠️ [状态不一致] %s 记录持仓 %.8f 与实盘余额 %.8f 偏差超过0.1%%, 以实盘为准",
				symbol, was, live)
		}
	}
	return nil
}
