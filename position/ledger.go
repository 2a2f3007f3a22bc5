package position

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tradepilot/logger"
)

// BalanceFetcher 余额查询接口（由交易所适配器实现）
type BalanceFetcher interface {
	GetBalances(ctx context.Context) (map[string]float64, error)
}

// Holding 单个币种的持有情况
type Holding struct {
	Balance    float64 // 持有的基础资产数量
	Investment float64 // 投入的计价资产金额
	Value      float64 // 按最新价格估算的市值
}

// PortfolioLedger 资产台账
// 记录计价资产余额与各币种持仓，只允许订单执行器和恢复加载器修改
type PortfolioLedger struct {
	FiatAsset   string
	fiatBalance float64
	holdings    map[string]*Holding
	mu          sync.RWMutex
}

// NewPortfolioLedger 创建资产台账
func NewPortfolioLedger(fiatAsset string, fiatBalance float64) (*PortfolioLedger, error) {
	if fiatBalance < 0 {
		return nil, fmt.Errorf("计价资产余额不能为负数: %.8f", fiatBalance)
	}
	return &PortfolioLedger{
		FiatAsset:   strings.ToUpper(fiatAsset),
		fiatBalance: fiatBalance,
		holdings:    make(map[string]*Holding),
	}, nil
}

// FiatBalance 获取计价资产余额
func (p *PortfolioLedger) FiatBalance() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fiatBalance
}

// Holding 获取指定交易对的持有情况，不存在时返回零值副本
func (p *PortfolioLedger) Holding(symbol string) Holding {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if h, ok := p.holdings[symbol]; ok {
		return *h
	}
	return Holding{}
}

// TotalBudget 总预算 = 计价资产余额 + 各币种已投入金额之和
func (p *PortfolioLedger) TotalBudget() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	total := p.fiatBalance
	for _, h := range p.holdings {
		total += h.Investment
	}
	return total
}

// ApplyBuyFill 记录买入成交：扣减计价资产，累加持仓与投入
func (p *PortfolioLedger) ApplyBuyFill(symbol string, coins, investment float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if investment > p.fiatBalance+1e-9 {
		return fmt.Errorf("成交金额 %.8f 超过可用余额 %.8f", investment, p.fiatBalance)
	}

	p.fiatBalance -= investment
	h, ok := p.holdings[symbol]
	if !ok {
		h = &Holding{}
		p.holdings[symbol] = h
	}
	h.Balance += coins
	h.Investment += investment

	return nil
}

// ApplySellFill 记录卖出成交：清除持仓投入，累加计价资产
func (p *PortfolioLedger) ApplySellFill(symbol string, coins, proceeds float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[symbol]
	if !ok || h.Balance < coins-1e-9 {
		return fmt.Errorf("卖出数量 %.8f 超过持仓 %.8f", coins, p.holdingBalance(symbol))
	}

	h.Balance -= coins
	if h.Balance <= 1e-9 {
		delete(p.holdings, symbol)
	} else {
		// 部分卖出时按比例扣减投入
		h.Investment *= h.Balance / (h.Balance + coins)
	}
	p.fiatBalance += proceeds

	return nil
}

// holdingBalance 调用方必须已持有锁
func (p *PortfolioLedger) holdingBalance(symbol string) float64 {
	if h, ok := p.holdings[symbol]; ok {
		return h.Balance
	}
	return 0
}

// RestoreHolding 恢复持仓（仅恢复加载器在启动时调用）
func (p *PortfolioLedger) RestoreHolding(symbol string, coins, investment float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.holdings[symbol]
	if !ok {
		h = &Holding{}
		p.holdings[symbol] = h
	}
	h.Balance = coins
	h.Investment = investment
}

// Refresh 从交易所重新读取余额，校正计价资产与各持仓数量
func (p *PortfolioLedger) Refresh(ctx context.Context, fetcher BalanceFetcher, symbolAssets map[string]string) error {
	balances, err := fetcher.GetBalances(ctx)
	if err != nil {
		return fmt.Errorf("刷新余额失败: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if fiat, ok := balances[p.FiatAsset]; ok {
		p.fiatBalance = fiat
	} else {
		p.fiatBalance = 0
	}

	for symbol, h := range p.holdings {
		asset, ok := symbolAssets[symbol]
		if !ok {
			continue
		}
		live := balances[asset]
		if live != h.Balance {
			logger.Debug("🔍 [台账] %s 持仓校正: %.8f -> %.8f", symbol, h.Balance, live)
			h.Balance = live
		}
		if h.Balance <= 1e-9 {
			delete(p.holdings, symbol)
		}
	}

	return nil
}

// UpdateValue 更新持仓市值（状态行展示用）
func (p *PortfolioLedger) UpdateValue(symbol string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.holdings[symbol]; ok {
		h.Value = h.Balance * price
	}
}
