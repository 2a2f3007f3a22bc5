package position

import (
	"fmt"
)

// BudgetAllocator 预算分配器
// 将总预算按比例划分给长线与短线策略，投入中的资金计入已占用额度
type BudgetAllocator struct {
	LongRatio     float64 // 长线策略资金占比
	ShortRatio    float64 // 短线策略资金占比
	MinNotional   float64 // 低于该金额不开仓（防尘埃单）
	MaxShortSlots int     // 短线策略最大并发持仓数
}

// NewBudgetAllocator 创建预算分配器
func NewBudgetAllocator(longRatio, shortRatio, minNotional float64, maxShortSlots int) (*BudgetAllocator, error) {
	if longRatio < 0 || shortRatio < 0 {
		return nil, fmt.Errorf("资金占比不能为负数: long=%.4f short=%.4f", longRatio, shortRatio)
	}
	if longRatio+shortRatio > 1.0+1e-9 {
		return nil, fmt.Errorf("资金占比之和不能超过1: long=%.4f short=%.4f", longRatio, shortRatio)
	}
	if maxShortSlots <= 0 {
		maxShortSlots = 2
	}
	if minNotional <= 0 {
		minNotional = 10.0
	}
	return &BudgetAllocator{
		LongRatio:     longRatio,
		ShortRatio:    shortRatio,
		MinNotional:   minNotional,
		MaxShortSlots: maxShortSlots,
	}, nil
}

// AllocationInput 一次分配决策所需的台账快照
type AllocationInput struct {
	TotalBudget      float64 // 总预算（计价资产 + 已投入金额）
	FiatBalance      float64 // 当前可用计价资产
	LongInvested     float64 // 长线策略已投入金额之和
	ShortInvested    float64 // 短线策略已投入金额之和
	ActiveShortSlots int     // 短线策略当前持仓数
	PendingLongPairs int     // 长线策略尚未建仓的交易对数
}

// LongAllocation 计算长线策略单个交易对可投入的金额
// 剩余长线额度在尚未建仓的交易对之间均分
func (a *BudgetAllocator) LongAllocation(in AllocationInput) float64 {
	if in.PendingLongPairs <= 0 {
		return 0
	}

	available := in.TotalBudget*a.LongRatio - in.LongInvested
	if available < 0 {
		available = 0
	}
	// 可用资金从不超过实际余额
	if available > in.FiatBalance {
		available = in.FiatBalance
	}

	amount := available / float64(in.PendingLongPairs)
	if amount < a.MinNotional {
		return 0
	}
	return amount
}

// ShortAllocation 计算短线策略单次可投入的金额
// 持仓数达到上限时不再开新仓
func (a *BudgetAllocator) ShortAllocation(in AllocationInput) float64 {
	if in.ActiveShortSlots >= a.MaxShortSlots {
		return 0
	}

	available := in.TotalBudget*a.ShortRatio - in.ShortInvested
	if available < 0 {
		available = 0
	}
	// 长线超配时，短线额度同样受实际余额约束
	if available > in.FiatBalance {
		available = in.FiatBalance
	}

	if available < a.MinNotional {
		return 0
	}
	return available
}
