package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"tradepilot/logger"
)

// Loop 交易主循环
// 单协程调度: 每个交易对维护显式的下次评估时间，睡到最近的一个再逐个执行，
// 不依赖墙钟取模判断周期边界，进程暂停或时钟漂移都不会漏拍
type Loop struct {
	engine      *Engine
	settleDelay time.Duration
	maxIdle     time.Duration
	nextEval    map[string]time.Time

	now func() time.Time
}

// NewLoop 创建交易循环
// settleDelay 为周期边界后的等待时间，让交易所先把刚收线的K线落好；
// maxIdle 为单次休眠上限，休眠期间系统时钟被调整也能在一拍内纠正过来
func NewLoop(engine *Engine, settleDelay, maxIdle time.Duration) *Loop {
	if settleDelay <= 0 {
		settleDelay = 10 * time.Second
	}
	if maxIdle <= 0 {
		maxIdle = 5 * time.Second
	}
	return &Loop{
		engine:      engine,
		settleDelay: settleDelay,
		maxIdle:     maxIdle,
		nextEval:    make(map[string]time.Time),
		now:         time.Now,
	}
}

// Run 启动主循环，阻塞直到 ctx 取消
func (l *Loop) Run(ctx context.Context) error {
	if len(l.engine.Signals()) == 0 {
		return fmt.Errorf("没有配置任何交易对")
	}

	// 初始化每个交易对的首次评估时间
	now := l.now()
	for _, sig := range l.engine.Signals() {
		d, err := intervalDuration(sig.Interval())
		if err != nil {
			return err
		}
		l.nextEval[sig.Pair().String()] = nextBoundary(now, d).Add(l.settleDelay)
	}

	logger.Info("✅ 交易循环已启动, %d 个交易对", len(l.engine.Signals()))
	for _, sig := range l.engine.Signals() {
		logger.Info("  ℹ️ %s (%s) 首次评估: %s",
			sig.Pair(), sig.Interval(), l.nextEval[sig.Pair().String()].Format("15:04:05"))
	}

	for {
		wait := time.Until(l.earliestDue())
		if wait < 0 {
			wait = 0
		}
		if wait > l.maxIdle {
			wait = l.maxIdle
		}

		select {
		case <-ctx.Done():
			logger.Info("⏹️ 交易循环已停止")
			return nil
		case <-time.After(wait):
		}

		l.runDue(ctx)
	}
}

// runDue 执行所有已到期的交易对，逐个串行，交易对之间检查取消
func (l *Loop) runDue(ctx context.Context) {
	now := l.now()
	for _, sig := range l.engine.Signals() {
		key := sig.Pair().String()
		due, ok := l.nextEval[key]
		if !ok || due.After(now) {
			continue
		}

		// 取消只在交易对之间生效，进行中的评估总是跑完
		if ctx.Err() != nil {
			return
		}

		if err := l.engine.RunCycle(ctx, sig); err != nil {
			// 单个交易对的错误只中止它自己的本轮周期
			logger.Error("❌ [%s] 本轮评估失败: %v", sig.Pair(), err)
		}

		d, _ := intervalDuration(sig.Interval())
		l.nextEval[key] = rescheduleFrom(l.now(), d, l.settleDelay)
	}
}

// earliestDue 最近的一个到期时间
func (l *Loop) earliestDue() time.Time {
	var earliest time.Time
	for _, t := range l.nextEval {
		if earliest.IsZero() || t.Before(earliest) {
			earliest = t
		}
	}
	return earliest
}

// nextBoundary 下一个周期边界（按UTC对齐）
func nextBoundary(now time.Time, d time.Duration) time.Time {
	return now.UTC().Truncate(d).Add(d)
}

// rescheduleFrom 评估结束后计算下次评估时间
// 评估本身可能跨过边界（挂单轮询较久），总是取严格在 now 之后的边界
func rescheduleFrom(now time.Time, d time.Duration, settle time.Duration) time.Time {
	next := nextBoundary(now, d).Add(settle)
	for !next.After(now) {
		next = next.Add(d)
	}
	return next
}

// intervalDuration 解析K线周期: 1m/30m/1h/4h/1d
func intervalDuration(interval string) (time.Duration, error) {
	if len(interval) < 2 {
		return 0, fmt.Errorf("K线周期不合法: %q", interval)
	}

	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("K线周期不合法: %q", interval)
	}

	switch strings.ToLower(interval[len(interval)-1:]) {
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("K线周期不合法: %q", interval)
	}
}
