package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradepilot/bot"
	"tradepilot/config"
	"tradepilot/datalogger"
	"tradepilot/event"
	"tradepilot/exchange"
	_ "tradepilot/exchange/binance" // 注册 binance 适配器
	"tradepilot/logger"
	"tradepilot/metrics"
	"tradepilot/monitor"
	"tradepilot/notify"
	"tradepilot/order"
	"tradepilot/position"
	"tradepilot/safety"
	"tradepilot/storage"
	"tradepilot/strategy"
	"tradepilot/utils"
)

// Version 版本号
var Version = "1.2.0"

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-version" || os.Args[1] == "--version") {
		fmt.Printf("TradePilot Trading Bot\n")
		fmt.Printf("Version: %s\n", Version)
		os.Exit(0)
	}

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("[FATAL] 加载配置失败: %v", err)
	}

	// 时区与日志级别尽早生效
	if cfg.System.Timezone != "" {
		if err := utils.SetLocation(cfg.System.Timezone); err != nil {
			log.Printf("[WARN] 设置时区失败: %v, 使用默认时区", err)
		}
	}
	logger.SetLocation(utils.GlobalLocation)
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))

	// 日志落库（独立于业务数据库）
	var logStorage *storage.LogStorage
	if cfg.Storage.Enabled {
		logStorage, err = storage.NewLogStorage(cfg.Storage.Path,
			cfg.Storage.BufferSize, cfg.Storage.BatchSize,
			time.Duration(cfg.Storage.FlushInterval)*time.Second)
		if err != nil {
			log.Printf("[WARN] 初始化日志存储失败: %v, 日志将不落库", err)
		} else {
			defer logStorage.Close()
			logger.InitLogStorage(func(level, message string) {
				logStorage.WriteLog(level, message)
			})
		}
	}
	defer logger.Close()

	logger.Info("🚀 TradePilot 交易机器人启动...")
	logger.Info("📦 版本号: %s", Version)

	store, err := storage.NewStore(cfg.Database.DSN, cfg.Database.LogLevel)
	if err != nil {
		logger.Fatal("❌ 初始化数据库失败: %v", err)
	}
	defer store.Close()

	exCfg := cfg.CurrentExchangeConfig()
	ex, err := exchange.New(cfg.App.CurrentExchange, exCfg.APIKey, exCfg.SecretKey, exCfg.Testnet)
	if err != nil {
		logger.Fatal("❌ 初始化交易所失败: %v", err)
	}
	logger.Info("🌐 交易所: %s (测试网: %v)", ex.GetName(), exCfg.Testnet)

	ledger, err := position.NewPortfolioLedger(cfg.Trading.FiatAsset, cfg.Trading.TotalBudget)
	if err != nil {
		logger.Fatal("❌ 初始化资产台账失败: %v", err)
	}

	allocator, err := position.NewBudgetAllocator(cfg.Trading.LongRatio, cfg.Trading.ShortRatio,
		cfg.Trading.MinNotional, cfg.Trading.MaxShortSlots)
	if err != nil {
		logger.Fatal("❌ 初始化预算分配器失败: %v", err)
	}

	signals := make([]strategy.Signal, 0, len(cfg.Trading.Pairs))
	for _, pc := range cfg.Trading.Pairs {
		sig, err := strategy.New(pc.Strategy, pc.Symbol)
		if err != nil {
			logger.Fatal("❌ 创建策略失败 %s/%s: %v", pc.Strategy, pc.Symbol, err)
		}
		signals = append(signals, sig)
		logger.Info("  ✅ 策略已加载: %s", sig.Pair())
	}

	executor := order.NewExecutor(ex, ledger, store, order.Config{
		PollAttempts:   cfg.Timing.OrderPollAttempts,
		PollDelay:      time.Duration(cfg.Timing.OrderPollDelay) * time.Second,
		PlaceRetries:   cfg.Timing.CancelRetries,
		ConnRetries:    cfg.Timing.ConnectivityRetries,
		ConnRetryDelay: time.Duration(cfg.Timing.ConnectivityRetryDelay) * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := event.NewBus(1000)
	defer bus.Close()
	notify.NewService(cfg).Run(bus)

	// 崩溃兜底: 通知后再退出
	defer func() {
		if r := recover(); r != nil {
			bus.Publish(event.New(event.EventTypeCrash, map[string]interface{}{"panic": fmt.Sprint(r)}))
			time.Sleep(3 * time.Second) // 给异步通知留发送时间
			logger.Fatal("❌ 进程崩溃: %v", r)
		}
	}()

	// 启动恢复: 从存储重建持仓与止损，再做一次余额交叉核对
	symbolAssets := make(map[string]string, len(signals))
	for _, sig := range signals {
		symbol := sig.Pair().Symbol
		if _, ok := symbolAssets[symbol]; ok {
			continue
		}
		rules, err := ex.GetSymbolRules(ctx, symbol)
		if err != nil {
			logger.Fatal("❌ 获取交易规则失败 %s: %v", symbol, err)
		}
		symbolAssets[symbol] = rules.BaseAsset
	}
	recovery := safety.NewRecoveryLoader(store, ex, ledger)
	if err := recovery.Recover(ctx, signals, symbolAssets); err != nil {
		logger.Fatal("❌ 启动恢复失败: %v", err)
	}

	if cfg.Metrics.Enabled {
		metrics.StartServer(cfg.Metrics.Listen)
	}

	monitor.NewWatchdog(cfg, bus).Start(ctx)

	if cfg.DataLogger.Enabled {
		symbols := cfg.DataLogger.Symbols
		if len(symbols) == 0 {
			for symbol := range symbolAssets {
				symbols = append(symbols, symbol)
			}
		}
		dl := datalogger.New(store, symbols, cfg.DataLogger.Interval, exCfg.Testnet)
		if err := dl.Start(ctx); err != nil {
			logger.Warn("⚠️ 启动数据采集失败: %v", err)
		}
	}

	// 配置热更新（仅日志级别）
	if watcher, err := config.NewConfigWatcher(configPath); err != nil {
		logger.Warn("⚠️ 创建配置监控器失败: %v", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监控失败: %v", err)
	} else {
		defer watcher.Stop()
	}

	engine := bot.NewEngine(ex, ledger, signals, executor, allocator, store, bus)
	loop := bot.NewLoop(engine,
		time.Duration(cfg.Trading.SettleDelay)*time.Second,
		time.Duration(cfg.Trading.LoopInterval)*time.Second)

	bus.Publish(event.New(event.EventTypeSystemStart, map[string]interface{}{"version": Version}))

	loopDone := make(chan error, 1)
	go func() {
		loopDone <- loop.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sigChan:
		logger.Info("ℹ️ 收到信号 %v, 准备退出...", s)
		cancel()
		<-loopDone
	case err := <-loopDone:
		if err != nil {
			logger.Error("❌ 交易循环退出: %v", err)
		}
	}

	bus.Publish(event.New(event.EventTypeSystemStop, nil))
	time.Sleep(time.Second) // 给异步通知留发送时间
	logger.Info("👋 TradePilot 已退出")
}
