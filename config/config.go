package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config 交易机器人系统配置
type Config struct {
	// 应用配置
	App struct {
		CurrentExchange string `yaml:"current_exchange"` // 当前使用的交易所
	} `yaml:"app"`

	// 多交易所配置
	Exchanges map[string]ExchangeConfig `yaml:"exchanges"`

	Trading struct {
		FiatAsset     string  `yaml:"fiat_asset"`      // 计价资产，如 USDT
		TotalBudget   float64 `yaml:"total_budget"`    // 总预算（计价资产）
		LongRatio     float64 `yaml:"long_ratio"`      // 长线策略资金占比（默认 0.6）
		ShortRatio    float64 `yaml:"short_ratio"`     // 短线策略资金占比（默认 0.4）
		MaxShortSlots int     `yaml:"max_short_slots"` // 短线策略最大并发持仓数（默认 2）
		MinNotional   float64 `yaml:"min_notional"`    // 最小下单名义价值兜底（默认 10）
		LoopInterval  int     `yaml:"loop_interval"`   // 主循环节拍（秒，默认 5）
		SettleDelay   int     `yaml:"settle_delay"`    // 成交后延迟再评估时间（秒，默认 10）

		// 交易对与策略绑定列表
		Pairs []PairConfig `yaml:"pairs"`
	} `yaml:"trading"`

	// 时间间隔配置（单位：秒，除非特别说明）
	Timing struct {
		OrderPollAttempts      int `yaml:"order_poll_attempts"`       // 订单成交确认轮询次数（默认 5）
		OrderPollDelay         int `yaml:"order_poll_delay"`          // 轮询间隔（秒，默认 5）
		CancelRetries          int `yaml:"cancel_retries"`            // 撤单后降档重挂次数（默认 2）
		ConnectivityRetries    int `yaml:"connectivity_retries"`      // 网络错误重试次数（默认 3）
		ConnectivityRetryDelay int `yaml:"connectivity_retry_delay"`  // 网络错误重试间隔（秒，默认 5）
	} `yaml:"timing"`

	System struct {
		LogLevel string `yaml:"log_level"`
		Timezone string `yaml:"timezone"` // 时区，如 "Asia/Shanghai"
	} `yaml:"system"`

	// 数据库配置（SQLite）
	Database struct {
		DSN      string `yaml:"dsn"`       // 数据源名称，默认 ./data/tradepilot.db
		LogLevel string `yaml:"log_level"` // GORM 日志级别: silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 日志存储配置（独立于业务数据库的 SQLite 日志库）
	Storage struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`           // 数据库文件路径
		BufferSize    int    `yaml:"buffer_size"`    // 缓冲区大小（默认1000）
		BatchSize     int    `yaml:"batch_size"`     // 批量写入大小（默认100）
		FlushInterval int    `yaml:"flush_interval"` // 刷新间隔（秒，默认5）
	} `yaml:"storage"`

	// 通知配置
	Notifications struct {
		Enabled bool `yaml:"enabled"`

		Email struct {
			Enabled bool `yaml:"enabled"`

			SMTP struct {
				Host     string `yaml:"host"`
				Port     int    `yaml:"port"`
				Username string `yaml:"username"`
				Password string `yaml:"password"`
			} `yaml:"smtp"`

			From    string `yaml:"from"`
			To      string `yaml:"to"`
			Subject string `yaml:"subject"`
		} `yaml:"email"`

		// 通知规则：哪些事件需要通知
		Rules struct {
			OrderFilled bool `yaml:"order_filled"`
			StopLoss    bool `yaml:"stop_loss"`
			Error       bool `yaml:"error"`
			Crash       bool `yaml:"crash"`
		} `yaml:"rules"`
	} `yaml:"notifications"`

	// 监控指标配置
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"` // Prometheus 监听地址（默认 :9090）
	} `yaml:"metrics"`

	// 看门狗配置（系统资源采样）
	Watchdog struct {
		Enabled bool `yaml:"enabled"`

		Sampling struct {
			Interval int `yaml:"interval"` // 采样间隔（秒，默认120秒=2分钟）
		} `yaml:"sampling"`

		Notifications struct {
			Enabled         bool    `yaml:"enabled"`
			CPUPercent      float64 `yaml:"cpu_percent"`      // CPU占用超过此值时通知
			MemoryMB        float64 `yaml:"memory_mb"`        // 内存占用超过此值时通知（0表示不检查）
			CooldownMinutes int     `yaml:"cooldown_minutes"` // 冷却时间（分钟，默认30分钟）
		} `yaml:"notifications"`
	} `yaml:"watchdog"`

	// K线数据采集器配置
	DataLogger struct {
		Enabled  bool     `yaml:"enabled"`
		Symbols  []string `yaml:"symbols"`  // 采集的交易对列表，默认取 trading.pairs
		Interval string   `yaml:"interval"` // K线周期（默认 1m）
	} `yaml:"datalogger"`
}

// PairConfig 交易对与策略的绑定配置
type PairConfig struct {
	Symbol   string `yaml:"symbol"`   // 交易对，如 BTCUSDT
	Strategy string `yaml:"strategy"` // 策略名，如 crossing_sma / bottom_rsi / bollinger_bands
}

// ExchangeConfig 交易所配置
type ExchangeConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key"`
	SecretKey string `yaml:"secret_key" json:"secret_key"`
	Testnet   bool   `yaml:"testnet" json:"testnet"` // 是否使用测试网（默认 false）
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置（用于测试）
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %v", err)
	}

	return &cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %v", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %v", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %v", err)
	}

	return nil
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	// 验证交易所配置
	if c.App.CurrentExchange == "" {
		return fmt.Errorf("必须指定当前使用的交易所 (app.current_exchange)")
	}

	if len(c.Exchanges) == 0 {
		return fmt.Errorf("未配置任何交易所，请在 exchanges 中添加配置")
	}

	exchangeCfg, exists := c.Exchanges[c.App.CurrentExchange]
	if !exists {
		return fmt.Errorf("交易所 %s 的配置不存在", c.App.CurrentExchange)
	}

	if exchangeCfg.APIKey == "" || exchangeCfg.SecretKey == "" {
		return fmt.Errorf("交易所 %s 的 API 配置不完整", c.App.CurrentExchange)
	}

	// ==== 交易配置校验 ====
	if c.Trading.FiatAsset == "" {
		c.Trading.FiatAsset = "USDT"
	}
	c.Trading.FiatAsset = strings.ToUpper(c.Trading.FiatAsset)

	if c.Trading.TotalBudget <= 0 {
		return fmt.Errorf("总预算必须大于0 (trading.total_budget)")
	}

	if c.Trading.LongRatio <= 0 && c.Trading.ShortRatio <= 0 {
		c.Trading.LongRatio = 0.6
		c.Trading.ShortRatio = 0.4
	}
	if c.Trading.LongRatio < 0 || c.Trading.ShortRatio < 0 {
		return fmt.Errorf("资金占比不能为负数")
	}
	if c.Trading.LongRatio+c.Trading.ShortRatio > 1.0+1e-9 {
		return fmt.Errorf("资金占比之和不能超过1 (long_ratio=%.2f, short_ratio=%.2f)",
			c.Trading.LongRatio, c.Trading.ShortRatio)
	}

	if c.Trading.MaxShortSlots <= 0 {
		c.Trading.MaxShortSlots = 2
	}
	if c.Trading.MinNotional <= 0 {
		c.Trading.MinNotional = 10.0
	}
	if c.Trading.LoopInterval <= 0 {
		c.Trading.LoopInterval = 5
	}
	if c.Trading.SettleDelay <= 0 {
		c.Trading.SettleDelay = 10
	}

	if len(c.Trading.Pairs) == 0 {
		return fmt.Errorf("未配置任何交易对 (trading.pairs)")
	}
	seen := make(map[string]bool)
	for i, p := range c.Trading.Pairs {
		if p.Symbol == "" {
			return fmt.Errorf("第 %d 个交易对的 symbol 不能为空", i+1)
		}
		if p.Strategy == "" {
			return fmt.Errorf("交易对 %s 未指定策略", p.Symbol)
		}
		key := p.Symbol + "/" + p.Strategy
		if seen[key] {
			return fmt.Errorf("交易对与策略的组合重复: %s + %s", p.Symbol, p.Strategy)
		}
		seen[key] = true
		c.Trading.Pairs[i].Symbol = strings.ToUpper(p.Symbol)
		c.Trading.Pairs[i].Strategy = strings.ToLower(p.Strategy)
	}

	// ==== 时间间隔默认值 ====
	if c.Timing.OrderPollAttempts <= 0 {
		c.Timing.OrderPollAttempts = 5
	}
	if c.Timing.OrderPollDelay <= 0 {
		c.Timing.OrderPollDelay = 5
	}
	if c.Timing.CancelRetries < 0 {
		c.Timing.CancelRetries = 0
	} else if c.Timing.CancelRetries == 0 {
		c.Timing.CancelRetries = 2
	}
	if c.Timing.ConnectivityRetries <= 0 {
		c.Timing.ConnectivityRetries = 3
	}
	if c.Timing.ConnectivityRetryDelay <= 0 {
		c.Timing.ConnectivityRetryDelay = 5
	}

	// ==== 系统默认值 ====
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.Timezone == "" {
		c.System.Timezone = "Asia/Shanghai"
	}

	// ==== 数据库默认值 ====
	if c.Database.DSN == "" {
		c.Database.DSN = "./data/tradepilot.db"
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// ==== 日志存储默认值 ====
	if c.Storage.Enabled {
		if c.Storage.Path == "" {
			c.Storage.Path = "./data/tradepilot_logs.db"
		}
		if c.Storage.BufferSize <= 0 {
			c.Storage.BufferSize = 1000
		}
		if c.Storage.BatchSize <= 0 {
			c.Storage.BatchSize = 100
		}
		if c.Storage.FlushInterval <= 0 {
			c.Storage.FlushInterval = 5
		}
	}

	// ==== 通知默认值 ====
	if c.Notifications.Email.Enabled {
		smtp := c.Notifications.Email.SMTP
		if smtp.Host == "" || smtp.Port == 0 {
			return fmt.Errorf("邮件通知已启用但 SMTP 配置不完整")
		}
		if c.Notifications.Email.From == "" || c.Notifications.Email.To == "" {
			return fmt.Errorf("邮件通知已启用但未配置收发地址")
		}
		if c.Notifications.Email.Subject == "" {
			c.Notifications.Email.Subject = "TradePilot 通知"
		}
	}

	// ==== 监控默认值 ====
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9090"
	}

	if c.Watchdog.Enabled {
		if c.Watchdog.Sampling.Interval <= 0 {
			c.Watchdog.Sampling.Interval = 120
		}
		if c.Watchdog.Notifications.CooldownMinutes <= 0 {
			c.Watchdog.Notifications.CooldownMinutes = 30
		}
	}

	// ==== 数据采集默认值 ====
	if c.DataLogger.Enabled {
		if len(c.DataLogger.Symbols) == 0 {
			for _, p := range c.Trading.Pairs {
				c.DataLogger.Symbols = append(c.DataLogger.Symbols, p.Symbol)
			}
		}
		if c.DataLogger.Interval == "" {
			c.DataLogger.Interval = "1m"
		}
	}

	return nil
}

// CurrentExchangeConfig 返回当前交易所的配置
func (c *Config) CurrentExchangeConfig() ExchangeConfig {
	return c.Exchanges[c.App.CurrentExchange]
}
