package storage

import (
	"time"
)

// OpenPosition 当前持仓记录
// 以 (strategy, symbol) 为业务主键，买入时写入，卖出时删除
type OpenPosition struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Strategy   string    `gorm:"uniqueIndex:idx_position_key;size:64" json:"strategy"`
	Symbol     string    `gorm:"uniqueIndex:idx_position_key;size:32" json:"symbol"`
	Coins      float64   `json:"coins"`      // 持有的基础资产数量
	Investment float64   `json:"investment"` // 投入的计价资产金额
	Type       string    `gorm:"size:16" json:"type"` // long / short
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (OpenPosition) TableName() string {
	return "open_positions"
}

// StopLossRecord 追踪止损记录
// 止损状态只进不退：Highest/Trail 单调不降，平仓时 Open 置为 false
type StopLossRecord struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Strategy   string    `gorm:"uniqueIndex:idx_stoploss_key;size:64" json:"strategy"`
	Symbol     string    `gorm:"uniqueIndex:idx_stoploss_key;size:32" json:"symbol"`
	BuyPrice   float64   `json:"buy_price"`
	Highest    float64   `json:"highest"`
	TrailRatio float64   `json:"trail_ratio"`
	Trail      float64   `json:"trail"`
	Open       bool      `gorm:"index" json:"open"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// TableName 指定表名
func (StopLossRecord) TableName() string {
	return "stop_losses"
}

// OrderRecord 订单记录
type OrderRecord struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	OrderID       int64     `gorm:"uniqueIndex" json:"order_id"`
	ClientOrderID string    `gorm:"size:64" json:"client_order_id"`
	TradeID       uint      `gorm:"index" json:"trade_id"`
	Symbol        string    `gorm:"index;size:32" json:"symbol"`
	Strategy      string    `gorm:"size:64" json:"strategy"`
	Side          string    `gorm:"size:8" json:"side"` // BUY / SELL
	Price         float64   `json:"price"`
	Coins         float64   `json:"coins"`      // 成交的基础资产数量
	Investment    float64   `json:"investment"` // 成交金额（计价资产）
	Status        string    `gorm:"size:24" json:"status"`
	Time          time.Time `json:"time"`
	CreatedAt     time.Time `json:"created_at"`
}

// TableName 指定表名
func (OrderRecord) TableName() string {
	return "orders"
}

// TradeRecord 交易记录（买卖配对）
// 买入时创建且 Open=true，卖出时写入 SellOrderID 并置 Open=false
type TradeRecord struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"index;size:32" json:"symbol"`
	Strategy    string    `gorm:"index;size:64" json:"strategy"`
	BuyOrderID  int64     `json:"buy_order_id"`
	SellOrderID int64     `json:"sell_order_id"`
	Open        bool      `gorm:"index" json:"open"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName 指定表名
func (TradeRecord) TableName() string {
	return "trades"
}

// CandleRecord K线记录（数据采集器写入）
type CandleRecord struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	Symbol    string  `gorm:"uniqueIndex:idx_candle_key;size:32" json:"symbol"`
	Interval  string  `gorm:"uniqueIndex:idx_candle_key;size:8" json:"interval"`
	OpenTime  int64   `gorm:"uniqueIndex:idx_candle_key" json:"open_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"close_time"`
}

// TableName 指定表名
func (CandleRecord) TableName() string {
	return "candlesticks"
}
