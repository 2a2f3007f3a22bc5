package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// OrderRequest 下单请求
type OrderRequest struct {
	Symbol        string
	Side          Side
	Price         float64
	Quantity      float64
	ClientOrderID string // 自定义订单ID
}

// Order 订单信息
type Order struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          Side
	Price         float64
	Quantity      float64
	ExecutedQty   float64
	QuoteQty      float64 // 累计成交金额（计价资产）
	Status        OrderStatus
	CreatedAt     time.Time
}

// Candle K线数据
type Candle struct {
	Symbol    string
	Interval  string
	OpenTime  int64 // 开盘时间（毫秒时间戳）
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime int64
}

// SymbolRules 交易对的下单规则（来自交易所 exchangeInfo 过滤器）
type SymbolRules struct {
	Symbol      string
	BaseAsset   string          // 基础资产，如 BTC
	QuoteAsset  string          // 计价资产，如 USDT
	TickSize    decimal.Decimal // 价格最小变动单位
	StepSize    decimal.Decimal // 数量最小变动单位
	MinNotional decimal.Decimal // 最小下单名义价值
}

// IExchange 交易所接口
type IExchange interface {
	// GetName 获取交易所名称
	GetName() string
	// GetPrice 获取最新成交价
	GetPrice(ctx context.Context, symbol string) (float64, error)
	// GetCandles 获取K线数据（按开盘时间升序）
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*Candle, error)
	// GetBalances 获取账户各资产的可用余额
	GetBalances(ctx context.Context) (map[string]float64, error)
	// GetSymbolRules 获取交易对的下单规则
	GetSymbolRules(ctx context.Context, symbol string) (*SymbolRules, error)
	// PlaceLimitOrder 挂限价单
	PlaceLimitOrder(ctx context.Context, req *OrderRequest) (*Order, error)
	// GetOrder 查询订单
	GetOrder(ctx context.Context, symbol string, orderID int64) (*Order, error)
	// CancelOrder 撤销订单
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
}
