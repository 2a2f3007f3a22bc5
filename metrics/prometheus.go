package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradepilot/logger"
)

var (
	// 订单指标
	orderTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_order_total",
			Help: "Total number of orders placed",
		},
		[]string{"symbol", "side", "status"},
	)

	orderFillTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_order_fill_total",
			Help: "Total number of filled orders",
		},
		[]string{"symbol", "side"},
	)

	orderCancelTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_order_cancel_total",
			Help: "Total number of canceled orders",
		},
		[]string{"symbol", "side"},
	)

	orderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradepilot_order_duration_seconds",
			Help:    "Order execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"symbol", "side"},
	)

	// 交易循环指标
	cycleTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_cycle_total",
			Help: "Total number of evaluation cycles",
		},
		[]string{"strategy", "symbol", "action"},
	)

	cycleErrorTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_cycle_error_total",
			Help: "Total number of evaluation cycle errors",
		},
		[]string{"strategy", "symbol"},
	)

	// 止损指标
	stopLossTriggerTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradepilot_stop_loss_trigger_total",
			Help: "Total number of stop loss triggers",
		},
		[]string{"strategy", "symbol"},
	)

	stopLossTrail = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradepilot_stop_loss_trail",
			Help: "Current trailing stop price per pair",
		},
		[]string{"strategy", "symbol"},
	)

	// 资金指标
	fiatBalance = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepilot_fiat_balance",
			Help: "Current fiat balance",
		},
	)

	totalBudget = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradepilot_total_budget",
			Help: "Total budget (fiat + invested)",
		},
	)
)

// PrometheusMetrics Prometheus 指标封装
type PrometheusMetrics struct{}

var (
	instance *PrometheusMetrics
	once     sync.Once
)

// GetPrometheusMetrics 获取全局指标实例
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		instance = &PrometheusMetrics{}
	})
	return instance
}

// RecordOrder 记录下单
func (pm *PrometheusMetrics) RecordOrder(symbol, side, status string) {
	orderTotal.WithLabelValues(symbol, side, status).Inc()
}

// RecordFill 记录成交
func (pm *PrometheusMetrics) RecordFill(symbol, side string, duration time.Duration) {
	orderFillTotal.WithLabelValues(symbol, side).Inc()
	orderDuration.WithLabelValues(symbol, side).Observe(duration.Seconds())
}

// RecordCancel 记录撤单
func (pm *PrometheusMetrics) RecordCancel(symbol, side string) {
	orderCancelTotal.WithLabelValues(symbol, side).Inc()
}

// RecordCycle 记录一次评估循环
func (pm *PrometheusMetrics) RecordCycle(strategy, symbol, action string) {
	cycleTotal.WithLabelValues(strategy, symbol, action).Inc()
}

// RecordCycleError 记录评估循环错误
func (pm *PrometheusMetrics) RecordCycleError(strategy, symbol string) {
	cycleErrorTotal.WithLabelValues(strategy, symbol).Inc()
}

// RecordStopLossTrigger 记录止损触发
func (pm *PrometheusMetrics) RecordStopLossTrigger(strategy, symbol string) {
	stopLossTriggerTotal.WithLabelValues(strategy, symbol).Inc()
}

// SetStopLossTrail 更新止损线
func (pm *PrometheusMetrics) SetStopLossTrail(strategy, symbol string, trail float64) {
	stopLossTrail.WithLabelValues(strategy, symbol).Set(trail)
}

// SetFiatBalance 更新计价资产余额
func (pm *PrometheusMetrics) SetFiatBalance(balance float64) {
	fiatBalance.Set(balance)
}

// SetTotalBudget 更新总预算
func (pm *PrometheusMetrics) SetTotalBudget(budget float64) {
	totalBudget.Set(budget)
}

// StartServer 启动 /metrics HTTP 服务
func StartServer(listen string) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info("📊 [指标] Prometheus 服务已启动: %s/metrics", listen)
		if err := http.ListenAndServe(listen, mux); err != nil {
			logger.Error("❌ [指标] Prometheus 服务启动失败: %v", err)
		}
	}()
}
