package datalogger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradepilot/logger"
	"tradepilot/storage"
)

const (
	mainnetStreamBase = "wss://stream.binance.com:9443/stream"
	testnetStreamBase = "wss://testnet.binance.vision/stream"
)

// CandleStore K线入库接口（由 storage.Store 实现）
type CandleStore interface {
	SaveCandle(c *storage.CandleRecord) error
}

// DataLogger K线数据采集器
// 订阅币安K线推送流，收线时写入本地存储供指标回看与恢复使用
type DataLogger struct {
	symbols    []string
	interval   string
	useTestnet bool
	store      CandleStore

	conn      *websocket.Conn
	isRunning atomic.Bool
	saved     atomic.Int64
}

// New 创建数据采集器
func New(store CandleStore, symbols []string, interval string, useTestnet bool) *DataLogger {
	if interval == "" {
		interval = "1m"
	}
	return &DataLogger{
		symbols:    symbols,
		interval:   interval,
		useTestnet: useTestnet,
		store:      store,
	}
}

// streamURL 组合订阅地址: <base>?streams=btcusdt@kline_1m/ethusdt@kline_1m
func (d *DataLogger) streamURL() string {
	base := mainnetStreamBase
	if d.useTestnet {
		base = testnetStreamBase
	}

	streams := make([]string, len(d.symbols))
	for i, s := range d.symbols {
		streams[i] = fmt.Sprintf("%s@kline_%s", strings.ToLower(s), d.interval)
	}
	return base + "?streams=" + strings.Join(streams, "/")
}

// Start 启动采集，断线后自动重连直到 ctx 取消
func (d *DataLogger) Start(ctx context.Context) error {
	if len(d.symbols) == 0 {
		return fmt.Errorf("没有配置采集交易对")
	}
	if d.isRunning.Load() {
		return fmt.Errorf("数据采集器已在运行")
	}
	d.isRunning.Store(true)

	go d.runLoop(ctx)
	logger.Info("✅ [数据采集] 已启动, 订阅 %d 个交易对 (%s)", len(d.symbols), d.interval)
	return nil
}

// SavedCount 已入库的K线数量
func (d *DataLogger) SavedCount() int64 {
	return d.saved.Load()
}

func (d *DataLogger) runLoop(ctx context.Context) {
	defer d.isRunning.Store(false)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			logger.Info("⏹️ [数据采集] 已停止")
			return
		default:
		}

		if err := d.connectAndRead(ctx); err != nil {
			logger.Warn("⚠️ [数据采集] 连接中断: %v, %v 后重连", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
	}
}

func (d *DataLogger) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, d.streamURL(), nil)
	if err != nil {
		return fmt.Errorf("连接K线流失败: %w", err)
	}
	d.conn = conn
	defer conn.Close()

	// ctx 取消时关闭连接以解除 ReadMessage 阻塞
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.handleMessage(message)
	}
}

// streamMessage 币安组合流消息
type streamMessage struct {
	Stream string `json:"stream"`
	Data   struct {
		EventType string `json:"e"`
		Symbol    string `json:"s"`
		Kline     struct {
			OpenTime  int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Interval  string `json:"i"`
			Open      string `json:"o"`
			Close     string `json:"c"`
			High      string `json:"h"`
			Low       string `json:"l"`
			Volume    string `json:"v"`
			IsClosed  bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (d *DataLogger) handleMessage(message []byte) {
	var msg streamMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		logger.Warn("⚠️ [数据采集] 解析消息失败: %v", err)
		return
	}
	if msg.Data.EventType != "kline" {
		return
	}

	rec, err := parseCandle(&msg)
	if err != nil {
		logger.Warn("⚠️ [数据采集] 解析K线失败: %v", err)
		return
	}

	// 只保存已收线的K线，构建中的跳过
	if !msg.Data.Kline.IsClosed {
		return
	}

	if err := d.store.SaveCandle(rec); err != nil {
		logger.Error("❌ [数据采集] 保存K线失败 %s: %v", rec.Symbol, err)
		return
	}
	d.saved.Add(1)
	logger.Debug("📊 [数据采集] %s %s 收线: O=%.8f C=%.8f V=%.4f",
		rec.Symbol, rec.Interval, rec.Open, rec.Close, rec.Volume)
}

// parseCandle 把推送消息转成入库记录
func parseCandle(msg *streamMessage) (*storage.CandleRecord, error) {
	k := msg.Data.Kline

	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("开盘价不合法: %q", k.Open)
	}
	high, err := strconv.ParseFloat(k.High, 64)
	if err != nil {
		return nil, fmt.Errorf("最高价不合法: %q", k.High)
	}
	low, err := strconv.ParseFloat(k.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("最低价不合法: %q", k.Low)
	}
	closePrice, err := strconv.ParseFloat(k.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("收盘价不合法: %q", k.Close)
	}
	volume, err := strconv.ParseFloat(k.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("成交量不合法: %q", k.Volume)
	}

	return &storage.CandleRecord{
		Symbol:    msg.Data.Symbol,
		Interval:  k.Interval,
		OpenTime:  k.OpenTime,
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		CloseTime: k.CloseTime,
	}, nil
}
