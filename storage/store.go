package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"tradepilot/utils"
)

// Store 业务数据存储（GORM + SQLite）
type Store struct {
	db *gorm.DB
}

// NewStore 创建业务数据存储并自动建表
func NewStore(dsn, logLevel string) (*Store, error) {
	// 确保目录存在
	if dir := filepath.Dir(dsn); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}

	level := gormlogger.Error
	switch logLevel {
	case "silent":
		level = gormlogger.Silent
	case "warn":
		level = gormlogger.Warn
	case "info":
		level = gormlogger.Info
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层连接失败: %w", err)
	}
	// SQLite 并发限制
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&OpenPosition{},
		&StopLossRecord{},
		&OrderRecord{},
		&TradeRecord{},
		&CandleRecord{},
	); err != nil {
		return nil, fmt.Errorf("自动建表失败: %w", err)
	}

	return &Store{db: db}, nil
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ========== 持仓 ==========

// SaveOpenPosition 保存/更新持仓（以 strategy+symbol 为键 upsert）
func (s *Store) SaveOpenPosition(p *OpenPosition) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"coins", "investment", "type", "updated_at",
		}),
	}).Create(p).Error
}

// GetOpenPositions 获取全部持仓
func (s *Store) GetOpenPositions() ([]*OpenPosition, error) {
	var positions []*OpenPosition
	err := s.db.Find(&positions).Error
	return positions, err
}

// DeleteOpenPosition 删除持仓（卖出后调用）
func (s *Store) DeleteOpenPosition(strategy, symbol string) error {
	return s.db.Where("strategy = ? AND symbol = ?", strategy, symbol).
		Delete(&OpenPosition{}).Error
}

// ========== 止损 ==========

// SaveStopLoss 保存/更新止损记录（以 strategy+symbol 为键 upsert）
func (s *Store) SaveStopLoss(r *StopLossRecord) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "strategy"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"buy_price", "highest", "trail_ratio", "trail", "open", "updated_at",
		}),
	}).Create(r).Error
}

// OpenStopLosses 获取全部未平仓的止损记录
func (s *Store) OpenStopLosses() ([]*StopLossRecord, error) {
	var records []*StopLossRecord
	err := s.db.Where("open = ?", true).Find(&records).Error
	return records, err
}

// CloseStopLoss 平仓止损记录
func (s *Store) CloseStopLoss(strategy, symbol string) error {
	return s.db.Model(&StopLossRecord{}).
		Where("strategy = ? AND symbol = ?", strategy, symbol).
		Updates(map[string]interface{}{"open": false, "updated_at": utils.NowUTC()}).Error
}

// ========== 订单 ==========

// SaveOrder 保存订单记录
func (s *Store) SaveOrder(o *OrderRecord) error {
	return s.db.Create(o).Error
}

// GetOrdersByTrade 获取某笔交易的全部订单
func (s *Store) GetOrdersByTrade(tradeID uint) ([]*OrderRecord, error) {
	var orders []*OrderRecord
	err := s.db.Where("trade_id = ?", tradeID).Order("time ASC").Find(&orders).Error
	return orders, err
}

// ========== 交易 ==========

// CreateTrade 创建交易记录（买入时），返回交易ID
func (s *Store) CreateTrade(symbol, strategy string, buyOrderID int64) (uint, error) {
	trade := &TradeRecord{
		Symbol:     symbol,
		Strategy:   strategy,
		BuyOrderID: buyOrderID,
		Open:       true,
	}
	if err := s.db.Create(trade).Error; err != nil {
		return 0, err
	}
	return trade.ID, nil
}

// CloseTrade 关闭交易记录（卖出时）
func (s *Store) CloseTrade(tradeID uint, sellOrderID int64) error {
	return s.db.Model(&TradeRecord{}).
		Where("id = ?", tradeID).
		Updates(map[string]interface{}{
			"sell_order_id": sellOrderID,
			"open":          false,
			"updated_at":    utils.NowUTC(),
		}).Error
}

// OpenTrades 获取全部未关闭的交易记录
func (s *Store) OpenTrades() ([]*TradeRecord, error) {
	var trades []*TradeRecord
	err := s.db.Where("open = ?", true).Find(&trades).Error
	return trades, err
}

// OpenTrade 查找指定 strategy+symbol 的未关闭交易
func (s *Store) OpenTrade(strategy, symbol string) (*TradeRecord, error) {
	var trade TradeRecord
	err := s.db.Where("strategy = ? AND symbol = ? AND open = ?", strategy, symbol, true).
		First(&trade).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &trade, nil
}

// ========== K线 ==========

// SaveCandle 保存K线（重复的 symbol+interval+open_time 覆盖更新）
func (s *Store) SaveCandle(c *CandleRecord) error {
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "interval"}, {Name: "open_time"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "close_time",
		}),
	}).Create(c).Error
}

// RecentCandles 获取最近的K线（按开盘时间升序）
func (s *Store) RecentCandles(symbol, interval string, limit int) ([]*CandleRecord, error) {
	var candles []*CandleRecord
	err := s.db.Where("symbol = ? AND `interval` = ?", symbol, interval).
		Order("open_time DESC").Limit(limit).Find(&candles).Error
	if err != nil {
		return nil, err
	}
	// 反转为升序
	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}
	return candles, nil
}

// PruneCandles 清理指定时间之前的K线
func (s *Store) PruneCandles(before time.Time) error {
	return s.db.Where("close_time < ?", before.UnixMilli()).
		Delete(&CandleRecord{}).Error
}
