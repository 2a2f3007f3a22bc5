package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradepilot/utils"
)

// LogStorage 日志存储
// 独立于业务数据库的 SQLite 日志库，异步批量写入，不阻塞交易循环
type LogStorage struct {
	db        *sql.DB
	mu        sync.Mutex
	logCh     chan *logEntry
	closeOnce sync.Once
	closed    bool
	closedMu  sync.RWMutex
	done      chan struct{}

	batchSize int
}

// logEntry 日志条目
type logEntry struct {
	level     string
	message   string
	timestamp time.Time
}

// LogRecord 日志记录
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// NewLogStorage 创建日志存储
func NewLogStorage(path string, bufferSize, batchSize int, flushInterval time.Duration) (*LogStorage, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("创建日志数据目录失败: %w", err)
		}
	}

	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开日志数据库失败: %w", err)
	}

	// SQLite 并发限制
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if bufferSize <= 0 {
		bufferSize = 1000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 5 * time.Second
	}

	ls := &LogStorage{
		db:        db,
		logCh:     make(chan *logEntry, bufferSize),
		done:      make(chan struct{}),
		batchSize: batchSize,
	}

	if err := ls.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建日志表失败: %w", err)
	}

	// 启动异步写入协程
	go ls.processLogs(flushInterval)

	return ls, nil
}

// createTable 创建日志表
func (ls *LogStorage) createTable() error {
	stmt := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);
	`

	_, err := ls.db.Exec(stmt)
	return err
}

// WriteLog 写入日志（异步，不阻塞）
func (ls *LogStorage) WriteLog(level, message string) {
	ls.closedMu.RLock()
	if ls.closed {
		ls.closedMu.RUnlock()
		return
	}
	ls.closedMu.RUnlock()

	entry := &logEntry{
		level:     level,
		message:   message,
		timestamp: utils.NowUTC(),
	}

	select {
	case ls.logCh <- entry:
	default:
		// 缓冲区满时丢弃，避免阻塞
	}
}

// processLogs 处理日志写入（在独立 goroutine 中运行）
func (ls *LogStorage) processLogs(flushInterval time.Duration) {
	buffer := make([]*logEntry, 0, ls.batchSize)
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}

		ls.mu.Lock()
		// 写入失败静默处理，避免日志失败反过来产生日志
		_ = ls.batchInsert(buffer)
		ls.mu.Unlock()

		buffer = buffer[:0]
	}

	for {
		select {
		case entry, ok := <-ls.logCh:
			if !ok {
				flush()
				close(ls.done)
				return
			}
			buffer = append(buffer, entry)
			if len(buffer) >= ls.batchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// batchInsert 批量插入日志
func (ls *LogStorage) batchInsert(entries []*logEntry) error {
	tx, err := ls.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO logs (timestamp, level, message)
		VALUES (?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, entry := range entries {
		if _, err := stmt.Exec(entry.timestamp, entry.level, entry.message); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// QueryRecent 查询最近的日志（按时间倒序）
func (ls *LogStorage) QueryRecent(level string, limit int) ([]*LogRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, timestamp, level, message FROM logs`
	args := []interface{}{}
	if level != "" {
		query += ` WHERE level = ?`
		args = append(args, level)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	ls.mu.Lock()
	rows, err := ls.db.Query(query, args...)
	ls.mu.Unlock()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*LogRecord
	for rows.Next() {
		r := &LogRecord{}
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Level, &r.Message); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Close 关闭日志存储（刷新剩余缓冲）
func (ls *LogStorage) Close() error {
	var err error
	ls.closeOnce.Do(func() {
		ls.closedMu.Lock()
		ls.closed = true
		ls.closedMu.Unlock()

		close(ls.logCh)
		// 等待写入协程刷新完毕，最多等待3秒
		select {
		case <-ls.done:
		case <-time.After(3 * time.Second):
		}
		err = ls.db.Close()
	})
	return err
}
