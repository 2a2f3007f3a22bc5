package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradepilot/config"
	"tradepilot/event"
	"tradepilot/logger"
)

// Watchdog 系统资源看门狗
// 周期采样进程CPU与内存，超过阈值时通过事件总线告警，带冷却防止刷屏
type Watchdog struct {
	cfg            *config.Config
	bus            *event.Bus
	sampleInterval time.Duration
	cooldown       time.Duration

	mu           sync.Mutex
	lastAlert    map[string]time.Time
	latestSample *SystemMetrics

	collect func() (*SystemMetrics, error)
}

// NewWatchdog 创建看门狗
func NewWatchdog(cfg *config.Config, bus *event.Bus) *Watchdog {
	sampleInterval := time.Duration(cfg.Watchdog.Sampling.Interval) * time.Second
	if sampleInterval <= 0 {
		sampleInterval = 120 * time.Second
	}
	cooldown := time.Duration(cfg.Watchdog.Notifications.CooldownMinutes) * time.Minute
	if cooldown <= 0 {
		cooldown = 30 * time.Minute
	}

	return &Watchdog{
		cfg:            cfg,
		bus:            bus,
		sampleInterval: sampleInterval,
		cooldown:       cooldown,
		lastAlert:      make(map[string]time.Time),
		collect:        CollectSystemMetrics,
	}
}

// Start 启动采样协程
func (w *Watchdog) Start(ctx context.Context) {
	if !w.cfg.Watchdog.Enabled {
		logger.Info("ℹ️ 看门狗监控未启用")
		return
	}

	go w.samplingLoop(ctx)
	logger.Info("✅ 看门狗监控已启动 (采样间隔: %v)", w.sampleInterval)
}

// LatestSample 最近一次采样结果（状态行展示）
func (w *Watchdog) LatestSample() *SystemMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.latestSample
}

func (w *Watchdog) samplingLoop(ctx context.Context) {
	ticker := time.NewTicker(w.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("⏹️ 看门狗监控已停止")
			return
		case <-ticker.C:
			metrics, err := w.collect()
			if err != nil {
				logger.Error("❌ 采集系统指标失败: %v", err)
				continue
			}

			w.mu.Lock()
			w.latestSample = metrics
			w.mu.Unlock()

			logger.Debug("📊 [看门狗] CPU=%.2f%%, 内存=%.2f MB", metrics.CPUPercent, metrics.MemoryMB)

			if w.cfg.Watchdog.Notifications.Enabled {
				w.checkThresholds(metrics)
			}
		}
	}
}

// checkThresholds 检查阈值并告警
func (w *Watchdog) checkThresholds(m *SystemMetrics) {
	nc := w.cfg.Watchdog.Notifications

	if nc.CPUPercent > 0 && m.CPUPercent >= nc.CPUPercent && w.shouldAlert("cpu") {
		w.alert("cpu", m, fmt.Sprintf("CPU占用超过阈值: %.2f%% (阈值: %.2f%%)", m.CPUPercent, nc.CPUPercent))
	}
	if nc.MemoryMB > 0 && m.MemoryMB >= nc.MemoryMB && w.shouldAlert("memory") {
		w.alert("memory", m, fmt.Sprintf("内存占用超过阈值: %.2f MB (阈值: %.2f MB)", m.MemoryMB, nc.MemoryMB))
	}
}

// shouldAlert 冷却检查
func (w *Watchdog) shouldAlert(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	last, ok := w.lastAlert[key]
	if ok && time.Since(last) < w.cooldown {
		return false
	}
	w.lastAlert[key] = time.Now()
	return true
}

func (w *Watchdog) alert(kind string, m *SystemMetrics, message string) {
	logger.Warn("🚨 [系统监控告警] %s", message)

	if w.bus != nil {
		w.bus.Publish(event.New(event.EventTypeResourceAlert, map[string]interface{}{
			"kind":           kind,
			"message":        message,
			"cpu_percent":    m.CPUPercent,
			"memory_mb":      m.MemoryMB,
			"memory_percent": m.MemoryPercent,
		}))
	}
}
