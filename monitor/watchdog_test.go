package monitor

import (
	"testing"
	"time"

	"tradepilot/config"
	"tradepilot/event"
)

func newTestWatchdog(cpuThreshold, memThreshold float64) (*Watchdog, *event.Bus) {
	cfg := &config.Config{}
	cfg.Watchdog.Enabled = true
	cfg.Watchdog.Notifications.Enabled = true
	cfg.Watchdog.Notifications.CPUPercent = cpuThreshold
	cfg.Watchdog.Notifications.MemoryMB = memThreshold
	cfg.Watchdog.Notifications.CooldownMinutes = 30

	bus := event.NewBus(10)
	return NewWatchdog(cfg, bus), bus
}

func TestWatchdogAlertsOnThreshold(t *testing.T) {
	w, bus := newTestWatchdog(80, 0)
	defer bus.Close()

	w.checkThresholds(&SystemMetrics{Timestamp: time.Now(), CPUPercent: 95, MemoryMB: 100})

	select {
	case evt := <-bus.Subscribe():
		if evt.Type != event.EventTypeResourceAlert {
			t.Errorf("事件类型期望 %s, 得到 %s", event.EventTypeResourceAlert, evt.Type)
		}
		if evt.Data["kind"] != "cpu" {
			t.Errorf("告警类型期望 cpu, 得到 %v", evt.Data["kind"])
		}
	default:
		t.Fatal("CPU超阈值应发布告警事件")
	}
}

func TestWatchdogCooldownSuppressesRepeat(t *testing.T) {
	w, bus := newTestWatchdog(80, 0)
	defer bus.Close()

	m := &SystemMetrics{Timestamp: time.Now(), CPUPercent: 95}
	w.checkThresholds(m)
	w.checkThresholds(m) // 冷却期内

	count := 0
	for {
		select {
		case <-bus.Subscribe():
			count++
			continue
		default:
		}
		break
	}
	if count != 1 {
		t.Errorf("冷却期内重复告警应被抑制: 期望 1 条, 得到 %d 条", count)
	}
}

func TestWatchdogBelowThresholdSilent(t *testing.T) {
	w, bus := newTestWatchdog(80, 512)
	defer bus.Close()

	w.checkThresholds(&SystemMetrics{Timestamp: time.Now(), CPUPercent: 10, MemoryMB: 100})

	select {
	case evt := <-bus.Subscribe():
		t.Errorf("未超阈值不应告警: %+v", evt)
	default:
	}
}

func TestCollectSystemMetrics(t *testing.T) {
	m, err := CollectSystemMetrics()
	if err != nil {
		t.Fatalf("采集系统指标失败: %v", err)
	}
	if m.MemoryMB <= 0 {
		t.Errorf("进程内存应大于0, 得到 %.2f", m.MemoryMB)
	}
	if m.ProcessID <= 0 {
		t.Errorf("进程ID不正确: %d", m.ProcessID)
	}
}
