package notify

import (
	"strings"
	"sync"
	"testing"
	"time"

	"tradepilot/config"
	"tradepilot/event"
)

// recordingNotifier 记录收到的事件
type recordingNotifier struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recordingNotifier) Send(evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recordingNotifier) Name() string { return "recording" }

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newTestService(orderFilled, stopLoss bool) (*Service, *recordingNotifier) {
	cfg := &config.Config{}
	cfg.Notifications.Enabled = true
	cfg.Notifications.Rules.OrderFilled = orderFilled
	cfg.Notifications.Rules.StopLoss = stopLoss

	rec := &recordingNotifier{}
	s := &Service{cfg: cfg, notifiers: []Notifier{rec}}
	return s, rec
}

func TestServiceRulesFilter(t *testing.T) {
	s, rec := newTestService(false, true)

	s.Send(event.New(event.EventTypeOrderFilled, nil))
	s.Send(event.New(event.EventTypeStopLoss, nil))

	// 异步发送，稍等片刻
	time.Sleep(100 * time.Millisecond)

	if got := rec.count(); got != 1 {
		t.Errorf("规则关闭的事件不应通知: 期望 1 条, 得到 %d 条", got)
	}
}

func TestServiceDisabledSendsNothing(t *testing.T) {
	s, rec := newTestService(true, true)
	s.cfg.Notifications.Enabled = false

	s.Send(event.New(event.EventTypeOrderFilled, nil))
	time.Sleep(100 * time.Millisecond)

	if rec.count() != 0 {
		t.Error("通知总开关关闭时不应发送任何通知")
	}
}

func TestFormatEmailMessage(t *testing.T) {
	evt := event.New(event.EventTypeStopLoss, map[string]interface{}{
		"symbol": "BTCUSDT",
		"trail":  2850.0,
	})

	msg := formatEmailMessage(evt)
	if !strings.Contains(msg, "止损触发") {
		t.Errorf("邮件正文缺少事件标题: %s", msg)
	}
	if !strings.Contains(msg, "BTCUSDT") {
		t.Errorf("邮件正文缺少事件数据: %s", msg)
	}
}
