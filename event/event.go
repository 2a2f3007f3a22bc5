package event

import (
	"time"

	"tradepilot/logger"
)

// EventType 事件类型
type EventType string

const (
	EventTypeOrderFilled        EventType = "order_filled"
	EventTypeOrderCanceled      EventType = "order_canceled"
	EventTypeStopLoss           EventType = "stop_loss"
	EventTypeError              EventType = "error"
	EventTypeCrash              EventType = "crash"
	EventTypeStateInconsistency EventType = "state_inconsistency"
	EventTypeSystemStart        EventType = "system_start"
	EventTypeSystemStop         EventType = "system_stop"
	EventTypeResourceAlert      EventType = "resource_alert"
)

// Event 事件结构
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]interface{}
}

// New 创建带时间戳的事件
func New(t EventType, data map[string]interface{}) *Event {
	return &Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// Bus 事件总线
// 发布方永不阻塞，队列满时丢弃并告警
type Bus struct {
	eventCh chan *Event
}

// NewBus 创建事件总线
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 1000
	}
	return &Bus{
		eventCh: make(chan *Event, bufferSize),
	}
}

// Publish 发布事件（非阻塞）
func (b *Bus) Publish(evt *Event) {
	if evt == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- evt:
	default:
		logger.Warn("⚠️ 事件队列已满, 丢弃事件: %s", evt.Type)
	}
}

// Subscribe 订阅事件
func (b *Bus) Subscribe() <-chan *Event {
	return b.eventCh
}

// Close 关闭事件总线
func (b *Bus) Close() {
	close(b.eventCh)
}
