package notify

import (
	"sync"

	"tradepilot/config"
	"tradepilot/event"
	"tradepilot/logger"
)

// Notifier 通知接口
type Notifier interface {
	Send(evt *event.Event) error
	Name() string
}

// Service 通知服务
// 按配置规则过滤事件后并发分发到各通知渠道
type Service struct {
	notifiers []Notifier
	cfg       *config.Config
}

// NewService 创建通知服务
func NewService(cfg *config.Config) *Service {
	s := &Service{cfg: cfg}

	if cfg.Notifications.Enabled {
		if cfg.Notifications.Email.Enabled {
			emailNotifier, err := NewEmailNotifier(cfg)
			if err != nil {
				logger.Warn("⚠️ 初始化邮件通知失败: %v", err)
			} else {
				s.notifiers = append(s.notifiers, emailNotifier)
				logger.Info("✅ 邮件通知已启用")
			}
		}
	}

	return s
}

// shouldNotify 检查该事件类型是否需要通知
func (s *Service) shouldNotify(eventType event.EventType) bool {
	if !s.cfg.Notifications.Enabled {
		return false
	}

	rules := s.cfg.Notifications.Rules
	switch eventType {
	case event.EventTypeOrderFilled:
		return rules.OrderFilled
	case event.EventTypeStopLoss:
		return rules.StopLoss
	case event.EventTypeError, event.EventTypeStateInconsistency:
		return rules.Error
	case event.EventTypeCrash:
		return rules.Crash
	default:
		return true
	}
}

// Send 发送通知（异步，不阻塞调用方）
func (s *Service) Send(evt *event.Event) {
	if evt == nil || !s.shouldNotify(evt.Type) {
		return
	}

	go func() {
		var wg sync.WaitGroup
		for _, n := range s.notifiers {
			wg.Add(1)
			go func(n Notifier) {
				defer wg.Done()
				if err := n.Send(evt); err != nil {
					logger.Warn("⚠️ [%s] 通知发送失败: %v", n.Name(), err)
				}
			}(n)
		}
		wg.Wait()
	}()
}

// Run 订阅事件总线并持续分发，总线关闭后退出
func (s *Service) Run(bus *event.Bus) {
	go func() {
		for evt := range bus.Subscribe() {
			s.Send(evt)
		}
	}()
}
