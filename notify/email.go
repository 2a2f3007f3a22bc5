package notify

import (
	"fmt"
	"net/smtp"

	"tradepilot/config"
	"tradepilot/event"
)

// EmailNotifier SMTP 邮件通知器
type EmailNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       string
	subject  string
}

// NewEmailNotifier 创建邮件通知器
func NewEmailNotifier(cfg *config.Config) (*EmailNotifier, error) {
	ec := cfg.Notifications.Email
	if !ec.Enabled {
		return nil, fmt.Errorf("邮件通知未启用")
	}
	if ec.From == "" || ec.To == "" {
		return nil, fmt.Errorf("邮件 From 或 To 未配置")
	}
	if ec.SMTP.Host == "" {
		return nil, fmt.Errorf("SMTP Host 未配置")
	}

	return &EmailNotifier{
		host:     ec.SMTP.Host,
		port:     ec.SMTP.Port,
		username: ec.SMTP.Username,
		password: ec.SMTP.Password,
		from:     ec.From,
		to:       ec.To,
		subject:  ec.Subject,
	}, nil
}

// Name 返回通知器名称
func (en *EmailNotifier) Name() string {
	return "Email (smtp)"
}

// Send 发送通知
func (en *EmailNotifier) Send(evt *event.Event) error {
	subject := en.subject
	if subject == "" {
		subject = fmt.Sprintf("TradePilot 通知: %s", string(evt.Type))
	}

	port := en.port
	if port <= 0 {
		port = 587
	}

	addr := fmt.Sprintf("%s:%d", en.host, port)
	auth := smtp.PlainAuth("", en.username, en.password, en.host)

	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		en.from, en.to, subject, formatEmailMessage(evt)))

	return smtp.SendMail(addr, auth, en.from, []string{en.to}, msg)
}

// formatEmailMessage 格式化邮件正文
func formatEmailMessage(evt *event.Event) string {
	var title string
	switch evt.Type {
	case event.EventTypeOrderFilled:
		title = "订单已成交"
	case event.EventTypeOrderCanceled:
		title = "订单已取消"
	case event.EventTypeStopLoss:
		title = "止损触发"
	case event.EventTypeError:
		title = "系统错误"
	case event.EventTypeCrash:
		title = "系统崩溃"
	case event.EventTypeStateInconsistency:
		title = "持仓状态不一致"
	case event.EventTypeSystemStart:
		title = "系统启动"
	case event.EventTypeSystemStop:
		title = "系统停止"
	case event.EventTypeResourceAlert:
		title = "系统资源告警"
	default:
		title = "系统通知"
	}

	message := fmt.Sprintf("%s\n\n", title)
	message += fmt.Sprintf("时间: %s\n\n", evt.Timestamp.Format("2006-01-02 15:04:05"))

	if evt.Data != nil {
		message += "详细信息:\n"
		for key, value := range evt.Data {
			message += fmt.Sprintf("  %s: %v\n", key, value)
		}
	}

	return message
}
