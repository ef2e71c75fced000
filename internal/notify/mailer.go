// Package notify はアカウント登録時のメール通知を提供する。
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"
)

// Message は送信するメール1通。
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Mailer はメール送信のインターフェース。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPConfig はSMTP送信の設定。
type SMTPConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SMTPMailer はSMTPでメールを送信する。
type SMTPMailer struct {
	config SMTPConfig
	dialer *gomail.Dialer
}

// NewSMTPMailer はSMTPMailerを生成する。
func NewSMTPMailer(config SMTPConfig) *SMTPMailer {
	return &SMTPMailer{
		config: config,
		dialer: gomail.NewDialer(config.Host, config.Port, config.Username, config.Password),
	}
}

// Send はメールを1通送信する。
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	gm := gomail.NewMessage()
	gm.SetAddressHeader("From", m.config.FromAddress, m.config.FromName)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", msg.Subject)
	if msg.HTMLBody != "" {
		gm.SetBody("text/html", msg.HTMLBody)
		if msg.TextBody != "" {
			gm.AddAlternative("text/plain", msg.TextBody)
		}
	} else {
		gm.SetBody("text/plain", msg.TextBody)
	}

	if err := m.dialer.DialAndSend(gm); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return nil
}

// Discard はメールを送信せずログのみ出力するMailer。SMTP未設定時に使用する。
type Discard struct{}

// Send はメールを破棄する。
func (Discard) Send(_ context.Context, msg Message) error {
	slog.Debug("mail discarded (smtp not configured)",
		slog.String("subject", msg.Subject),
	)
	return nil
}

// compile-time interface check
var (
	_ Mailer = (*SMTPMailer)(nil)
	_ Mailer = Discard{}
)
