package notify

import (
	"context"
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/noah-isme/weekend-academy-api/pkg/config"
)

// SMTPNotifier sends mail through an SMTP relay.
type SMTPNotifier struct {
	dialer *gomail.Dialer
	from   string
}

// NewSMTPNotifier builds a notifier from mail settings.
func NewSMTPNotifier(cfg config.MailConfig) *SMTPNotifier {
	return &SMTPNotifier{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

// Send renders msg and delivers it. gomail has no context support, so a
// cancelled ctx abandons the wait while the dial finishes in the background.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m, err := buildMessage(n.from, msg)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- n.dialer.DialAndSend(m) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("send %s to %s: %w", msg.Template, msg.To, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send %s to %s: %w", msg.Template, msg.To, err)
		}
		return nil
	}
}

func buildMessage(from string, msg Message) (*gomail.Message, error) {
	subject, body, err := Render(msg)
	if err != nil {
		return nil, err
	}
	m := gomail.NewMessage()
	m.SetHeader("From", from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)
	return m, nil
}
