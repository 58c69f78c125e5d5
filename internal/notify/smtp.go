package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-mail/mail/v2"
	"github.com/metinatakli/cinex-booking/internal/domain"
)

type SMTPMailer struct {
	dialer *mail.Dialer
	sender string
}

func NewSMTPMailer(host string, port int, username, password, sender string) *SMTPMailer {
	dialer := mail.NewDialer(host, port, username, password)
	dialer.Timeout = 5 * time.Second

	return &SMTPMailer{
		dialer: dialer,
		sender: sender,
	}
}

func (m *SMTPMailer) Notify(ctx context.Context, n domain.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := mail.NewMessage()
	msg.SetHeader("To", n.Recipient)
	msg.SetHeader("From", m.sender)
	msg.SetHeader("Subject", n.Subject)
	msg.SetBody("text/plain", n.Body)

	var err error

	for i := 1; i <= 3; i++ {
		err = m.dialer.DialAndSend(msg)
		if err == nil {
			return nil
		}

		if i < 3 {
			time.Sleep(500 * time.Millisecond)
		}
	}

	return fmt.Errorf("failed to send mail to %s: %w", n.Recipient, err)
}
