package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"wecounts/internal/model"
)

// DefaultTimeout bounds one SMTP attempt.
const DefaultTimeout = 30 * time.Second

// SMTPTransport sends mail over implicit TLS with PLAIN authentication.
type SMTPTransport struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, account model.SenderAccount, msg *Message) error {
	m, err := buildMsg(msg)
	if err != nil {
		return err
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client, err := mail.NewClient(t.Host,
		mail.WithPort(t.Port),
		mail.WithSSL(),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(account.Username),
		mail.WithPassword(account.Password),
		mail.WithTimeout(timeout),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send via %s:%d: %w", t.Host, t.Port, err)
	}
	return nil
}

func buildMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(msg.FromName, msg.From); err != nil {
		return nil, fmt.Errorf("set from %q: %w", msg.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("set to %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	if msg.Image != "" {
		m.EmbedFile(msg.Image, mail.WithFileContentID(ImageContentID))
	}
	return m, nil
}
