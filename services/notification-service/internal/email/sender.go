package email

import (
	"context"
	"strings"

	"github.com/wneessen/go-mail"
)

type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
	ProviderID() string
}

// SMTPSender delivers plain-text mail through go-mail. Defaults suit a local
// Mailpit: no TLS, no auth; production relays configure both through Config.
type SMTPSender struct {
	client *mail.Client
	from   string
}

type Config struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
	UseTLS   bool
}

func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	from := strings.TrimSpace(cfg.From)
	if from == "" {
		from = "no-reply@bookably.local"
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.UseTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(strings.TrimSpace(cfg.Host), opts...)
	if err != nil {
		return nil, err
	}
	return &SMTPSender{client: client, from: from}, nil
}

func (s *SMTPSender) ProviderID() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return err
	}
	if err := msg.To(to); err != nil {
		return err
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return s.client.DialAndSendWithContext(ctx, msg)
}
