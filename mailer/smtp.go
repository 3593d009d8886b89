package mailer

import (
	"context"
	"net"
	"time"

	"github.com/go-errors/errors"
	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTPTransport delivers through an SMTP server with go-mail.
type SMTPTransport struct {
	config SMTPConfig
}

func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = 15 * time.Second
	}
	return &SMTPTransport{config: config}
}

func (s *SMTPTransport) options() []gomail.Option {
	opts := []gomail.Option{
		gomail.WithPort(s.config.Port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(s.config.Timeout),
		gomail.WithDialContextFunc(func(ctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "tcp", addr)
		}),
	}
	if s.config.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.config.Username),
			gomail.WithPassword(s.config.Password),
		)
	}
	return opts
}

func (s *SMTPTransport) buildMessage(msg Message) (*gomail.Msg, error) {
	m := gomail.NewMsg()
	if err := m.From(s.config.From); err != nil {
		return nil, errors.WrapPrefix(err, "smtp from", 0)
	}
	if err := m.AddToFormat(msg.To.Name, msg.To.Email); err != nil {
		return nil, errors.WrapPrefix(err, "smtp to", 0)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextPlain, msg.Text)
	m.AddAlternativeString(gomail.TypeTextHTML, msg.HTML)
	return m, nil
}

func (s *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	m, err := s.buildMessage(msg)
	if err != nil {
		return err
	}

	client, err := gomail.NewClient(s.config.Host, s.options()...)
	if err != nil {
		return errors.WrapPrefix(err, "smtp client", 0)
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.WrapPrefix(err, "smtp send", 0)
	}
	return nil
}

// LogTransport writes messages to the log instead of sending them. It is
// used in development when no SMTP server is configured.
type LogTransport struct {
	logger *zap.SugaredLogger
}

func NewLogTransport(logger *zap.SugaredLogger) *LogTransport {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &LogTransport{logger: logger}
}

func (l *LogTransport) Deliver(_ context.Context, msg Message) error {
	l.logger.Infow("email not sent, no SMTP server configured",
		"to", msg.To.Email,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}
