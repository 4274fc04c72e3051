// Package notify sends order confirmations over SMTP.
package notify

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/wneessen/go-mail"

	"github.com/colormuse/print-api/internal/domain/order"
)

var _ order.Notifier = (*Mailer)(nil)

// Config holds the outbound relay settings. All fields except Timeout are
// required for delivery.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

func (c Config) validate() error {
	if c.Host == "" || c.Port == 0 || c.Username == "" || c.Password == "" || c.From == "" {
		return errors.Wrap(order.ErrConfiguration, "SMTP credentials are not fully configured")
	}
	return nil
}

type sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Mailer delivers plain-text messages through a STARTTLS relay.
type Mailer struct {
	cfg       Config
	newSender func(Config) (sender, error)
}

// NewMailer creates a Mailer. Missing settings are reported by Notify, not
// here, so an unconfigured relay never blocks start-up.
func NewMailer(cfg Config) *Mailer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Mailer{cfg: cfg, newSender: dial}
}

// Configured reports whether all relay settings are present.
func (m *Mailer) Configured() bool {
	return m.cfg.validate() == nil
}

// Notify sends msg. Every failure is returned as *order.NotificationError.
func (m *Mailer) Notify(ctx context.Context, msg order.Confirmation) error {
	if err := m.send(ctx, msg); err != nil {
		return &order.NotificationError{Err: err}
	}
	return nil
}

func (m *Mailer) send(ctx context.Context, msg order.Confirmation) error {
	if err := m.cfg.validate(); err != nil {
		return err
	}

	out := mail.NewMsg()
	if err := out.From(m.cfg.From); err != nil {
		return errors.Wrap(err, "set sender")
	}
	if err := out.To(msg.To); err != nil {
		return errors.Wrap(err, "set recipient")
	}
	out.Subject(msg.Subject)
	out.SetBodyString(mail.TypeTextPlain, msg.Body)

	s, err := m.newSender(m.cfg)
	if err != nil {
		return errors.Wrap(err, "create smtp client")
	}
	if err := s.DialAndSendWithContext(ctx, out); err != nil {
		return errors.Wrap(err, "deliver")
	}
	return nil
}

func dial(cfg Config) (sender, error) {
	return mail.NewClient(cfg.Host,
		mail.WithTLSPortPolicy(mail.TLSMandatory),
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
		mail.WithTimeout(cfg.Timeout),
	)
}
