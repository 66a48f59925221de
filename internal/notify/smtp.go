package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/fairyhunter13/points-exchange/internal/config"
	"github.com/fairyhunter13/points-exchange/internal/model"
)

// SMTP delivers notifications as HTML mail. Port 465 uses implicit TLS;
// other ports upgrade with STARTTLS when the server offers it.
type SMTP struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	Shop     string
}

// NewSMTP builds an SMTP notifier from configuration.
func NewSMTP(cfg config.Config) *SMTP {
	return &SMTP{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Shop:     cfg.ShopName,
	}
}

func (s *SMTP) Notify(ctx context.Context, n model.Notification) error {
	if strings.ContainsAny(n.To, "\r\n") || n.To == "" {
		return fmt.Errorf("%w: invalid recipient", ErrNotificationFailed)
	}
	rendered, err := Render(s.Shop, s.From, n)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	msg, err := rendered.Mail()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	c, err := s.client()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotificationFailed, err)
	}
	if err := c.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%w: send via %s:%d: %v", ErrNotificationFailed, s.Host, s.Port, err)
	}
	return nil
}

func (s *SMTP) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTLSConfig(&tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}),
	}
	if s.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}
	if s.User != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.User),
			mail.WithPassword(s.Password),
		)
	}
	c, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return c, nil
}
