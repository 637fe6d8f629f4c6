// Package mailer sends transactional email over SMTP. The auth flows
// only depend on the service.Mailer interface; this is the production
// implementation.
package mailer

import (
	"errors"
	"strings"

	"github.com/vibast-solutions/ms-go-users/config"

	"gopkg.in/gomail.v2"
)

type Mailer struct {
	dialer   *gomail.Dialer
	from     string
	fromName string
}

func New(cfg config.SMTPConfig) *Mailer {
	return &Mailer{
		dialer:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Pass),
		from:     cfg.From,
		fromName: cfg.FromName,
	}
}

func (m *Mailer) Send(to, subject, htmlBody string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("no recipient specified")
	}

	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.from, m.fromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", htmlBody)

	return m.dialer.DialAndSend(msg)
}
