package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/pkg/errors"
)

var _ Mailer = (*SMTPMailer)(nil)

// SMTPMailer sends mail through a plain-auth SMTP relay.
type SMTPMailer struct {
	host     string
	port     string
	account  string
	password string
	from     string
}

func NewSMTPMailer(host, port, account, password string) *SMTPMailer {
	return &SMTPMailer{
		host:     host,
		port:     port,
		account:  account,
		password: password,
		from:     account,
	}
}

func (m *SMTPMailer) SendOTP(_ context.Context, email, code string) error {
	body := fmt.Sprintf("Your one-time login code is %s. It is valid for this login attempt only.", code)
	return m.send(email, "Your login code", body)
}

func (m *SMTPMailer) SendPassword(_ context.Context, email, link, password string) error {
	body := fmt.Sprintf("Your account is ready.\r\n\r\nSign in at %s with the password: %s\r\nPlease change it after your first login.", link, password)
	return m.send(email, "Welcome to Shelfward", body)
}

func (m *SMTPMailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.from, to, subject, body)
	auth := smtp.PlainAuth("", m.account, m.password, m.host)
	addr := m.host + ":" + m.port
	if err := smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return errors.Wrapf(err, "[SMTPMailer.send] sending to %s", to)
	}
	return nil
}
