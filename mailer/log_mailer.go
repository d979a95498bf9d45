package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

var _ Mailer = (*LogMailer)(nil)

// LogMailer writes mail to the log instead of sending it. Used in DEV and in
// tests.
type LogMailer struct {
	log zerolog.Logger
}

func NewLogMailer(l zerolog.Logger) *LogMailer {
	return &LogMailer{log: l}
}

func (m *LogMailer) SendOTP(_ context.Context, email, code string) error {
	m.log.Info().Str("email", email).Str("code", code).Msg("otp mail (not sent)")
	return nil
}

func (m *LogMailer) SendPassword(_ context.Context, email, link, _ string) error {
	m.log.Info().Str("email", email).Str("link", link).Msg("password mail (not sent)")
	return nil
}
