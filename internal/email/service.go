package email

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/tenant-billing/internal/config"
)

type Service interface {
	// Enabled reports whether messages actually leave the process.
	Enabled() bool
	SendInvite(ctx context.Context, to, orgName, link string) error
}

// NewService returns an SMTP sender when SMTP is configured and a no-op
// sender otherwise.
func NewService(cfg config.SMTPConfig) Service {
	if !cfg.Enabled() {
		return noopService{}
	}
	return &smtpService{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

type sender interface {
	DialAndSend(m ...*gomail.Message) error
}

type smtpService struct {
	dialer sender
	from   string
}

func (s *smtpService) Enabled() bool { return true }

func (s *smtpService) SendInvite(ctx context.Context, to, orgName, link string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(inviteMessage(s.from, to, orgName, link)); err != nil {
		return fmt.Errorf("failed to send invite email: %w", err)
	}
	log.Info().Str("to", to).Str("org", orgName).Msg("invite email sent")
	return nil
}

func inviteMessage(from, to, orgName, link string) *gomail.Message {
	m := gomail.NewMessage(gomail.SetEncoding(gomail.Unencoded))
	m.SetHeader("From", from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", fmt.Sprintf("You have been invited to %s", orgName))
	m.SetBody("text/plain", fmt.Sprintf(
		"You have been invited to join %s.\n\nAccept the invite: %s\n\nThe link expires in 7 days and can be used once.\n",
		orgName, link))
	return m
}

type noopService struct{}

func (noopService) Enabled() bool { return false }

func (noopService) SendInvite(_ context.Context, to, orgName, _ string) error {
	log.Debug().Str("to", to).Str("org", orgName).Msg("smtp not configured, invite email skipped")
	return nil
}
