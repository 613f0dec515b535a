package service

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/url"
	"text/template"
	"time"

	"github.com/dajohi/goemail"
	"github.com/yusufkecer/auth-backend/internal/domain"
)

// Notifier delivers reset links out of band.
type Notifier interface {
	SendResetLink(ctx context.Context, link *domain.ResetLink) error
}

// SMTPConfig configures EmailService. An empty Host disables sending.
type SMTPConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	From       string
	SkipVerify bool
}

// EmailService sends reset links over SMTPS.
type EmailService struct {
	client      *goemail.SMTP
	mailName    string
	mailAddress string
	disabled    bool
}

var _ Notifier = (*EmailService)(nil)

// NewEmailService returns an EmailService. With no host configured the
// service is disabled and only logs the links it would have sent.
func NewEmailService(cfg SMTPConfig) (*EmailService, error) {
	if cfg.Host == "" {
		return &EmailService{disabled: true}, nil
	}

	a, err := mail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	host := cfg.Host
	if cfg.Port != "" {
		host += ":" + cfg.Port
	}
	u := &url.URL{Scheme: "smtps", Host: host}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.SkipVerify}
	client, err := goemail.NewSMTP(u.String(), tlsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &EmailService{
		client:      client,
		mailName:    a.Name,
		mailAddress: a.Address,
	}, nil
}

func (s *EmailService) SendResetLink(ctx context.Context, link *domain.ResetLink) error {
	if s.disabled {
		log.Infof("Email is disabled; reset link for %v: %v", link.Email, link.URL)
		return nil
	}

	body, err := buildResetEmail(link)
	if err != nil {
		return err
	}

	msg := goemail.NewMessage(s.mailAddress, resetEmailSubject, body)
	msg.SetName(s.mailName)
	msg.AddTo(link.Email)

	if err := s.client.Send(msg); err != nil {
		return fmt.Errorf("smtp error: %w", err)
	}
	log.Debugf("Reset email sent to %v", link.Email)
	return nil
}

// LogNotifier writes reset links to the log instead of sending them.
type LogNotifier struct{}

var _ Notifier = LogNotifier{}

func (LogNotifier) SendResetLink(_ context.Context, link *domain.ResetLink) error {
	log.Infof("Reset link for %v: %v", link.Email, link.URL)
	return nil
}

const resetEmailSubject = "Reset Your Password"

var resetEmailTmpl = template.Must(template.New("reset_email").Parse(resetEmailText))

const resetEmailText = `
A password reset was requested for {{.Email}}.

Use the link below to choose a new password. The link works once and
expires at {{.Expires}}.

{{.URL}}

If you did not make this request you can ignore this email; your password
will not change.
`

func buildResetEmail(link *domain.ResetLink) (string, error) {
	data := struct {
		Email   string
		URL     string
		Expires string
	}{
		Email:   link.Email,
		URL:     link.URL,
		Expires: link.ExpiresAt.UTC().Format(time.RFC1123),
	}

	var b bytes.Buffer
	if err := resetEmailTmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("failed to render reset email: %w", err)
	}
	return b.String(), nil
}
