package smtp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"io"

	"recruiterrm/internal/config"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Sender submits messages to the configured SMTP server, one connection per
// message.
type Sender struct {
	cfg config.Config
}

func NewSender(cfg config.Config) *Sender {
	return &Sender{cfg: cfg}
}

func (s *Sender) dial() (*smtp.Client, error) {
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTP.Host, s.cfg.SMTP.Port)
	tlsConfig := &tls.Config{
		ServerName:         s.cfg.SMTP.Host,
		InsecureSkipVerify: s.cfg.SMTP.InsecureSkipVerify,
	}

	var c *smtp.Client
	var err error
	switch {
	case s.cfg.SMTP.TLS:
		c, err = smtp.DialTLS(addr, tlsConfig)
	case s.cfg.SMTP.StartTLS:
		c, err = smtp.DialStartTLS(addr, tlsConfig)
	default:
		c, err = smtp.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	return c, nil
}

func (s *Sender) Send(from string, recipients []string, msg []byte) error {
	if len(recipients) == 0 {
		return fmt.Errorf("no recipients provided")
	}

	c, err := s.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	if s.cfg.Auth.Username != "" {
		auth := sasl.NewPlainClient("", s.cfg.Auth.Username, s.cfg.Auth.Password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth as %s: %w", s.cfg.Auth.Username, err)
		}
	}

	if err := c.Mail(from, nil); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := io.Copy(w, bytes.NewReader(msg)); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}

	return c.Quit()
}
