// Package delivery sends invoice documents by email, either inline through
// SMTP or in the background through an asynq task queue.
package delivery

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/erp/invoicing/internal/domain/invoicing"
	"github.com/erp/invoicing/internal/infrastructure/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoRecipients is returned for a message without To, Cc or Bcc
var ErrNoRecipients = errors.New("delivery: message has no recipients")

// SMTPSender implements invoicing.EmailSender over SMTP. STARTTLS is used
// whenever the server offers it; PLAIN auth only runs on an encrypted
// connection or against localhost.
type SMTPSender struct {
	host     string
	port     int
	username string
	password string
	from     Address
	dialer   *net.Dialer
	now      func() time.Time
	logger   *zap.Logger
}

// Address is a mailbox with an optional display name
type Address struct {
	Name  string
	Email string
}

// NewSMTPSender creates a new SMTPSender
func NewSMTPSender(cfg config.SMTPConfig, logger *zap.Logger) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMTPSender{
		host:     cfg.Host,
		port:     cfg.Port,
		username: cfg.Username,
		password: cfg.Password,
		from:     Address{Name: cfg.FromName, Email: cfg.From},
		dialer:   &net.Dialer{Timeout: 10 * time.Second},
		now:      time.Now,
		logger:   logger.Named("smtp"),
	}, nil
}

// Send implements invoicing.EmailSender. It returns the Message-ID header.
func (s *SMTPSender) Send(ctx context.Context, msg invoicing.EmailMessage) (string, error) {
	recipients := make([]string, 0, len(msg.To)+len(msg.Cc)+len(msg.Bcc))
	recipients = append(recipients, msg.To...)
	recipients = append(recipients, msg.Cc...)
	recipients = append(recipients, msg.Bcc...)
	if len(recipients) == 0 {
		return "", ErrNoRecipients
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.host)
	data, err := BuildMessage(s.from, msg, messageID, s.now())
	if err != nil {
		return "", err
	}

	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	if err := s.transmit(conn, recipients, data); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}

	s.logger.Debug("Email sent",
		zap.String("message_id", messageID),
		zap.Int("recipients", len(recipients)),
		zap.Int("bytes", len(data)),
	)
	return messageID, nil
}

func (s *SMTPSender) transmit(conn net.Conn, recipients []string, data []byte) error {
	c, err := smtp.NewClient(conn, s.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: s.host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", s.username, s.password, s.host)); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}

	if err := c.Mail(s.from.Email); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp end of data: %w", err)
	}
	return c.Quit()
}

var _ invoicing.EmailSender = (*SMTPSender)(nil)
