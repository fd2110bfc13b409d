package sender

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/errors"
	"notification-dispatch/internal/common/logger"
	"notification-dispatch/internal/models"
)

// SMTPEmailSender delivers EMAIL notifications over plain SMTP.
type SMTPEmailSender struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	from     string
	fromName string
	logger   logger.Logger

	// Overridable in tests.
	send func(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPEmailSender(cfg *config.Config, log logger.Logger) *SMTPEmailSender {
	email := cfg.Senders.Email
	s := &SMTPEmailSender{
		host:     email.SMTP.Host,
		port:     email.SMTP.Port,
		username: email.SMTP.Username,
		password: email.SMTP.Password,
		useTLS:   email.SMTP.UseTLS,
		from:     email.From,
		fromName: email.FromName,
		logger:   log.WithFields(map[string]interface{}{"sender": "smtp"}),
	}
	s.send = s.sendMail
	return s
}

func (s *SMTPEmailSender) SupportedChannel() models.Channel {
	return models.ChannelEmail
}

func (s *SMTPEmailSender) IsAvailable() bool {
	return s.host != "" && s.from != ""
}

func (s *SMTPEmailSender) Send(ctx context.Context, n *models.Notification) (*SendResult, error) {
	if strings.TrimSpace(n.RecipientEmail) == "" {
		return nil, errors.Permanent(errors.ErrCodeRecipientMissing,
			"notification has no recipient email address", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Transient(errors.ErrCodeProviderTimeout, "context cancelled before send", err)
	}

	message := s.buildMessage(n)
	addr := fmt.Sprintf("%s:%d", s.host, s.port)

	var auth smtp.Auth
	if s.username != "" && s.password != "" {
		auth = smtp.PlainAuth("", s.username, s.password, s.host)
	}

	start := time.Now()
	if err := s.send(ctx, addr, auth, s.from, []string{n.RecipientEmail}, []byte(message)); err != nil {
		return nil, classifySMTPError(err)
	}

	providerID := fmt.Sprintf("smtp-%d", time.Now().UnixNano())
	s.logger.Info("email delivered", map[string]interface{}{
		"notificationId": n.ID,
		"providerId":     providerID,
		"durationMs":     time.Since(start).Milliseconds(),
	})

	return &SendResult{
		ProviderID:   providerID,
		ProviderName: "smtp",
		SentAt:       time.Now().UTC(),
	}, nil
}

func (s *SMTPEmailSender) buildMessage(n *models.Notification) string {
	var b strings.Builder

	from := s.from
	if s.fromName != "" {
		from = fmt.Sprintf("%s <%s>", s.fromName, s.from)
	}
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", n.RecipientEmail))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", n.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(BuildEmailContent(n.Title, n.Message))
	return b.String()
}

// sendMail runs one SMTP session over a connection that inherits the caller's
// deadline, so a hung server cannot outlive the send timeout.
func (s *SMTPEmailSender) sendMail(ctx context.Context, addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("connect to SMTP server: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return fmt.Errorf("set connection deadline: %w", err)
		}
	}

	client, err := smtp.NewClient(conn, s.host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("open SMTP session: %w", err)
	}
	defer client.Close()

	if s.useTLS {
		tlsConfig := &tls.Config{ServerName: s.host}
		if err := client.StartTLS(tlsConfig); err != nil {
			return fmt.Errorf("start TLS: %w", err)
		}
	}

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("open data writer: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data writer: %w", err)
	}

	return client.Quit()
}

// classifySMTPError maps raw SMTP failures onto the transient/permanent
// taxonomy. Authentication failures never succeed on retry; everything
// network-shaped is retried.
func classifySMTPError(err error) error {
	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "authentication failed") || strings.Contains(msg, "535 ") {
		return errors.Permanent(errors.ErrCodeAuthenticationFail, "SMTP authentication rejected", err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return errors.Transient(errors.ErrCodeProviderTimeout, "SMTP call timed out", err)
	}
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
		return errors.Transient(errors.ErrCodeProviderTimeout, "SMTP call timed out", err)
	}

	return errors.Transient(errors.ErrCodeProviderError, "SMTP delivery failed", err)
}
