package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
)

// SMTPConfig holds SMTP relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string

	// ImplicitTLS dials straight into TLS (port 465 style). Otherwise the
	// connection is upgraded with STARTTLS when the server offers it.
	ImplicitTLS bool

	Timeout time.Duration
}

// Addr returns the host:port of the relay.
func (c SMTPConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type deliverFunc func(ctx context.Context, cfg SMTPConfig, to string, raw []byte) error

// SMTPSender delivers messages through an SMTP relay behind a circuit breaker.
type SMTPSender struct {
	cfg     SMTPConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
	deliver deliverFunc
	now     func() time.Time
	logger  *slog.Logger
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig, bcfg BreakerConfig, logger *slog.Logger) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		cfg:     cfg,
		breaker: newBreaker[struct{}](bcfg, logger),
		deliver: deliverSMTP,
		now:     time.Now,
		logger:  logger,
	}
}

// Dispatch renders msg and sends it. While the breaker is open the relay is
// not contacted and ErrTransportUnavailable is returned.
func (s *SMTPSender) Dispatch(ctx context.Context, msg Message) error {
	raw, err := buildMessage(s.cfg.Sender, msg, s.now())
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.deliver(ctx, s.cfg, msg.To, raw)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("smtp %s: %w", s.cfg.Addr(), ErrTransportUnavailable)
		}
		return fmt.Errorf("smtp deliver: %w", err)
	}

	return nil
}

// State returns the current state of the circuit breaker.
func (s *SMTPSender) State() gobreaker.State {
	return s.breaker.State()
}

// buildMessage renders an RFC 5322 plain-text message. Header values are
// validated so a recipient or subject cannot inject extra headers.
func buildMessage(sender string, msg Message, now time.Time) ([]byte, error) {
	from, err := mail.ParseAddress(sender)
	if err != nil {
		return nil, fmt.Errorf("sender %q: %w", sender, ErrInvalidMessage)
	}
	to, err := mail.ParseAddress(msg.To)
	if err != nil {
		return nil, fmt.Errorf("recipient %q: %w", msg.To, ErrInvalidMessage)
	}
	if strings.ContainsAny(msg.Subject, "\r\n") {
		return nil, fmt.Errorf("subject contains line breaks: %w", ErrInvalidMessage)
	}

	var b strings.Builder
	b.WriteString("From: " + from.String() + "\r\n")
	b.WriteString("To: " + to.String() + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")

	body := strings.ReplaceAll(msg.Body, "\r\n", "\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")

	return []byte(b.String()), nil
}

func deliverSMTP(ctx context.Context, cfg SMTPConfig, to string, raw []byte) error {
	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Addr(), err)
	}

	deadline := time.Now().Add(cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	tlsCfg := &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12}
	if cfg.ImplicitTLS {
		conn = tls.Client(conn, tlsCfg)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = client.Close() }()

	if !cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsCfg); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if cfg.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	from, err := mail.ParseAddress(cfg.Sender)
	if err != nil {
		return fmt.Errorf("sender: %w", err)
	}
	rcpt, err := mail.ParseAddress(to)
	if err != nil {
		return fmt.Errorf("recipient: %w", err)
	}

	if err := client.Mail(from.Address); err != nil {
		return fmt.Errorf("smtp MAIL: %w", err)
	}
	if err := client.Rcpt(rcpt.Address); err != nil {
		return fmt.Errorf("smtp RCPT: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}

	return client.Quit()
}
