package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTPSettings capture the runtime configuration required by the SMTP sender.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

type smtpClient interface {
	Mail(string) error
	Rcpt(string) error
	Data() (io.WriteCloser, error)
	Quit() error
	Close() error
	StartTLS(*tls.Config) error
	Auth(smtp.Auth) error
	Extension(string) (bool, string)
}

type smtpDialFunc func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error)

// SMTPSender delivers messages over SMTP with optional STARTTLS and PLAIN auth.
type SMTPSender struct {
	cfg    SMTPSettings
	dialFn smtpDialFunc
}

// NewSMTPSender validates cfg and returns a sender.
func NewSMTPSender(cfg SMTPSettings) (*SMTPSender, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("smtp: host is required")
	}
	if cfg.Port == 0 {
		return nil, errors.New("smtp: port is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{cfg: cfg, dialFn: defaultDialFunc}, nil
}

// Send implements Sender.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	from := strings.TrimSpace(msg.From)
	if from == "" {
		from = s.cfg.From
	}
	if from == "" {
		return ErrNoSender
	}

	fromAddr, err := mail.ParseAddress(from)
	if err != nil {
		return fmt.Errorf("smtp: invalid from address: %w", err)
	}
	toAddr, err := mail.ParseAddress(msg.To)
	if err != nil {
		return fmt.Errorf("smtp: invalid recipient address: %w", err)
	}

	conn, client, err := s.dialFn(ctx, s.cfg)
	if err != nil {
		return err
	}
	defer conn.Close()
	defer client.Close()

	if strings.TrimSpace(s.cfg.Username) != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp: auth: %w", err)
		}
	}

	if err := client.Mail(fromAddr.Address); err != nil {
		return fmt.Errorf("smtp: mail from: %w", err)
	}
	if err := client.Rcpt(toAddr.Address); err != nil {
		return fmt.Errorf("smtp: rcpt to: %w", err)
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp: data command: %w", err)
	}
	if _, err := io.WriteString(wc, formatMessage(from, msg)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("smtp: close data writer: %w", err)
	}

	return client.Quit()
}

func defaultDialFunc(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
	address := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	dialer := &net.Dialer{Timeout: cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if cfg.UseTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer, Config: &tls.Config{ServerName: cfg.Host}}
		conn, err = tlsDialer.DialContext(ctx, "tcp", address)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", address)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("smtp: dial %s: %w", address, err)
	}

	client, err := smtp.NewClient(conn, cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("smtp: new client: %w", err)
	}

	if !cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
				_ = client.Close()
				_ = conn.Close()
				return nil, nil, fmt.Errorf("smtp: start tls: %w", err)
			}
		}
	}

	return conn, client, nil
}

func formatMessage(from string, msg Message) string {
	headers := []string{
		"From: " + escapeHeader(from),
		"To: " + escapeHeader(msg.To),
		"Subject: " + escapeHeader(msg.Subject),
		"MIME-Version: 1.0",
	}
	if msg.ReplyTo != "" {
		headers = append(headers, "Reply-To: "+escapeHeader(msg.ReplyTo))
	}

	var b strings.Builder
	switch {
	case msg.Text != "" && msg.HTML != "":
		boundary := "mlb-" + uuid.NewString()
		headers = append(headers, fmt.Sprintf("Content-Type: multipart/alternative; boundary=%q", boundary))
		b.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n")
		writePart(&b, boundary, "text/plain", msg.Text)
		writePart(&b, boundary, "text/html", msg.HTML)
		b.WriteString("--" + boundary + "--\r\n")
	case msg.HTML != "":
		headers = append(headers, "Content-Type: text/html; charset=UTF-8")
		b.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.HTML)
	default:
		headers = append(headers, "Content-Type: text/plain; charset=UTF-8")
		b.WriteString(strings.Join(headers, "\r\n") + "\r\n\r\n" + msg.Text)
	}

	return b.String()
}

func writePart(b *strings.Builder, boundary, contentType, body string) {
	b.WriteString("--" + boundary + "\r\n")
	b.WriteString("Content-Type: " + contentType + "; charset=UTF-8\r\n\r\n")
	b.WriteString(body + "\r\n")
}

func escapeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return value
}
