package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/smtp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error { return nil }

type fakeSMTPClient struct {
	from  string
	rcpt  []string
	data  bytes.Buffer
	authd bool
	quit  bool
}

func (c *fakeSMTPClient) Mail(from string) error          { c.from = from; return nil }
func (c *fakeSMTPClient) Rcpt(to string) error            { c.rcpt = append(c.rcpt, to); return nil }
func (c *fakeSMTPClient) Data() (io.WriteCloser, error)   { return bufferCloser{&c.data}, nil }
func (c *fakeSMTPClient) Quit() error                     { c.quit = true; return nil }
func (c *fakeSMTPClient) Close() error                    { return nil }
func (c *fakeSMTPClient) StartTLS(*tls.Config) error      { return nil }
func (c *fakeSMTPClient) Auth(smtp.Auth) error            { c.authd = true; return nil }
func (c *fakeSMTPClient) Extension(string) (bool, string) { return false, "" }

func newFakeSender(t *testing.T, cfg SMTPSettings) (*SMTPSender, *fakeSMTPClient) {
	t.Helper()

	sender, err := NewSMTPSender(cfg)
	require.NoError(t, err)

	client := &fakeSMTPClient{}
	sender.dialFn = func(ctx context.Context, cfg SMTPSettings) (net.Conn, smtpClient, error) {
		server, conn := net.Pipe()
		t.Cleanup(func() { server.Close() })
		return conn, client, nil
	}
	return sender, client
}

func TestNewSMTPSender_Validation(t *testing.T) {
	_, err := NewSMTPSender(SMTPSettings{Port: 25})
	assert.Error(t, err)

	_, err = NewSMTPSender(SMTPSettings{Host: "mail.local"})
	assert.Error(t, err)
}

func TestSMTPSender_Send_Multipart(t *testing.T) {
	sender, client := newFakeSender(t, SMTPSettings{Host: "mail.local", Port: 25, From: "noreply@example.com", Username: "u"})

	err := sender.Send(context.Background(), Message{
		To:      "user@example.com",
		ReplyTo: "help@example.com",
		Subject: "Your sign-in link",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})

	require.NoError(t, err)
	assert.True(t, client.authd)
	assert.True(t, client.quit)
	assert.Equal(t, "noreply@example.com", client.from)
	assert.Equal(t, []string{"user@example.com"}, client.rcpt)

	body := client.data.String()
	assert.Contains(t, body, "Reply-To: help@example.com")
	assert.Contains(t, body, "multipart/alternative")
	assert.Contains(t, body, "plain")
	assert.Contains(t, body, "<p>html</p>")
}

func TestSMTPSender_Send_RequiresSender(t *testing.T) {
	sender, _ := newFakeSender(t, SMTPSettings{Host: "mail.local", Port: 25})

	err := sender.Send(context.Background(), Message{To: "user@example.com", Text: "x"})

	assert.ErrorIs(t, err, ErrNoSender)
}

func TestFormatMessage_StripsHeaderInjection(t *testing.T) {
	out := formatMessage("a@example.com", Message{To: "b@example.com", Subject: "hi\r\nBcc: evil@example.com", Text: "x"})

	headerBlock := strings.SplitN(out, "\r\n\r\n", 2)[0]
	assert.NotContains(t, headerBlock, "\r\nBcc:")
	assert.Contains(t, out, "Content-Type: text/plain")
}
