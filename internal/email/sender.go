package email

import (
	"context"
	"errors"
)

// ErrNoSender is returned when a message has neither an explicit sender nor
// a configured default.
var ErrNoSender = errors.New("email: sender address is required")

// Message is an outbound email. Empty optional fields are omitted.
type Message struct {
	To      string
	From    string
	ReplyTo string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers a message or reports why it could not.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
