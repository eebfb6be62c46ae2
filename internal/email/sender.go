// Package email delivers operational notifications such as forgery alerts.
package email

import (
	"context"
	"errors"
)

// ErrNoRecipients is returned for a message without recipients.
var ErrNoRecipients = errors.New("email has no recipients")

// Message is a plain-text email.
type Message struct {
	To      []string
	Subject string
	Body    string
}

// Sender delivers email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
