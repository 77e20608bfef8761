// Package notify delivers outbound account notifications such as the email
// verification link. Delivery is best effort: callers dispatch through Async
// and never observe transport failures.
package notify

import (
	"context"
	"errors"
	"net/url"
	"strings"
)

// Transport names used in configuration and metric labels.
const (
	TransportSMTP  = "smtp"
	TransportKafka = "kafka"
	TransportLog   = "log"
)

// VerificationSubject is the subject line of the email verification message.
const VerificationSubject = "Confirm email"

var (
	// ErrInvalidMessage is returned for messages that cannot be rendered safely.
	ErrInvalidMessage = errors.New("invalid notification message")

	// ErrTransportUnavailable is returned while a transport's circuit is open.
	ErrTransportUnavailable = errors.New("notification transport unavailable")

	// ErrDispatcherClosed is returned by Async after Close has been called.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Message is a plain-text email addressed to a single recipient.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Dispatcher sends a message over some transport.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

// VerificationLink builds the link a recipient follows to verify their
// address: <baseURL>/auth/verify-email?token=<token>.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/auth/verify-email?token=" + url.QueryEscape(token)
}

// VerificationMessage renders the email verification message for the
// recipient.
func VerificationMessage(baseURL, to, token string) Message {
	return Message{
		To:      to,
		Subject: VerificationSubject,
		Body:    "Hello, press the link to confirm your email: " + VerificationLink(baseURL, token),
	}
}
