// Package notification describes outbound messages sent to users.
package notification

import "context"

// Kind selects the template used to render a message.
type Kind string

const (
	KindTwoFactorCode     Kind = "TwoFactorCode"
	KindEmailVerification Kind = "EmailVerification"
	KindPasswordReset     Kind = "PasswordReset"
)

// Message is a single templated notification.
type Message struct {
	To        string
	Name      string
	Kind      Kind
	Variables map[string]string
}

// Sender delivers messages. A returned error means the message was not
// accepted for delivery.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
