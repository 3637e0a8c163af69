// Package mail sends the transactional emails of the order flow: the OTP
// codes and the confirmation notices with the expected delivery time.
package mail

import "context"

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer sends messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}
