package mail

import "context"

// Email is one rendered outbound message.
type Email struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

// Mailer delivers a single email. Implementations must be safe for sequential
// reuse across scheduler ticks; the error text of a failed Send is persisted
// verbatim as the letter's error message.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}
