package model

import "time"

// DateLayout is the canonical rendering of a message's origination time.
const DateLayout = "2006-01-02 15:04:05"

// Message is the canonical record of one fetched email.
type Message struct {
	// ID is the mailbox-assigned identifier (an IMAP UID in decimal form).
	// It never changes once the message has been fetched.
	ID string `json:"id"`

	// Sender is the bare address from the From header, without display name.
	Sender string `json:"sender"`

	// Recipient is the decoded To header.
	Recipient string `json:"recipient"`

	// SentAt is parsed from the Date header. Zero when the header is
	// missing or unparseable.
	SentAt time.Time `json:"sent_at"`

	// Subject is the decoded subject text.
	Subject string `json:"subject"`

	// Body is the concatenation of every text/plain part.
	Body string `json:"body"`
}

// Date returns SentAt in DateLayout, or "" when the origination time is
// unknown.
func (m Message) Date() string {
	if m.SentAt.IsZero() {
		return ""
	}
	return m.SentAt.Format(DateLayout)
}
