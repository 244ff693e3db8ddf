package ports

import (
	"context"
	"time"
)

// EmailMessage is the provider-neutral view of a mailbox message.
type EmailMessage struct {
	ID      string    `json:"id"`
	From    string    `json:"from"`
	To      []string  `json:"to,omitempty"`
	Subject string    `json:"subject"`
	Snippet string    `json:"snippet,omitempty"`
	Date    time.Time `json:"date"`
	Unread  bool      `json:"unread,omitempty"`
}

// EmailDraft describes an outgoing message.
type EmailDraft struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// EmailProvider is the downstream mail capability. Token handling follows
// the same rule as CalendarProvider.
type EmailProvider interface {
	SearchMessages(ctx context.Context, token string, query string, limit int) ([]EmailMessage, error)
	SendMessage(ctx context.Context, token string, draft EmailDraft) (id string, err error)
}
