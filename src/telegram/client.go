// Package telegram defines the messaging-provider collaborator interface.
// The core never talks to the provider directly; it calls through Client,
// and real/fake implementations are injected at construction time.
package telegram

import (
	"context"
	"time"
)

// Dialog is one conversation thread on the provider side.
type Dialog struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	UnreadCount int       `json:"unread_count"`
	LastMessage time.Time `json:"last_message"`
}

// Message is a single message inside a dialog.
type Message struct {
	ID         string    `json:"id"`
	DialogID   string    `json:"dialog_id"`
	SenderName string    `json:"sender_name"`
	Text       string    `json:"text"`
	Outgoing   bool      `json:"outgoing"`
	Date       time.Time `json:"date"`
}

// Receipt confirms a sent message.
type Receipt struct {
	MessageID string    `json:"message_id"`
	SentAt    time.Time `json:"sent_at"`
}

// Client is the provider connection bound to one authenticated session.
type Client interface {
	FetchDialogs(ctx context.Context) ([]Dialog, error)
	FetchMessages(ctx context.Context, dialogID string, limit int) ([]Message, error)
	SendMessage(ctx context.Context, dialogID, text string) (Receipt, error)
	Close() error
}

// ClientFactory recreates provider client handles for sessions loaded from
// the durable tiers. Restore fails with ErrCredentialsMissing when the
// credentials or provider session file needed to reconnect are absent.
type ClientFactory interface {
	New(ctx context.Context, sessionID string) (Client, error)
	Restore(ctx context.Context, sessionID string) (Client, error)
}
