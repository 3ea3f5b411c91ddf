package telegram

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrCredentialsMissing indicates the provider credentials or session file
// needed to (re)connect are not available.
var ErrCredentialsMissing = errors.New("telegram: credentials missing")

// ErrDialogNotFound indicates an unknown dialog ID.
var ErrDialogNotFound = errors.New("telegram: dialog not found")

// FakeClient is an in-memory provider double used in development mode and in
// tests, replacing the provider with deterministic canned conversations.
type FakeClient struct {
	mu       sync.Mutex
	dialogs  map[string][]Message
	titles   map[string]string
	sent     []Message
	fetchErr error
}

// NewFakeClient creates an empty fake provider client.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		dialogs: make(map[string][]Message),
		titles:  make(map[string]string),
	}
}

// SeedDialog installs a canned conversation for a dialog ID.
func (c *FakeClient) SeedDialog(dialogID, title string, messages []Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.titles[dialogID] = title
	c.dialogs[dialogID] = append([]Message(nil), messages...)
}

// FailFetches makes subsequent fetch calls return err.
func (c *FakeClient) FailFetches(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetchErr = err
}

func (c *FakeClient) FetchDialogs(ctx context.Context) ([]Dialog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	var out []Dialog
	for id, msgs := range c.dialogs {
		d := Dialog{ID: id, Title: c.titles[id]}
		if len(msgs) > 0 {
			d.LastMessage = msgs[len(msgs)-1].Date
		}
		out = append(out, d)
	}
	return out, nil
}

func (c *FakeClient) FetchMessages(ctx context.Context, dialogID string, limit int) ([]Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fetchErr != nil {
		return nil, c.fetchErr
	}
	msgs, ok := c.dialogs[dialogID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDialogNotFound, dialogID)
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return append([]Message(nil), msgs...), nil
}

func (c *FakeClient) SendMessage(ctx context.Context, dialogID, text string) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dialogs[dialogID]; !ok {
		return Receipt{}, fmt.Errorf("%w: %s", ErrDialogNotFound, dialogID)
	}
	now := time.Now()
	msg := Message{
		ID:       fmt.Sprintf("sent-%d", len(c.sent)+1),
		DialogID: dialogID,
		Text:     text,
		Outgoing: true,
		Date:     now,
	}
	c.dialogs[dialogID] = append(c.dialogs[dialogID], msg)
	c.sent = append(c.sent, msg)
	return Receipt{MessageID: msg.ID, SentAt: now}, nil
}

// Sent returns every message sent through the fake, in order.
func (c *FakeClient) Sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.sent...)
}

func (c *FakeClient) Close() error { return nil }

// DevFactory hands out a single shared FakeClient for every session. It is
// the development-mode stand-in for the real provider connection.
type DevFactory struct {
	client *FakeClient
}

// NewDevFactory creates a factory around one shared fake client.
func NewDevFactory(client *FakeClient) *DevFactory {
	if client == nil {
		client = NewFakeClient()
	}
	return &DevFactory{client: client}
}

func (f *DevFactory) New(ctx context.Context, sessionID string) (Client, error) {
	return f.client, nil
}

func (f *DevFactory) Restore(ctx context.Context, sessionID string) (Client, error) {
	return f.client, nil
}

// UnavailableFactory always fails with ErrCredentialsMissing. It models a
// deployment where provider credentials are not configured, so sessions
// loaded from the durable tiers stay usable for auth but cannot reconnect.
type UnavailableFactory struct{}

func (UnavailableFactory) New(ctx context.Context, sessionID string) (Client, error) {
	return nil, ErrCredentialsMissing
}

func (UnavailableFactory) Restore(ctx context.Context, sessionID string) (Client, error) {
	return nil, ErrCredentialsMissing
}
