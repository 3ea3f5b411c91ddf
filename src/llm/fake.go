package llm

import (
	"context"
	"sync"
)

// FakeClient returns a scripted reply, or a scripted error, for tests.
type FakeClient struct {
	mu    sync.Mutex
	Reply string
	Err   error
	calls int
}

// NewFakeClient creates a fake that always answers with reply.
func NewFakeClient(reply string) *FakeClient {
	return &FakeClient{Reply: reply}
}

func (c *FakeClient) Chat(ctx context.Context, req Request) (Result, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if c.Err != nil {
		return Result{}, c.Err
	}
	return Result{Text: c.Reply}, nil
}

// Calls reports how many times Chat was invoked.
func (c *FakeClient) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
