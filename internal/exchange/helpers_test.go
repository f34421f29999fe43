package exchange

import (
	"context"
	"sync"
	"testing"
	"time"
)

type response struct {
	status int
	body   []byte
}

type fakeResponder struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	responses []response
}

func newFakeResponder(t *testing.T) *fakeResponder {
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &fakeResponder{ctx: ctx, cancel: cancel}
}

func (f *fakeResponder) Context() context.Context { return f.ctx }

func (f *fakeResponder) Respond(status int, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, response{status: status, body: body})
}

func (f *fakeResponder) Responses() []response {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]response, len(f.responses))
	copy(out, f.responses)
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// poll registers a long-lived subscription for subscriberID on ch.
func poll(t *testing.T, ch *Channel, subscriberID string) (*Subscription, *fakeResponder) {
	r := newFakeResponder(t)
	s := NewSubscription(subscriberID, r, time.Minute)
	ch.Subscribe(s)
	return s, r
}
