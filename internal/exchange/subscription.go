package exchange

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Responder is the pending network response a Subscription completes.
type Responder interface {
	// Context is done once the underlying connection has gone away.
	Context() context.Context
	// Respond completes the response. It is called at most once and must
	// not block.
	Respond(status int, body []byte)
}

// Subscription is one in-flight long-poll bound to a subscriber.
//
// It ends exactly once: by Deliver, by the responder's context closing, or
// by the timeout firing. Whichever comes first wins; the others are no-ops.
type Subscription struct {
	subscriberID string
	responder    Responder

	done   atomic.Bool
	doneCh chan struct{}

	mu        sync.Mutex
	timer     *time.Timer
	stopClose func() bool
}

func NewSubscription(subscriberID string, responder Responder, timeout time.Duration) *Subscription {
	s := &Subscription{
		subscriberID: subscriberID,
		responder:    responder,
		doneCh:       make(chan struct{}),
	}

	// Both callbacks run on their own goroutines and take mu in finish, so
	// they cannot observe a half-built subscription.
	s.mu.Lock()
	s.timer = time.AfterFunc(timeout, s.expire)
	s.stopClose = context.AfterFunc(responder.Context(), s.abandon)
	s.mu.Unlock()

	return s
}

func (s *Subscription) SubscriberID() string {
	return s.subscriberID
}

// Alive reports whether the poll is still pending.
func (s *Subscription) Alive() bool {
	return !s.done.Load()
}

// Done is closed once the subscription has ended by any path.
func (s *Subscription) Done() <-chan struct{} {
	return s.doneCh
}

// Deliver completes the poll with data. It reports false if the
// subscription had already ended.
func (s *Subscription) Deliver(data []byte) bool {
	if !s.finish() {
		return false
	}
	s.responder.Respond(http.StatusOK, data)
	return true
}

func (s *Subscription) expire() {
	if !s.finish() {
		return
	}
	s.responder.Respond(http.StatusNoContent, nil)
}

// abandon ends the subscription after the client went away. Nothing is
// written; the transport finalizes the response.
func (s *Subscription) abandon() {
	s.finish()
}

// Cancel ends the subscription without responding, for polls the caller
// decided not to keep after all.
func (s *Subscription) Cancel() {
	s.abandon()
}

func (s *Subscription) finish() bool {
	if !s.done.CompareAndSwap(false, true) {
		return false
	}

	s.mu.Lock()
	s.timer.Stop()
	s.stopClose()
	s.mu.Unlock()

	close(s.doneCh)
	return true
}
