package exchange

import (
	"sync"
	"time"
)

// ChannelConfig is the immutable identity and access gate of a channel.
type ChannelConfig struct {
	ChannelID string
	Question  string
	Answer    string
}

// Channel is a named, secret-gated broadcast group.
type Channel struct {
	cfg         ChannelConfig
	idleTimeout time.Duration
	now         func() time.Time

	mu            sync.Mutex
	subscribers   map[string]*Subscriber
	subscriptions []*Subscription
}

// ChannelStats is a point-in-time view of a channel's population.
type ChannelStats struct {
	Subscribers int `json:"subscribers"`
	Pending     int `json:"pending"`
}

func NewChannel(cfg ChannelConfig, opts ...Option) *Channel {
	o := newOptions(opts)
	return &Channel{
		cfg:         cfg,
		idleTimeout: o.idleTimeout,
		now:         o.now,
		subscribers: make(map[string]*Subscriber),
	}
}

func (c *Channel) ID() string {
	return c.cfg.ChannelID
}

func (c *Channel) Question() string {
	return c.cfg.Question
}

// IsAnswer compares trial against the channel's secret.
func (c *Channel) IsAnswer(trial string) bool {
	return c.cfg.Answer == trial
}

func (c *Channel) CreateSubscriber() *Subscriber {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createSubscriberLocked()
}

func (c *Channel) createSubscriberLocked() *Subscriber {
	sub := newSubscriber(c.now())
	c.subscribers[sub.ID()] = sub
	return sub
}

func (c *Channel) HasSubscriber(subscriberID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subscribers[subscriberID]
	return ok
}

// Subscribe registers a pending poll. Polls from unknown subscribers are
// dropped and Subscribe reports false.
func (c *Channel) Subscribe(s *Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subscribers[s.SubscriberID()]
	if !ok {
		return false
	}
	sub.Touch(c.now())
	c.subscriptions = append(c.subscriptions, s)
	return true
}

// Publish broadcasts data to every pending poll except the publisher's own
// and returns how many polls it completed. Publishing as an unknown
// subscriber does nothing.
func (c *Channel) Publish(subscriberID string, data []byte) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.subscribers[subscriberID]; !ok {
		return 0
	}

	var self, recipients []*Subscription
	for _, s := range c.subscriptions {
		switch {
		case s.SubscriberID() == subscriberID:
			self = append(self, s)
		case s.Alive():
			recipients = append(recipients, s)
		}
	}

	delivered := 0
	for _, s := range recipients {
		if s.Deliver(data) {
			delivered++
		}
	}

	c.subscriptions = self
	return delivered
}

// CleanUp drops ended polls, then subscribers that have been idle longer
// than the idle timeout and have no pending poll left.
func (c *Channel) CleanUp() {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := make(map[string]bool)
	alive := c.subscriptions[:0]
	for _, s := range c.subscriptions {
		if !s.Alive() {
			continue
		}
		alive = append(alive, s)
		pending[s.SubscriberID()] = true
	}
	clear(c.subscriptions[len(alive):])
	c.subscriptions = alive

	now := c.now()
	for id, sub := range c.subscribers {
		if sub.idleSince(now) < c.idleTimeout || pending[id] {
			continue
		}
		delete(c.subscribers, id)
	}
}

func (c *Channel) HasSubscribers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribers) > 0
}

func (c *Channel) Stats() ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := 0
	for _, s := range c.subscriptions {
		if s.Alive() {
			pending++
		}
	}
	return ChannelStats{
		Subscribers: len(c.subscribers),
		Pending:     pending,
	}
}
