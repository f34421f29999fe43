package exchange

import (
	"time"

	"github.com/google/uuid"
)

// Subscriber is a durable identity within a channel.
//
// Fields are guarded by the owning channel's mutex.
type Subscriber struct {
	id           string
	lastActiveAt time.Time
}

func newSubscriber(now time.Time) *Subscriber {
	return &Subscriber{
		id:           uuid.NewString(),
		lastActiveAt: now,
	}
}

// ID returns the subscriber token. Reading it does not count as activity.
func (s *Subscriber) ID() string {
	return s.id
}

func (s *Subscriber) LastActiveAt() time.Time {
	return s.lastActiveAt
}

// Touch marks the subscriber active as of now.
func (s *Subscriber) Touch(now time.Time) {
	s.lastActiveAt = now
}

func (s *Subscriber) idleSince(now time.Time) time.Duration {
	return now.Sub(s.lastActiveAt)
}
