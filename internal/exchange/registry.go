package exchange

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// Registry owns the live channels and periodically reclaims stale ones.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel

	opts     []Option
	interval time.Duration

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry builds an empty registry. Options are also applied to every
// channel the registry creates. The sweep does not run until Start.
func NewRegistry(opts ...Option) *Registry {
	o := newOptions(opts)
	return &Registry{
		channels: make(map[string]*Channel),
		opts:     opts,
		interval: o.sweepInterval,
		done:     make(chan struct{}),
	}
}

func (r *Registry) Get(channelID string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	return ch, ok
}

func (r *Registry) Has(channelID string) bool {
	_, ok := r.Get(channelID)
	return ok
}

// Add inserts ch, replacing any channel with the same id. Use Create to
// avoid clobbering an existing channel.
func (r *Registry) Add(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID()] = ch
}

// Create registers a new channel together with its creator's subscriber.
// The subscriber exists before the channel is visible, so a concurrent
// sweep cannot reclaim it.
func (r *Registry) Create(cfg ChannelConfig) (*Channel, *Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[cfg.ChannelID]; ok {
		return nil, nil, fmt.Errorf("channel %q: %w", cfg.ChannelID, ErrChannelExists)
	}

	ch := NewChannel(cfg, r.opts...)
	sub := ch.CreateSubscriber()
	r.channels[cfg.ChannelID] = ch
	return ch, sub, nil
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// Sweep cleans up every channel and removes those left without
// subscribers. It returns the number of channels removed.
func (r *Registry) Sweep() int {
	r.mu.RLock()
	snapshot := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		snapshot = append(snapshot, ch)
	}
	r.mu.RUnlock()

	var empty []*Channel
	for _, ch := range snapshot {
		ch.CleanUp()
		if !ch.HasSubscribers() {
			empty = append(empty, ch)
		}
	}
	if len(empty) == 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, ch := range empty {
		// The id may have been re-created since the snapshot.
		if r.channels[ch.ID()] != ch || ch.HasSubscribers() {
			continue
		}
		delete(r.channels, ch.ID())
		removed++
		log.Printf("registry: removed empty channel %s", ch.ID())
	}
	return removed
}

func (r *Registry) Start() {
	r.wg.Add(1)
	go r.loop()
	log.Printf("registry: sweep started (interval=%s)", r.interval)
}

// Stop ends the sweep loop and waits for it. It is safe to call more than
// once, and before Start.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
	log.Printf("registry: sweep stopped")
}

func (r *Registry) loop() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.done:
			return
		}
	}
}
