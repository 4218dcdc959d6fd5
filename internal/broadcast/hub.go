package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nerrad567/flora-core/internal/infrastructure/config"
	"github.com/nerrad567/flora-core/internal/infrastructure/logging"
	"github.com/nerrad567/flora-core/internal/infrastructure/metrics"
)

var (
	// ErrSubscriberClosed is returned by Deliver after a subscriber is closed.
	ErrSubscriberClosed = errors.New("broadcast: subscriber closed")

	// ErrBufferFull is returned by Deliver when a slow subscriber has no room.
	ErrBufferFull = errors.New("broadcast: send buffer full")
)

// Subscriber receives serialized events. Deliver must not block; any error
// removes the subscriber from the hub.
type Subscriber interface {
	Deliver(msg []byte) error
}

// closer is implemented by subscribers that own resources released on removal.
type closer interface {
	Close()
}

// Options configures a Hub.
type Options struct {
	WebSocket config.WebSocketConfig
	Snapshots SnapshotSource   // answers refresh requests; optional
	Logger    *logging.Logger  // optional
	Metrics   *metrics.Metrics // optional
}

// Hub is the set of live subscribers. All methods are safe for concurrent use.
type Hub struct {
	wsCfg     config.WebSocketConfig
	snapshots SnapshotSource
	logger    *logging.Logger
	metrics   *metrics.Metrics

	mu   sync.RWMutex
	subs map[Subscriber]struct{}
}

// NewHub creates an empty hub.
func NewHub(opts Options) *Hub {
	h := &Hub{
		wsCfg:     opts.WebSocket,
		snapshots: opts.Snapshots,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		subs:      make(map[Subscriber]struct{}),
	}
	if h.logger == nil {
		h.logger = logging.Discard()
	}
	return h
}

// Run blocks until ctx is done, then closes and removes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	subs := make([]Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
		delete(h.subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if c, ok := sub.(closer); ok {
			c.Close()
		}
	}
	h.metrics.SetSubscribers(0)
}

// Subscribe adds sub. Adding a subscriber twice has no further effect.
func (h *Hub) Subscribe(sub Subscriber) {
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.metrics.SetSubscribers(n)
	h.logger.Debug("subscriber added", "subscribers", n)
}

// Unsubscribe removes sub and closes it if it owns resources. It reports
// whether sub was present; only the caller that removed it closes it.
func (h *Hub) Unsubscribe(sub Subscriber) bool {
	h.mu.Lock()
	_, existed := h.subs[sub]
	delete(h.subs, sub)
	n := len(h.subs)
	h.mu.Unlock()

	if !existed {
		return false
	}
	if c, ok := sub.(closer); ok {
		c.Close()
	}
	h.metrics.SetSubscribers(n)
	h.logger.Debug("subscriber removed", "subscribers", n)
	return true
}

// Publish serializes event once and delivers it to every current subscriber.
// Subscribers whose delivery fails are pruned. Publish never fails.
func (h *Hub) Publish(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal broadcast event", "error", err)
		return
	}

	// Deliver outside the lock so a subscriber can unsubscribe concurrently.
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Deliver(data); err != nil {
			h.prune(sub, err)
		}
	}
	h.metrics.EventPublished()
}

// Send serializes v and delivers it to one subscriber, pruning it on failure.
func (h *Hub) Send(sub Subscriber, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := sub.Deliver(data); err != nil {
		h.prune(sub, err)
		return err
	}
	return nil
}

func (h *Hub) prune(sub Subscriber, cause error) {
	if h.Unsubscribe(sub) {
		h.metrics.SubscriberPruned()
		h.logger.Debug("subscriber pruned", "error", cause)
	}
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
