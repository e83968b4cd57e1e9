package main

import (
	"errors"
	"log"
	"sync"

	"github.com/roadsense/roadhub/observability"
	"github.com/roadsense/roadhub/store"
)

const defaultMaxSubscribers = 200

// ErrHubFull is returned by Subscribe when the connection cap is reached.
var ErrHubFull = errors.New("subscriber limit reached")

// Channel is one live push connection to a subscriber. Send must not
// block on a slow peer; Close must be safe to call more than once.
type Channel interface {
	Send(rec *store.ProcessedRecord) error
	Close()
}

// SubscriptionHub maps a user id to the set of live push channels for
// that user. It is the only shared mutable state in the process; one
// coarse RWMutex guards the whole map, which is plenty at the expected
// contention level.
type SubscriptionHub struct {
	mu       sync.RWMutex
	subs     map[int64]map[Channel]struct{}
	total    int
	maxConns int
}

// NewSubscriptionHub creates an empty hub. maxConns <= 0 selects the
// default connection cap.
func NewSubscriptionHub(maxConns int) *SubscriptionHub {
	if maxConns <= 0 {
		maxConns = defaultMaxSubscribers
	}
	return &SubscriptionHub{
		subs:     make(map[int64]map[Channel]struct{}),
		maxConns: maxConns,
	}
}

// Subscribe registers ch under userID. Subscribing the same channel
// twice under the same user is a no-op, so a record is never delivered
// twice to one connection.
func (h *SubscriptionHub) Subscribe(userID int64, ch Channel) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[userID]
	if ok {
		if _, dup := set[ch]; dup {
			return nil
		}
	}
	// Connection cap to prevent overload
	if h.total >= h.maxConns {
		return ErrHubFull
	}
	if !ok {
		set = make(map[Channel]struct{})
		h.subs[userID] = set
	}
	set[ch] = struct{}{}
	h.total++
	observability.ActiveSubscribers.Set(float64(h.total))
	return nil
}

// Unsubscribe removes ch from userID's set. Not an error if the channel
// was already removed; the disconnect path and the failed-send path may
// both get here.
func (h *SubscriptionHub) Unsubscribe(userID int64, ch Channel) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[userID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, userID)
	}
	h.total--
	observability.ActiveSubscribers.Set(float64(h.total))
}

// SubscribersOf returns a snapshot of the channels registered for
// userID, empty when there are none. Callers iterate the snapshot, not
// the live set.
func (h *SubscriptionHub) SubscribersOf(userID int64) []Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.subs[userID]
	channels := make([]Channel, 0, len(set))
	for ch := range set {
		channels = append(channels, ch)
	}
	return channels
}

// Publish delivers rec to every channel currently subscribed for
// userID. A failing channel is dropped and closed; delivery to the
// remaining channels proceeds regardless.
func (h *SubscriptionHub) Publish(userID int64, rec *store.ProcessedRecord) {
	for _, ch := range h.SubscribersOf(userID) {
		if err := ch.Send(rec); err != nil {
			log.Printf("push to user %d failed, dropping subscriber: %v", userID, err)
			observability.Deliveries.WithLabelValues("error").Inc()
			h.Unsubscribe(userID, ch)
			ch.Close()
			continue
		}
		observability.Deliveries.WithLabelValues("ok").Inc()
	}
}

// SubscriberCount returns the number of registered channels.
func (h *SubscriptionHub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// Shutdown closes every registered channel and resets the hub.
func (h *SubscriptionHub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	log.Printf("shutting down subscription hub with %d subscribers", h.total)

	for _, set := range h.subs {
		for ch := range set {
			ch.Close()
		}
	}
	h.subs = make(map[int64]map[Channel]struct{})
	h.total = 0
	observability.ActiveSubscribers.Set(0)
}
