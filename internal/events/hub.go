package events

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/levyline/taxflow/pkg/api"
	"github.com/levyline/taxflow/pkg/log"
	"github.com/levyline/taxflow/pkg/util"
)

type (
	// Hub fans execution events out to subscribers. Events are queued on
	// publish and delivered asynchronously; a subscriber that falls behind
	// drops events rather than stalling the engine
	Hub struct {
		queue  *Queue
		subs   util.Set[*Subscription]
		mu     sync.RWMutex
		pubMu  sync.RWMutex
		closed bool
	}

	// Subscription receives the events accepted by its filter
	Subscription struct {
		hub    *Hub
		ch     chan *api.ExecutionEvent
		filter Filter
		once   sync.Once
	}

	// Filter selects events for a subscription
	Filter func(*api.ExecutionEvent) bool
)

const (
	DefaultBatchSize  = 64
	DefaultBufferSize = 256
)

// NewHub creates and starts an event hub
func NewHub() *Hub {
	h := &Hub{
		subs: util.Set[*Subscription]{},
	}
	h.queue = NewQueue(h.dispatch, DefaultBatchSize)
	h.queue.Start()
	return h
}

// Publish queues an event for delivery. Events published after Close are
// discarded
func (h *Hub) Publish(ev *api.ExecutionEvent) {
	h.pubMu.RLock()
	defer h.pubMu.RUnlock()
	if h.closed {
		return
	}
	h.queue.Enqueue(ev)
}

// Subscribe registers a subscription for events accepted by filter. A nil
// filter accepts every event
func (h *Hub) Subscribe(filter Filter) *Subscription {
	if filter == nil {
		filter = All
	}
	sub := &Subscription{
		hub:    h,
		ch:     make(chan *api.ExecutionEvent, DefaultBufferSize),
		filter: filter,
	}

	h.pubMu.RLock()
	defer h.pubMu.RUnlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs.Add(sub)
	return sub
}

// Close delivers queued events and closes every subscription
func (h *Hub) Close() {
	h.pubMu.Lock()
	if h.closed {
		h.pubMu.Unlock()
		return
	}
	h.closed = true
	h.pubMu.Unlock()
	h.queue.Flush()

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) dispatch(batch []*api.ExecutionEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ev := range batch {
		for sub := range h.subs {
			if !sub.filter(ev) {
				continue
			}
			select {
			case sub.ch <- ev:
			default:
				slog.Warn("Dropping event for slow subscriber",
					log.ExecutionID(ev.ExecutionID),
					slog.String("type", string(ev.Type)))
			}
		}
	}
	return nil
}

// Events returns the channel on which matching events are delivered. The
// channel is closed when the subscription or hub is closed
func (s *Subscription) Events() <-chan *api.ExecutionEvent {
	return s.ch
}

// Close unregisters the subscription
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		s.hub.subs.Remove(s)
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// All accepts every event
func All(*api.ExecutionEvent) bool {
	return true
}

// FilterExecution accepts events of a single execution
func FilterExecution(id api.ExecutionID) Filter {
	return func(ev *api.ExecutionEvent) bool {
		return ev.ExecutionID == id
	}
}

// FilterTypes accepts events of the given types
func FilterTypes(types ...api.EventType) Filter {
	set := util.SetOf(types...)
	return func(ev *api.ExecutionEvent) bool {
		return set.Contains(ev.Type)
	}
}

// And accepts events accepted by every filter
func And(filters ...Filter) Filter {
	filters = slices.DeleteFunc(filters, func(f Filter) bool {
		return f == nil
	})
	return func(ev *api.ExecutionEvent) bool {
		for _, f := range filters {
			if !f(ev) {
				return false
			}
		}
		return true
	}
}

// BuildFilter creates a filter from a client subscription. Empty fields
// match everything
func BuildFilter(sub *api.ClientSubscription) Filter {
	var byExecution, byType Filter
	if sub.ExecutionID != "" {
		byExecution = FilterExecution(sub.ExecutionID)
	}
	if len(sub.EventTypes) > 0 {
		byType = FilterTypes(sub.EventTypes...)
	}
	return And(byExecution, byType)
}
