// Package hub fans new log lines out to every connected viewer.
//
// The hub owns the ring buffer on the write side: Publish appends to the ring
// and delivers to subscribers in one critical section, and Subscribe takes the
// replay snapshot and registers in that same critical section. A subscriber
// therefore sees snapshot + live feed as one gapless, duplicate-free run of
// sequence numbers.
//
// Delivery never blocks. Each subscriber has a bounded queue; a subscriber
// whose queue is full is dropped with ErrSlowConsumer. The hub performs no
// I/O, so callers drain Subscriber.C in their own goroutine.
package hub

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/ring"
)

var (
	ErrSlowConsumer = errors.New("slow consumer")
	ErrUnsubscribed = errors.New("unsubscribed")
	ErrHubClosed    = errors.New("hub closed")
)

// DefaultQueueDepth is used when Options.QueueDepth is not positive.
const DefaultQueueDepth = 256

// Options configures a Hub.
type Options struct {
	QueueDepth int
	Logger     *slog.Logger
}

// Status is a point-in-time view of the hub for health reporting.
type Status struct {
	Subscribers int    `json:"subscribers"`
	Buffered    int    `json:"buffered"`
	Capacity    int    `json:"capacity"`
	LastSeq     uint64 `json:"last_seq"`
	Published   uint64 `json:"published"`
	Dropped     uint64 `json:"dropped"`
	Degraded    bool   `json:"degraded"`
	Reason      string `json:"reason,omitempty"`
}

// Hub is the broadcast point between the tailer and the viewers.
type Hub struct {
	ring       *ring.Buffer
	queueDepth int
	subs       map[uint64]*Subscriber
	nextID     uint64
	published  uint64
	dropped    uint64
	degraded   bool
	reason     string
	closed     bool
	mu         sync.Mutex
	logger     *slog.Logger
}

// New creates a hub publishing into buf.
func New(buf *ring.Buffer, opts Options) *Hub {
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = DefaultQueueDepth
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Hub{
		ring:       buf,
		queueDepth: opts.QueueDepth,
		subs:       make(map[uint64]*Subscriber),
		logger:     opts.Logger,
	}
}

// Subscribe registers a new subscriber and returns it together with the
// replay snapshot. Every line published after the snapshot was taken is
// delivered on the subscriber's channel.
func (h *Hub) Subscribe(name string) (*Subscriber, []core.LogLine) {
	s := newSubscriber(name, h.queueDepth)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		s.close(ErrHubClosed)
		return s, []core.LogLine{}
	}

	h.nextID++
	s.id = h.nextID
	snapshot := h.ring.Snapshot()
	s.setState(StateActive)
	if h.degraded {
		s.notify(true)
	}
	h.subs[s.id] = s

	h.logger.Info("subscriber connected", "id", s.id, "name", name, "replay", len(snapshot))
	return s, snapshot
}

// Publish appends line to the ring and delivers it to every active subscriber.
func (h *Hub) Publish(line core.LogLine) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.ring.Append(line)
	h.published++

	for id, s := range h.subs {
		select {
		case s.ch <- line:
		default:
			delete(h.subs, id)
			h.dropped++
			s.close(ErrSlowConsumer)
			h.logger.Warn("dropping slow subscriber", "id", id, "name", s.name, "queue", h.queueDepth)
		}
	}
}

// Unsubscribe removes the subscriber. It is safe to call more than once.
func (h *Hub) Unsubscribe(id uint64) {
	h.mu.Lock()
	s, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()

	if ok {
		s.close(ErrUnsubscribed)
		h.logger.Info("subscriber disconnected", "id", id, "name", s.name, "connected_for", time.Since(s.connectedAt).Round(time.Millisecond))
	}
}

// SetDegraded records whether the source is currently unreadable and tells
// subscribers about transitions.
func (h *Hub) SetDegraded(degraded bool, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	changed := h.degraded != degraded
	h.degraded = degraded
	h.reason = reason
	if !degraded {
		h.reason = ""
	}
	if !changed {
		return
	}
	for _, s := range h.subs {
		s.notify(degraded)
	}
}

// Status reports the current hub state.
func (h *Hub) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := Status{
		Subscribers: len(h.subs),
		Buffered:    h.ring.Len(),
		Capacity:    h.ring.Cap(),
		Published:   h.published,
		Dropped:     h.dropped,
		Degraded:    h.degraded,
		Reason:      h.reason,
	}
	if last, ok := h.ring.Last(); ok {
		st.LastSeq = last.Seq
	}
	return st
}

// Snapshot returns the current ring contents without subscribing.
func (h *Hub) Snapshot() []core.LogLine {
	return h.ring.Snapshot()
}

// Close drops every subscriber. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[uint64]*Subscriber)
	h.closed = true
	h.mu.Unlock()

	for _, s := range subs {
		s.close(ErrHubClosed)
	}
}
