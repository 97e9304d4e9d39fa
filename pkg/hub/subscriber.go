package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
)

// State is the lifecycle stage of a subscriber.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Subscriber is one viewer's delivery queue.
type Subscriber struct {
	id          uint64
	name        string
	connectedAt time.Time
	ch          chan core.LogLine
	status      chan bool
	done        chan struct{}
	state       atomic.Int32
	err         error
	once        sync.Once
}

func newSubscriber(name string, depth int) *Subscriber {
	return &Subscriber{
		name:        name,
		connectedAt: time.Now(),
		ch:          make(chan core.LogLine, depth),
		status:      make(chan bool, 1),
		done:        make(chan struct{}),
	}
}

func (s *Subscriber) ID() uint64             { return s.id }
func (s *Subscriber) Name() string           { return s.name }
func (s *Subscriber) ConnectedAt() time.Time { return s.connectedAt }
func (s *Subscriber) State() State           { return State(s.state.Load()) }

// C delivers live lines. It is closed when the subscriber is closed.
func (s *Subscriber) C() <-chan core.LogLine { return s.ch }

// Degraded delivers source health transitions (true = degraded).
// Only the latest value is kept.
func (s *Subscriber) Degraded() <-chan bool { return s.status }

// Done is closed when the subscriber is closed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Err reports why the subscriber was closed. It is nil while active.
func (s *Subscriber) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Subscriber) setState(st State) {
	s.state.Store(int32(st))
}

// notify must be called with the hub lock held; the hub is the only sender.
func (s *Subscriber) notify(degraded bool) {
	select {
	case <-s.status:
	default:
	}
	s.status <- degraded
}

func (s *Subscriber) close(err error) {
	s.once.Do(func() {
		s.err = err
		s.setState(StateClosed)
		close(s.ch)
		close(s.done)
	})
}
