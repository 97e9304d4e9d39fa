package viewer

import (
	"context"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/transport/sse"
)

// UpdateKind tags an Update.
type UpdateKind int

const (
	UpdateConnected UpdateKind = iota
	UpdateLine
	UpdateStatus
	UpdateDisconnected
)

// Update is one thing that happened on a followed stream.
type Update struct {
	Kind     UpdateKind
	Line     core.LogLine  // UpdateLine
	Degraded bool          // UpdateStatus
	Err      error         // UpdateDisconnected
	RetryIn  time.Duration // UpdateDisconnected
}

// Apply folds u into s. It reports whether the visible content changed.
func (s *State) Apply(u Update) bool {
	switch u.Kind {
	case UpdateConnected:
		s.Reset()
		return true
	case UpdateLine:
		return s.Append(u.Line)
	default:
		return false
	}
}

// Follow streams url into fn until ctx is cancelled, reconnecting after
// delay. Each connection starts with UpdateConnected followed by the
// server's replay.
func Follow(ctx context.Context, url string, delay time.Duration, fn func(Update)) error {
	return sse.Follow(ctx, url, delay, sse.Funcs{
		Connect: func() { fn(Update{Kind: UpdateConnected}) },
		Event: func(ev sse.Event) {
			if u, ok := FromEvent(ev); ok {
				fn(u)
			}
		},
		Disconnect: func(err error, retryIn time.Duration) {
			fn(Update{Kind: UpdateDisconnected, Err: err, RetryIn: retryIn})
		},
	})
}

// FromEvent converts a stream event. Unknown events are ignored.
func FromEvent(ev sse.Event) (Update, bool) {
	switch ev.Name {
	case "", "message":
		seq, _ := ev.Seq()
		return Update{Kind: UpdateLine, Line: core.LogLine{Seq: seq, Text: ev.Data, ProducedAt: time.Now()}}, true
	case sse.EventStatus:
		return Update{Kind: UpdateStatus, Degraded: ev.Data == sse.StatusDegraded}, true
	default:
		return Update{}, false
	}
}
