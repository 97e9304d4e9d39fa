package uds

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSessionClosed is returned by Send once the connection is gone.
var ErrSessionClosed = errors.New("session closed")

// DefaultQueueDepth is the outbound queue size of each session.
const DefaultQueueDepth = 1024

var sessionCounter atomic.Uint64

// Session is one client connection. Messages are queued and written by a
// dedicated goroutine, so senders never hold a lock across a socket write.
type Session struct {
	id     uint64
	conn   net.Conn
	out    chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	writeTimeout time.Duration

	mu       sync.Mutex
	cleanups map[string]func()
}

func newSession(conn net.Conn, depth int, writeTimeout time.Duration, logger *slog.Logger) *Session {
	s := &Session{
		id:           sessionCounter.Add(1),
		conn:         conn,
		out:          make(chan []byte, depth),
		done:         make(chan struct{}),
		logger:       logger,
		writeTimeout: writeTimeout,
		cleanups:     make(map[string]func()),
	}
	go s.writeLoop()
	return s
}

// ID identifies the session within the process.
func (s *Session) ID() uint64 { return s.id }

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send queues msg for writing. It blocks while the queue is full and
// returns ErrSessionClosed if the session ends first.
func (s *Session) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", msg.Method, err)
	}
	data = append(data, '\n')
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.out <- data:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// SendEvent builds and queues an event.
func (s *Session) SendEvent(method string, data any) error {
	evt, err := NewEvent(method, data)
	if err != nil {
		return err
	}
	return s.Send(evt)
}

// Attach registers cleanup under key; it runs on Detach(key) or when the
// session closes. It reports false if key is already attached or the
// session is closed.
func (s *Session) Attach(key string, cleanup func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cleanups == nil {
		return false
	}
	if _, ok := s.cleanups[key]; ok {
		return false
	}
	s.cleanups[key] = cleanup
	return true
}

// Detach runs and removes the cleanup registered under key.
func (s *Session) Detach(key string) bool {
	s.mu.Lock()
	fn, ok := s.cleanups[key]
	delete(s.cleanups, key)
	s.mu.Unlock()
	if ok {
		fn()
	}
	return ok
}

// Close ends the session and runs every attached cleanup.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.conn.Close()

		s.mu.Lock()
		fns := s.cleanups
		s.cleanups = nil
		s.mu.Unlock()
		for _, fn := range fns {
			fn()
		}
	})
}

func (s *Session) writeLoop() {
	for {
		select {
		case data := <-s.out:
			if s.writeTimeout > 0 {
				_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			}
			if _, err := s.conn.Write(data); err != nil {
				s.logger.Debug("session write failed", "session", s.id, "err", err)
				s.Close()
				return
			}
		case <-s.done:
			return
		}
	}
}
