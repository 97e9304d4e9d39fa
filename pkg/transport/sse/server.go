package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/modoterra/tailcast/pkg/core"
	"github.com/modoterra/tailcast/pkg/hub"
	"github.com/modoterra/tailcast/pkg/providers/logs/filetail"
)

// Broadcaster is the part of the hub the HTTP server needs.
type Broadcaster interface {
	Subscribe(name string) (*hub.Subscriber, []core.LogLine)
	Unsubscribe(id uint64)
	Status() hub.Status
}

// DayReader returns the lines logged on day.
type DayReader func(day time.Time) ([]string, error)

// Defaults
const (
	DefaultWriteTimeout = 10 * time.Second
	DefaultRetry        = 5 * time.Second
	DefaultHeartbeat    = 15 * time.Second
)

// Options configures a Server.
type Options struct {
	WriteTimeout time.Duration
	Retry        time.Duration // advertised reconnect delay
	Heartbeat    time.Duration // comment frame interval on idle streams
	Location     *time.Location
	ByDate       DayReader // nil when the source has no dated file
	Logger       *slog.Logger
}

// Server serves the log stream, date lookups and health over HTTP.
type Server struct {
	hub  Broadcaster
	opts Options
	mux  *http.ServeMux

	mu      sync.Mutex
	quit    chan struct{}
	stopped bool
}

// NewServer builds a server over b.
func NewServer(b Broadcaster, opts Options) *Server {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Retry <= 0 {
		opts.Retry = DefaultRetry
	}
	if opts.Heartbeat <= 0 {
		opts.Heartbeat = DefaultHeartbeat
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		hub:  b,
		opts: opts,
		mux:  http.NewServeMux(),
		quit: make(chan struct{}),
	}
	s.mux.HandleFunc("GET /logs/stream", s.handleStream)
	s.mux.HandleFunc("GET /logs/{date}", s.handleDate)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Serve accepts connections on ln until ctx is cancelled, then ends every
// open stream and shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	srv.RegisterOnShutdown(s.Stop)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.opts.Logger.Info("http listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		s.Stop()
		return fmt.Errorf("http serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Stop ends every open stream. New streams are refused afterwards.
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.stopped {
		s.stopped = true
		close(s.quit)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	select {
	case <-s.quit:
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	default:
	}

	rc := http.NewResponseController(w)
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	sub, snapshot := s.hub.Subscribe(r.RemoteAddr)
	defer s.hub.Unsubscribe(sub.ID())
	log := s.opts.Logger.With("subscriber", sub.ID(), "remote", r.RemoteAddr)
	log.Info("stream opened", "replay", len(snapshot))

	w.WriteHeader(http.StatusOK)

	send := func(events ...Event) error {
		if err := rc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
		for _, ev := range events {
			if err := WriteEvent(w, ev); err != nil {
				return err
			}
		}
		return rc.Flush()
	}

	frames := make([]Event, 0, len(snapshot)+1)
	frames = append(frames, Event{Retry: s.opts.Retry})
	for _, line := range snapshot {
		frames = append(frames, lineEvent(line))
	}
	if err := send(frames...); err != nil {
		log.Info("stream closed", "reason", err)
		return
	}

	heartbeat := time.NewTicker(s.opts.Heartbeat)
	defer heartbeat.Stop()

	for {
		var err error
		select {
		case line, ok := <-sub.C():
			if !ok {
				log.Info("stream closed", "reason", sub.Err())
				return
			}
			err = send(lineEvent(line))
		case degraded := <-sub.Degraded():
			err = send(statusEvent(degraded))
		case <-heartbeat.C:
			err = s.comment(rc, w)
		case <-r.Context().Done():
			log.Info("stream closed", "reason", "client disconnected")
			return
		case <-s.quit:
			log.Info("stream closed", "reason", "server shutdown")
			return
		}
		if err != nil {
			log.Info("stream closed", "reason", err)
			return
		}
	}
}

func (s *Server) comment(rc *http.ResponseController, w http.ResponseWriter) error {
	if err := rc.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := w.Write([]byte(": ping\n\n")); err != nil {
		return err
	}
	return rc.Flush()
}

func lineEvent(line core.LogLine) Event {
	return Event{ID: strconv.FormatUint(line.Seq, 10), Data: line.Text}
}

func statusEvent(degraded bool) Event {
	if degraded {
		return Event{Name: EventStatus, Data: StatusDegraded}
	}
	return Event{Name: EventStatus, Data: StatusOK}
}

func (s *Server) handleDate(w http.ResponseWriter, r *http.Request) {
	day, err := filetail.ParseDay(r.PathValue("date"), s.opts.Location)
	if err != nil {
		http.Error(w, "Invalid date format. Use YYYYMMDD", http.StatusBadRequest)
		return
	}
	if s.opts.ByDate == nil {
		http.Error(w, "date lookup needs a file source", http.StatusNotFound)
		return
	}
	lines, err := s.opts.ByDate(day)
	if err != nil {
		s.opts.Logger.Warn("date lookup failed", "date", day.Format(filetail.DayLayout), "err", err)
		http.Error(w, "log file unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	_, _ = w.Write([]byte(b.String()))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.hub.Status()
	w.Header().Set("Content-Type", "application/json")
	if st.Degraded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(st)
}
