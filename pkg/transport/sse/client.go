package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/modoterra/tailcast/internal/buildinfo"
)

// ErrStreamEnded is reported when the server closes a stream cleanly.
var ErrStreamEnded = errors.New("stream ended by server")

// Stream is one open SSE connection.
type Stream struct {
	body io.ReadCloser
	dec  *Decoder
}

// Dial opens the event stream at url. The stream lives until ctx is
// cancelled, the server closes it or Close is called.
func Dial(ctx context.Context, url string) (*Stream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", "tailcast/"+buildinfo.Version)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream %s returned status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("stream %s returned content type %q", url, ct)
	}
	return &Stream{body: resp.Body, dec: NewDecoder(resp.Body)}, nil
}

// Next blocks for the next event. A clean end of stream is ErrStreamEnded.
func (s *Stream) Next() (Event, error) {
	ev, err := s.dec.Next()
	if errors.Is(err, io.EOF) {
		return Event{}, ErrStreamEnded
	}
	return ev, err
}

// Close ends the stream.
func (s *Stream) Close() error {
	return s.body.Close()
}

// Handler receives the lifecycle of a followed stream.
type Handler interface {
	// OnConnect runs after each successful connect, before the replay.
	OnConnect()
	OnEvent(ev Event)
	// OnDisconnect runs when a connect attempt or an open stream fails.
	OnDisconnect(err error, retryIn time.Duration)
}

// Funcs adapts plain functions to Handler. Nil fields are skipped.
type Funcs struct {
	Connect    func()
	Event      func(Event)
	Disconnect func(error, time.Duration)
}

func (f Funcs) OnConnect() {
	if f.Connect != nil {
		f.Connect()
	}
}

func (f Funcs) OnEvent(ev Event) {
	if f.Event != nil {
		f.Event(ev)
	}
}

func (f Funcs) OnDisconnect(err error, retryIn time.Duration) {
	if f.Disconnect != nil {
		f.Disconnect(err, retryIn)
	}
}

// Follow keeps a stream open until ctx is cancelled, reconnecting after
// delay on any error or server close. Every reconnect replays the server's
// window, so handlers reset their view in OnConnect.
func Follow(ctx context.Context, url string, delay time.Duration, h Handler) error {
	if delay <= 0 {
		delay = DefaultRetry
	}
	for {
		err := follow(ctx, url, h)
		if ctx.Err() != nil {
			return nil
		}
		h.OnDisconnect(err, delay)

		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

func follow(ctx context.Context, url string, h Handler) error {
	stream, err := Dial(ctx, url)
	if err != nil {
		return err
	}
	defer stream.Close()

	h.OnConnect()
	for {
		ev, err := stream.Next()
		if err != nil {
			return err
		}
		if ev.Data == "" && ev.Name == "" {
			continue // retry-only frame
		}
		h.OnEvent(ev)
	}
}
